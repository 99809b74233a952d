package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gennia/domain/board"
)

type MockMapLookup struct {
	mock.Mock
}

func (m *MockMapLookup) LookupMap(ctx context.Context, mapID string) (MapInfo, error) {
	args := m.Called(ctx, mapID)
	return args.Get(0).(MapInfo), args.Error(1)
}

const testMapID = "9b2e1f64-4c1a-4f0e-9d7c-2b7f1e0a6c11"

func conn(i int) string { return fmt.Sprintf("conn-%d", i) }

func ident(i int) Identity {
	return Identity{PlayerID: fmt.Sprintf("player-%d", i), Username: fmt.Sprintf("user%d", i)}
}

// seed creates roomID and joins n players, conn-1 being the host.
func seed(t *testing.T, p *Pool, roomID string, n int) {
	t.Helper()
	require.NoError(t, p.Create(roomID))
	for i := 1; i <= n; i++ {
		_, err := p.AddPlayer(conn(i), roomID, ident(i))
		require.NoError(t, err)
	}
}

func assertInvariants(t *testing.T, r Room) {
	t.Helper()
	if len(r.Players) == 0 {
		return
	}
	hosts := 0
	colors := map[int16]bool{}
	teams := map[int16]bool{}
	for _, p := range r.Players {
		if p.IsRoomHost {
			hosts++
		}
		if p.Spectating() {
			continue
		}
		assert.False(t, colors[p.Color], "duplicate color %d", p.Color)
		assert.False(t, teams[p.Team], "duplicate team %d", p.Team)
		colors[p.Color] = true
		teams[p.Team] = true
	}
	assert.Equal(t, 1, hosts, "rooms with players have exactly one host")
	assert.LessOrEqual(t, len(r.Players), r.Options.MaxPlayers)
}

func TestPoolCapacity(t *testing.T) {
	p := NewPool(5, nil)
	for i := range 5 {
		require.NoError(t, p.Create(fmt.Sprintf("r%d", i)))
	}

	assert.ErrorIs(t, p.Create("extra"), ErrCapacityExceeded)
	_, err := p.CreateRandom()
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	require.NoError(t, p.Remove("r2"))
	require.NoError(t, p.Create("extra"))

	ids := []string{}
	for _, s := range p.ListSummaries() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"extra", "r0", "r1", "r3", "r4"}, ids)
}

func TestPoolDefaultCapacity(t *testing.T) {
	p := NewPool(0, nil)
	for i := range DefaultMaxRoomCount {
		require.NoError(t, p.Create(fmt.Sprintf("r%d", i)))
	}
	assert.ErrorIs(t, p.Create("extra"), ErrCapacityExceeded)
}

func TestFindOrCreate(t *testing.T) {
	p := NewPool(1, nil)
	seed(t, p, "abcd", 1)

	// existing rooms are found even when the pool is full
	require.NoError(t, p.FindOrCreate("abcd"))
	r, err := p.Get("abcd")
	require.NoError(t, err)
	assert.Len(t, r.Players, 1)

	assert.ErrorIs(t, p.FindOrCreate("wxyz"), ErrCapacityExceeded)
}

func TestCreateRandom(t *testing.T) {
	p := NewPool(3, nil)
	id, err := p.CreateRandom()
	require.NoError(t, err)
	assert.Len(t, id, roomIDLength)
	assert.Regexp(t, `^[A-Za-z0-9]+$`, id)

	r, err := p.Get(id)
	require.NoError(t, err)
	assert.Equal(t, defaultOptions(), r.Options)
	assert.Equal(t, "Untitled", r.Name)
}

func TestListSummaries(t *testing.T) {
	p := NewPool(5, nil)
	seed(t, p, "b", 2)
	seed(t, p, "a", 1)

	want := []Summary{
		{ID: "a", RoomName: "Untitled", GameSpeed: 1, PlayerCount: 1, MaxPlayers: 8},
		{ID: "b", RoomName: "Untitled", GameSpeed: 1, PlayerCount: 2, MaxPlayers: 8},
	}
	if diff := cmp.Diff(want, p.ListSummaries()); diff != "" {
		t.Fatalf("summaries mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	p := NewPool(5, nil)
	seed(t, p, "room", 2)

	snap := p.Snapshot()
	r := snap["room"]
	r.Players[0].Username = "mallory"
	r.Players[0].Land = append(r.Players[0].Land, board.Pos{X: 1, Y: 1})

	fresh, err := p.Get("room")
	require.NoError(t, err)
	assert.Equal(t, "user1", fresh.Players[0].Username)
	assert.Empty(t, fresh.Players[0].Land)
}

func TestAddPlayer(t *testing.T) {
	p := NewPool(5, nil)
	require.NoError(t, p.Create("room"))

	first, err := p.AddPlayer(conn(1), "room", ident(1))
	require.NoError(t, err)
	assert.True(t, first.IsRoomHost)
	assert.Equal(t, int16(1), first.Color)
	assert.Equal(t, int16(1), first.Team)
	assert.Equal(t, conn(1), first.SocketID)

	second, err := p.AddPlayer(conn(2), "room", ident(2))
	require.NoError(t, err)
	assert.False(t, second.IsRoomHost)
	assert.Equal(t, int16(2), second.Color)
	assert.Equal(t, int16(2), second.Team)

	_, err = p.AddPlayer(conn(3), "nope", ident(3))
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestAddPlayerRejectsWhenFull(t *testing.T) {
	p := NewPool(5, nil)
	seed(t, p, "room", 1)
	opt, err := NewMaxPlayers(3)
	require.NoError(t, err)
	_, err = p.ModifyOption(context.Background(), conn(1), "room", opt)
	require.NoError(t, err)

	for i := 2; i <= 3; i++ {
		_, err := p.AddPlayer(conn(i), "room", ident(i))
		require.NoError(t, err)
	}
	_, err = p.AddPlayer(conn(4), "room", ident(4))
	assert.ErrorIs(t, err, ErrRoomFull)

	r, err := p.Get("room")
	require.NoError(t, err)
	assert.Len(t, r.Players, 3)
}

func TestAddPlayerRebindsKnownPlayer(t *testing.T) {
	p := NewPool(5, nil)
	seed(t, p, "room", 2)

	again, err := p.AddPlayer("conn-new", "room", ident(2))
	require.NoError(t, err)
	assert.Equal(t, "conn-new", again.SocketID)
	assert.Equal(t, int16(2), again.Color)

	r, err := p.Get("room")
	require.NoError(t, err)
	assert.Len(t, r.Players, 2)
}

func TestAddPlayerReusesLowestFreeColorAndTeam(t *testing.T) {
	p := NewPool(5, nil)
	seed(t, p, "room", 3)

	// free color 1 and team 1
	_, err := p.RemovePlayer(conn(1), "room")
	require.NoError(t, err)

	fourth, err := p.AddPlayer(conn(4), "room", ident(4))
	require.NoError(t, err)
	assert.Equal(t, int16(1), fourth.Color)
	assert.Equal(t, int16(1), fourth.Team)

	// a spectator's team no longer blocks others
	_, err = p.ChangeTeam(conn(2), "room", SpectateTeam)
	require.NoError(t, err)
	fifth, err := p.AddPlayer(conn(5), "room", ident(5))
	require.NoError(t, err)
	assert.Equal(t, int16(2), fifth.Team)
	assert.Equal(t, int16(4), fifth.Color)

	r, err := p.Get("room")
	require.NoError(t, err)
	assertInvariants(t, r)
}

func TestChangeTeam(t *testing.T) {
	p := NewPool(5, nil)
	seed(t, p, "room", 2)

	testCases := []struct {
		name   string
		connID string
		roomID string
		team   int
		err    error
	}{
		{"unknown room", conn(1), "nope", 3, ErrRoomNotFound},
		{"unknown player", "ghost", "room", 3, ErrPlayerNotFound},
		{"beyond spectate sentinel", conn(1), "room", MaxTeamNum + 2, ErrInvalidTeam},
		{"negative", conn(1), "room", -1, ErrInvalidTeam},
		{"held by another player", conn(1), "room", 2, ErrInvalidTeam},
		{"free team", conn(1), "room", 7, nil},
		{"own team again", conn(1), "room", 7, nil},
		{"spectate", conn(2), "room", SpectateTeam, nil},
		{"team freed by spectator", conn(1), "room", 2, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mp, err := p.ChangeTeam(tc.connID, tc.roomID, tc.team)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, mp.Player.Username)
			assert.False(t, mp.Started)
		})
	}

	r, err := p.Get("room")
	require.NoError(t, err)
	assert.Equal(t, int16(2), r.Players[0].Team)
	assert.Equal(t, int16(SpectateTeam), r.Players[1].Team)
	assertInvariants(t, r)
}

func TestChangeTeamToSpectateClearsForceStart(t *testing.T) {
	p := NewPool(5, nil)
	seed(t, p, "room", 4)

	_, err := p.SetForceStart(conn(2), "room", true)
	require.NoError(t, err)
	_, err = p.SetForceStart(conn(3), "room", true)
	require.NoError(t, err)

	before, err := p.Get("room")
	require.NoError(t, err)
	require.Equal(t, 2, before.ForceStartNum)

	_, err = p.ChangeTeam(conn(2), "room", SpectateTeam)
	require.NoError(t, err)

	after, err := p.Get("room")
	require.NoError(t, err)
	assert.False(t, after.Players[1].ForceStart)
	assert.Equal(t, before.ForceStartNum-1, after.ForceStartNum)

	// spectating again does not decrement twice
	_, err = p.ChangeTeam(conn(2), "room", SpectateTeam)
	require.NoError(t, err)
	again, err := p.Get("room")
	require.NoError(t, err)
	assert.Equal(t, after.ForceStartNum, again.ForceStartNum)
}

func TestChangeHost(t *testing.T) {
	p := NewPool(5, nil)
	seed(t, p, "room", 3)

	_, err := p.ChangeHost(conn(2), "room", "player-3")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = p.ChangeHost("ghost", "room", "player-3")
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	_, err = p.ChangeHost(conn(1), "nope", "player-3")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = p.ChangeHost(conn(1), "room", "player-1")
	assert.ErrorIs(t, err, ErrAlreadyHost)

	change, err := p.ChangeHost(conn(1), "room", "player-3")
	require.NoError(t, err)
	assert.Equal(t, HostChange{
		From: MinifiedPlayer{Username: "user1", Color: 1},
		To:   MinifiedPlayer{Username: "user3", Color: 3},
	}, change)

	r, err := p.Get("room")
	require.NoError(t, err)
	assert.False(t, r.Players[0].IsRoomHost)
	assert.True(t, r.Players[2].IsRoomHost)
	assertInvariants(t, r)
}

func TestChangeHostUnknownTargetFallsBackToFirstPlayer(t *testing.T) {
	p := NewPool(5, nil)
	seed(t, p, "room", 3)

	_, err := p.ChangeHost(conn(1), "room", "player-3")
	require.NoError(t, err)

	change, err := p.ChangeHost(conn(3), "room", "player-404")
	require.NoError(t, err)
	assert.Equal(t, "user3", change.From.Username)
	assert.Equal(t, "user1", change.To.Username)

	r, err := p.Get("room")
	require.NoError(t, err)
	assert.True(t, r.Players[0].IsRoomHost)
	assert.False(t, r.Players[2].IsRoomHost)
	assertInvariants(t, r)

	// the first player is already host, so the fallback has nowhere to go
	_, err = p.ChangeHost(conn(1), "room", "player-404")
	assert.ErrorIs(t, err, ErrAlreadyHost)
}

func TestModifyOption(t *testing.T) {
	p := NewPool(5, nil)
	seed(t, p, "room", 2)
	ctx := context.Background()

	mp, err := p.ModifyOption(ctx, conn(1), "room", mustOption(t, "mountain", `0.9`))
	require.NoError(t, err)
	assert.Equal(t, MinifiedPlayer{Username: "user1", Color: 1}, mp)

	_, err = p.ModifyOption(ctx, conn(1), "room", mustOption(t, "game_speed", `4`))
	require.NoError(t, err)
	_, err = p.ModifyOption(ctx, conn(1), "room", mustOption(t, "reveal_king", `true`))
	require.NoError(t, err)
	_, err = p.ModifyOption(ctx, conn(1), "room", mustOption(t, "room_name", `"Arena"`))
	require.NoError(t, err)

	_, err = p.ModifyOption(ctx, conn(2), "room", mustOption(t, "city", `0.1`))
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = p.ModifyOption(ctx, "ghost", "room", mustOption(t, "city", `0.1`))
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = p.ModifyOption(ctx, conn(1), "nope", mustOption(t, "city", `0.1`))
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = p.ModifyOption(ctx, conn(1), "room", nil)
	assert.ErrorIs(t, err, ErrInvalidKey)

	// shrinking below the roster is refused
	_, err = p.ModifyOption(ctx, conn(1), "room", mustOption(t, "max_players", `1`))
	assert.ErrorIs(t, err, ErrInvalidValue)

	r, err := p.Get("room")
	require.NoError(t, err)
	assert.Equal(t, 0.9, r.Options.Mountain)
	assert.Equal(t, 0.5, r.Options.City)
	assert.Equal(t, 4.0, r.Options.GameSpeed)
	assert.True(t, r.Options.RevealKing)
	assert.Equal(t, "Arena", r.Name)
	assert.Equal(t, "Arena", r.Options.RoomName)
	assert.Equal(t, 8, r.Options.MaxPlayers)
}

func TestModifyOptionOutOfRangeKeepsPreviousValue(t *testing.T) {
	p := NewPool(5, nil)
	seed(t, p, "room", 1)

	for _, key := range []string{"map_width", "map_height", "mountain", "city", "swamp"} {
		for _, raw := range []string{`-0.01`, `1.5`, `"0.5"`} {
			t.Run(key+"="+raw, func(t *testing.T) {
				before, err := p.Get("room")
				require.NoError(t, err)

				opt, err := ParseOption(key, []byte(raw))
				if err == nil {
					_, err = p.ModifyOption(context.Background(), conn(1), "room", opt)
				}
				assert.ErrorIs(t, err, ErrInvalidValue)

				after, err := p.Get("room")
				require.NoError(t, err)
				assert.Equal(t, before.Options, after.Options)
			})
		}
	}
}

func TestModifyOptionResolvesMap(t *testing.T) {
	maps := &MockMapLookup{}
	p := NewPool(5, maps)
	seed(t, p, "room", 2)
	ctx := context.Background()

	maps.On("LookupMap", ctx, testMapID).Return(MapInfo{ID: testMapID, Name: "Great Wall"}, nil).Once()

	_, err := p.ModifyOption(ctx, conn(1), "room", mustOption(t, "map_id", `"`+testMapID+`"`))
	require.NoError(t, err)

	r, err := p.Get("room")
	require.NoError(t, err)
	assert.Equal(t, testMapID, r.Options.MapID)
	assert.Equal(t, "Great Wall", r.Options.MapName)

	// clearing needs no lookup
	_, err = p.ModifyOption(ctx, conn(1), "room", mustOption(t, "map_id", `""`))
	require.NoError(t, err)
	r, err = p.Get("room")
	require.NoError(t, err)
	assert.Empty(t, r.Options.MapID)
	assert.Empty(t, r.Options.MapName)

	// non-hosts are turned away before the store is asked
	_, err = p.ModifyOption(ctx, conn(2), "room", mustOption(t, "map_id", `"`+testMapID+`"`))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	maps.AssertExpectations(t)
}

func TestModifyOptionMapFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown map", func(t *testing.T) {
		maps := &MockMapLookup{}
		p := NewPool(5, maps)
		seed(t, p, "room", 1)
		maps.On("LookupMap", ctx, testMapID).Return(MapInfo{}, ErrMapNotFound)

		_, err := p.ModifyOption(ctx, conn(1), "room", mustOption(t, "map_id", `"`+testMapID+`"`))
		var ive InvalidValueError
		require.ErrorAs(t, err, &ive)
		assert.Equal(t, KeyMapID, ive.Key)
	})

	t.Run("store down", func(t *testing.T) {
		maps := &MockMapLookup{}
		p := NewPool(5, maps)
		seed(t, p, "room", 1)
		maps.On("LookupMap", ctx, testMapID).Return(MapInfo{}, errors.New("connection refused"))

		_, err := p.ModifyOption(ctx, conn(1), "room", mustOption(t, "map_id", `"`+testMapID+`"`))
		assert.ErrorIs(t, err, ErrInternal)
	})

	t.Run("no store", func(t *testing.T) {
		p := NewPool(5, nil)
		seed(t, p, "room", 1)

		_, err := p.ModifyOption(ctx, conn(1), "room", mustOption(t, "map_id", `"`+testMapID+`"`))
		assert.ErrorIs(t, err, ErrInternal)
	})

	t.Run("host changes during lookup", func(t *testing.T) {
		maps := &MockMapLookup{}
		p := NewPool(5, maps)
		seed(t, p, "room", 2)
		maps.On("LookupMap", ctx, testMapID).
			Run(func(mock.Arguments) {
				_, err := p.ChangeHost(conn(1), "room", "player-2")
				require.NoError(t, err)
			}).
			Return(MapInfo{ID: testMapID, Name: "Great Wall"}, nil)

		_, err := p.ModifyOption(ctx, conn(1), "room", mustOption(t, "map_id", `"`+testMapID+`"`))
		assert.ErrorIs(t, err, ErrPermissionDenied)

		r, err := p.Get("room")
		require.NoError(t, err)
		assert.Empty(t, r.Options.MapID)
	})

	t.Run("room removed during lookup", func(t *testing.T) {
		maps := &MockMapLookup{}
		p := NewPool(5, maps)
		seed(t, p, "room", 1)
		maps.On("LookupMap", ctx, testMapID).
			Run(func(mock.Arguments) { require.NoError(t, p.Remove("room")) }).
			Return(MapInfo{ID: testMapID, Name: "Great Wall"}, nil)

		_, err := p.ModifyOption(ctx, conn(1), "room", mustOption(t, "map_id", `"`+testMapID+`"`))
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})
}

func TestSetForceStart(t *testing.T) {
	p := NewPool(5, nil)
	seed(t, p, "room", 4)

	// four playing members need three votes
	res, err := p.SetForceStart(conn(1), "room", true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ForceStartNum)
	assert.Equal(t, ForceStartOK[4], res.Required)
	assert.False(t, res.Started)

	// repeated votes count once
	res, err = p.SetForceStart(conn(1), "room", true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ForceStartNum)

	res, err = p.SetForceStart(conn(1), "room", false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ForceStartNum)

	_, err = p.ChangeTeam(conn(4), "room", SpectateTeam)
	require.NoError(t, err)
	_, err = p.SetForceStart(conn(4), "room", true)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// three playing members need three votes
	_, err = p.SetForceStart(conn(1), "room", true)
	require.NoError(t, err)
	res, err = p.SetForceStart(conn(2), "room", true)
	require.NoError(t, err)
	assert.Equal(t, ForceStartOK[3], res.Required)
	assert.False(t, res.Started)
	res, err = p.SetForceStart(conn(3), "room", true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ForceStartNum)
	assert.True(t, res.Started)

	r, err := p.Get("room")
	require.NoError(t, err)
	assert.True(t, r.GameStarted)

	_, err = p.SetForceStart(conn(1), "room", false)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = p.RemovePlayer(conn(3), "room")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestShrinkingRosterReachesForceStart(t *testing.T) {
	testCases := []struct {
		name   string
		depart func(p *Pool) (bool, error)
	}{
		{
			name: "leave",
			depart: func(p *Pool) (bool, error) {
				res, err := p.RemovePlayer(conn(3), "room")
				return res.Started, err
			},
		},
		{
			name: "spectate",
			depart: func(p *Pool) (bool, error) {
				res, err := p.ChangeTeam(conn(3), "room", SpectateTeam)
				return res.Started, err
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPool(5, nil)
			seed(t, p, "room", 3)

			// three playing members need three votes, two need two
			for _, c := range []string{conn(1), conn(2)} {
				res, err := p.SetForceStart(c, "room", true)
				require.NoError(t, err)
				require.False(t, res.Started)
			}

			started, err := tc.depart(p)
			require.NoError(t, err)
			assert.True(t, started)

			r, err := p.Get("room")
			require.NoError(t, err)
			assert.True(t, r.GameStarted)
			assert.Equal(t, 2, r.ForceStartNum)
		})
	}
}

func TestStartedRoomRejectsLobbyChanges(t *testing.T) {
	maps := new(MockMapLookup)
	p := NewPool(5, maps)
	seed(t, p, "room", 2)
	for _, c := range []string{conn(1), conn(2)} {
		_, err := p.SetForceStart(c, "room", true)
		require.NoError(t, err)
	}

	_, err := p.AddPlayer(conn(3), "room", ident(3))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	rebound, err := p.AddPlayer("conn-2b", "room", ident(2))
	require.NoError(t, err)
	assert.Equal(t, "conn-2b", rebound.SocketID)

	_, err = p.ChangeTeam("conn-2b", "room", 5)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = p.ModifyOption(context.Background(), conn(1), "room", mustOption(t, "game_speed", `2`))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = p.ModifyOption(context.Background(), conn(1), "room", mustOption(t, "map_id", `"`+testMapID+`"`))
	assert.ErrorIs(t, err, ErrPermissionDenied)
	maps.AssertNotCalled(t, "LookupMap", mock.Anything, mock.Anything)

	r, err := p.Get("room")
	require.NoError(t, err)
	assert.Len(t, r.Players, 2)
	assert.Equal(t, 1.0, r.Options.GameSpeed)
}

func TestRemovePlayer(t *testing.T) {
	p := NewPool(5, nil)
	seed(t, p, "room", 3)
	_, err := p.SetForceStart(conn(1), "room", true)
	require.NoError(t, err)

	res, err := p.RemovePlayer(conn(1), "room")
	require.NoError(t, err)
	assert.Equal(t, "user1", res.Player.Username)
	require.NotNil(t, res.NewHost)
	assert.Equal(t, "user2", res.NewHost.Username)
	assert.False(t, res.RoomDeleted)

	r, err := p.Get("room")
	require.NoError(t, err)
	assert.Equal(t, 0, r.ForceStartNum)
	assert.Len(t, r.Players, 2)
	assertInvariants(t, r)

	_, err = p.RemovePlayer(conn(1), "room")
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	res, err = p.RemovePlayer(conn(3), "room")
	require.NoError(t, err)
	assert.Nil(t, res.NewHost)

	res, err = p.RemovePlayer(conn(2), "room")
	require.NoError(t, err)
	assert.True(t, res.RoomDeleted)

	_, err = p.Get("room")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Empty(t, p.ListSummaries())
}

func TestMutationPanicIsInternalError(t *testing.T) {
	p := NewPool(5, nil)
	seed(t, p, "room", 1)

	err := p.mutate("room", func(r *Room) error {
		var b *board.Board
		_ = b.Tile(board.Pos{}).Units
		return nil
	})
	assert.ErrorIs(t, err, ErrInternal)

	// the room lock was released
	_, err = p.Get("room")
	assert.NoError(t, err)
}

func TestConcurrentMutationsKeepInvariants(t *testing.T) {
	p := NewPool(5, nil)
	require.NoError(t, p.Create("a"))
	require.NoError(t, p.Create("b"))
	for _, id := range []string{"a", "b"} {
		opt, err := NewMaxPlayers(MaxTeamNum)
		require.NoError(t, err)
		_, err = p.AddPlayer("host-"+id, id, Identity{PlayerID: "host-" + id, Username: "host"})
		require.NoError(t, err)
		_, err = p.ModifyOption(context.Background(), "host-"+id, id, opt)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			roomID := []string{"a", "b"}[i%2]
			_, _ = p.AddPlayer(conn(i), roomID, ident(i))
			_, _ = p.ChangeTeam(conn(i), roomID, i%(SpectateTeam+1))
			_, _ = p.ChangeHost("host-"+roomID, roomID, ident(i).PlayerID)
			_, _ = p.SetForceStart(conn(i), roomID, i%3 == 0)
			_ = p.ListSummaries()
		}(i)
	}
	wg.Wait()

	for id, r := range p.Snapshot() {
		t.Run(id, func(t *testing.T) {
			assertInvariants(t, r)
			votes := 0
			for _, pl := range r.Players {
				if pl.ForceStart {
					votes++
				}
			}
			assert.Equal(t, votes, r.ForceStartNum)
		})
	}
}

func mustOption(t *testing.T, key, raw string) Option {
	t.Helper()
	opt, err := ParseOption(key, []byte(raw))
	require.NoError(t, err)
	return opt
}
