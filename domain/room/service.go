package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

type Service interface {
	Snapshot() map[string]Room
	ListSummaries() []Summary
	Get(roomID string) (Room, error)
	Create(roomID string) error
	CreateRandom() (string, error)
	FindOrCreate(roomID string) error
	Remove(roomID string) error
	AddPlayer(connID, roomID string, identity Identity) (PlayerInRoom, error)
	RemovePlayer(connID, roomID string) (LeaveResult, error)
	ChangeTeam(connID, roomID string, team int) (TeamChange, error)
	ChangeHost(connID, roomID, targetPlayerID string) (HostChange, error)
	ModifyOption(ctx context.Context, connID, roomID string, opt Option) (MinifiedPlayer, error)
	SetForceStart(connID, roomID string, on bool) (ForceStartResult, error)
}

// MapLookup resolves custom map metadata. It returns ErrMapNotFound for unknown ids.
type MapLookup interface {
	LookupMap(ctx context.Context, mapID string) (MapInfo, error)
}

type HostChange struct {
	From MinifiedPlayer `json:"from"`
	To   MinifiedPlayer `json:"to"`
}

type TeamChange struct {
	Player  MinifiedPlayer `json:"player"`
	Started bool           `json:"started"`
}

type LeaveResult struct {
	Player      MinifiedPlayer  `json:"player"`
	NewHost     *MinifiedPlayer `json:"new_host,omitempty"`
	RoomDeleted bool            `json:"room_deleted"`
	Started     bool            `json:"started"`
}

type ForceStartResult struct {
	Player        MinifiedPlayer `json:"player"`
	ForceStartNum int            `json:"force_start_num"`
	Required      int            `json:"required"`
	Started       bool           `json:"started"`
}

type entry struct {
	mu      sync.Mutex
	room    Room
	removed bool
}

// Pool is the process-wide room registry. The registry lock only guards the
// map itself; each room carries its own lock so unrelated rooms never wait
// on each other. Lock order is always registry, then room.
type Pool struct {
	mu       sync.RWMutex
	rooms    map[string]*entry
	maxRooms int
	maps     MapLookup
}

func NewPool(maxRooms int, maps MapLookup) *Pool {
	if maxRooms <= 0 {
		maxRooms = DefaultMaxRoomCount
	}
	return &Pool{
		rooms:    make(map[string]*entry),
		maxRooms: maxRooms,
		maps:     maps,
	}
}

func (p *Pool) lookup(roomID string) (*entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.rooms[roomID]
	return e, ok
}

// mutate runs fn with exclusive access to one room. A panic inside fn is
// reported as ErrInternal instead of taking the connection down.
func (p *Pool) mutate(roomID string, fn func(r *Room) error) (err error) {
	e, ok := p.lookup(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return ErrRoomNotFound
	}
	defer func() {
		if v := recover(); v != nil {
			slog.Error("room mutation panicked", "room", roomID, "panic", v)
			err = fmt.Errorf("%w: %v", ErrInternal, v)
		}
	}()
	return fn(&e.room)
}

func (p *Pool) Snapshot() map[string]Room {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]Room, len(p.rooms))
	for id, e := range p.rooms {
		e.mu.Lock()
		out[id] = e.room.Clone()
		e.mu.Unlock()
	}
	return out
}

func (p *Pool) ListSummaries() []Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Summary, 0, len(p.rooms))
	for id, e := range p.rooms {
		e.mu.Lock()
		out = append(out, e.room.Summary(id))
		e.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b Summary) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (p *Pool) Get(roomID string) (Room, error) {
	var out Room
	err := p.mutate(roomID, func(r *Room) error {
		out = r.Clone()
		return nil
	})
	return out, err
}

// Create inserts a room with default options. Creating an id that already
// exists leaves that room untouched.
func (p *Pool) Create(roomID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.rooms[roomID]; ok {
		return nil
	}
	if len(p.rooms) >= p.maxRooms {
		return ErrCapacityExceeded
	}
	p.rooms[roomID] = &entry{room: newRoom()}
	slog.Info("room created", "room", roomID)
	return nil
}

// CreateRandom creates a room under a fresh random id.
func (p *Pool) CreateRandom() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.rooms) >= p.maxRooms {
		return "", ErrCapacityExceeded
	}
	for {
		id, err := generateID(roomIDLength)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInternal, err)
		}
		if _, exists := p.rooms[id]; exists {
			continue
		}
		p.rooms[id] = &entry{room: newRoom()}
		slog.Info("room created", "room", id)
		return id, nil
	}
}

func (p *Pool) FindOrCreate(roomID string) error {
	if _, ok := p.lookup(roomID); ok {
		return nil
	}
	return p.Create(roomID)
}

func (p *Pool) Remove(roomID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	delete(p.rooms, roomID)
	slog.Info("room removed", "room", roomID)
	return nil
}

// AddPlayer seats a player in the room. A player id already seated is
// rebound to the new connection instead of taking a second seat.
func (p *Pool) AddPlayer(connID, roomID string, identity Identity) (PlayerInRoom, error) {
	var out PlayerInRoom
	err := p.mutate(roomID, func(r *Room) error {
		if idx := r.indexByPlayerID(identity.PlayerID); idx >= 0 {
			r.Players[idx].SocketID = connID
			out = r.Players[idx].clone()
			return nil
		}
		if r.GameStarted {
			return ErrPermissionDenied
		}
		if len(r.Players) >= r.Options.MaxPlayers {
			return ErrRoomFull
		}
		player := PlayerInRoom{
			PlayerID:   identity.PlayerID,
			Username:   identity.Username,
			SocketID:   connID,
			Color:      r.nextColor(),
			Team:       r.nextTeam(),
			IsRoomHost: len(r.Players) == 0,
		}
		r.Players = append(r.Players, player)
		out = player.clone()
		return nil
	})
	if err == nil {
		slog.Info("player joined", "room", roomID, "player", identity.PlayerID, "color", out.Color, "team", out.Team)
	}
	return out, err
}

// RemovePlayer takes a player out of a room that has not started. The first
// remaining player inherits the host flag and an emptied room is deleted.
func (p *Pool) RemovePlayer(connID, roomID string) (LeaveResult, error) {
	var out LeaveResult
	err := p.mutate(roomID, func(r *Room) error {
		idx := r.indexBySocket(connID)
		if idx < 0 {
			return ErrPlayerNotFound
		}
		if r.GameStarted {
			return ErrPermissionDenied
		}
		leaving := r.Players[idx]
		if leaving.ForceStart {
			r.ForceStartNum--
		}
		r.Players = slices.Delete(r.Players, idx, idx+1)
		out.Player = leaving.Minify()
		if leaving.IsRoomHost && len(r.Players) > 0 {
			r.Players[0].IsRoomHost = true
			next := r.Players[0].Minify()
			out.NewHost = &next
		}
		out.Started = r.startIfReady()
		return nil
	})
	if err != nil {
		return out, err
	}
	out.RoomDeleted = p.removeIfEmpty(roomID)
	slog.Info("player left", "room", roomID, "player", out.Player.Username, "room_deleted", out.RoomDeleted)
	if out.Started {
		slog.Info("game started", "room", roomID, "trigger", "leave")
	}
	return out, nil
}

func (p *Pool) removeIfEmpty(roomID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.rooms[roomID]
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.room.Players) > 0 {
		return false
	}
	e.removed = true
	delete(p.rooms, roomID)
	return true
}

// ChangeTeam moves the caller to team, SpectateTeam meaning spectate. Fewer
// playing members can lower the force-start threshold and start the room.
func (p *Pool) ChangeTeam(connID, roomID string, team int) (TeamChange, error) {
	var out TeamChange
	err := p.mutate(roomID, func(r *Room) error {
		idx := r.indexBySocket(connID)
		if idx < 0 {
			return ErrPlayerNotFound
		}
		if r.GameStarted {
			return ErrPermissionDenied
		}
		if team < 0 || team > SpectateTeam {
			return ErrInvalidTeam
		}
		t := int16(team)
		if t != SpectateTeam && r.teamTaken(t, idx) {
			return ErrInvalidTeam
		}
		player := &r.Players[idx]
		if t == SpectateTeam && player.ForceStart {
			player.ForceStart = false
			r.ForceStartNum--
		}
		player.Team = t
		out = TeamChange{Player: player.Minify(), Started: r.startIfReady()}
		return nil
	})
	if err == nil && out.Started {
		slog.Info("game started", "room", roomID, "trigger", "spectate")
	}
	return out, err
}

// ChangeHost hands the host flag from the caller to targetPlayerID. An
// unknown target promotes the first player in join order instead.
func (p *Pool) ChangeHost(connID, roomID, targetPlayerID string) (HostChange, error) {
	var out HostChange
	err := p.mutate(roomID, func(r *Room) error {
		from := r.indexBySocket(connID)
		if from < 0 {
			return ErrPlayerNotFound
		}
		if !r.Players[from].IsRoomHost {
			return ErrPermissionDenied
		}
		to := r.indexByPlayerID(targetPlayerID)
		if to < 0 {
			to = 0
		}
		if r.Players[to].IsRoomHost {
			return ErrAlreadyHost
		}
		r.Players[from].IsRoomHost = false
		r.Players[to].IsRoomHost = true
		out = HostChange{From: r.Players[from].Minify(), To: r.Players[to].Minify()}
		return nil
	})
	return out, err
}

// ModifyOption applies opt when the caller is the room host. Map selections
// are resolved against the map store without holding any lock; host status
// is checked again once the lookup returns.
func (p *Pool) ModifyOption(ctx context.Context, connID, roomID string, opt Option) (MinifiedPlayer, error) {
	if opt == nil {
		return MinifiedPlayer{}, ErrInvalidKey
	}
	if sel, ok := opt.(MapSelection); ok && sel.ID != "" {
		resolved, err := p.resolveMap(ctx, connID, roomID, sel)
		if err != nil {
			return MinifiedPlayer{}, err
		}
		opt = resolved
	}

	var out MinifiedPlayer
	err := p.mutate(roomID, func(r *Room) error {
		idx, err := r.host(connID)
		if err != nil {
			return err
		}
		if r.GameStarted {
			return ErrPermissionDenied
		}
		if err := opt.check(r); err != nil {
			return err
		}
		opt.apply(r)
		out = r.Players[idx].Minify()
		return nil
	})
	if err == nil {
		slog.Info("game option modified", "room", roomID, "key", opt.Key(), "value", opt.Value())
	}
	return out, err
}

func (p *Pool) resolveMap(ctx context.Context, connID, roomID string, sel MapSelection) (MapSelection, error) {
	err := p.mutate(roomID, func(r *Room) error {
		if _, err := r.host(connID); err != nil {
			return err
		}
		if r.GameStarted {
			return ErrPermissionDenied
		}
		return nil
	})
	if err != nil {
		return sel, err
	}
	if p.maps == nil {
		return sel, fmt.Errorf("%w: map store unavailable", ErrInternal)
	}
	info, err := p.maps.LookupMap(ctx, sel.ID)
	switch {
	case errors.Is(err, ErrMapNotFound):
		return sel, InvalidValueError{Key: KeyMapID}
	case err != nil:
		return sel, fmt.Errorf("%w: %w", ErrInternal, err)
	}
	sel.Name = info.Name
	return sel, nil
}

// SetForceStart records a playing member's vote to start early. The room
// starts once the votes reach ForceStartOK for its playing head count.
func (p *Pool) SetForceStart(connID, roomID string, on bool) (ForceStartResult, error) {
	var out ForceStartResult
	err := p.mutate(roomID, func(r *Room) error {
		idx := r.indexBySocket(connID)
		if idx < 0 {
			return ErrPlayerNotFound
		}
		player := &r.Players[idx]
		if player.Spectating() || r.GameStarted {
			return ErrPermissionDenied
		}
		if player.ForceStart != on {
			player.ForceStart = on
			if on {
				r.ForceStartNum++
			} else {
				r.ForceStartNum--
			}
		}
		out = ForceStartResult{
			Player:        player.Minify(),
			ForceStartNum: r.ForceStartNum,
			Required:      r.forceStartRequired(),
			Started:       r.startIfReady(),
		}
		return nil
	})
	if err == nil && out.Started {
		slog.Info("game started", "room", roomID, "force_start_num", out.ForceStartNum)
	}
	return out, err
}
