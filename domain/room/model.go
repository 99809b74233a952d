package room

import (
	"slices"

	"gennia/domain/board"
)

// Identity is a player resolved by the identity store.
type Identity struct {
	PlayerID string
	Username string
}

// MapInfo is the metadata of a custom map.
type MapInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type GameOptions struct {
	RoomName        string  `json:"room_name"`
	MapID           string  `json:"map_id"`
	MapName         string  `json:"map_name"`
	MaxPlayers      int     `json:"max_players"`
	GameSpeed       float64 `json:"game_speed"`
	MapWidth        float64 `json:"map_width"`
	MapHeight       float64 `json:"map_height"`
	City            float64 `json:"city"`
	Swamp           float64 `json:"swamp"`
	Mountain        float64 `json:"mountain"`
	FogOfWar        bool    `json:"fog_of_war"`
	DeathSpectating bool    `json:"death_spectating"`
	RevealKing      bool    `json:"reveal_king"`
	WarringState    bool    `json:"warring_state"`
}

type PlayerInRoom struct {
	PlayerID        string      `json:"player_id"`
	Username        string      `json:"username"`
	SocketID        string      `json:"socket_id"`
	Color           int16       `json:"color"`
	Team            int16       `json:"team"`
	IsRoomHost      bool        `json:"is_room_host"`
	ForceStart      bool        `json:"force_start"`
	IsDead          bool        `json:"is_dead"`
	LastOperateTurn uint32      `json:"last_operate_turn"`
	Land            []board.Pos `json:"land"`
}

// MinifiedPlayer is what room broadcasts carry about a player.
type MinifiedPlayer struct {
	Username string `json:"username"`
	Color    int16  `json:"color"`
}

func (p *PlayerInRoom) Minify() MinifiedPlayer {
	return MinifiedPlayer{Username: p.Username, Color: p.Color}
}

func (p *PlayerInRoom) Spectating() bool {
	return p.Team == SpectateTeam
}

func (p PlayerInRoom) clone() PlayerInRoom {
	p.Land = slices.Clone(p.Land)
	return p
}

type Room struct {
	Name          string         `json:"room_name"`
	Options       GameOptions    `json:"game_options"`
	ForceStartNum int            `json:"force_start_num"`
	GameStarted   bool           `json:"game_started"`
	MapGenerated  bool           `json:"map_generated"`
	Players       []PlayerInRoom `json:"players"`
	Board         *board.Board   `json:"map,omitempty"`
}

// Summary is the lobby listing entry of a room.
type Summary struct {
	ID          string  `json:"id"`
	RoomName    string  `json:"room_name"`
	GameStarted bool    `json:"game_started"`
	GameSpeed   float64 `json:"game_speed"`
	PlayerCount int     `json:"player_count"`
	MaxPlayers  int     `json:"max_players"`
}

func newRoom() Room {
	opts := defaultOptions()
	return Room{
		Name:    opts.RoomName,
		Options: opts,
		Players: []PlayerInRoom{},
	}
}

func (r *Room) Clone() Room {
	c := *r
	c.Players = make([]PlayerInRoom, len(r.Players))
	for i, p := range r.Players {
		c.Players[i] = p.clone()
	}
	c.Board = r.Board.Clone()
	return c
}

func (r *Room) Summary(id string) Summary {
	return Summary{
		ID:          id,
		RoomName:    r.Name,
		GameStarted: r.GameStarted,
		GameSpeed:   r.Options.GameSpeed,
		PlayerCount: len(r.Players),
		MaxPlayers:  r.Options.MaxPlayers,
	}
}

func (r *Room) indexBySocket(socketID string) int {
	return slices.IndexFunc(r.Players, func(p PlayerInRoom) bool { return p.SocketID == socketID })
}

func (r *Room) indexByPlayerID(playerID string) int {
	return slices.IndexFunc(r.Players, func(p PlayerInRoom) bool { return p.PlayerID == playerID })
}

// host returns the index of the calling player if it holds the host flag.
func (r *Room) host(socketID string) (int, error) {
	idx := r.indexBySocket(socketID)
	if idx < 0 || !r.Players[idx].IsRoomHost {
		return -1, ErrPermissionDenied
	}
	return idx, nil
}

func (r *Room) playing() int {
	n := 0
	for i := range r.Players {
		if !r.Players[i].Spectating() {
			n++
		}
	}
	return n
}

func (r *Room) forceStartRequired() int {
	return ForceStartOK[min(r.playing(), MaxTeamNum)]
}

// startIfReady starts a lobby whose force-start votes reach the threshold
// for its current playing head count.
func (r *Room) startIfReady() bool {
	if r.GameStarted || r.ForceStartNum == 0 || r.ForceStartNum < r.forceStartRequired() {
		return false
	}
	r.GameStarted = true
	return true
}

// nextColor is the lowest color in 1..MaxPlayers no member holds.
func (r *Room) nextColor() int16 {
	for c := int16(1); c <= int16(r.Options.MaxPlayers); c++ {
		if !slices.ContainsFunc(r.Players, func(p PlayerInRoom) bool { return p.Color == c }) {
			return c
		}
	}
	return 0
}

// nextTeam is the lowest team in 1..MaxTeamNum no playing member holds.
func (r *Room) nextTeam() int16 {
	for t := int16(1); t <= MaxTeamNum; t++ {
		if !r.teamTaken(t, -1) {
			return t
		}
	}
	return SpectateTeam
}

func (r *Room) teamTaken(team int16, except int) bool {
	for i := range r.Players {
		if i != except && !r.Players[i].Spectating() && r.Players[i].Team == team {
			return true
		}
	}
	return false
}
