package room

import (
	"encoding/json"
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"
)

type OptionKey string

const (
	KeyRoomName        OptionKey = "room_name"
	KeyMapID           OptionKey = "map_id"
	KeyMaxPlayers      OptionKey = "max_players"
	KeyGameSpeed       OptionKey = "game_speed"
	KeyMapWidth        OptionKey = "map_width"
	KeyMapHeight       OptionKey = "map_height"
	KeyCity            OptionKey = "city"
	KeySwamp           OptionKey = "swamp"
	KeyMountain        OptionKey = "mountain"
	KeyFogOfWar        OptionKey = "fog_of_war"
	KeyDeathSpectating OptionKey = "death_spectating"
	KeyRevealKing      OptionKey = "reveal_king"
	KeyWarringState    OptionKey = "warring_state"
)

// Option is one typed, range-checked change to a room's game options.
// The set of implementations is closed; build them with ParseOption or the
// New* constructors.
type Option interface {
	Key() OptionKey
	Value() any
	// check validates the option against the room it is about to be applied to.
	check(r *Room) error
	apply(r *Room)
}

// ParseOption decodes a raw client value for key into its Option.
func ParseOption(key string, raw json.RawMessage) (Option, error) {
	k := OptionKey(key)
	switch k {
	case KeyRoomName:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, InvalidValueError{Key: k}
		}
		return NewRoomName(v)
	case KeyMapID:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, InvalidValueError{Key: k}
		}
		return NewMapSelection(v)
	case KeyMaxPlayers:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil || v != math.Trunc(v) {
			return nil, InvalidValueError{Key: k}
		}
		return NewMaxPlayers(int(v))
	case KeyGameSpeed:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, InvalidValueError{Key: k}
		}
		return NewGameSpeed(v)
	case KeyMapWidth, KeyMapHeight, KeyCity, KeySwamp, KeyMountain:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, InvalidValueError{Key: k}
		}
		return NewDensity(k, v)
	case KeyFogOfWar, KeyDeathSpectating, KeyRevealKing, KeyWarringState:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, InvalidValueError{Key: k}
		}
		return NewToggle(k, v)
	}
	return nil, ErrInvalidKey
}

type RoomName string

func NewRoomName(name string) (RoomName, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", InvalidValueError{Key: KeyRoomName}
	}
	return RoomName(name), nil
}

func (o RoomName) Key() OptionKey    { return KeyRoomName }
func (o RoomName) Value() any        { return string(o) }
func (o RoomName) check(*Room) error { return nil }
func (o RoomName) apply(r *Room) {
	r.Name = string(o)
	r.Options.RoomName = string(o)
}

// MapSelection picks a custom map. An empty ID clears the selection.
// Name is filled in from the map store before the option is applied.
type MapSelection struct {
	ID   string
	Name string
}

func NewMapSelection(id string) (MapSelection, error) {
	if id == "" {
		return MapSelection{}, nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return MapSelection{}, InvalidValueError{Key: KeyMapID}
	}
	return MapSelection{ID: id}, nil
}

func (o MapSelection) Key() OptionKey    { return KeyMapID }
func (o MapSelection) Value() any        { return MapInfo{ID: o.ID, Name: o.Name} }
func (o MapSelection) check(*Room) error { return nil }
func (o MapSelection) apply(r *Room) {
	r.Options.MapID = o.ID
	r.Options.MapName = o.Name
}

type MaxPlayers int

func NewMaxPlayers(n int) (MaxPlayers, error) {
	if n < 1 || n > MaxTeamNum {
		return 0, InvalidValueError{Key: KeyMaxPlayers}
	}
	return MaxPlayers(n), nil
}

func (o MaxPlayers) Key() OptionKey { return KeyMaxPlayers }
func (o MaxPlayers) Value() any     { return int(o) }

// check refuses to shrink a room below its current roster.
func (o MaxPlayers) check(r *Room) error {
	if int(o) < len(r.Players) {
		return InvalidValueError{Key: KeyMaxPlayers}
	}
	return nil
}

func (o MaxPlayers) apply(r *Room) { r.Options.MaxPlayers = int(o) }

type GameSpeed float64

func NewGameSpeed(v float64) (GameSpeed, error) {
	if !slices.Contains(SpeedOptions, v) {
		return 0, InvalidValueError{Key: KeyGameSpeed}
	}
	return GameSpeed(v), nil
}

func (o GameSpeed) Key() OptionKey    { return KeyGameSpeed }
func (o GameSpeed) Value() any        { return float64(o) }
func (o GameSpeed) check(*Room) error { return nil }
func (o GameSpeed) apply(r *Room)     { r.Options.GameSpeed = float64(o) }

// Density is one of the map ratios in [0, 1]: map width, map height, city, swamp or mountain.
type Density struct {
	key   OptionKey
	value float64
}

func NewDensity(key OptionKey, v float64) (Density, error) {
	switch key {
	case KeyMapWidth, KeyMapHeight, KeyCity, KeySwamp, KeyMountain:
	default:
		return Density{}, ErrInvalidKey
	}
	if math.IsNaN(v) || v < 0 || v > 1 {
		return Density{}, InvalidValueError{Key: key}
	}
	return Density{key: key, value: v}, nil
}

func (o Density) Key() OptionKey    { return o.key }
func (o Density) Value() any        { return o.value }
func (o Density) check(*Room) error { return nil }
func (o Density) apply(r *Room) {
	switch o.key {
	case KeyMapWidth:
		r.Options.MapWidth = o.value
	case KeyMapHeight:
		r.Options.MapHeight = o.value
	case KeyCity:
		r.Options.City = o.value
	case KeySwamp:
		r.Options.Swamp = o.value
	case KeyMountain:
		r.Options.Mountain = o.value
	}
}

// Toggle is one of the boolean game switches.
type Toggle struct {
	key   OptionKey
	value bool
}

func NewToggle(key OptionKey, v bool) (Toggle, error) {
	switch key {
	case KeyFogOfWar, KeyDeathSpectating, KeyRevealKing, KeyWarringState:
		return Toggle{key: key, value: v}, nil
	}
	return Toggle{}, ErrInvalidKey
}

func (o Toggle) Key() OptionKey    { return o.key }
func (o Toggle) Value() any        { return o.value }
func (o Toggle) check(*Room) error { return nil }
func (o Toggle) apply(r *Room) {
	switch o.key {
	case KeyFogOfWar:
		r.Options.FogOfWar = o.value
	case KeyDeathSpectating:
		r.Options.DeathSpectating = o.value
	case KeyRevealKing:
		r.Options.RevealKing = o.value
	case KeyWarringState:
		r.Options.WarringState = o.value
	}
}
