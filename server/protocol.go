package server

import (
	"encoding/json"
	"fmt"
)

// Client to server events.
const (
	EventRooms         = "rooms"
	EventCreateRoom    = "create_room"
	EventJoinRoom      = "join_room"
	EventQueryRoom     = "query_room"
	EventSetTeam       = "set_team"
	EventSetHost       = "set_host"
	EventModifyOptions = "modify_game_options"
	EventLeaveRoom     = "leave_room"
	EventForceStart    = "force_start"
)

// Server to client events.
const (
	EventRejectJoin     = "reject_join"
	EventPlayerID       = "player_id"
	EventSocketID       = "socket_id"
	EventRoomUpdate     = "room_update"
	EventMessageJoin    = "message:join"
	EventMessageTeam    = "message:team_modification"
	EventMessageHost    = "message:host_modification"
	EventMessageOptions = "message:options_modification"
	EventMessageLeave   = "message:leave"
	EventGameStarted    = "game_started"
)

const (
	successSuffix = ":success"
	failureSuffix = ":failure"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type roomRequest struct {
	RoomID string `json:"room_id"`
}

type teamRequest struct {
	RoomID string `json:"room_id"`
	Team   int    `json:"team"`
}

type hostRequest struct {
	RoomID   string `json:"room_id"`
	PlayerID string `json:"player_id"`
}

type optionRequest struct {
	RoomID string          `json:"room_id"`
	Key    string          `json:"key"`
	Value  json.RawMessage `json:"value"`
}

type forceStartRequest struct {
	RoomID     string `json:"room_id"`
	ForceStart bool   `json:"force_start"`
}

func (r roomRequest) roomID() string       { return r.RoomID }
func (r teamRequest) roomID() string       { return r.RoomID }
func (r hostRequest) roomID() string       { return r.RoomID }
func (r optionRequest) roomID() string     { return r.RoomID }
func (r forceStartRequest) roomID() string { return r.RoomID }

func encode(event string, data any) ([]byte, error) {
	if event == "" {
		return nil, fmt.Errorf("trying to encode envelope without event")
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Event: event, Data: b})
}

func decodeEnvelope(b []byte) (envelope, error) {
	if len(b) == 0 {
		return envelope{}, fmt.Errorf("%w: empty message", errMalformed)
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil || env.Event == "" {
		return envelope{}, fmt.Errorf("%w: not an event envelope", errMalformed)
	}
	return env, nil
}

// decodePayload decodes a room-scoped request and requires its room id.
func decodePayload[T interface{ roomID() string }](env envelope) (T, error) {
	var out T
	if len(env.Data) == 0 {
		return out, fmt.Errorf("%w: empty payload for %q", errMalformed, env.Event)
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if out.roomID() == "" {
		return out, fmt.Errorf("%w: room_id is required", errMalformed)
	}
	return out, nil
}
