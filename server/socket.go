package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"gennia/domain/room"
	"gennia/storage"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = time.Minute
	pingPeriod     = 25 * time.Second
	maxMessageSize = 1 << 16
	sendBuffer     = 64
)

// PlayerStore resolves connecting players and registers new ones.
type PlayerStore interface {
	Resolve(ctx context.Context, username, playerID string) (storage.Resolution, error)
	RegisterPlayer(ctx context.Context, username, email string) (string, error)
}

type SocketHandler struct {
	rooms    room.Service
	hub      *Hub
	players  PlayerStore
	upgrader websocket.Upgrader
	limit    rate.Limit
	burst    int
}

func NewSocketHandler(rooms room.Service, hub *Hub, players PlayerStore, limit rate.Limit, burst int) *SocketHandler {
	return &SocketHandler{
		rooms:   rooms,
		hub:     hub,
		players: players,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origins are vetted by the router middleware
			CheckOrigin: func(*http.Request) bool { return true },
		},
		limit: limit,
		burst: burst,
	}
}

func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err, "ip", r.RemoteAddr)
		return
	}

	q := r.URL.Query()
	username, playerID := q.Get("username"), q.Get("player_id")
	if username == "" {
		rejectJoin(conn, "Username is required.")
		return
	}
	res, err := h.players.Resolve(r.Context(), username, playerID)
	if err != nil {
		slog.Info("connection rejected", "username", username, "player", playerID, "error", err)
		rejectJoin(conn, rejectReason(err))
		return
	}

	s := &session{
		h:        h,
		conn:     conn,
		id:       uuid.NewString(),
		identity: res.Identity,
		limiter:  rate.NewLimiter(h.limit, h.burst),
		send:     make(chan []byte, sendBuffer),
		subs:     make(map[string]func()),
	}
	go s.writePump()

	if res.Registered {
		s.emit(EventPlayerID, res.Identity.PlayerID)
	}
	s.emit(EventSocketID, s.id)
	slog.Info("player connected", "username", username, "player", res.Identity.PlayerID, "socket", s.id)

	ctx := r.Context()
	if roomID := q.Get("room_id"); roomID != "" {
		if err := s.joinRoom(ctx, roomID); err != nil {
			s.fail(EventJoinRoom, err)
		}
	}
	s.readPump(ctx)
	s.close(ctx)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, storage.ErrUsernameMismatch):
		return "Username didn't match the player_id."
	case errors.Is(err, storage.ErrPlayerNotRegistered):
		return "Player hasn't registered yet."
	}
	return "Identity could not be verified."
}

func rejectJoin(conn *websocket.Conn, msg string) {
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if b, err := encode(EventRejectJoin, msg); err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "reject_join"))
}

// session is one websocket connection. Only the read loop touches subs.
type session struct {
	h        *SocketHandler
	conn     *websocket.Conn
	id       string
	identity room.Identity
	limiter  *rate.Limiter
	send     chan []byte
	subs     map[string]func()
	wg       sync.WaitGroup
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("socket read failed", "socket", s.id, "error", err)
			}
			return
		}
		env, err := decodeEnvelope(msg)
		if err != nil {
			slog.Debug("undecodable message", "socket", s.id, "error", err)
			continue
		}
		s.dispatch(ctx, env)
	}
}

func (s *session) dispatch(ctx context.Context, env envelope) {
	var handle func(context.Context, envelope) error
	switch env.Event {
	case EventRooms:
		handle = s.handleRooms
	case EventCreateRoom:
		handle = s.handleCreateRoom
	case EventJoinRoom:
		handle = s.handleJoinRoom
	case EventQueryRoom:
		handle = s.handleQueryRoom
	case EventSetTeam:
		handle = s.handleSetTeam
	case EventSetHost:
		handle = s.handleSetHost
	case EventModifyOptions:
		handle = s.handleModifyOptions
	case EventLeaveRoom:
		handle = s.handleLeaveRoom
	case EventForceStart:
		handle = s.handleForceStart
	default:
		s.fail(env.Event, errUnknown)
		return
	}
	if !s.limiter.Allow() {
		s.fail(env.Event, errRateLimited)
		return
	}
	if err := handle(ctx, env); err != nil {
		s.fail(env.Event, err)
	}
}

func (s *session) handleRooms(ctx context.Context, env envelope) error {
	s.ack(env.Event, s.h.rooms.ListSummaries())
	return nil
}

func (s *session) handleCreateRoom(ctx context.Context, env envelope) error {
	id, err := s.h.rooms.CreateRandom()
	if err != nil {
		return err
	}
	s.ack(env.Event, id)
	return nil
}

func (s *session) handleJoinRoom(ctx context.Context, env envelope) error {
	req, err := decodePayload[roomRequest](env)
	if err != nil {
		return err
	}
	return s.joinRoom(ctx, req.RoomID)
}

func (s *session) joinRoom(ctx context.Context, roomID string) error {
	if err := s.h.rooms.FindOrCreate(roomID); err != nil {
		return err
	}
	player, err := s.h.rooms.AddPlayer(s.id, roomID, s.identity)
	if err != nil {
		return err
	}
	s.subscribe(roomID)
	s.ack(EventJoinRoom, player)
	s.h.hub.Broadcast(ctx, roomID, EventMessageJoin, player.Minify())
	s.broadcastRoom(ctx, roomID)
	return nil
}

func (s *session) handleQueryRoom(ctx context.Context, env envelope) error {
	req, err := decodePayload[roomRequest](env)
	if err != nil {
		return err
	}
	r, err := s.h.rooms.Get(req.RoomID)
	if err != nil {
		return err
	}
	s.ack(env.Event, r)
	return nil
}

func (s *session) handleSetTeam(ctx context.Context, env envelope) error {
	req, err := decodePayload[teamRequest](env)
	if err != nil {
		return err
	}
	change, err := s.h.rooms.ChangeTeam(s.id, req.RoomID, req.Team)
	if err != nil {
		return err
	}
	s.ack(env.Event, change.Player)
	s.h.hub.Broadcast(ctx, req.RoomID, EventMessageTeam, change.Player)
	s.broadcastRoom(ctx, req.RoomID)
	if change.Started {
		s.announceStart(ctx, req.RoomID)
	}
	return nil
}

func (s *session) handleSetHost(ctx context.Context, env envelope) error {
	req, err := decodePayload[hostRequest](env)
	if err != nil {
		return err
	}
	change, err := s.h.rooms.ChangeHost(s.id, req.RoomID, req.PlayerID)
	if err != nil {
		return err
	}
	pair := [2]room.MinifiedPlayer{change.From, change.To}
	s.ack(env.Event, pair)
	s.h.hub.Broadcast(ctx, req.RoomID, EventMessageHost, pair)
	s.broadcastRoom(ctx, req.RoomID)
	return nil
}

func (s *session) handleModifyOptions(ctx context.Context, env envelope) error {
	req, err := decodePayload[optionRequest](env)
	if err != nil {
		return err
	}
	opt, err := room.ParseOption(req.Key, req.Value)
	if err != nil {
		return err
	}
	player, err := s.h.rooms.ModifyOption(ctx, s.id, req.RoomID, opt)
	if err != nil {
		return err
	}
	s.ack(env.Event, player)
	s.h.hub.Broadcast(ctx, req.RoomID, EventMessageOptions, []any{player, opt.Key(), opt.Value()})
	s.broadcastRoom(ctx, req.RoomID)
	return nil
}

func (s *session) handleLeaveRoom(ctx context.Context, env envelope) error {
	req, err := decodePayload[roomRequest](env)
	if err != nil {
		return err
	}
	res, err := s.leave(ctx, req.RoomID)
	if err != nil {
		return err
	}
	s.ack(env.Event, res)
	return nil
}

func (s *session) handleForceStart(ctx context.Context, env envelope) error {
	req, err := decodePayload[forceStartRequest](env)
	if err != nil {
		return err
	}
	res, err := s.h.rooms.SetForceStart(s.id, req.RoomID, req.ForceStart)
	if err != nil {
		return err
	}
	s.ack(env.Event, res)
	s.broadcastRoom(ctx, req.RoomID)
	if res.Started {
		s.announceStart(ctx, req.RoomID)
	}
	return nil
}

// leave takes the player out of roomID and tells the remaining members.
func (s *session) leave(ctx context.Context, roomID string) (room.LeaveResult, error) {
	res, err := s.h.rooms.RemovePlayer(s.id, roomID)
	if err != nil {
		return res, err
	}
	s.unsubscribe(roomID)
	s.h.hub.Broadcast(ctx, roomID, EventMessageLeave, res)
	if !res.RoomDeleted {
		s.broadcastRoom(ctx, roomID)
	}
	if res.Started {
		s.announceStart(ctx, roomID)
	}
	return res, nil
}

func (s *session) announceStart(ctx context.Context, roomID string) {
	s.h.hub.Broadcast(ctx, roomID, EventGameStarted, roomRequest{RoomID: roomID})
}

func (s *session) broadcastRoom(ctx context.Context, roomID string) {
	r, err := s.h.rooms.Get(roomID)
	if err != nil {
		return
	}
	s.h.hub.Broadcast(ctx, roomID, EventRoomUpdate, r)
}

func (s *session) subscribe(roomID string) {
	if _, ok := s.subs[roomID]; ok {
		return
	}
	ch, cancel := s.h.hub.Subscribe(roomID)
	s.subs[roomID] = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for evt := range ch {
			s.emit(evt.Name, evt.Data)
		}
	}()
}

func (s *session) unsubscribe(roomID string) {
	if cancel, ok := s.subs[roomID]; ok {
		cancel()
		delete(s.subs, roomID)
	}
}

// close leaves every joined lobby. Rooms with a game in progress keep the
// player so a reconnect can rebind to the seat.
func (s *session) close(ctx context.Context) {
	for roomID := range s.subs {
		if _, err := s.leave(ctx, roomID); err != nil {
			s.unsubscribe(roomID)
			slog.Debug("player kept in room after disconnect", "room", roomID, "socket", s.id, "reason", reason(err))
		}
	}
	s.wg.Wait()
	close(s.send)
	slog.Info("player disconnected", "player", s.identity.PlayerID, "socket", s.id)
}

func (s *session) ack(event string, data any) {
	s.emit(event+successSuffix, data)
}

func (s *session) fail(event string, err error) {
	if reason(err) == "InternalError" {
		slog.Error("event failed", "event", event, "socket", s.id, "error", err)
	}
	s.emit(event+failureSuffix, reason(err))
}

// emit queues a message for the write loop, dropping it if the client is too slow.
func (s *session) emit(event string, data any) {
	b, err := encode(event, data)
	if err != nil {
		slog.Error("failed to encode event", "event", event, "error", err)
		return
	}
	select {
	case s.send <- b:
	default:
		slog.Warn("send buffer full, event dropped", "socket", s.id, "event", event)
	}
}
