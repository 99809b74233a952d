package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"gennia/domain/room"
)

const (
	LobbyServiceName                  = "gennia.lobby.v1.LobbyService"
	LobbyServiceListRoomsProcedure    = "/" + LobbyServiceName + "/ListRooms"
	LobbyServiceCreateRoomProcedure   = "/" + LobbyServiceName + "/CreateRoom"
	LobbyServiceQueryRoomProcedure    = "/" + LobbyServiceName + "/QueryRoom"
	LobbyServiceStreamEventsProcedure = "/" + LobbyServiceName + "/StreamRoomEvents"
)

// Server exposes the lobby over connect, using well-known types as messages.
type Server struct {
	Rooms room.Service
	Hub   *Hub
}

func New(rooms room.Service, hub *Hub) *Server {
	return &Server{Rooms: rooms, Hub: hub}
}

// Handlers returns the connect handlers keyed by procedure path.
func (s *Server) Handlers(opts ...connect.HandlerOption) map[string]http.Handler {
	return map[string]http.Handler{
		LobbyServiceListRoomsProcedure:    connect.NewUnaryHandler(LobbyServiceListRoomsProcedure, s.ListRooms, opts...),
		LobbyServiceCreateRoomProcedure:   connect.NewUnaryHandler(LobbyServiceCreateRoomProcedure, s.CreateRoom, opts...),
		LobbyServiceQueryRoomProcedure:    connect.NewUnaryHandler(LobbyServiceQueryRoomProcedure, s.QueryRoom, opts...),
		LobbyServiceStreamEventsProcedure: connect.NewServerStreamHandler(LobbyServiceStreamEventsProcedure, s.StreamRoomEvents, opts...),
	}
}

func (s *Server) ListRooms(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.ListValue], error) {
	out := &structpb.ListValue{}
	if err := toProto(s.Rooms.ListSummaries(), out); err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

func (s *Server) CreateRoom(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[wrapperspb.StringValue], error) {
	id, err := s.Rooms.CreateRandom()
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(wrapperspb.String(id)), nil
}

func (s *Server) QueryRoom(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	roomID := req.Msg.GetValue()
	if roomID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("room id is required"))
	}
	r, err := s.Rooms.Get(roomID)
	if err != nil {
		return nil, connectError(err)
	}
	out := &structpb.Struct{}
	if err := toProto(r, out); err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// StreamRoomEvents relays every broadcast of one room until the client goes away.
func (s *Server) StreamRoomEvents(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
	stream *connect.ServerStream[structpb.Struct],
) error {
	roomID := req.Msg.GetValue()
	if _, err := s.Rooms.Get(roomID); err != nil {
		return connectError(err)
	}

	ch, cancel := s.Hub.Subscribe(roomID)
	defer cancel()

	// the current snapshot flushes the response headers and brings a late
	// subscriber up to date
	r, err := s.Rooms.Get(roomID)
	if err != nil {
		return connectError(err)
	}
	if err := s.sendEvent(stream, Event{Name: EventRoomUpdate, Data: r}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.sendEvent(stream, evt); err != nil {
				return err
			}
		}
	}
}

func (s *Server) sendEvent(stream *connect.ServerStream[structpb.Struct], evt Event) error {
	msg := &structpb.Struct{}
	if err := toProto(evt, msg); err != nil {
		return connect.NewError(connect.CodeInternal, err)
	}
	return stream.Send(msg)
}

// toProto carries a JSON-tagged domain value into a structpb message.
func toProto(v any, m proto.Message) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return protojson.Unmarshal(b, m)
}
