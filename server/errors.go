package server

import (
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"gennia/domain/room"
)

var (
	errMalformed   = errors.New("malformed payload")
	errRateLimited = errors.New("rate limited")
	errUnknown     = errors.New("unknown event")
)

// reason renders err as the failure reason sent back to socket clients.
func reason(err error) string {
	var ive room.InvalidValueError
	switch {
	case errors.As(err, &ive):
		return fmt.Sprintf("InvalidValue(%s)", ive.Key)
	case errors.Is(err, room.ErrRoomNotFound):
		return "RoomNotFound"
	case errors.Is(err, room.ErrPlayerNotFound):
		return "PlayerNotFound"
	case errors.Is(err, room.ErrPermissionDenied):
		return "PermissionDenied"
	case errors.Is(err, room.ErrRoomFull):
		return "RoomFull"
	case errors.Is(err, room.ErrCapacityExceeded):
		return "CapacityExceeded"
	case errors.Is(err, room.ErrInvalidTeam):
		return "InvalidTeam"
	case errors.Is(err, room.ErrInvalidKey):
		return "InvalidKey"
	case errors.Is(err, room.ErrAlreadyHost):
		return "AlreadyHost"
	case errors.Is(err, room.ErrInvalidValue):
		return "InvalidValue"
	case errors.Is(err, errMalformed):
		return "MalformedPayload"
	case errors.Is(err, errRateLimited):
		return "RateLimited"
	case errors.Is(err, errUnknown):
		return "UnknownEvent"
	}
	return "InternalError"
}

func connectError(err error) *connect.Error {
	var code connect.Code
	switch {
	case errors.Is(err, room.ErrRoomNotFound), errors.Is(err, room.ErrPlayerNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, room.ErrPermissionDenied):
		code = connect.CodePermissionDenied
	case errors.Is(err, room.ErrRoomFull), errors.Is(err, room.ErrCapacityExceeded):
		code = connect.CodeResourceExhausted
	case errors.Is(err, room.ErrInvalidTeam), errors.Is(err, room.ErrInvalidKey), errors.Is(err, room.ErrInvalidValue):
		code = connect.CodeInvalidArgument
	case errors.Is(err, room.ErrAlreadyHost):
		code = connect.CodeFailedPrecondition
	default:
		code = connect.CodeInternal
	}
	return connect.NewError(code, errors.New(reason(err)))
}
