package room

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrPlayerNotFound   = errors.New("player not found in room")
	ErrPermissionDenied = errors.New("permission denied")
	ErrRoomFull         = errors.New("room is full")
	ErrCapacityExceeded = errors.New("room pool length exceeded")
	ErrInvalidTeam      = errors.New("invalid team")
	ErrAlreadyHost      = errors.New("player is already host")
	ErrInvalidKey       = errors.New("invalid option key")
	ErrInvalidValue     = errors.New("invalid option value")
	ErrMapNotFound      = errors.New("map not found")
	ErrInternal         = errors.New("internal error")
)

// InvalidValueError rejects a value for one option key. It matches ErrInvalidValue.
type InvalidValueError struct {
	Key OptionKey
}

func (e InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value for %s", e.Key)
}

func (e InvalidValueError) Is(target error) bool {
	return target == ErrInvalidValue
}
