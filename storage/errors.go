package storage

import "errors"

var (
	ErrPlayerNotRegistered = errors.New("player not registered")
	ErrUsernameMismatch    = errors.New("username does not match player id")
	ErrDuplicateUsername   = errors.New("username already taken")
	ErrUnexpectedDatabase  = errors.New("unexpected database error")
)
