package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeNameTaken     = "name_taken"
	ErrCodeRoomNotFound  = "room_not_found"
	ErrCodeNotPrivate    = "not_private"
	ErrCodeNotIdentified = "not_identified"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeRateLimited   = "rate_limited"
	ErrCodeInternal      = "internal"
)

var (
	ErrNameTaken     = errors.New("name taken")
	ErrRoomNotFound  = errors.New("room not found")
	ErrNotPrivate    = errors.New("room is not private")
	ErrNotIdentified = errors.New("client has no identity")
	ErrBadRequest    = errors.New("bad request")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
