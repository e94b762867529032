package core

import "errors"

// Error codes for protocol errors reported to clients.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeInvalidMessage = "invalid_message"
)

var (
	ErrBadRequest    = errors.New("bad request")
	ErrUnknownEvent  = errors.New("unknown event")
	ErrSessionClosed = errors.New("session closed")
	ErrHubClosed     = errors.New("hub closed")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// NewError builds a CoreError.
func NewError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
