package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeRoomNotFound      = "room_not_found"
	ErrCodePersistenceFailed = "persistence_failed"
	ErrCodeRateLimited       = "rate_limited"
	ErrCodeInternal          = "internal_error"
)

var (
	// ErrPersistence wraps storage failures; nothing is broadcast when it occurs.
	ErrPersistence = errors.New("persistence failed")
	// ErrHubStopped is returned when the hub no longer accepts work.
	ErrHubStopped = errors.New("hub stopped")
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
