package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrSessionInvalid         = errors.New("session invalid")
	ErrProtocolViolation      = errors.New("protocol violation")
	ErrValidation             = errors.New("validation error")
	ErrNotFoundOrUnauthorized = errors.New("not found or unauthorized")
)

// Codes carried in protocol-error events.
const (
	CodeSessionInvalid    = "session_invalid"
	CodeProtocolViolation = "protocol_violation"
	CodeValidation        = "validation"
	CodeNotFound          = "not_found"
	CodeInternal          = "internal"
)

type AppError struct {
	Err     error  // sentinel category
	Message string // reason shown to the client
	Field   string // optional payload field at fault
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func SessionInvalid(message string) *AppError {
	return &AppError{Err: ErrSessionInvalid, Message: message}
}

func ProtocolViolation(message string) *AppError {
	return &AppError{Err: ErrProtocolViolation, Message: message}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{Err: ErrValidation, Message: message, Field: field}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFoundOrUnauthorized,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// Unauthorized shares the NotFound category so callers cannot probe for
// resources they do not own.
func Unauthorized(message string) *AppError {
	return &AppError{Err: ErrNotFoundOrUnauthorized, Message: message}
}

// Code maps an error to its protocol-error code. Anything outside the
// taxonomy is internal.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrSessionInvalid):
		return CodeSessionInvalid
	case errors.Is(err, ErrProtocolViolation):
		return CodeProtocolViolation
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFoundOrUnauthorized):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// Message returns the client-facing reason. Internal errors never leak
// their text.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Server error. Please try again."
}
