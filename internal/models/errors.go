package models

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

// ValidationError is raised before any network call when local input is
// missing or out of range.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RemoteError is a non-2xx answer of the remote product service.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("remote returned status %d: %s", e.Status, msg)
}

func (e *RemoteError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// NetworkError means the request never completed.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// UserMessage renders err the way it is shown to a person: remote and
// network failures look alike from the caller's side.
func UserMessage(err error) string {
	var (
		verr *ValidationError
		rerr *RemoteError
		nerr *NetworkError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Error()
	case errors.As(err, &rerr):
		if rerr.Message != "" {
			return rerr.Message
		}
		return http.StatusText(rerr.Status)
	case errors.As(err, &nerr):
		return "service unavailable: " + nerr.Err.Error()
	default:
		return err.Error()
	}
}
