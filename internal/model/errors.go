package model

import (
	"errors"
	"fmt"
)

// Error taxonomy for the voting core. Token failures deliberately collapse
// to one sentinel so callers cannot distinguish expired/used/unknown.
var (
	// ErrTokenRejected covers expired, used, invalidated and unknown tokens.
	ErrTokenRejected = errors.New("token rejected")

	// ErrUnauthenticated means missing or malformed credentials.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means the caller's verified role does not grant the
	// operation. The message never reveals the actual or required role.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the referenced election does not exist or is hidden.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable means a store or downstream deadline was exceeded; the
	// client may retry with backoff.
	ErrUnavailable = errors.New("temporarily unavailable")
)

// ValidationError reports a malformed request field. Safe to return with
// detail.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError builds a field-level validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StateError reports an illegal lifecycle transition. Current and requested
// states are not security-sensitive, so both are named.
type StateError struct {
	Current   ElectionStatus
	Requested ElectionStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("illegal transition: election is %s, requested %s", e.Current, e.Requested)
}
