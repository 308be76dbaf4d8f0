package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSessionConflict is returned when the caller already owns an ACTIVE
	// device reading session.
	ErrSessionConflict = errors.New("session conflict: an active reading session already exists")
	// ErrInvalidTransition is returned when a lifecycle operation is not
	// allowed from the current state.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrOfflineUnavailable is returned when the client is offline and no
	// cached response exists.
	ErrOfflineUnavailable = errors.New("offline and no cached data available")
	// ErrOperationInProgress is returned when a sync of the same kind is
	// already running for the session.
	ErrOperationInProgress = errors.New("operation already in progress")
	// ErrSessionHasReadings is returned when deleting a session that has readings.
	ErrSessionHasReadings = errors.New("session has readings and can only be cancelled")
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation error")
)

// TransitionError describes a rejected lifecycle operation.
type TransitionError struct {
	Entity string
	From   string
	Op     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s %s from status %s", ErrInvalidTransition, e.Op, e.Entity, e.From)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ValidationError reports an invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// SyncFailure is returned when a pull or push against the external registry
// fails. It never implies a change of local session status.
type SyncFailure struct {
	Reason    string
	RawDetail string
}

func (e *SyncFailure) Error() string {
	if e.RawDetail == "" {
		return "sync failure: " + e.Reason
	}
	return fmt.Sprintf("sync failure: %s (%s)", e.Reason, e.RawDetail)
}

// Error codes carried in the "error" field of API error bodies.
const (
	CodeNotFound            = "not_found"
	CodeValidation          = "validation_error"
	CodeSessionConflict     = "session_conflict"
	CodeInvalidTransition   = "invalid_transition"
	CodeOperationInProgress = "operation_in_progress"
	CodeSessionHasReadings  = "session_has_readings"
	CodeSyncFailure         = "sync_failure"
	CodeOffline             = "offline"
	CodeForbidden           = "forbidden"
	CodeInternal            = "internal_error"
)

// ErrorCode classifies err into one of the API error codes.
func ErrorCode(err error) string {
	var syncErr *SyncFailure
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrSessionConflict):
		return CodeSessionConflict
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrOperationInProgress):
		return CodeOperationInProgress
	case errors.Is(err, ErrSessionHasReadings):
		return CodeSessionHasReadings
	case errors.As(err, &syncErr):
		return CodeSyncFailure
	case errors.Is(err, ErrOfflineUnavailable):
		return CodeOffline
	default:
		return CodeInternal
	}
}

// SentinelForCode returns the sentinel matched by errors of the given code,
// or nil for codes without one.
func SentinelForCode(code string) error {
	switch code {
	case CodeNotFound:
		return ErrNotFound
	case CodeValidation:
		return ErrValidation
	case CodeSessionConflict:
		return ErrSessionConflict
	case CodeInvalidTransition:
		return ErrInvalidTransition
	case CodeOperationInProgress:
		return ErrOperationInProgress
	case CodeSessionHasReadings:
		return ErrSessionHasReadings
	case CodeOffline:
		return ErrOfflineUnavailable
	default:
		return nil
	}
}
