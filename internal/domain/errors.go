// Package domain defines domain-specific errors.
// These errors represent business logic failures and are independent of infrastructure.
package domain

import (
	"errors"
	"fmt"
)

// Common errors that services can return.
var (
	// ErrConnectTimeout is returned when the voice transport does not become ready in time.
	ErrConnectTimeout = errors.New("voice connection not ready before deadline")

	// ErrPlaybackStartTimeout is returned when the transport does not confirm playback in time.
	ErrPlaybackStartTimeout = errors.New("playback did not start before deadline")

	// ErrResolutionFailed matches every ResolutionError via errors.Is.
	ErrResolutionFailed = errors.New("media resolution failed")

	// ErrInvalidState is returned when an operation targets a destroyed or missing session.
	ErrInvalidState = errors.New("invalid session state")

	// ErrSessionNotFound is returned when no session exists for a group.
	ErrSessionNotFound = fmt.Errorf("%w: no such session", ErrInvalidState)

	// ErrSessionDestroyed is returned by every method of a destroyed session.
	ErrSessionDestroyed = fmt.Errorf("%w: session destroyed", ErrInvalidState)

	// ErrNotConnected is returned when playback is requested before joining a channel.
	ErrNotConnected = fmt.Errorf("%w: not connected to a voice channel", ErrInvalidState)

	// ErrNilTrack is returned when a nil track is enqueued.
	ErrNilTrack = errors.New("track is nil")

	// ErrNoResults is returned when a search yields nothing playable.
	ErrNoResults = errors.New("no results")

	// ErrInvalidRepeatMode is returned for unknown repeat modes.
	ErrInvalidRepeatMode = errors.New("invalid repeat mode: must be none, all or single")
)

// ResolutionError represents a metadata or stream resolution failure.
// It wraps the collaborator error with the operation and the link involved.
type ResolutionError struct {
	Op  string // Operation that failed (e.g., "fetch_info", "open_stream", "search")
	URL string // Link or query being resolved
	Err error  // Underlying error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolution %s failed for '%s'", e.Op, e.URL)
	}
	return fmt.Sprintf("resolution %s failed for '%s': %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrResolutionFailed.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolutionFailed
}

// NewResolutionError creates a new ResolutionError.
func NewResolutionError(op, url string, err error) *ResolutionError {
	return &ResolutionError{
		Op:  op,
		URL: url,
		Err: err,
	}
}

// TransportError represents an error from the voice transport.
// This wraps low-level gateway and connection errors with additional context.
type TransportError struct {
	Op      string // Operation that failed (e.g., "connect", "subscribe", "play")
	GroupID string // Group the connection belongs to (if applicable)
	Message string // Error message
	Err     error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.GroupID != "" {
		return fmt.Sprintf("transport %s failed for group '%s': %s", e.Op, e.GroupID, e.Message)
	}
	return fmt.Sprintf("transport %s failed: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new TransportError.
func NewTransportError(op, groupID, message string, err error) *TransportError {
	return &TransportError{
		Op:      op,
		GroupID: groupID,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   any    // Value that failed validation
	Message string // Error message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}
