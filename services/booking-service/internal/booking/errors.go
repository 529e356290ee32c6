package booking

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable wraps transient store failures. Callers may retry with backoff.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrNotCancellable is returned when a session already ended up completed or as a no-show.
var ErrNotCancellable = errors.New("session cannot be cancelled")

// ValidationError rejects malformed input. Retrying the same request will not help.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

type ConflictReason string

const (
	// SlotTaken means another session won the race for an overlapping interval.
	SlotTaken ConflictReason = "slot_taken"
	// SlotUnavailable means the interval is outside the mentor's open windows, inside a blackout,
	// or already in the past.
	SlotUnavailable ConflictReason = "slot_unavailable"
)

// ConflictError is returned when the requested interval cannot be claimed. Callers should
// re-query availability and let the mentee pick again.
type ConflictError struct {
	Reason ConflictReason
}

func (e *ConflictError) Error() string {
	if e.Reason == SlotTaken {
		return "this time is no longer available"
	}
	return "this time is outside the mentor's availability"
}

func IsSlotTaken(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce) && ce.Reason == SlotTaken
}
