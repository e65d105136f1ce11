package chat

import (
	"errors"
	"fmt"
)

// StoreError wraps a persistence failure with the operation that hit it.
// Callers can unwrap to the underlying storage error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ValidationError reports why a message was rejected before any store
// access happened.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// ErrStaleFetch is returned when a fetch result was superseded by a newer
// fetch against the same conversation target and must be discarded.
var ErrStaleFetch = errors.New("stale fetch superseded by a newer one")

// ErrNotMember is returned when a sender is not a member of the target
// channel.
var ErrNotMember = errors.New("sender is not a channel member")

// ErrNotFound is returned for lookups of unknown messages or channels.
var ErrNotFound = errors.New("not found")
