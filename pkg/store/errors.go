package store

import (
	"errors"
	"fmt"
)

var (
	// ErrSnapshotNotFound is returned when no row exists for a thread
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// SchemaError reports a persisted row that cannot be decoded. Loads fail
// loudly on these instead of silently dropping state.
type SchemaError struct {
	ThreadID string
	Column   string
	Cause    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema violation on thread %s column %s: %v", e.ThreadID, e.Column, e.Cause)
}

func (e *SchemaError) Unwrap() error {
	return e.Cause
}
