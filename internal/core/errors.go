/*
Package core implements the synchronized append writer and the worker pool
that drives it. It defines the error taxonomy, shared constants and the
verification logic used by the seqwrite command.
*/
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for writer lifecycle violations. These are sequencing bugs
// in the caller, not transient conditions, and are never retryable.
var (
	// ErrNotInitialized is returned by Append when Initialize has not yet
	// completed successfully.
	ErrNotInitialized = errors.New("writer not initialized")

	// ErrWriterClosed is returned by any operation on a writer after Close.
	ErrWriterClosed = errors.New("writer closed")
)

// WriteError wraps an I/O failure from the writer's critical section.
// The retryable flag tells callers whether the same append may be attempted
// again; the writer itself never retries internally.
type WriteError struct {
	Op        string // "initialize", "open", "write", "sync"
	Path      string
	Err       error
	Retryable bool
}

// Error implements the standard error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a failed operation may succeed on a later
// attempt. Lifecycle errors (ErrNotInitialized, ErrWriterClosed) are not
// retryable; I/O failures carry their own flag. Unknown error types default
// to non-retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var we *WriteError
	if errors.As(err, &we) {
		return we.Retryable
	}
	return false
}

// WorkerFailure attributes an append error to the worker that hit it and the
// 1-based write attempt within that worker's loop. A worker reports at most
// one failure per run; its remaining writes are abandoned.
type WorkerFailure struct {
	WorkerID int
	Write    int
	Err      error
}

// Error implements the standard error interface.
func (f *WorkerFailure) Error() string {
	return fmt.Sprintf("worker %d write %d: %v", f.WorkerID, f.Write, f.Err)
}

// Unwrap exposes the wrapped append error.
func (f *WorkerFailure) Unwrap() error {
	return f.Err
}
