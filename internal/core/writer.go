package core

/*
seqwrite — exclusive-lock sequential file appender
Copyright (C) 2025  Pepijn van der Stap <seqwrite@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/x-stp/seqwrite/internal/metrics"
)

// SyncWriter appends sequentially numbered records to a single shared file.
// All access is serialized behind one mutex; the critical section spans the
// disk write AND the counter update so the two are atomic with respect to
// each other. That boundary is what makes the sequence gapless and
// duplicate-free under concurrent callers: the counter only advances after
// the corresponding line has been written and synced.
//
// The file is opened and closed on every append rather than held open.
// This is a robustness choice (no handle leak on worker panic, no
// platform share-mode surprises), not a throughput one; the mutex already
// serializes the I/O so a held-open handle would only save the open/close
// syscalls.
//
// Concurrency: every exported method takes w.mu. Initialize is idempotent;
// a caller racing an in-progress initialization blocks on the mutex and then
// observes the initialized state, so exactly one seed record is ever written.
type SyncWriter struct {
	// Immutable after NewSyncWriter.
	path string

	mu          sync.Mutex
	counter     int64
	initialized bool
	closed      bool

	// writeLine performs the open+write+sync+close unit for one record.
	// Swapped out by tests to inject I/O faults at exact attempts.
	writeLine func(path string, line []byte) error

	// inCritical counts goroutines inside the critical section.
	// Must never observe a value above 1; asserted by the mutual
	// exclusion tests.
	inCritical atomic.Int32
}

// NewSyncWriter creates a writer bound to path. The path must already be
// resolved and writable; the writer fails at Initialize if it is not.
func NewSyncWriter(path string) *SyncWriter {
	return &SyncWriter{
		path:      path,
		writeLine: appendLine,
	}
}

// Path returns the output file path the writer is bound to.
func (w *SyncWriter) Path() string {
	return w.path
}

// Counter returns the sequence number of the last successfully appended
// record. Zero means only the seed record (or nothing) has been written.
func (w *SyncWriter) Counter() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counter
}

// Initialize creates (or truncates) the target file and writes the seed
// record `0, 0, <ts>`. The first successful call transitions the writer to
// initialized; later calls are no-ops returning nil. A call that races an
// in-progress initialization blocks on the mutex until it completes, then
// returns nil without re-writing the seed.
//
// On failure the writer stays uninitialized and Initialize may be retried.
func (w *SyncWriter) Initialize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if w.initialized {
		return nil
	}

	line := FormatRecord(0, SeedWriterID, time.Now())
	if err := seedFile(w.path, []byte(line)); err != nil {
		return &WriteError{Op: "initialize", Path: w.path, Err: err, Retryable: true}
	}

	w.initialized = true
	w.counter = 0
	return nil
}

// Append formats and writes one record attributed to writerID. It blocks
// until the exclusive lock is acquired (unbounded, no timeout; appends are
// expected to be fast and the simplification is deliberate).
//
// The sequence number is counter+1; the counter is committed only after the
// write and flush both succeed. A failed append leaves the counter untouched
// so the next successful append reuses the same sequence number and no gap
// appears in the file.
func (w *SyncWriter) Append(writerID int) error {
	lockStart := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	if n := w.inCritical.Add(1); n != 1 {
		// Cannot happen while the mutex is held; keep the counter honest
		// anyway so the invariant is testable.
		w.inCritical.Add(-1)
		panic(fmt.Sprintf("append critical section entered %d times concurrently", n))
	}
	defer w.inCritical.Add(-1)

	if w.closed {
		return ErrWriterClosed
	}
	if !w.initialized {
		return ErrNotInitialized
	}

	if metrics.IsMetricsEnabled() {
		metrics.GetMetrics().LockWaitDuration.Observe(time.Since(lockStart).Seconds())
	}

	seq := w.counter + 1
	line := FormatRecord(seq, writerID, time.Now())

	writeStart := time.Now()
	if err := w.writeLine(w.path, []byte(line)); err != nil {
		if metrics.IsMetricsEnabled() {
			metrics.GetMetrics().AppendsTotal.WithLabelValues("error").Inc()
		}
		return err
	}

	// Commit point: the record is on disk, the sequence number is now taken.
	w.counter = seq

	if metrics.IsMetricsEnabled() {
		m := metrics.GetMetrics()
		m.AppendDuration.Observe(time.Since(writeStart).Seconds())
		m.AppendsTotal.WithLabelValues("ok").Inc()
		m.BytesWritten.Add(float64(len(line)))
	}
	return nil
}

// Close releases the writer. Further calls to Initialize or Append fail with
// ErrWriterClosed. Close is idempotent.
func (w *SyncWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// FormatRecord renders one output line: `<seq>, <writerID>, <HH:MM:SS.mmm>`,
// newline-terminated. The timestamp layout is locale-invariant by
// construction (time.Format with a fixed numeric layout).
func FormatRecord(seq int64, writerID int, ts time.Time) string {
	return fmt.Sprintf("%d, %d, %s\n", seq, writerID, ts.Format(TimestampLayout))
}

// seedFile creates or truncates path and writes the seed line, syncing
// before close so a crash immediately after Initialize cannot leave an
// empty-but-created file that claims to be seeded.
func seedFile(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// appendLine opens path for append, writes one record and flushes it to
// disk before closing. The whole unit runs under the writer's mutex.
func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return &WriteError{Op: "open", Path: path, Err: err, Retryable: true}
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return &WriteError{Op: "write", Path: path, Err: err, Retryable: true}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return &WriteError{Op: "sync", Path: path, Err: err, Retryable: true}
	}
	if err := f.Close(); err != nil {
		return &WriteError{Op: "write", Path: path, Err: err, Retryable: true}
	}
	return nil
}
