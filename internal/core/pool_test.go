package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestNewPoolValidatesConfig(t *testing.T) {
	t.Parallel()

	w := newTestWriter(t)
	cases := []struct {
		name   string
		writer *SyncWriter
		config PoolConfig
	}{
		{"nil writer", nil, PoolConfig{Workers: 1, WritesPerWorker: 1}},
		{"zero workers", w, PoolConfig{Workers: 0, WritesPerWorker: 1}},
		{"negative workers", w, PoolConfig{Workers: -3, WritesPerWorker: 1}},
		{"too many workers", w, PoolConfig{Workers: MaxWorkers + 1, WritesPerWorker: 1}},
		{"zero writes", w, PoolConfig{Workers: 1, WritesPerWorker: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPool(tc.writer, &tc.config); err == nil {
				t.Fatalf("expected config error")
			}
		})
	}
}

func TestPoolRunTenByTen(t *testing.T) {
	t.Parallel()

	w := newTestWriter(t)
	pool, err := NewPool(w, &PoolConfig{Workers: 10, WritesPerWorker: 10, RunID: "test"})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	result, err := pool.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", result.Failures)
	}
	if got := result.Stats.CompletedWrites.Load(); got != 100 {
		t.Fatalf("completed writes: got %d, want 100", got)
	}

	report, err := VerifyFile(w.Path())
	if err != nil {
		t.Fatalf("VerifyFile: %v", err)
	}
	if report.Lines != 101 {
		t.Fatalf("lines: got %d, want 101", report.Lines)
	}
	if report.MaxSequence != 100 {
		t.Fatalf("max sequence: got %d, want 100", report.MaxSequence)
	}
	if len(report.WriterIDs) != 10 {
		t.Fatalf("distinct writers: got %d, want 10", len(report.WriterIDs))
	}
	for id, n := range report.WriterIDs {
		if n != 10 {
			t.Fatalf("writer %d wrote %d records, want 10", id, n)
		}
	}
}

func TestPoolInitializationFailureIsFatal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "missing", "out.txt")
	w := NewSyncWriter(path)

	pool, err := NewPool(w, &PoolConfig{Workers: 4, WritesPerWorker: 4})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	_, err = pool.Run(context.Background())
	if err == nil {
		t.Fatal("expected Run to fail when initialization fails")
	}

	// No workers were started and no file was left behind.
	if got := pool.GetStats().AttemptedWrites.Load(); got != 0 {
		t.Fatalf("workers ran despite init failure: %d attempts", got)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("expected no output file, stat: %v", statErr)
	}
}

func TestPoolSingleWorkerFaultDoesNotAbortSiblings(t *testing.T) {
	t.Parallel()

	const workers, writes = 10, 10
	const faultedWorker, faultedWrite = 3, 5

	w := newTestWriter(t)

	// Fail exactly one worker's 5th append. The hook runs under the
	// writer's mutex so the per-worker bookkeeping needs no extra lock.
	realWrite := w.writeLine
	perWorker := make(map[int]int)
	w.writeLine = func(path string, line []byte) error {
		rec, err := ParseRecord(string(line[:len(line)-1]))
		if err != nil {
			return fmt.Errorf("malformed record in hook: %w", err)
		}
		perWorker[rec.WriterID]++
		if rec.WriterID == faultedWorker && perWorker[rec.WriterID] == faultedWrite {
			return &WriteError{Op: "write", Path: path, Err: errors.New("injected fault"), Retryable: true}
		}
		return realWrite(path, line)
	}

	pool, err := NewPool(w, &PoolConfig{Workers: workers, WritesPerWorker: writes})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	result, err := pool.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Failures) != 1 {
		t.Fatalf("failures: got %d, want exactly 1", len(result.Failures))
	}
	f := result.Failures[0]
	if f.WorkerID != faultedWorker || f.Write != faultedWrite {
		t.Fatalf("failure attribution: got worker %d write %d, want worker %d write %d",
			f.WorkerID, f.Write, faultedWorker, faultedWrite)
	}

	// 9 workers x 10 writes + 4 successful writes from the faulted one.
	const wantCompleted = (workers-1)*writes + faultedWrite - 1
	if got := result.Stats.CompletedWrites.Load(); got != wantCompleted {
		t.Fatalf("completed writes: got %d, want %d", got, wantCompleted)
	}

	report, err := VerifyFile(w.Path())
	if err != nil {
		t.Fatalf("VerifyFile: %v", err)
	}
	if report.Lines != 1+wantCompleted {
		t.Fatalf("lines: got %d, want %d", report.Lines, 1+wantCompleted)
	}
	if report.MaxSequence != wantCompleted {
		t.Fatalf("max sequence: got %d, want %d (gapless despite the fault)", report.MaxSequence, wantCompleted)
	}
	if got := report.WriterIDs[faultedWorker]; got != faultedWrite-1 {
		t.Fatalf("faulted worker records: got %d, want %d", got, faultedWrite-1)
	}
}

func TestPoolCancelledContextSkipsRemainingWrites(t *testing.T) {
	t.Parallel()

	w := newTestWriter(t)
	pool, err := NewPool(w, &PoolConfig{Workers: 5, WritesPerWorker: 20})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before any worker starts

	result, err := pool.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := result.Stats.CompletedWrites.Load(); got != 0 {
		t.Fatalf("completed writes after pre-cancel: got %d, want 0", got)
	}
	if got := result.Stats.CancelledWrites.Load(); got != 100 {
		t.Fatalf("cancelled writes: got %d, want 100", got)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("cancellation must not count as worker failure: %v", result.Failures)
	}

	// The file is still seeded: initialization happened before the workers
	// looked at the context.
	if lines := readLines(t, w.Path()); len(lines) != 1 {
		t.Fatalf("expected seed-only file, got %d lines", len(lines))
	}
}

func TestPoolRateLimitedRunCompletes(t *testing.T) {
	t.Parallel()

	w := newTestWriter(t)
	pool, err := NewPool(w, &PoolConfig{Workers: 2, WritesPerWorker: 3, RateLimit: 10000})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	result, err := pool.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := result.Stats.CompletedWrites.Load(); got != 6 {
		t.Fatalf("completed writes: got %d, want 6", got)
	}
}
