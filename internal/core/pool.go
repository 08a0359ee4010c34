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
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/x-stp/seqwrite/internal/metrics"
)

// PoolConfig holds configuration for a writer pool run.
type PoolConfig struct {
	// Workers is the number of concurrent workers. Capped at MaxWorkers.
	Workers int
	// WritesPerWorker is how many appends each worker performs.
	WritesPerWorker int
	// RateLimit paces each worker's appends in writes/second. Zero (the
	// default) disables pacing entirely so workers hammer the lock
	// back-to-back, which is the interesting mode for exercising mutual
	// exclusion.
	RateLimit float64
	// RunID tags log lines and metrics from this run.
	RunID string
}

// RunStats holds runtime statistics for a pool run.
type RunStats struct {
	StartTime       time.Time
	AttemptedWrites atomic.Int64
	CompletedWrites atomic.Int64
	FailedWorkers   atomic.Int64
	CancelledWrites atomic.Int64
}

// RunResult is the aggregate outcome of a pool run, produced only after
// every worker has finished.
type RunResult struct {
	Failures []*WorkerFailure
	Stats    *RunStats
	Elapsed  time.Duration
}

// Pool drives a fixed set of workers against one shared SyncWriter.
// It owns no correctness invariant beyond start-all-before-waiting and
// wait-all-before-reporting; the sequencing guarantees live in the writer.
type Pool struct {
	writer   *SyncWriter
	config   *PoolConfig
	stats    *RunStats
	failures chan *WorkerFailure
}

// worker is a single execution unit. It holds no mutable state shared with
// its siblings; everything it touches outside its own loop goes through the
// writer's lock or the failure channel.
type worker struct {
	id          int // 1-based; doubles as the writer identity in records
	writes      int
	cpuAffinity int
	writer      *SyncWriter
	failures    chan<- *WorkerFailure
	limiter     *rate.Limiter // nil when pacing is disabled
	stats       *RunStats
}

// NewPool validates the configuration and builds a pool bound to writer.
// The writer is shared, not owned: the pool never closes it.
func NewPool(writer *SyncWriter, config *PoolConfig) (*Pool, error) {
	if writer == nil {
		return nil, fmt.Errorf("pool requires a writer")
	}
	if config.Workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", config.Workers)
	}
	if config.Workers > MaxWorkers {
		return nil, fmt.Errorf("worker count %d exceeds maximum %d", config.Workers, MaxWorkers)
	}
	if config.WritesPerWorker <= 0 {
		return nil, fmt.Errorf("writes per worker must be positive, got %d", config.WritesPerWorker)
	}

	return &Pool{
		writer:   writer,
		config:   config,
		stats:    &RunStats{},
		failures: make(chan *WorkerFailure, config.Workers+FailureChannelSlack),
	}, nil
}

// GetStats returns the pool's statistics struct. Counters are atomic and
// safe to read while the run is in flight.
func (p *Pool) GetStats() *RunStats {
	return p.stats
}

// Run initializes the shared writer, launches all workers concurrently,
// waits for every one of them to finish and returns the aggregated result.
//
// Initialization failure is fatal: no workers are started and the error is
// returned directly, since nothing useful can happen without a seeded file.
// Worker-level failures are not fatal; they are collected into the result
// and the run still completes cleanly.
func (p *Pool) Run(ctx context.Context) (*RunResult, error) {
	if err := p.writer.Initialize(); err != nil {
		return nil, fmt.Errorf("writer initialization failed: %w", err)
	}

	p.stats.StartTime = time.Now()
	log.Printf("[run %s] starting %d workers x %d writes -> %s",
		p.config.RunID, p.config.Workers, p.config.WritesPerWorker, p.writer.Path())

	var limit rate.Limit
	if p.config.RateLimit > 0 {
		limit = rate.Limit(p.config.RateLimit)
	}

	var wg sync.WaitGroup
	for i := 1; i <= p.config.Workers; i++ {
		w := &worker{
			id:          i,
			writes:      p.config.WritesPerWorker,
			cpuAffinity: (i - 1) % runtime.NumCPU(),
			writer:      p.writer,
			failures:    p.failures,
			stats:       p.stats,
		}
		if limit > 0 {
			w.limiter = rate.NewLimiter(limit, 1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.run(ctx)
		}()
	}

	wg.Wait()
	close(p.failures)

	result := &RunResult{
		Stats:   p.stats,
		Elapsed: time.Since(p.stats.StartTime),
	}
	for f := range p.failures {
		result.Failures = append(result.Failures, f)
	}
	return result, nil
}

// run is a worker's main loop: a fixed number of back-to-back appends with
// the worker's own identity. The first append error is reported exactly once
// and ends the loop; siblings are unaffected. The context is only consulted
// between appends — an append in flight is never interrupted.
func (w *worker) run(ctx context.Context) {
	setAffinity(w.id, w.cpuAffinity)

	if metrics.IsMetricsEnabled() {
		metrics.GetMetrics().WorkersBusy.Inc()
		defer metrics.GetMetrics().WorkersBusy.Dec()
	}

	for i := 1; i <= w.writes; i++ {
		if err := ctx.Err(); err != nil {
			w.stats.CancelledWrites.Add(int64(w.writes - i + 1))
			return
		}
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				w.stats.CancelledWrites.Add(int64(w.writes - i + 1))
				return
			}
		}

		w.stats.AttemptedWrites.Add(1)
		if err := w.writer.Append(w.id); err != nil {
			w.stats.FailedWorkers.Add(1)
			if metrics.IsMetricsEnabled() {
				metrics.GetMetrics().WorkerFailuresTotal.Inc()
			}
			w.failures <- &WorkerFailure{WorkerID: w.id, Write: i, Err: err}
			return
		}
		w.stats.CompletedWrites.Add(1)
	}
}
