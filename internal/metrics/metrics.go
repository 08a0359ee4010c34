package metrics

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
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry          = prometheus.NewRegistry()
	defaultRegisterer = promauto.With(registry)
	serverOnce        sync.Once
	metricsEnabled    bool
	metricsServer     *http.Server
)

// Metrics contains all the Prometheus metrics for the application.
type Metrics struct {
	// Writer metrics
	AppendDuration   prometheus.Histogram
	LockWaitDuration prometheus.Histogram
	AppendsTotal     *prometheus.CounterVec
	BytesWritten     prometheus.Counter

	// Pool metrics
	WorkersBusy         prometheus.Gauge
	WorkerFailuresTotal prometheus.Counter
}

// Global instance of metrics
var globalMetrics *Metrics
var metricsOnce sync.Once

// GetMetrics returns the global metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = newMetrics()
	})
	return globalMetrics
}

// EnableMetrics enables metrics collection.
func EnableMetrics() {
	metricsEnabled = true
}

// IsMetricsEnabled returns whether metrics collection is enabled.
func IsMetricsEnabled() bool {
	return metricsEnabled
}

// newMetrics creates and registers all metrics.
func newMetrics() *Metrics {
	// Appends are microsecond-to-millisecond operations; keep the low
	// buckets dense so lock contention is visible.
	buckets := []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1}

	return &Metrics{
		AppendDuration: defaultRegisterer.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "seqwrite_append_duration_seconds",
				Help:    "Time spent inside the append critical section (open, write, sync, close)",
				Buckets: buckets,
			},
		),
		LockWaitDuration: defaultRegisterer.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "seqwrite_lock_wait_duration_seconds",
				Help:    "Time spent waiting to acquire the writer's exclusive lock",
				Buckets: buckets,
			},
		),
		AppendsTotal: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seqwrite_appends_total",
				Help: "Total number of append attempts",
			},
			[]string{"status"},
		),
		BytesWritten: defaultRegisterer.NewCounter(
			prometheus.CounterOpts{
				Name: "seqwrite_bytes_written_total",
				Help: "Total record bytes written to the output file",
			},
		),
		WorkersBusy: defaultRegisterer.NewGauge(
			prometheus.GaugeOpts{
				Name: "seqwrite_workers_busy",
				Help: "Number of workers currently running their append loop",
			},
		),
		WorkerFailuresTotal: defaultRegisterer.NewCounter(
			prometheus.CounterOpts{
				Name: "seqwrite_worker_failures_total",
				Help: "Total number of workers that aborted after an append error",
			},
		),
	}
}

// StartMetricsServer starts an HTTP server exposing Prometheus metrics.
// No-op unless EnableMetrics was called first.
func StartMetricsServer(addr string) error {
	if !metricsEnabled {
		return nil
	}

	serverOnce.Do(func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		metricsServer = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			log.Printf("Starting metrics server on %s", addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	})

	return nil
}

// ShutdownMetricsServer gracefully shuts down the metrics server.
func ShutdownMetricsServer(ctx context.Context) error {
	if metricsServer != nil {
		log.Println("Shutting down metrics server...")
		return metricsServer.Shutdown(ctx)
	}
	return nil
}

// MeasureDuration returns a stop function that observes elapsed time on
// histogram when called. Cheap no-op when metrics are disabled.
func MeasureDuration(histogram prometheus.Histogram) func() {
	if !metricsEnabled {
		return func() {}
	}
	start := time.Now()
	return func() {
		histogram.Observe(time.Since(start).Seconds())
	}
}
