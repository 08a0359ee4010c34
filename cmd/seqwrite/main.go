/*
Package main is the entry point for the seqwrite command-line application.

seqwrite is a tool for exercising a synchronized file appender under
concurrent load. Its primary functionalities include:
  - Running a fixed pool of workers that append sequentially numbered
    records to one shared output file behind an exclusive lock.
  - Verifying a finished output file offline: seed record present, sequence
    numbers gapless and strictly increasing, per-writer record counts, and
    an xxh3 content digest for cross-run comparison.

The application uses the Cobra library for command-line structure and flag
parsing. It leverages the internal packages:
  - `internal/core`: the synchronized writer, the worker pool and the
    verification logic.
  - `internal/metrics`: Prometheus metrics for appends, lock waits and
    worker activity.
  - `internal/util`: output path resolution glue.

Graceful shutdown is handled via context cancellation triggered by OS
signals (SIGINT, SIGTERM); an interrupted run still waits for in-flight
appends and reports a truthful summary.
*/
package main

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
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/x-stp/seqwrite/internal/core"
	"github.com/x-stp/seqwrite/internal/metrics"
	"github.com/x-stp/seqwrite/internal/util"
)

// Global flags (persistent across commands)
var (
	enableMetrics bool
	metricsPort   int
)

// Flags specific to the run command
var (
	outputPath      string
	numWorkers      int
	writesPerWorker int
	rateLimit       float64
	showStats       bool
	waitForKeypress bool
)

var rootCmd = &cobra.Command{
	Use:   "seqwrite",
	Short: "seqwrite - concurrent sequential-append writer and verifier",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if enableMetrics {
			metrics.EnableMetrics()
			if err := metrics.StartMetricsServer(fmt.Sprintf(":%d", metricsPort)); err != nil {
				log.Printf("Failed to start metrics server: %v", err)
			}
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run N workers appending M sequenced records each to one shared file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPool()
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Verify a finished output file: seed record, gapless sequence, content digest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return verifyFile(args[0])
	},
}

func init() {
	// Persistent flags (available for all commands)
	rootCmd.PersistentFlags().BoolVar(&enableMetrics, "metrics", false, "Expose Prometheus metrics over HTTP")
	rootCmd.PersistentFlags().IntVar(&metricsPort, "metrics-port", 9090, "Prometheus metrics port")

	// Flags for the run command
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "output/", "Output file path, or a directory to generate a timestamped file in")
	runCmd.Flags().IntVarP(&numWorkers, "workers", "w", core.DefaultWorkers, "Number of concurrent workers")
	runCmd.Flags().IntVarP(&writesPerWorker, "writes", "n", core.DefaultWritesPerWorker, "Number of appends per worker")
	runCmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "Per-worker append rate in writes/second (0 = unpaced)")
	runCmd.Flags().BoolVarP(&showStats, "stats", "s", true, "Show the final run summary")
	runCmd.Flags().BoolVar(&waitForKeypress, "wait", false, "Wait for Enter before exiting")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(verifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runPool is the handler for the 'run' command.
func runPool() error {
	runID := uuid.NewString()[:8]

	path, err := util.ResolveOutputPath(outputPath, runID)
	if err != nil {
		return err
	}
	log.Printf("[run %s] output file: %s", runID, path)

	// Setup signal handling for graceful shutdown. Cancellation stops
	// workers between appends; an append already holding the lock always
	// completes.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
	}()

	writer := core.NewSyncWriter(path)
	defer writer.Close()

	pool, err := core.NewPool(writer, &core.PoolConfig{
		Workers:         numWorkers,
		WritesPerWorker: writesPerWorker,
		RateLimit:       rateLimit,
		RunID:           runID,
	})
	if err != nil {
		return err
	}

	// Initialization failure is fatal: no file, no run. Worker failures
	// are not; they end up in the result and the process exits cleanly.
	result, err := pool.Run(ctx)
	if err != nil {
		return fmt.Errorf("run %s aborted: %w", runID, err)
	}

	if showStats {
		displayFinalRunStats(runID, path, result)
	}
	for _, f := range result.Failures {
		log.Printf("[run %s] %v", runID, f)
	}

	if enableMetrics {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		if err := metrics.ShutdownMetricsServer(shutdownCtx); err != nil {
			log.Printf("Metrics server shutdown error: %v", err)
		}
	}

	if waitForKeypress {
		fmt.Print("Press Enter to exit... ")
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
	}
	return nil
}

// displayFinalRunStats shows the summary statistics for a completed run.
func displayFinalRunStats(runID, path string, result *core.RunResult) {
	stats := result.Stats
	attempted := stats.AttemptedWrites.Load()
	completed := stats.CompletedWrites.Load()
	rate := 0.0
	if result.Elapsed.Seconds() > 0 {
		rate = float64(completed) / result.Elapsed.Seconds()
	}

	fmt.Printf("\n--- Final Run Statistics (run %s) ---\n", runID)
	fmt.Printf("      Output File: %s\n", path)
	fmt.Printf("  Processing Time: %v\n", result.Elapsed.Round(time.Millisecond))
	fmt.Printf(" Attempted Writes: %d\n", attempted)
	fmt.Printf(" Completed Writes: %d\n", completed)
	fmt.Printf(" Cancelled Writes: %d\n", stats.CancelledWrites.Load())
	fmt.Printf("   Failed Workers: %d\n", len(result.Failures))
	fmt.Printf("     Overall Rate: %.0f writes/sec\n", rate)
	fmt.Printf("--------------------------------------\n")
}

// verifyFile is the handler for the 'verify' command.
func verifyFile(path string) error {
	report, err := core.VerifyFile(path)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	ids := make([]int, 0, len(report.WriterIDs))
	for id := range report.WriterIDs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fmt.Printf("%s: OK\n", path)
	fmt.Printf("    \\- Lines:          %d (1 seed + %d records)\n", report.Lines, report.Lines-1)
	fmt.Printf("    \\- Max Sequence:   %d\n", report.MaxSequence)
	fmt.Printf("    \\- Writers:        %d\n", len(ids))
	for _, id := range ids {
		fmt.Printf("        \\- writer %d: %d records\n", id, report.WriterIDs[id])
	}
	fmt.Printf("    \\- xxh3 Digest:    %016x\n", report.Digest)
	return nil
}
