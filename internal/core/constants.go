/*
Package core constants shared across the writer, pool and verification logic.
These provide central definitions for the on-disk record format so the writer
and verifier cannot drift apart, plus defaults for the command-line surface.
*/
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

const (
	// --- Record format ---

	// TimestampLayout is the wall-clock layout embedded in every record:
	// 24-hour time with millisecond precision. time.Format with a fixed
	// numeric layout is locale-invariant, which keeps output files
	// byte-comparable across machines.
	TimestampLayout = "15:04:05.000"

	// RecordSeparator separates the three record fields on disk.
	RecordSeparator = ", "

	// SeedWriterID is the sentinel writer identity carried by the seed
	// record written during Initialize. Real workers are numbered from 1
	// so the sentinel can never collide with a worker identity.
	SeedWriterID = 0

	// --- Pool defaults ---

	// DefaultWorkers is the default number of concurrent workers.
	DefaultWorkers = 10

	// DefaultWritesPerWorker is the default number of appends each worker
	// performs.
	DefaultWritesPerWorker = 10

	// MaxWorkers is the absolute upper limit on pool size. This is a
	// safeguard against pathological flag values, not a tuning knob: every
	// worker contends on one mutex, so there is nothing to gain past a
	// handful of workers.
	MaxWorkers = 2048

	// FailureChannelSlack is extra capacity on the failure channel beyond
	// one slot per worker. Workers report at most one failure each, so
	// worker count alone already suffices; the slack is headroom for the
	// aggregation loop.
	FailureChannelSlack = 8
)
