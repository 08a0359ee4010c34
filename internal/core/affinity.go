//go:build linux
// +build linux

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

package core

import (
	"log"
	"runtime"

	"golang.org/x/sys/unix"
)

// setAffinity attempts to bind the calling worker goroutine's OS thread to a
// specific CPU core. Pinning the workers spreads the lock contention across
// cores instead of letting the scheduler collapse them onto one, which is
// the worst-case pressure the pool is meant to generate. Best-effort: a
// failure is logged and ignored.
func setAffinity(workerID, cpuID int) {
	// LockOSThread keeps the goroutine on this thread between here and the
	// SchedSetaffinity syscall. No matching Unlock: the worker goroutine
	// owns the thread for the remainder of its (short) life.
	runtime.LockOSThread()

	var cpuSet unix.CPUSet
	cpuSet.Zero()
	cpuSet.Set(cpuID)

	tid := unix.Gettid()
	if err := unix.SchedSetaffinity(tid, &cpuSet); err != nil {
		log.Printf("Warning: failed to set CPU affinity for worker %d on core %d (tid: %d): %v", workerID, cpuID, tid, err)
	}
}
