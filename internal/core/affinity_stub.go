//go:build !linux
// +build !linux

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

// This file provides a stub for non-Linux platforms where CPU affinity
// setting is not available via x/sys/unix.

package core

// setAffinity is a no-op outside Linux. Worker placement is left to the Go
// scheduler; correctness does not depend on pinning.
func setAffinity(workerID, cpuID int) {}
