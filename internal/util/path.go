package util

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
	"path/filepath"
	"strings"
	"time"
)

// SanitizeFilename creates a filesystem-safe filename from an arbitrary
// string. Replaces common problematic characters with underscores and limits
// length. Performance is not critical for this setup utility.
func SanitizeFilename(input string) string {
	replaced := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, input)
	maxLength := 100 // Arbitrary limit
	if len(replaced) > maxLength {
		return replaced[:maxLength]
	}
	return replaced
}

// ResolveOutputPath turns the --output flag into an absolute file path the
// writer can be handed. A value naming an existing directory (or ending in a
// path separator) gets a generated timestamped filename inside it; anything
// else is treated as the file path itself. The parent directory is created
// if missing.
func ResolveOutputPath(out, runID string) (string, error) {
	if out == "" {
		out = "."
	}

	info, err := os.Stat(out)
	isDir := err == nil && info.IsDir()
	if isDir || strings.HasSuffix(out, string(os.PathSeparator)) {
		name := fmt.Sprintf("seqwrite_%s_%s.txt",
			time.Now().Format("20060102_150405"), SanitizeFilename(runID))
		out = filepath.Join(out, name)
	}

	abs, err := filepath.Abs(out)
	if err != nil {
		return "", fmt.Errorf("resolving output path %q: %w", out, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	return abs, nil
}
