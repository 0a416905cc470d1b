// go-ultralight
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-ultralight.
//
// go-ultralight is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-ultralight is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-ultralight; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package ultralight

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-ultralight/internal/syncutil"
)

const (
	logStampFormat = "15:04:05.000"
	sessionHeader  = "=== go-ultralight session ==="
)

// logSink is the open session log, if any. Debug lines always go here.
type logSink struct {
	mu   syncutil.Mutex
	file *os.File
	path string
	w    io.Writer
}

var sink logSink

func (s *logSink) writeLine(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return
	}
	_, _ = fmt.Fprintf(s.w, "%s "+format+"\n", append([]any{time.Now().Format(logStampFormat)}, args...)...)
}

// InitSessionLog starts a log named ultralight_YYYYMMDD_HHMMSS.log in dir
// ("" is the working directory) and returns its path. An already open log
// is closed first.
func InitSessionLog(dir string) (string, error) {
	path := filepath.Join(dir, "ultralight_"+time.Now().Format("20060102_150405")+".log")
	f, err := os.Create(path) //nolint:gosec // name built here
	if err != nil {
		return "", fmt.Errorf("create session log: %w", err)
	}
	writeSessionHeader(f)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.file != nil {
		_ = sink.file.Close()
	}
	sink.file, sink.path, sink.w = f, path, f
	return path, nil
}

// CloseSessionLog ends the current session log. It is a no-op when none is
// open.
func CloseSessionLog() error {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.file == nil {
		return nil
	}
	_, _ = fmt.Fprintf(sink.w, "\n%s === session ended ===\n", time.Now().Format(logStampFormat))
	err := sink.file.Close()
	sink.file, sink.path, sink.w = nil, "", nil
	if err != nil {
		return fmt.Errorf("close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the open session log, or "".
func GetSessionLogPath() string {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	return sink.path
}

func writeSessionHeader(w io.Writer) {
	var sb strings.Builder
	sb.WriteString(sessionHeader + "\n")
	fmt.Fprintf(&sb, "Started: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&sb, "PID: %d\n", os.Getpid())
	fmt.Fprintf(&sb, "Platform: %s/%s %s\n", runtime.GOOS, runtime.GOARCH, runtime.Version())
	fmt.Fprintf(&sb, "Args: %s\n", strings.Join(os.Args, " "))
	sb.WriteString(strings.Repeat("=", len(sessionHeader)) + "\n\n")
	_, _ = io.WriteString(w, sb.String())
}
