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

package pn532

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TraceDirection is the side that produced a traced frame.
type TraceDirection string

const (
	TraceTX TraceDirection = "TX"
	TraceRX TraceDirection = "RX"
)

// TraceEntry is one frame on the wire.
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
}

func (e TraceEntry) String() string {
	s := fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("15:04:05.000"), e.Direction, hexDump(e.Data))
	if e.Note != "" {
		s += " (" + e.Note + ")"
	}
	return s
}

// TraceableError carries the last frames exchanged before a transport
// failure. Use GetTrace to pull it out of a wrapped error.
type TraceableError struct {
	Err       error
	Transport string
	Port      string
	Trace     []TraceEntry
}

func (e *TraceableError) Error() string { return e.Err.Error() }

func (e *TraceableError) Unwrap() error { return e.Err }

// FormatTrace renders the trace one frame per line, ">" for TX and "<" for RX.
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s:%s] (no trace data)", e.Transport, e.Port)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s:%s] Wire trace (%d entries):\n", e.Transport, e.Port, len(e.Trace))
	for _, entry := range e.Trace {
		arrow := ">"
		if entry.Direction == TraceRX {
			arrow = "<"
		}
		sb.WriteString("  " + arrow + " " + hexDump(entry.Data))
		if entry.Note != "" {
			sb.WriteString(" (" + entry.Note + ")")
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

const hexDumpLimit = 32

func hexDump(data []byte) string {
	switch {
	case len(data) == 0:
		return "(empty)"
	case len(data) > hexDumpLimit:
		return fmt.Sprintf("% X ... (%d bytes total)", data[:hexDumpLimit], len(data))
	default:
		return fmt.Sprintf("% X", data)
	}
}

// TraceBuffer records the frames of one command, keeping the newest max.
type TraceBuffer struct {
	transport string
	port      string
	entries   []TraceEntry
	max       int
}

// NewTraceBuffer returns a buffer for transport/port; max <= 0 means 16.
func NewTraceBuffer(transport, port string, max int) *TraceBuffer {
	if max <= 0 {
		max = 16
	}
	return &TraceBuffer{transport: transport, port: port, max: max}
}

func (tb *TraceBuffer) RecordTX(data []byte, note string) { tb.add(TraceTX, data, note) }

func (tb *TraceBuffer) RecordRX(data []byte, note string) { tb.add(TraceRX, data, note) }

// RecordTimeout marks a read that produced nothing.
func (tb *TraceBuffer) RecordTimeout(note string) { tb.add(TraceRX, nil, "TIMEOUT: "+note) }

func (tb *TraceBuffer) add(dir TraceDirection, data []byte, note string) {
	if len(tb.entries) == tb.max {
		tb.entries = tb.entries[1:]
	}
	tb.entries = append(tb.entries, TraceEntry{
		Timestamp: time.Now(),
		Direction: dir,
		Note:      note,
		Data:      append([]byte(nil), data...),
	})
}

func (tb *TraceBuffer) Len() int { return len(tb.entries) }

// WrapError attaches a copy of the trace to err. A nil err stays nil.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &TraceableError{
		Err:       err,
		Transport: tb.transport,
		Port:      tb.port,
		Trace:     append([]TraceEntry(nil), tb.entries...),
	}
}

// GetTrace returns the trace attached to err, or nil.
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
