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

package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ZaparooProject/go-ultralight/internal/frame"
	"github.com/ZaparooProject/go-ultralight/internal/syncutil"
	"github.com/ZaparooProject/go-ultralight/pn532"
)

// SimulatorTransport implements pn532.Transport on a byte stream to a
// VirtualPN532, optionally through a JitteryConnection. It runs the same
// ACK, response and NACK sequence as the hardware transports.
type SimulatorTransport struct {
	conn       io.ReadWriter
	sim        *VirtualPN532
	CommandLog []CommandLogEntry
	timeout    time.Duration
	mu         syncutil.Mutex
	connected  bool
}

// CommandLogEntry records a command sent to the transport
type CommandLogEntry struct {
	Timestamp time.Time
	Args      []byte
	Cmd       byte
}

const (
	simPollInterval  = time.Millisecond
	simResponseTries = 3
)

// NewSimulatorTransport creates a transport talking directly to sim.
func NewSimulatorTransport(sim *VirtualPN532) *SimulatorTransport {
	return NewSimulatorTransportConn(sim, sim)
}

// NewSimulatorTransportConn creates a transport that talks to sim through
// conn, typically a JitteryConnection wrapping sim.
func NewSimulatorTransportConn(sim *VirtualPN532, conn io.ReadWriter) *SimulatorTransport {
	return &SimulatorTransport{
		conn:      conn,
		sim:       sim,
		timeout:   100 * time.Millisecond,
		connected: true,
	}
}

// SendCommand implements pn532.Transport.
func (t *SimulatorTransport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil, pn532.ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.CommandLog = append(t.CommandLog, CommandLogEntry{
		Cmd:       cmd,
		Args:      append([]byte(nil), args...),
		Timestamp: time.Now(),
	})

	out, err := frame.BuildCommand(cmd, args)
	if err != nil {
		return nil, err
	}
	if _, err := t.conn.Write(out); err != nil {
		return nil, fmt.Errorf("%w: %w", pn532.ErrTransportWrite, err)
	}

	var pending []byte
	ack, pending, err := t.readFrame(ctx, pending)
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		return nil, pn532.NewNoACKError("simulator", "sim")
	case ack.Kind == frame.KindNack:
		return nil, pn532.NewNACKReceivedError("simulator", "sim")
	case ack.Kind != frame.KindAck:
		return nil, pn532.NewNoACKError("simulator", "sim")
	}

	for range simResponseTries {
		var f frame.Frame
		f, pending, err = t.readFrame(ctx, pending)
		if err == nil {
			return frame.Response(f, cmd)
		}
		if !errors.Is(err, pn532.ErrChecksumMismatch) && !errors.Is(err, pn532.ErrFrameCorrupted) {
			return nil, err
		}
		pending = nil
		if _, werr := t.conn.Write(frame.NackFrame); werr != nil {
			return nil, fmt.Errorf("%w: %w", pn532.ErrTransportWrite, werr)
		}
	}
	return nil, fmt.Errorf("response after %d tries: %w", simResponseTries, err)
}

// readFrame reads until buf holds a complete frame or the timeout passes.
// Bytes after the frame are returned for the next call.
func (t *SimulatorTransport) readFrame(ctx context.Context, buf []byte) (frame.Frame, []byte, error) {
	deadline := time.Now().Add(t.timeout)
	chunk := make([]byte, frame.ReadBufferSize)
	for {
		f, n, err := frame.Parse(buf)
		if err == nil {
			return f, buf[n:], nil
		}
		if !errors.Is(err, frame.ErrIncomplete) {
			return frame.Frame{}, buf[n:], err
		}
		if err := ctx.Err(); err != nil {
			return frame.Frame{}, nil, err
		}
		if time.Now().After(deadline) {
			return frame.Frame{}, nil, pn532.NewTimeoutError("simulator", "sim")
		}

		n, err = t.conn.Read(chunk)
		if err != nil {
			return frame.Frame{}, nil, fmt.Errorf("%w: %w", pn532.ErrTransportRead, err)
		}
		if n == 0 {
			time.Sleep(simPollInterval)
			continue
		}
		buf = append(buf, chunk[:n]...)
	}
}

// Close implements pn532.Transport.
func (t *SimulatorTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

// SetTimeout implements pn532.Transport.
func (t *SimulatorTransport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// IsConnected implements pn532.Transport.
func (t *SimulatorTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Type implements pn532.Transport.
func (*SimulatorTransport) Type() pn532.TransportType {
	return pn532.TransportMock
}

// Simulator returns the underlying VirtualPN532 for test setup
func (t *SimulatorTransport) Simulator() *VirtualPN532 {
	return t.sim
}

// GetCommandCount returns how many times a command was sent
func (t *SimulatorTransport) GetCommandCount(cmd byte) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count := 0
	for _, entry := range t.CommandLog {
		if entry.Cmd == cmd {
			count++
		}
	}
	return count
}

var _ pn532.Transport = (*SimulatorTransport)(nil)
