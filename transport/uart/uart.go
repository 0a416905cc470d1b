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

// Package uart implements the PN532 transport over a serial line, as used
// by USB-to-serial PN532 boards.
package uart

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/ZaparooProject/go-ultralight"
	"github.com/ZaparooProject/go-ultralight/internal/frame"
	"github.com/ZaparooProject/go-ultralight/internal/syncutil"
	"github.com/ZaparooProject/go-ultralight/pn532"
)

const (
	baudRate       = 115200
	defaultTimeout = time.Second
	responseTries  = 3
	traceSize      = 24
	pollInterval   = time.Millisecond

	cmdInListPassiveTarget = 0x4A
)

// The PN532 HSU wakes on a long preamble of 0x55 followed by zeros.
var wakeUpSequence = []byte{
	0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// Transport implements the pn532.Transport interface for UART communication.
type Transport struct {
	port     serial.Port
	lock     *portLock
	portName string
	timeout  time.Duration
	mu       syncutil.Mutex
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// readTimeout is the per-read poll timeout of the port. Windows drivers
// need longer.
func readTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// windowsPostWriteDelay gives Windows drivers time to flush after a write.
func windowsPostWriteDelay() {
	if isWindows() {
		time.Sleep(15 * time.Millisecond)
	}
}

// New opens and locks the serial port and returns a transport on it.
func New(portName string) (*Transport, error) {
	lock, err := lockPort(portName)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		_ = lock.release()
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(readTimeout()); err != nil {
		_ = port.Close()
		_ = lock.release()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	t := newTransport(port, portName)
	t.lock = lock
	return t, nil
}

func newTransport(port serial.Port, portName string) *Transport {
	return &Transport{
		port:     port,
		portName: portName,
		timeout:  defaultTimeout,
	}
}

// SendCommand sends a command to the PN532 and waits for its response.
// Failures carry the wire trace of the command.
func (t *Transport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil, pn532.ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trace := pn532.NewTraceBuffer("UART", t.portName, traceSize)
	res, err := t.exchange(ctx, cmd, args, trace)
	if err != nil {
		return nil, trace.WrapError(err)
	}
	return res, nil
}

func (t *Transport) exchange(ctx context.Context, cmd byte, args []byte, trace *pn532.TraceBuffer) ([]byte, error) {
	out, err := frame.BuildCommand(cmd, args)
	if err != nil {
		return nil, err
	}
	if err := t.write(wakeUpSequence, "wake up"); err != nil {
		return nil, err
	}
	if err := t.write(out, "command"); err != nil {
		return nil, err
	}
	trace.RecordTX(out, fmt.Sprintf("cmd 0x%02X", cmd))
	windowsPostWriteDelay()

	f, pending, err := t.readFrame(ctx, nil, trace)
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, pn532.ErrTransportTimeout):
		return nil, pn532.NewNoACKError("waitAck", t.portName)
	case err != nil:
		return nil, err
	case f.Kind == frame.KindNack:
		return nil, pn532.NewNACKReceivedError("waitAck", t.portName)
	case f.Kind == frame.KindInfo || f.Kind == frame.KindError:
		// Some firmware sends the response without an ACK first.
		trace.RecordRX(nil, "response before ACK")
		return t.finish(f, cmd)
	}

	for try := range responseTries {
		f, pending, err = t.readFrame(ctx, pending, trace)
		if err == nil {
			return t.finish(f, cmd)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, pn532.ErrTransportTimeout) && cmd == cmdInListPassiveTarget {
			// Some firmware stays silent when no target answers.
			return []byte{cmdInListPassiveTarget + 1, 0x00}, nil
		}
		if !errors.Is(err, pn532.ErrChecksumMismatch) && !errors.Is(err, pn532.ErrFrameCorrupted) {
			return nil, err
		}
		ultralight.Debugf("uart: %s: bad response frame (try %d): %v", t.portName, try+1, err)
		pending = nil
		if err := t.write(frame.NackFrame, "NACK"); err != nil {
			return nil, err
		}
		trace.RecordTX(frame.NackFrame, "NACK")
	}
	return nil, &pn532.TransportError{
		Op: "receiveFrame", Port: t.portName,
		Err:       fmt.Errorf("%w after %d tries", pn532.ErrInvalidResponse, responseTries),
		Type:      pn532.ErrorTypeTransient,
		Retryable: true,
	}
}

// finish acknowledges the response and validates it against cmd.
func (t *Transport) finish(f frame.Frame, cmd byte) ([]byte, error) {
	if err := t.write(frame.AckFrame, "ACK"); err != nil {
		return nil, err
	}
	return frame.Response(f, cmd)
}

// readFrame reads until buf holds a complete frame or the transport
// timeout passes. Bytes after the frame are returned for the next call.
func (t *Transport) readFrame(
	ctx context.Context, buf []byte, trace *pn532.TraceBuffer,
) (frame.Frame, []byte, error) {
	deadline := time.Now().Add(t.timeout)
	chunk := frame.GetBuffer(frame.ReadBufferSize)
	defer frame.PutBuffer(chunk)

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
			trace.RecordTimeout(fmt.Sprintf("%d bytes pending", len(buf)))
			return frame.Frame{}, nil, pn532.NewTimeoutError("receiveFrame", t.portName)
		}

		n, err = t.port.Read(chunk)
		if err != nil {
			return frame.Frame{}, nil, fmt.Errorf("%w: %w", pn532.ErrTransportRead, err)
		}
		if n == 0 {
			time.Sleep(pollInterval)
			continue
		}
		trace.RecordRX(chunk[:n], "")
		buf = append(buf, chunk[:n]...)
	}
}

func (t *Transport) write(data []byte, what string) error {
	n, err := t.port.Write(data)
	if err != nil {
		return fmt.Errorf("UART %s write failed: %w", what, err)
	} else if n != len(data) {
		return pn532.NewTransportWriteError(what, t.portName)
	}
	return t.drainWithRetry(what)
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry waits for written data to leave the port, retrying
// interrupted system calls.
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}
		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay << attempt)
			continue
		}
		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}
	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}

// SetTimeout sets how long a command waits for its ACK and response.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout %v", pn532.ErrInvalidParameter, timeout)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close closes the port and releases its lock. Closing twice is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if lerr := t.lock.release(); lerr != nil && err == nil {
		err = lerr
	}
	t.lock = nil
	if err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportUART
}

// String returns the port name.
func (t *Transport) String() string {
	return t.portName
}

var _ pn532.Transport = (*Transport)(nil)
