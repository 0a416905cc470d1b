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

// Package i2c implements the PN532 transport over an I2C bus using
// periph.io.
package i2c

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-ultralight"
	"github.com/ZaparooProject/go-ultralight/internal/frame"
	"github.com/ZaparooProject/go-ultralight/internal/syncutil"
	"github.com/ZaparooProject/go-ultralight/pn532"
)

const (
	// PN532 7-bit I2C address (datasheet says 0x48, which is the 8-bit write
	// address including the R/W bit; periph.io and the Linux kernel expect the
	// 7-bit form: 0x48 >> 1 = 0x24).
	pn532Addr = 0x24

	pn532Ready = 0x01

	// Max clock frequency (400 kHz).
	maxClockFreq = 400 * physic.KiloHertz

	defaultTimeout = 100 * time.Millisecond
	responseTries  = 3
	traceSize      = 16
	commandDelay   = 6 * time.Millisecond
)

// Transport implements the pn532.Transport interface for I2C communication
type Transport struct {
	dev     *i2c.Dev
	bus     i2c.BusCloser // held so Close can release the OS file descriptor
	busName string
	timeout time.Duration
	mu      syncutil.Mutex
}

// parseI2CPath extracts the bus path from a composite path.
// Accepts "/dev/i2c-1:0x24" or "/dev/i2c-1".
func parseI2CPath(path string) string {
	bus, _, _ := strings.Cut(path, ":")
	return bus
}

// New opens the I2C bus and returns a transport to the PN532 on it.
func New(busName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(parseI2CPath(busName))
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	// Some adapters cannot run at 400 kHz and keep their default.
	_ = bus.SetSpeed(maxClockFreq)

	return newTransport(bus, busName), nil
}

func newTransport(bus i2c.BusCloser, busName string) *Transport {
	return &Transport{
		dev:     &i2c.Dev{Addr: pn532Addr, Bus: bus},
		bus:     bus,
		busName: busName,
		timeout: defaultTimeout,
	}
}

// sleepCtx performs a context-aware sleep. Returns ctx.Err() if context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendCommand sends a command to the PN532 and waits for response.
// Failures carry the wire trace of the command.
func (t *Transport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev == nil {
		return nil, pn532.ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trace := pn532.NewTraceBuffer("I2C", t.busName, traceSize)
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
	trace.RecordTX(out, fmt.Sprintf("cmd 0x%02X", cmd))
	if err := t.dev.Tx(out, nil); err != nil {
		return nil, fmt.Errorf("failed to send I2C frame: %w", err)
	}

	if err := t.waitAck(ctx, trace); err != nil {
		return nil, err
	}
	if err := sleepCtx(ctx, commandDelay); err != nil {
		return nil, err
	}

	var lastErr error
	for try := range responseTries {
		f, err := t.readFrame(ctx, trace)
		if err == nil {
			if err := t.send(frame.AckFrame, "ACK", trace); err != nil {
				return nil, err
			}
			return frame.Response(f, cmd)
		}
		if !errors.Is(err, pn532.ErrChecksumMismatch) && !errors.Is(err, pn532.ErrFrameCorrupted) {
			return nil, err
		}
		ultralight.Debugf("i2c: %s: bad response frame (try %d): %v", t.busName, try+1, err)
		lastErr = err
		if err := t.send(frame.NackFrame, "NACK", trace); err != nil {
			return nil, err
		}
	}
	return nil, &pn532.TransportError{
		Op: "receiveFrame", Port: t.busName,
		Err:       fmt.Errorf("%w: %w", pn532.ErrCommunicationFailed, lastErr),
		Type:      pn532.ErrorTypeTransient,
		Retryable: true,
	}
}

func (t *Transport) send(data []byte, note string, trace *pn532.TraceBuffer) error {
	trace.RecordTX(data, note)
	if err := t.dev.Tx(data, nil); err != nil {
		return fmt.Errorf("failed to send %s: %w", note, err)
	}
	return nil
}

// waitReady polls the status byte until the PN532 has data, backing off
// from 1ms up to 8ms.
func (t *Transport) waitReady(ctx context.Context, trace *pn532.TraceBuffer, what string) error {
	deadline := time.Now().Add(t.timeout)
	delay := time.Millisecond
	status := []byte{0}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.dev.Tx(nil, status); err != nil {
			return fmt.Errorf("I2C ready check failed: %w", err)
		}
		if status[0] == pn532Ready {
			return nil
		}
		if time.Now().After(deadline) {
			trace.RecordTimeout(what)
			return pn532.NewTransportNotReadyError(what, t.busName)
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
		delay = min(delay*2, 8*time.Millisecond)
	}
}

// readI2C reads len(buf) bytes in one transaction, stripping the status
// byte the PN532 prepends to every read (datasheet 6.2.4).
func (t *Transport) readI2C(buf []byte) error {
	tmp := frame.GetBuffer(1 + len(buf))
	defer frame.PutBuffer(tmp)

	if err := t.dev.Tx(nil, tmp); err != nil {
		return fmt.Errorf("I2C read failed: %w", err)
	}
	if tmp[0] != pn532Ready {
		return pn532.NewTransportNotReadyError("readI2C", t.busName)
	}
	copy(buf, tmp[1:])
	return nil
}

func (t *Transport) waitAck(ctx context.Context, trace *pn532.TraceBuffer) error {
	if err := t.waitReady(ctx, trace, "waitAck"); err != nil {
		if errors.Is(err, pn532.ErrTransportNotReady) {
			return pn532.NewNoACKError("waitAck", t.busName)
		}
		return err
	}

	ack := make([]byte, len(frame.AckFrame))
	if err := t.readI2C(ack); err != nil {
		return fmt.Errorf("I2C ACK read failed: %w", err)
	}
	trace.RecordRX(ack, "")
	switch {
	case bytes.Equal(ack, frame.AckFrame):
		return nil
	case bytes.Equal(ack, frame.NackFrame):
		return pn532.NewNACKReceivedError("waitAck", t.busName)
	default:
		return pn532.NewNoACKError("waitAck", t.busName)
	}
}

// readFrame reads a complete response frame in a single I2C transaction.
//
// Every read transaction restarts from byte 0 of the PN532 output buffer,
// so reading a header first and the rest later would re-read the header.
// The whole maximum frame is read at once instead.
func (t *Transport) readFrame(ctx context.Context, trace *pn532.TraceBuffer) (frame.Frame, error) {
	if err := t.waitReady(ctx, trace, "receiveFrame"); err != nil {
		if errors.Is(err, pn532.ErrTransportNotReady) {
			return frame.Frame{}, pn532.NewTimeoutError("receiveFrame", t.busName)
		}
		return frame.Frame{}, err
	}

	buf := frame.GetBuffer(frame.MaxFrameLength)
	defer frame.PutBuffer(buf)
	if err := t.readI2C(buf); err != nil {
		return frame.Frame{}, err
	}

	f, n, err := frame.Parse(buf)
	switch {
	case errors.Is(err, frame.ErrIncomplete):
		trace.RecordRX(buf[:16], "no frame")
		return frame.Frame{}, pn532.NewFrameCorruptedError("receiveFrame", t.busName)
	case err != nil:
		trace.RecordRX(buf[:n], "bad frame")
		return frame.Frame{}, err
	}
	trace.RecordRX(buf[:n], "")
	return f, nil
}

// SetTimeout sets how long a command waits for the PN532 to become ready.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout %v", pn532.ErrInvalidParameter, timeout)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close closes the transport connection and releases the I2C bus file
// descriptor. Leaked descriptors can wedge the bus when transports are
// recreated quickly.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bus == nil {
		return nil
	}
	err := t.bus.Close()
	t.bus = nil
	t.dev = nil
	if err != nil {
		return fmt.Errorf("failed to close I2C bus: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev != nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportI2C
}

// String returns the bus name.
func (t *Transport) String() string {
	return t.busName
}

var _ pn532.Transport = (*Transport)(nil)
