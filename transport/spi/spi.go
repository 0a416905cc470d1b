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

// Package spi provides SPI transport implementation for PN532
package spi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-ultralight"
	"github.com/ZaparooProject/go-ultralight/internal/frame"
	"github.com/ZaparooProject/go-ultralight/internal/syncutil"
	"github.com/ZaparooProject/go-ultralight/pn532"
)

const (
	// SPI protocol constants
	spiStatRead  = 0x02
	spiDataWrite = 0x01
	spiDataRead  = 0x03
	spiReady     = 0x01

	// Default SPI settings
	defaultFreq = 1 * physic.MegaHertz
	mode        = spi.Mode0 // CPOL=0, CPHA=0; LSB first is handled by bit reversal

	defaultTimeout = 50 * time.Millisecond
	responseTries  = 3
	traceSize      = 16
	commandDelay   = 6 * time.Millisecond
)

// Transport implements the pn532.Transport interface for SPI communication
type Transport struct {
	port     spi.PortCloser
	conn     spi.Conn
	portName string
	timeout  time.Duration
	mu       syncutil.Mutex
}

// New opens the SPI port and wakes the PN532.
func New(portName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	conn, err := port.Connect(defaultFreq, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	t := newTransport(port, conn, portName)
	t.wakeup()
	return t, nil
}

func newTransport(port spi.PortCloser, conn spi.Conn, portName string) *Transport {
	return &Transport{
		port:     port,
		conn:     conn,
		portName: portName,
		timeout:  defaultTimeout,
	}
}

// wakeup clocks a dummy byte so the PN532 leaves power down.
func (t *Transport) wakeup() {
	time.Sleep(time.Millisecond)
	_ = t.conn.Tx([]byte{0x00}, nil)
	time.Sleep(time.Millisecond)
}

// reverseBit reverses the bits in a byte (LSB <-> MSB)
// PN532 uses LSB first, but most SPI implementations are MSB first
func reverseBit(b byte) byte {
	var result byte
	for range 8 {
		result <<= 1
		result |= b & 1
		b >>= 1
	}
	return result
}

// reverseBytes returns a copy of data with the bits of every byte reversed.
func reverseBytes(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = reverseBit(b)
	}
	return out
}

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

	if t.port == nil {
		return nil, pn532.ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trace := pn532.NewTraceBuffer("SPI", t.portName, traceSize)
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
	if err := t.write(out, fmt.Sprintf("cmd 0x%02X", cmd), trace); err != nil {
		return nil, err
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
			return frame.Response(f, cmd)
		}
		if !errors.Is(err, pn532.ErrChecksumMismatch) && !errors.Is(err, pn532.ErrFrameCorrupted) {
			return nil, err
		}
		ultralight.Debugf("spi: %s: bad response frame (try %d): %v", t.portName, try+1, err)
		lastErr = err
		if err := t.write(frame.NackFrame, "NACK", trace); err != nil {
			return nil, err
		}
	}
	return nil, &pn532.TransportError{
		Op: "receiveFrame", Port: t.portName,
		Err:       fmt.Errorf("%w: %w", pn532.ErrCommunicationFailed, lastErr),
		Type:      pn532.ErrorTypeTransient,
		Retryable: true,
	}
}

// write sends data with the data-write prefix, bit reversed.
func (t *Transport) write(data []byte, note string, trace *pn532.TraceBuffer) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, reverseBit(spiDataWrite))
	buf = append(buf, reverseBytes(data)...)

	trace.RecordTX(data, note)
	if err := t.conn.Tx(buf, nil); err != nil {
		return fmt.Errorf("%w: %s: %w", pn532.ErrTransportWrite, note, err)
	}
	return nil
}

// read clocks n bytes out of the PN532 in one transaction.
func (t *Transport) read(n int) ([]byte, error) {
	w := make([]byte, n+1)
	w[0] = reverseBit(spiDataRead)
	r := make([]byte, n+1)
	if err := t.conn.Tx(w, r); err != nil {
		return nil, fmt.Errorf("%w: %w", pn532.ErrTransportRead, err)
	}
	return reverseBytes(r[1:]), nil
}

// waitReady polls the status register until the PN532 has data.
func (t *Transport) waitReady(ctx context.Context, trace *pn532.TraceBuffer, what string) error {
	deadline := time.Now().Add(t.timeout)
	w := []byte{reverseBit(spiStatRead), 0}
	r := make([]byte, 2)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.conn.Tx(w, r); err != nil {
			return fmt.Errorf("SPI status read failed: %w", err)
		}
		if reverseBit(r[1]) == spiReady {
			return nil
		}
		if time.Now().After(deadline) {
			trace.RecordTimeout(what)
			return pn532.NewTransportNotReadyError(what, t.portName)
		}
		if err := sleepCtx(ctx, time.Millisecond); err != nil {
			return err
		}
	}
}

func (t *Transport) waitAck(ctx context.Context, trace *pn532.TraceBuffer) error {
	if err := t.waitReady(ctx, trace, "waitAck"); err != nil {
		if errors.Is(err, pn532.ErrTransportNotReady) {
			return pn532.NewNoACKError("waitAck", t.portName)
		}
		return err
	}

	ack, err := t.read(len(frame.AckFrame))
	if err != nil {
		return err
	}
	trace.RecordRX(ack, "")
	switch {
	case bytes.Equal(ack, frame.AckFrame):
		return nil
	case bytes.Equal(ack, frame.NackFrame):
		return pn532.NewNACKReceivedError("waitAck", t.portName)
	default:
		return pn532.NewInvalidResponseError("waitAck", t.portName)
	}
}

// readFrame reads the largest possible frame in one transaction and
// decodes the frame at its start.
func (t *Transport) readFrame(ctx context.Context, trace *pn532.TraceBuffer) (frame.Frame, error) {
	if err := t.waitReady(ctx, trace, "receiveFrame"); err != nil {
		if errors.Is(err, pn532.ErrTransportNotReady) {
			return frame.Frame{}, pn532.NewTimeoutError("receiveFrame", t.portName)
		}
		return frame.Frame{}, err
	}

	buf, err := t.read(frame.MaxFrameLength)
	if err != nil {
		return frame.Frame{}, err
	}
	f, n, err := frame.Parse(buf)
	switch {
	case errors.Is(err, frame.ErrIncomplete):
		trace.RecordRX(buf[:16], "no frame")
		return frame.Frame{}, pn532.NewFrameCorruptedError("receiveFrame", t.portName)
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

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.conn = nil
	if err != nil {
		return fmt.Errorf("SPI close failed: %w", err)
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
	return pn532.TransportSPI
}

// String returns the port name.
func (t *Transport) String() string {
	return t.portName
}

var _ pn532.Transport = (*Transport)(nil)
