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
	"context"
	"errors"
	"time"

	"github.com/ZaparooProject/go-ultralight/internal/syncutil"
)

// Transport carries PN532 host commands over UART, I2C, SPI or a PC/SC
// escape.
//
// SendCommand returns the response without the TFI byte, so res[0] is the
// response code (cmd+1). An error frame is returned as {0x7F, code}.
type Transport interface {
	SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error)
	Close() error
	// SetTimeout bounds the wait for one response.
	SetTimeout(timeout time.Duration) error
	IsConnected() bool
	Type() TransportType
}

// TransportType names the bus a Transport runs on.
type TransportType string

const (
	TransportUART TransportType = "uart"
	TransportI2C  TransportType = "i2c"
	TransportSPI  TransportType = "spi"
	// TransportACR122 is a PN532 behind an ACR122U PC/SC reader.
	TransportACR122 TransportType = "acr122"
	TransportMock   TransportType = "mock"
)

// MockCall records one command seen by MockTransport.
type MockCall struct {
	Args []byte
	Cmd  byte
}

// mockScript is what MockTransport answers for one command code: queued
// one-shot responses first, then the fixed one. err wins over both.
type mockScript struct {
	err   error
	fixed []byte
	queue [][]byte
}

// MockTransport is a scripted Transport. Commands without a script answer
// {cmd+1, 0x00}.
type MockTransport struct {
	scripts   map[byte]*mockScript
	calls     []MockCall
	timeout   time.Duration
	delay     time.Duration
	mu        syncutil.RWMutex
	connected bool
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		scripts:   make(map[byte]*mockScript),
		timeout:   time.Second,
		connected: true,
	}
}

// script must be called with mu held.
func (m *MockTransport) script(cmd byte) *mockScript {
	sc, ok := m.scripts[cmd]
	if !ok {
		sc = &mockScript{}
		m.scripts[cmd] = sc
	}
	return sc
}

func (m *MockTransport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	connected, delay := m.connected, m.delay
	m.mu.RUnlock()
	if !connected {
		return nil, ErrTransportClosed
	}
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Cmd: cmd, Args: append([]byte(nil), args...)})

	sc, ok := m.scripts[cmd]
	switch {
	case !ok:
		return []byte{cmd + 1, 0x00}, nil
	case sc.err != nil:
		return nil, sc.err
	case len(sc.queue) > 0:
		res := sc.queue[0]
		sc.queue = sc.queue[1:]
		return append([]byte(nil), res...), nil
	case sc.fixed != nil:
		return append([]byte(nil), sc.fixed...), nil
	default:
		return []byte{cmd + 1, 0x00}, nil
	}
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	if timeout < 0 {
		return errors.New("negative timeout")
	}
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
	return nil
}

// Timeout returns the last value passed to SetTimeout.
func (m *MockTransport) Timeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timeout
}

func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (*MockTransport) Type() TransportType { return TransportMock }

// SetResponse sets the answer for cmd once its queue is drained.
func (m *MockTransport) SetResponse(cmd byte, response []byte) {
	m.mu.Lock()
	m.script(cmd).fixed = response
	m.mu.Unlock()
}

// QueueResponse adds a one-shot answer for cmd.
func (m *MockTransport) QueueResponse(cmd byte, response []byte) {
	m.mu.Lock()
	sc := m.script(cmd)
	sc.queue = append(sc.queue, response)
	m.mu.Unlock()
}

// SetError makes every cmd fail with err until ClearError.
func (m *MockTransport) SetError(cmd byte, err error) {
	m.mu.Lock()
	m.script(cmd).err = err
	m.mu.Unlock()
}

func (m *MockTransport) ClearError(cmd byte) {
	m.mu.Lock()
	m.script(cmd).err = nil
	m.mu.Unlock()
}

// SetDelay holds every command for delay, or until ctx is done.
func (m *MockTransport) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

func (m *MockTransport) Calls() []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockCall(nil), m.calls...)
}

// CallsFor returns the arguments of every cmd sent, in order.
func (m *MockTransport) CallsFor(cmd byte) [][]byte {
	var out [][]byte
	for _, c := range m.Calls() {
		if c.Cmd == cmd {
			out = append(out, c.Args)
		}
	}
	return out
}

func (m *MockTransport) GetCallCount(cmd byte) int {
	return len(m.CallsFor(cmd))
}

// Reset drops all scripts and history and reconnects.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.scripts = make(map[byte]*mockScript)
	m.calls = nil
	m.connected = true
	m.mu.Unlock()
}

var _ Transport = (*MockTransport)(nil)
