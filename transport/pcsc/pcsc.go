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

// Package pcsc implements the PN532 transport for ACR122U readers, which
// expose their PN532 through the PC/SC escape channel. On pcsc-lite the
// CCID driver needs escape commands enabled (ifdDriverOptions 0x0001).
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ebfe/scard"

	"github.com/ZaparooProject/go-ultralight"
	"github.com/ZaparooProject/go-ultralight/internal/syncutil"
	"github.com/ZaparooProject/go-ultralight/pn532"
)

const (
	hostToPN532 = 0xD4
	pn532ToHost = 0xD5

	// Direct transmit pseudo-APDU: FF 00 00 00 Lc <PN532 frame>.
	apduClass = 0xFF
	maxLc     = 0xFF

	defaultTimeout = time.Second
	traceSize      = 8

	cmdInListPassiveTarget = 0x4A
)

// escapeCode is IOCTL_CCID_ESCAPE.
var escapeCode = scard.CtlCode(3500)

// ErrNoReader is returned when PC/SC lists no matching reader.
var ErrNoReader = errors.New("no PC/SC reader found")

type card interface {
	Control(ioctl uint32, in []byte) ([]byte, error)
	Disconnect(d scard.Disposition) error
}

type pcscContext interface {
	Release() error
}

// Transport implements pn532.Transport over a PC/SC escape channel.
type Transport struct {
	card    card
	ctx     pcscContext
	reader  string
	timeout time.Duration
	mu      syncutil.Mutex
}

// New connects to the PC/SC reader whose name contains name, or to the
// first ACR122 reader when name is empty. The reader is opened in direct
// mode so commands work with no tag present.
func New(name string) (*Transport, error) {
	sctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish PC/SC context: %w", err)
	}
	readers, err := sctx.ListReaders()
	if err != nil {
		_ = sctx.Release()
		return nil, fmt.Errorf("failed to list PC/SC readers: %w", err)
	}
	reader, err := pickReader(readers, name)
	if err != nil {
		_ = sctx.Release()
		return nil, err
	}
	c, err := sctx.Connect(reader, scard.ShareDirect, scard.ProtocolUndefined)
	if err != nil {
		_ = sctx.Release()
		return nil, fmt.Errorf("failed to connect to %s: %w", reader, err)
	}
	ultralight.Debugf("pcsc: connected to %s", reader)
	return newTransport(c, sctx, reader), nil
}

func newTransport(c card, sctx pcscContext, reader string) *Transport {
	return &Transport{card: c, ctx: sctx, reader: reader, timeout: defaultTimeout}
}

// pickReader selects a reader by case-insensitive substring. An empty
// name prefers readers that look like an ACR122.
func pickReader(readers []string, name string) (string, error) {
	want := strings.ToLower(name)
	if want == "" {
		want = "acr122"
	}
	for _, r := range readers {
		if strings.Contains(strings.ToLower(r), want) {
			return r, nil
		}
	}
	if name == "" && len(readers) > 0 {
		return readers[0], nil
	}
	return "", fmt.Errorf("%w: %q among %q", ErrNoReader, name, readers)
}

// buildAPDU wraps a PN532 command in the direct transmit pseudo-APDU.
func buildAPDU(cmd byte, args []byte) ([]byte, error) {
	lc := 2 + len(args)
	if lc > maxLc {
		return nil, fmt.Errorf("%w: %d byte command", pn532.ErrDataTooLarge, lc)
	}
	apdu := make([]byte, 0, 5+lc)
	apdu = append(apdu, apduClass, 0x00, 0x00, 0x00, byte(lc), hostToPN532, cmd)
	return append(apdu, args...), nil
}

// parseResponse strips the status word and the D5 direction byte. The
// result starts with cmd+1 like every other transport.
func parseResponse(res []byte, cmd byte, port string) ([]byte, error) {
	if len(res) < 2 {
		return nil, pn532.NewInvalidResponseError("escape", port)
	}
	sw1, sw2 := res[len(res)-2], res[len(res)-1]
	body := res[:len(res)-2]
	if sw1 != 0x90 || sw2 != 0x00 {
		// 63 00: the PN532 did not answer in time. A silent
		// InListPassiveTarget means the field is empty.
		if sw1 == 0x63 {
			if cmd == cmdInListPassiveTarget {
				return []byte{cmdInListPassiveTarget + 1, 0x00}, nil
			}
			return nil, pn532.NewTimeoutError("escape", port)
		}
		return nil, fmt.Errorf("%w: status word %02X%02X",
			pn532.NewInvalidResponseError("escape", port), sw1, sw2)
	}
	if len(body) < 2 || body[0] != pn532ToHost {
		return nil, pn532.NewFrameCorruptedError("escape", port)
	}
	if body[1] != cmd+1 {
		return nil, fmt.Errorf("%w: response % X to command %02X",
			pn532.ErrInvalidResponse, body, cmd)
	}
	return append([]byte(nil), body[1:]...), nil
}

// SendCommand implements pn532.Transport.
func (t *Transport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.card == nil {
		return nil, pn532.ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trace := pn532.NewTraceBuffer("PCSC", t.reader, traceSize)
	apdu, err := buildAPDU(cmd, args)
	if err != nil {
		return nil, err
	}
	trace.RecordTX(apdu, "escape")
	res, err := t.card.Control(escapeCode, apdu)
	if err != nil {
		return nil, trace.WrapError(pn532.NewTransportError("escape", t.reader,
			fmt.Errorf("%w: %w", pn532.ErrCommunicationFailed, err), pn532.ErrorTypeTransient))
	}
	trace.RecordRX(res, "response")
	data, err := parseResponse(res, cmd, t.reader)
	if err != nil {
		return nil, trace.WrapError(err)
	}
	return data, nil
}

// SetTimeout implements pn532.Transport. The escape call itself blocks
// for as long as the CCID driver allows; the value is kept for callers.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout %v", pn532.ErrInvalidParameter, timeout)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close implements pn532.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.card == nil {
		return nil
	}
	err := t.card.Disconnect(scard.LeaveCard)
	t.card = nil
	if t.ctx != nil {
		err = errors.Join(err, t.ctx.Release())
		t.ctx = nil
	}
	return err
}

// IsConnected implements pn532.Transport.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.card != nil
}

// Type implements pn532.Transport.
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportACR122
}

func (t *Transport) String() string {
	return t.reader
}
