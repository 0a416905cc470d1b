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

package pcsc

import (
	"context"
	"errors"
	"testing"

	"github.com/ebfe/scard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-ultralight"
	virt "github.com/ZaparooProject/go-ultralight/internal/testing"
	"github.com/ZaparooProject/go-ultralight/pn532"
)

var errReaderGone = errors.New("reader removed")

// mockCard answers escape commands from a simulated PN532 the way an
// ACR122U firmware does.
type mockCard struct {
	backend      *virt.SimulatorTransport
	apdus        [][]byte
	failNext     bool
	disconnected bool
}

func (c *mockCard) Control(ioctl uint32, in []byte) ([]byte, error) {
	if ioctl != escapeCode {
		return nil, errors.New("unexpected ioctl")
	}
	c.apdus = append(c.apdus, append([]byte(nil), in...))
	if c.failNext {
		c.failNext = false
		return nil, errReaderGone
	}
	if len(in) < 7 || in[0] != apduClass || int(in[4]) != len(in)-5 || in[5] != hostToPN532 {
		return []byte{0x6A, 0x81}, nil
	}
	res, err := c.backend.SendCommand(context.Background(), in[6], in[7:])
	if err != nil {
		return []byte{0x63, 0x00}, nil
	}
	out := append([]byte{pn532ToHost}, res...)
	return append(out, 0x90, 0x00), nil
}

func (c *mockCard) Disconnect(scard.Disposition) error {
	c.disconnected = true
	return nil
}

type mockContext struct{ released bool }

func (m *mockContext) Release() error {
	m.released = true
	return nil
}

func newSimTransport(tag *virt.VirtualUltralight) (*Transport, *mockCard, *mockContext) {
	c := &mockCard{backend: virt.NewSimulatorTransport(virt.NewVirtualPN532(tag))}
	sctx := &mockContext{}
	return newTransport(c, sctx, "ACS ACR122U PICC Interface 00 00"), c, sctx
}

func TestPCSC_GetFirmwareVersion(t *testing.T) {
	t.Parallel()

	tr, c, _ := newSimTransport(nil)

	res, err := tr.SendCommand(context.Background(), 0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x32, 0x01, 0x06, 0x07}, res)
	require.Len(t, c.apdus, 1)
	assert.Equal(t, []byte{0xFF, 0x00, 0x00, 0x00, 0x02, 0xD4, 0x02}, c.apdus[0])
}

func TestPCSC_EmptyFieldIsNoTarget(t *testing.T) {
	t.Parallel()

	tr, _, _ := newSimTransport(nil)

	res, err := tr.SendCommand(context.Background(), 0x4A, []byte{0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x4B, 0x00}, res)
}

func TestPCSC_SessionRoundTrip(t *testing.T) {
	t.Parallel()

	tag := virt.NewVirtualUltralight(nil)
	tr, _, _ := newSimTransport(tag)
	ctx := context.Background()

	dev, err := pn532.New(tr)
	require.NoError(t, err)
	require.NoError(t, dev.Init(ctx))

	session, err := ultralight.NewSession(dev)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	_, err = session.WriteGame(ctx, ultralight.GameRecord{Type: ultralight.GameNES, Filename: "mario"})
	require.NoError(t, err)

	rec, _, err := session.ReadGame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mario", rec.Filename)
	assert.Equal(t, ultralight.GameNES, rec.Type)
}

func TestPCSC_ControlFailureCarriesTrace(t *testing.T) {
	t.Parallel()

	tr, c, _ := newSimTransport(nil)
	c.failNext = true

	_, err := tr.SendCommand(context.Background(), 0x02, nil)
	require.ErrorIs(t, err, pn532.ErrCommunicationFailed)
	require.ErrorIs(t, err, errReaderGone)
	assert.True(t, pn532.IsRetryable(err))

	trace := pn532.GetTrace(err)
	require.NotNil(t, trace)
	assert.Equal(t, "PCSC", trace.Transport)
	require.Len(t, trace.Trace, 1)
	assert.Equal(t, pn532.TraceTX, trace.Trace[0].Direction)
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		name    string
		res     []byte
		want    []byte
		cmd     byte
	}{
		{name: "ok", cmd: 0x02, res: []byte{0xD5, 0x03, 0x32, 0x90, 0x00}, want: []byte{0x03, 0x32}},
		{name: "short", cmd: 0x02, res: []byte{0x90}, wantErr: pn532.ErrInvalidResponse},
		{name: "bad status", cmd: 0x02, res: []byte{0x6A, 0x81}, wantErr: pn532.ErrInvalidResponse},
		{name: "timeout", cmd: 0x40, res: []byte{0x63, 0x00}, wantErr: pn532.ErrTransportTimeout},
		{name: "silent list", cmd: 0x4A, res: []byte{0x63, 0x00}, want: []byte{0x4B, 0x00}},
		{name: "wrong direction", cmd: 0x02, res: []byte{0xD4, 0x03, 0x90, 0x00}, wantErr: pn532.ErrFrameCorrupted},
		{name: "wrong command", cmd: 0x02, res: []byte{0xD5, 0x41, 0x90, 0x00}, wantErr: pn532.ErrInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseResponse(tt.res, tt.cmd, "test")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildAPDU(t *testing.T) {
	t.Parallel()

	apdu, err := buildAPDU(0x40, []byte{0x01, 0x30, 0x04})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0x00, 0x00, 0x00, 0x05, 0xD4, 0x40, 0x01, 0x30, 0x04}, apdu)

	_, err = buildAPDU(0x42, make([]byte, 254))
	require.ErrorIs(t, err, pn532.ErrDataTooLarge)
}

func TestPickReader(t *testing.T) {
	t.Parallel()

	readers := []string{"Yubico YubiKey OTP+FIDO+CCID 00 00", "ACS ACR122U PICC Interface 01 00"}

	tests := []struct {
		wantErr error
		name    string
		query   string
		readers []string
		want    string
	}{
		{name: "default prefers acr122", readers: readers, want: readers[1]},
		{name: "substring", readers: readers, query: "yubikey", want: readers[0]},
		{name: "fallback to first", readers: readers[:1], want: readers[0]},
		{name: "no match", readers: readers, query: "omnikey", wantErr: ErrNoReader},
		{name: "none", wantErr: ErrNoReader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := pickReader(tt.readers, tt.query)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPCSC_Lifecycle(t *testing.T) {
	t.Parallel()

	tr, c, sctx := newSimTransport(nil)
	assert.True(t, tr.IsConnected())
	assert.Equal(t, pn532.TransportACR122, tr.Type())
	require.ErrorIs(t, tr.SetTimeout(0), pn532.ErrInvalidParameter)

	require.NoError(t, tr.Close())
	assert.True(t, c.disconnected)
	assert.True(t, sctx.released)
	assert.False(t, tr.IsConnected())
	require.NoError(t, tr.Close())

	_, err := tr.SendCommand(context.Background(), 0x02, nil)
	require.ErrorIs(t, err, pn532.ErrTransportClosed)
}
