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

//go:build libnfc

package libnfc

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-ultralight"
	"github.com/ZaparooProject/go-ultralight/internal/syncutil"
	"github.com/clausecker/nfc/v2"
)

var mod14443a = nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}

// Device drives a reader through libnfc.
type Device struct {
	dev  nfc.Device
	conn string
	mu   syncutil.Mutex
}

// Open opens the libnfc device named by conn ("" picks the first one) and
// puts it in initiator mode without infinite select.
func Open(conn string) (*Device, error) {
	dev, err := nfc.Open(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: libnfc %q: %w", ErrOpen, conn, err)
	}
	if err := dev.InitiatorInit(); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("libnfc initiator init: %w", err)
	}
	if err := dev.SetPropertyBool(nfc.InfiniteSelect, false); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("libnfc disable infinite select: %w", err)
	}
	ultralight.Debugf("libnfc: opened %s", dev)
	return &Device{dev: dev, conn: conn}, nil
}

// SetProperty implements ultralight.Device.
func (d *Device) SetProperty(ctx context.Context, p ultralight.Property, enable bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var prop int
	switch p {
	case ultralight.PropertyHandleCRC:
		prop = nfc.HandleCRC
	case ultralight.PropertyEasyFraming:
		prop = nfc.EasyFraming
	default:
		return fmt.Errorf("libnfc: unsupported property %s", p)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.dev.SetPropertyBool(prop, enable); err != nil {
		return fmt.Errorf("libnfc set %s=%t: %w", p, enable, err)
	}
	return nil
}

// TransceiveBytes implements ultralight.Device. The context deadline, if
// any, becomes the libnfc timeout.
func (d *Device) TransceiveBytes(ctx context.Context, tx, rx []byte) (int, error) {
	if len(tx) == 0 || len(rx) == 0 {
		return 0, errors.New("libnfc: empty buffer")
	}
	timeout, err := timeoutFor(ctx)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.dev.InitiatorTransceiveBytes(tx, rx, timeout)
	if err != nil {
		return 0, fmt.Errorf("libnfc transceive bytes: %w", err)
	}
	return n, nil
}

// TransceiveBits implements ultralight.Device. Parity stays with the
// reader so the parity buffers are scratch space only.
func (d *Device) TransceiveBits(ctx context.Context, tx []byte, txBits int, rx []byte) (int, error) {
	nBytes := (txBits + 7) / 8
	if txBits <= 0 || nBytes > len(tx) || len(rx) == 0 {
		return 0, fmt.Errorf("libnfc: %d bits from %d bytes", txBits, len(tx))
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	frame := tx[:nBytes]
	txPar := make([]byte, len(frame))
	rxPar := make([]byte, len(rx))

	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.dev.InitiatorTransceiveBits(frame, txPar, uint(txBits), rx, rxPar)
	if err != nil {
		return 0, fmt.Errorf("libnfc transceive bits: %w", err)
	}
	return n, nil
}

// SelectPassiveTarget implements ultralight.Device.
func (d *Device) SelectPassiveTarget(ctx context.Context) (*ultralight.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	target, err := d.dev.InitiatorSelectPassiveTarget(mod14443a, nil)
	if err != nil {
		return nil, fmt.Errorf("libnfc select: %w", err)
	}
	iso, ok := target.(*nfc.ISO14443aTarget)
	if !ok || iso.UIDLen == 0 {
		return nil, ultralight.ErrNoTarget
	}
	t := convertTarget(iso.Atqa, iso.Sak, iso.UID[:], iso.UIDLen)
	ultralight.Debugf("libnfc: selected %s SAK %02X", t.UIDString(), t.SAK)
	return t, nil
}

// Close implements ultralight.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dev.Close()
}

func (d *Device) String() string {
	if d.conn == "" {
		return "libnfc"
	}
	return "libnfc:" + d.conn
}
