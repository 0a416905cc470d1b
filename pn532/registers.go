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
	"fmt"
)

// RegisterWrite is one address/value pair for WriteRegisters.
type RegisterWrite struct {
	Addr  uint16
	Value byte
}

// ReadRegisters reads CIU or SFR registers in one ReadRegister command.
func (d *Device) ReadRegisters(ctx context.Context, addrs ...uint16) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readRegisters(ctx, addrs...)
}

// WriteRegisters writes registers in one WriteRegister command.
func (d *Device) WriteRegisters(ctx context.Context, writes ...RegisterWrite) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeRegisters(ctx, writes...)
}

func (d *Device) readRegisters(ctx context.Context, addrs ...uint16) ([]byte, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	args := make([]byte, 0, len(addrs)*2)
	for _, a := range addrs {
		args = append(args, byte(a>>8), byte(a))
	}
	res, err := d.transport.SendCommand(ctx, cmdReadRegister, args)
	if err != nil {
		return nil, fmt.Errorf("ReadRegister failed: %w", err)
	}
	if err := checkErrorFrame(res, "ReadRegister"); err != nil {
		return nil, err
	}
	if len(res) != len(addrs)+1 || res[0] != cmdReadRegister+1 {
		return nil, fmt.Errorf("%w: ReadRegister response % X for %d registers",
			ErrInvalidResponse, res, len(addrs))
	}
	return res[1:], nil
}

func (d *Device) writeRegisters(ctx context.Context, writes ...RegisterWrite) error {
	if len(writes) == 0 {
		return nil
	}
	args := make([]byte, 0, len(writes)*3)
	for _, w := range writes {
		args = append(args, byte(w.Addr>>8), byte(w.Addr), w.Value)
	}
	res, err := d.transport.SendCommand(ctx, cmdWriteRegister, args)
	if err != nil {
		return fmt.Errorf("WriteRegister failed: %w", err)
	}
	if err := checkErrorFrame(res, "WriteRegister"); err != nil {
		return err
	}
	if len(res) == 0 || res[0] != cmdWriteRegister+1 {
		return fmt.Errorf("%w: WriteRegister response % X", ErrInvalidResponse, res)
	}
	return nil
}

// setCRC toggles CRC generation on TX and checking on RX.
func (d *Device) setCRC(ctx context.Context, enable bool) error {
	vals, err := d.readRegisters(ctx, RegCIUTxMode, RegCIURxMode)
	if err != nil {
		return fmt.Errorf("read CRC mode: %w", err)
	}
	txMode, rxMode := vals[0]&^crcEnableBit, vals[1]&^crcEnableBit
	if enable {
		txMode |= crcEnableBit
		rxMode |= crcEnableBit
	}
	if err := d.writeRegisters(ctx,
		RegisterWrite{Addr: RegCIUTxMode, Value: txMode},
		RegisterWrite{Addr: RegCIURxMode, Value: rxMode},
	); err != nil {
		return fmt.Errorf("write CRC mode: %w", err)
	}
	return nil
}
