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
	"fmt"

	"github.com/ZaparooProject/go-ultralight"
)

// maxDataLen is the largest InCommunicateThru payload: the 255 byte frame
// LEN minus TFI and command code.
const maxDataLen = 253

// SetProperty implements ultralight.Device. HandleCRC is applied to the CIU
// TxMode and RxMode registers. EasyFraming selects InDataExchange (on) or
// InCommunicateThru (off) for the next exchanges.
func (d *Device) SetProperty(ctx context.Context, p ultralight.Property, enable bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch p {
	case ultralight.PropertyHandleCRC:
		if err := d.setCRC(ctx, enable); err != nil {
			return err
		}
		d.handleCRC = enable
	case ultralight.PropertyEasyFraming:
		d.easyFraming = enable
	default:
		return fmt.Errorf("%w: property %s", ErrCommandNotSupported, p)
	}
	return nil
}

// TransceiveBytes implements ultralight.Device.
func (d *Device) TransceiveBytes(ctx context.Context, tx, rx []byte) (int, error) {
	if len(tx) == 0 {
		return 0, fmt.Errorf("%w: empty frame", ErrInvalidParameter)
	}
	if len(tx) > maxDataLen {
		return 0, fmt.Errorf("%w: %d byte frame, at most %d", ErrDataTooLarge, len(tx), maxDataLen)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var data []byte
	var err error
	if d.easyFraming {
		if d.target == nil {
			return 0, errNotInitialized
		}
		data, err = d.exchange(ctx, cmdInDataExchange, "InDataExchange", append([]byte{0x01}, tx...))
	} else {
		data, err = d.exchange(ctx, cmdInCommunicateThru, "InCommunicateThru", tx)
	}
	if err != nil {
		return 0, err
	}
	return copy(rx, data), nil
}

// TransceiveBits implements ultralight.Device. Both CRC handling and easy
// framing must be off. The returned count is the number of received bits
// as reported by the CIU RxLastBits field.
func (d *Device) TransceiveBits(ctx context.Context, tx []byte, txBits int, rx []byte) (int, error) {
	nBytes := (txBits + 7) / 8
	if txBits <= 0 || nBytes > len(tx) || nBytes > maxDataLen {
		return 0, fmt.Errorf("%w: %d bits from %d bytes", ErrInvalidParameter, txBits, len(tx))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handleCRC || d.easyFraming {
		return 0, fmt.Errorf("%w: bit frames need CRC handling and easy framing off", ErrInvalidParameter)
	}

	lastBits := byte(txBits % 8)
	if err := d.writeRegisters(ctx, RegisterWrite{Addr: RegCIUBitFraming, Value: lastBits}); err != nil {
		return 0, err
	}
	defer func() {
		if lastBits == 0 {
			return
		}
		if err := d.writeRegisters(context.WithoutCancel(ctx),
			RegisterWrite{Addr: RegCIUBitFraming, Value: 0x00}); err != nil {
			ultralight.Debugf("pn532: bit framing reset: %v", err)
		}
	}()

	data, err := d.exchange(ctx, cmdInCommunicateThru, "InCommunicateThru", tx[:nBytes])
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}

	vals, err := d.readRegisters(ctx, RegCIUControl)
	if err != nil {
		return 0, err
	}
	n := copy(rx, data)
	rxLast := int(vals[0] & lastBitsMask)
	if rxLast == 0 {
		return n * 8, nil
	}
	return (n-1)*8 + rxLast, nil
}

// exchange sends an initiator command and returns the payload after the
// status byte.
func (d *Device) exchange(ctx context.Context, cmd byte, name string, args []byte) ([]byte, error) {
	res, err := d.transport.SendCommand(ctx, cmd, args)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	return checkStatus(res, cmd, name)
}

// SelectPassiveTarget implements ultralight.Device with a 106 kbps type A
// InListPassiveTarget.
func (d *Device) SelectPassiveTarget(ctx context.Context) (*ultralight.Target, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.transport.SendCommand(ctx, cmdInListPassiveTarget, []byte{maxListTargets, brTy106kbpsA})
	if err != nil {
		return nil, fmt.Errorf("InListPassiveTarget failed: %w", err)
	}
	if err := checkErrorFrame(res, "InListPassiveTarget"); err != nil {
		return nil, err
	}
	target, err := parseTarget(res)
	if err != nil {
		return nil, err
	}
	d.target = target
	ultralight.Debugf("pn532: selected %s ATQA %02X%02X SAK %02X",
		target.UIDString(), target.ATQA[0], target.ATQA[1], target.SAK)
	return target, nil
}

// parseTarget decodes an InListPassiveTarget response for one type A target:
// 4B NbTg Tg SENS_RES(2) SEL_RES NFCIDLength NFCID [ATS].
func parseTarget(res []byte) (*ultralight.Target, error) {
	if len(res) < 2 || res[0] != cmdInListPassiveTarget+1 {
		return nil, fmt.Errorf("%w: InListPassiveTarget response % X", ErrInvalidResponse, res)
	}
	if res[1] == 0 {
		return nil, ultralight.ErrNoTarget
	}
	if len(res) < 7 {
		return nil, fmt.Errorf("%w: short target data % X", ErrInvalidResponse, res)
	}
	uidLen := int(res[6])
	if uidLen == 0 || len(res) < 7+uidLen {
		return nil, fmt.Errorf("%w: UID length %d in % X", ErrInvalidResponse, uidLen, res)
	}
	return &ultralight.Target{
		ATQA: [2]byte{res[3], res[4]},
		SAK:  res[5],
		UID:  append([]byte(nil), res[7:7+uidLen]...),
	}, nil
}

// InRelease releases the selected target. Releasing with no target is not
// an error.
func (d *Device) InRelease(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.target == nil {
		return nil
	}
	d.target = nil
	res, err := d.transport.SendCommand(ctx, cmdInRelease, []byte{0x00})
	if err != nil {
		return fmt.Errorf("InRelease failed: %w", err)
	}
	if _, err := checkStatus(res, cmdInRelease, "InRelease"); err != nil {
		var pe *PN532Error
		if errors.As(err, &pe) && pe.ErrorCode == StatusWrongState {
			return nil
		}
		return err
	}
	return nil
}
