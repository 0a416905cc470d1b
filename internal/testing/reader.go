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

	"github.com/ZaparooProject/go-ultralight"
)

// ErrNAK is returned by the virtual reader when the tag answers NAK.
var ErrNAK = errors.New("tag answered NAK")

// PropertyChange records one SetProperty call.
type PropertyChange struct {
	Property ultralight.Property
	Enable   bool
}

// VirtualReader implements ultralight.Device on top of a VirtualUltralight.
// Like a libnfc initiator it appends and checks CRC_A while HandleCRC is on
// and refuses bit frames unless both CRC handling and easy framing are off.
type VirtualReader struct {
	Tag *VirtualUltralight
	// PropertyHook, when set, can fail a SetProperty call.
	PropertyHook func(p ultralight.Property, enable bool) error
	// SelectHook, when set, can fail a SelectPassiveTarget call.
	SelectHook  func(n int) error
	Properties  []PropertyChange
	Frames      [][]byte
	Selections  int
	handleCRC   bool
	easyFraming bool
	closed      bool
}

// NewVirtualReader creates a reader with tag in its field (nil for empty).
func NewVirtualReader(tag *VirtualUltralight) *VirtualReader {
	return &VirtualReader{Tag: tag, handleCRC: true, easyFraming: true}
}

// RawMode reports whether both CRC handling and easy framing are off.
func (r *VirtualReader) RawMode() bool {
	return !r.handleCRC && !r.easyFraming
}

// Normal reports whether both properties are on.
func (r *VirtualReader) Normal() bool {
	return r.handleCRC && r.easyFraming
}

// Closed reports whether Close was called.
func (r *VirtualReader) Closed() bool {
	return r.closed
}

func (r *VirtualReader) check(ctx context.Context) error {
	if r.closed {
		return errors.New("reader closed")
	}
	return ctx.Err()
}

// SetProperty implements ultralight.Device.
func (r *VirtualReader) SetProperty(ctx context.Context, p ultralight.Property, enable bool) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	r.Properties = append(r.Properties, PropertyChange{Property: p, Enable: enable})
	if r.PropertyHook != nil {
		if err := r.PropertyHook(p, enable); err != nil {
			return err
		}
	}
	switch p {
	case ultralight.PropertyHandleCRC:
		r.handleCRC = enable
	case ultralight.PropertyEasyFraming:
		r.easyFraming = enable
	default:
		return fmt.Errorf("unsupported property %s", p)
	}
	return nil
}

// TransceiveBytes implements ultralight.Device.
func (r *VirtualReader) TransceiveBytes(ctx context.Context, tx, rx []byte) (int, error) {
	if err := r.check(ctx); err != nil {
		return 0, err
	}
	if r.Tag == nil {
		return 0, ErrNoResponse
	}
	frame := append([]byte(nil), tx...)
	if r.handleCRC {
		frame = ultralight.AppendCRCA(frame)
	}
	r.Frames = append(r.Frames, frame)

	reply, err := r.Tag.Exchange(frame, len(frame)*8)
	if err != nil {
		return 0, err
	}
	if reply.Bits%8 != 0 {
		if reply.Data[0]&0x0F != tagACK {
			return 0, fmt.Errorf("%w 0x%X", ErrNAK, reply.Data[0]&0x0F)
		}
		rx[0] = tagACK
		return 1, nil
	}
	data := reply.Data
	if r.handleCRC && len(data) > 0 {
		if !ultralight.CheckCRCA(data) {
			return 0, errors.New("CRC error in reply")
		}
		data = data[:len(data)-2]
	}
	return copy(rx, data), nil
}

// TransceiveBits implements ultralight.Device.
func (r *VirtualReader) TransceiveBits(ctx context.Context, tx []byte, txBits int, rx []byte) (int, error) {
	if err := r.check(ctx); err != nil {
		return 0, err
	}
	if r.handleCRC || r.easyFraming {
		return 0, errors.New("bit frames need CRC handling and easy framing off")
	}
	if r.Tag == nil {
		return 0, ErrNoResponse
	}
	frame := append([]byte(nil), tx[:(txBits+7)/8]...)
	r.Frames = append(r.Frames, frame)
	reply, err := r.Tag.Exchange(frame, txBits)
	if err != nil {
		return 0, err
	}
	copy(rx, reply.Data)
	return reply.Bits, nil
}

// SelectPassiveTarget implements ultralight.Device.
func (r *VirtualReader) SelectPassiveTarget(ctx context.Context) (*ultralight.Target, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	r.Selections++
	if r.SelectHook != nil {
		if err := r.SelectHook(r.Selections); err != nil {
			return nil, err
		}
	}
	if r.Tag == nil || r.Tag.Select() != nil {
		return nil, ultralight.ErrNoTarget
	}
	return &ultralight.Target{
		UID:  append([]byte(nil), r.Tag.UID...),
		ATQA: r.Tag.ATQA,
		SAK:  r.Tag.SAK,
	}, nil
}

// Close implements ultralight.Device.
func (r *VirtualReader) Close() error {
	r.closed = true
	return nil
}

func (*VirtualReader) String() string {
	return "virtual reader"
}
