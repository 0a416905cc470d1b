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

package ultralight

import (
	"context"
	"fmt"
)

// transceiver sends frames to the selected tag exactly as given. It adds
// no CRC or parity and never retries.
type transceiver struct {
	dev Device
}

// sendBits transmits the first bitCount bits of frame.
func (t *transceiver) sendBits(ctx context.Context, op string, frame []byte, bitCount int) ([]byte, error) {
	if bitCount <= 0 || bitCount > len(frame)*8 {
		return nil, fmt.Errorf("%w: %d bits from a %d byte frame", ErrMalformedInput, bitCount, len(frame))
	}
	var rx [MaxFrameLen]byte
	n, err := t.dev.TransceiveBits(ctx, frame, bitCount, rx[:])
	if err != nil {
		Debugf("%s: TX %d bits % X failed: %v", op, bitCount, frame, err)
		return nil, NewTransportError(op, NoPage, err)
	}
	nBytes := max(0, min((n+7)/8, len(rx)))
	Debugf("%s: TX %d bits % X RX %d bits", op, bitCount, frame, n)
	return append([]byte(nil), rx[:nBytes]...), nil
}

// sendBytes transmits frame. A zero length reply is a success.
func (t *transceiver) sendBytes(ctx context.Context, op string, page int, frame []byte) ([]byte, error) {
	var rx [MaxFrameLen]byte
	n, err := t.dev.TransceiveBytes(ctx, frame, rx[:])
	if err != nil {
		return nil, NewTransportError(op, page, err)
	}
	n = max(0, min(n, len(rx)))
	return append([]byte(nil), rx[:n]...), nil
}
