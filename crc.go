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

const crcAInit uint16 = 0x6363

// CRCA computes the ISO14443-3 type A CRC over data.
// The result is in transmission order: low byte first.
func CRCA(data []byte) [2]byte {
	crc := crcAInit
	for _, b := range data {
		bt := b ^ byte(crc)
		bt ^= bt << 4
		crc = (crc >> 8) ^ uint16(bt)<<8 ^ uint16(bt)<<3 ^ uint16(bt)>>4
	}
	return [2]byte{byte(crc), byte(crc >> 8)}
}

// AppendCRCA returns frame followed by its CRC_A.
func AppendCRCA(frame []byte) []byte {
	crc := CRCA(frame)
	out := make([]byte, 0, len(frame)+2)
	out = append(out, frame...)
	return append(out, crc[0], crc[1])
}

// CheckCRCA reports whether the last two bytes of frame are a valid CRC_A
// over the preceding bytes.
func CheckCRCA(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	crc := CRCA(frame[:len(frame)-2])
	return crc[0] == frame[len(frame)-2] && crc[1] == frame[len(frame)-1]
}
