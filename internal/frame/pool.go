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

package frame

import "sync"

// ReadBufferSize fits a complete normal frame plus a leading ACK.
const ReadBufferSize = MaxFrameLength + len("\x00\x00\xff\x00\xff\x00")

var readPool = sync.Pool{
	New: func() any {
		buf := make([]byte, ReadBufferSize)
		return &buf
	},
}

// GetBuffer returns a zeroed buffer of length size. Buffers up to
// ReadBufferSize come from a pool; larger ones are allocated.
func GetBuffer(size int) []byte {
	if size < 0 {
		size = 0
	}
	if size > ReadBufferSize {
		return make([]byte, size)
	}
	bufPtr, ok := readPool.Get().(*[]byte)
	if !ok {
		return make([]byte, size)
	}
	return (*bufPtr)[:size]
}

// PutBuffer clears buf and returns it to the pool.
func PutBuffer(buf []byte) {
	if cap(buf) != ReadBufferSize {
		return
	}
	full := buf[:ReadBufferSize]
	clear(full)
	readPool.Put(&full)
}
