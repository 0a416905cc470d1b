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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRCA_KnownFrames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame []byte
		want  [2]byte
	}{
		{name: "READ page 0", frame: []byte{0x30, 0x00}, want: [2]byte{0x02, 0xA8}},
		{name: "HALT", frame: []byte{0x50, 0x00}, want: [2]byte{0x57, 0xCD}},
		{name: "GET_VERSION", frame: []byte{0x60}, want: [2]byte{0xF8, 0x32}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CRCA(tt.frame))
		})
	}
}

func TestAppendCRCA_DoesNotAliasInput(t *testing.T) {
	t.Parallel()

	in := make([]byte, 1, 8)
	in[0] = 0x60
	out := AppendCRCA(in)

	assert.Equal(t, []byte{0x60, 0xF8, 0x32}, out)
	assert.Equal(t, []byte{0x60}, in)
	out[0] = 0xFF
	assert.Equal(t, byte(0x60), in[0])
}

func TestCheckCRCA(t *testing.T) {
	t.Parallel()

	assert.True(t, CheckCRCA([]byte{0x30, 0x00, 0x02, 0xA8}))
	assert.False(t, CheckCRCA([]byte{0x30, 0x00, 0x02, 0xA9}))
	assert.False(t, CheckCRCA([]byte{0x02, 0xA8}), "CRC alone is not a frame")

	frame := AppendCRCA([]byte{0x1B, 0xDE, 0xAD, 0xBE, 0xEF})
	assert.Len(t, frame, 7)
	assert.True(t, CheckCRCA(frame))
}
