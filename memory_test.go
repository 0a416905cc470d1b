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
	"github.com/stretchr/testify/require"
)

func TestNewMemory_PageBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pages   int
		wantErr bool
	}{
		{name: "default", pages: DefaultPages},
		{name: "largest", pages: MaxPages},
		{name: "odd count", pages: 30},
		{name: "zero", pages: 0, wantErr: true},
		{name: "too many", pages: MaxPages + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := NewMemory(tt.pages)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrPageOutOfRange)
				require.ErrorIs(t, err, ErrMalformedInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.pages, m.Pages())
			assert.Len(t, m.Bytes(), tt.pages*PageSize)
		})
	}
}

func TestMemory_PageAccessIsGuarded(t *testing.T) {
	t.Parallel()

	m, err := NewMemory(DefaultPages)
	require.NoError(t, err)

	require.NoError(t, m.SetPage(DefaultPages-1, [4]byte{1, 2, 3, 4}))
	p, err := m.Page(DefaultPages - 1)
	require.NoError(t, err)
	assert.Equal(t, [4]byte{1, 2, 3, 4}, p)

	_, err = m.Page(DefaultPages)
	require.ErrorIs(t, err, ErrPageOutOfRange)
	require.ErrorIs(t, m.SetPage(-1, [4]byte{}), ErrPageOutOfRange)
}

func TestMemory_ResetZeroes(t *testing.T) {
	t.Parallel()

	m, err := NewMemory(DefaultPages)
	require.NoError(t, err)
	require.NoError(t, m.SetPage(5, [4]byte{0xFF, 0xFF, 0xFF, 0xFF}))

	require.NoError(t, m.Reset(MaxPages))
	assert.Equal(t, make([]byte, MaxPages*PageSize), m.Bytes())
}

func TestMemory_PartialLastBlock(t *testing.T) {
	t.Parallel()

	m, err := NewMemory(30)
	require.NoError(t, err)
	assert.Equal(t, 8, m.Blocks())

	var data [BlockSize]byte
	for i := range data {
		data[i] = byte(i + 1)
	}
	require.NoError(t, m.SetBlock(7, data))
	require.ErrorIs(t, m.SetBlock(8, data), ErrPageOutOfRange)

	block, err := m.Block(7)
	require.NoError(t, err)
	assert.Equal(t, data[:8], block[:8])
	assert.Equal(t, make([]byte, 8), block[8:])
	// Nothing past the last page was touched.
	assert.Equal(t, make([]byte, 8), m.buf[30*PageSize:32*PageSize])
}

func TestMemory_ApplySecretUL11(t *testing.T) {
	t.Parallel()

	m, err := NewMemory(EV1UL11.Pages())
	require.NoError(t, err)
	before := m.Bytes()

	secret := Secret{
		Type:     EV1UL11,
		Password: [4]byte{0xDE, 0xAD, 0xBE, 0xEF},
		PACK:     [2]byte{0x12, 0x34},
	}
	require.NoError(t, m.ApplySecret(secret))

	pwd, err := m.Page(0x12)
	require.NoError(t, err)
	assert.Equal(t, [4]byte{0xDE, 0xAD, 0xBE, 0xEF}, pwd)
	pack, err := m.Page(0x13)
	require.NoError(t, err)
	assert.Equal(t, [4]byte{0x12, 0x34, 0x00, 0x00}, pack)

	after := m.Bytes()
	for i := range after {
		page := i / PageSize
		if page == 0x12 || (page == 0x13 && i%PageSize < 2) {
			continue
		}
		assert.Equal(t, before[i], after[i], "byte %d changed", i)
	}
}

func TestMemory_ApplySecretUL21(t *testing.T) {
	t.Parallel()

	m, err := NewMemory(EV1UL21.Pages())
	require.NoError(t, err)

	require.NoError(t, m.ApplySecret(Secret{
		Type:     EV1UL21,
		Password: [4]byte{0x01, 0x02, 0x03, 0x04},
		PACK:     [2]byte{0xAA, 0xBB},
	}))

	block9, err := m.Block(9)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, block9[12:16])
	block10, err := m.Block(10)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, block10[0:2])
}

func TestMemory_ApplySecretNeedsRoom(t *testing.T) {
	t.Parallel()

	m, err := NewMemory(DefaultPages)
	require.NoError(t, err)

	err = m.ApplySecret(Secret{Type: EV1UL21})
	require.ErrorIs(t, err, ErrPageOutOfRange)
	require.NoError(t, m.ApplySecret(Secret{Type: EV1None}))
}

func TestSecretLayout(t *testing.T) {
	t.Parallel()

	pwd, pack, ok := SecretLayout(EV1UL11)
	require.True(t, ok)
	assert.Equal(t, Location{Page: 0x12, Len: 4}, pwd)
	assert.Equal(t, Location{Page: 0x13, Len: 2}, pack)

	pwd, pack, ok = SecretLayout(EV1UL21)
	require.True(t, ok)
	assert.Equal(t, Location{Page: 0x27, Len: 4}, pwd)
	assert.Equal(t, Location{Page: 0x28, Len: 2}, pack)

	_, _, ok = SecretLayout(EV1None)
	assert.False(t, ok)
}

func TestCheckSecretPages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ev1     EV1Type
		pages   int
		wantErr bool
	}{
		{name: "none ignores pages", ev1: EV1None, pages: 1},
		{name: "ul11 full", ev1: EV1UL11, pages: 0x14},
		{name: "ul11 default pages", ev1: EV1UL11, pages: DefaultPages},
		{name: "ul11 without PACK page", ev1: EV1UL11, pages: 0x13, wantErr: true},
		{name: "ul21 full", ev1: EV1UL21, pages: 0x29},
		{name: "ul21 default pages", ev1: EV1UL21, pages: DefaultPages, wantErr: true},
		{name: "ul21 without PACK page", ev1: EV1UL21, pages: 0x28, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := CheckSecretPages(tt.ev1, tt.pages)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrPageOutOfRange)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestParseEV1Type(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    EV1Type
		wantErr bool
	}{
		{in: "", want: EV1None},
		{in: "none", want: EV1None},
		{in: "UL11", want: EV1UL11},
		{in: " ul21 ", want: EV1UL21},
		{in: "ul41", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseEV1Type(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemory_LoadRejectsPartialPages(t *testing.T) {
	t.Parallel()

	m := &Memory{}
	require.ErrorIs(t, m.Load(make([]byte, 6)), ErrDumpSizeMismatch)
	require.ErrorIs(t, m.Load(nil), ErrDumpSizeMismatch)
	require.ErrorIs(t, m.Load(make([]byte, (MaxPages+1)*PageSize)), ErrPageOutOfRange)

	require.NoError(t, m.Load([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	assert.Equal(t, 2, m.Pages())
}
