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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeGame_Layout(t *testing.T) {
	t.Parallel()

	m, err := NewMemory(DefaultPages)
	require.NoError(t, err)

	require.NoError(t, EncodeGame(m, EV1None, GameRecord{Type: GameNES, Filename: "mario"}))

	block1, err := m.Block(1)
	require.NoError(t, err)
	block2, err := m.Block(2)
	require.NoError(t, err)
	block3, err := m.Block(3)
	require.NoError(t, err)

	assert.Equal(t, byte(GameNES), block1[0])
	assert.Equal(t, make([]byte, 15), block1[1:])
	assert.Equal(t, byte(5), block2[0])
	assert.Equal(t, make([]byte, 15), block2[1:])
	assert.Equal(t, []byte("mario"), block3[:5])
	assert.Equal(t, make([]byte, 11), block3[5:])
	for b := 4; b < m.Blocks(); b++ {
		block, err := m.Block(b)
		require.NoError(t, err)
		assert.Equal(t, [BlockSize]byte{}, block, "block %d", b)
	}
}

func TestEncodeGame_ClearsOldRecordKeepsHeader(t *testing.T) {
	t.Parallel()

	m, err := NewMemory(DefaultPages)
	require.NoError(t, err)
	for p := range DefaultPages {
		require.NoError(t, m.SetPage(p, [4]byte{0xEE, 0xEE, 0xEE, 0xEE}))
	}

	require.NoError(t, EncodeGame(m, EV1None, GameRecord{Type: GameSNES, Filename: "zelda.sfc"}))

	for p := range PageUserData {
		page, err := m.Page(p)
		require.NoError(t, err)
		assert.Equal(t, [4]byte{0xEE, 0xEE, 0xEE, 0xEE}, page, "page %d", p)
	}
	last, err := m.Page(DefaultPages - 1)
	require.NoError(t, err)
	assert.Equal(t, [4]byte{}, last)
}

func TestEncodeGame_EV1KeepsConfigPages(t *testing.T) {
	t.Parallel()

	m, err := NewMemory(EV1UL11.Pages())
	require.NoError(t, err)
	cfg := [4]byte{0x04, 0x00, 0x00, 0xFF}
	require.NoError(t, m.SetPage(0x10, cfg))

	require.NoError(t, EncodeGame(m, EV1UL11, GameRecord{Type: GameGB, Filename: "tetris.gb"}))

	page, err := m.Page(0x10)
	require.NoError(t, err)
	assert.Equal(t, cfg, page)
	assert.Equal(t, 16, RecordCapacity(EV1UL11, m.Pages()))
}

func TestEncodeGame_Errors(t *testing.T) {
	t.Parallel()

	m, err := NewMemory(DefaultPages)
	require.NoError(t, err)

	tests := []struct {
		wantErr error
		name    string
		rec     GameRecord
	}{
		{
			name:    "unknown type",
			rec:     GameRecord{Type: GameUnknown, Filename: "x"},
			wantErr: ErrUnknownGameType,
		},
		{
			name:    "filename too long",
			rec:     GameRecord{Type: GameGBA, Filename: strings.Repeat("a", 81)},
			wantErr: ErrFilenameTooLong,
		},
		{
			name:    "embedded NUL",
			rec:     GameRecord{Type: GameGBA, Filename: "a\x00b"},
			wantErr: ErrMalformedInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.ErrorIs(t, EncodeGame(m, EV1None, tt.rec), tt.wantErr)
		})
	}
}

func TestDecodeGame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rec  GameRecord
		ev1  EV1Type
	}{
		{name: "nes", rec: GameRecord{Type: GameNES, Filename: "mario"}},
		{name: "exact block", rec: GameRecord{Type: GameGBC, Filename: "0123456789abcdef"}},
		{name: "longest", rec: GameRecord{Type: GameGenesis, Filename: strings.Repeat("s", 80)}},
		{name: "empty name", rec: GameRecord{Type: GameSNES}},
		{name: "ul21", rec: GameRecord{Type: GameGBA, Filename: "pokemon.gba"}, ev1: EV1UL21},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := NewMemory(tt.ev1.Pages())
			require.NoError(t, err)
			require.NoError(t, EncodeGame(m, tt.ev1, tt.rec))
			assert.Equal(t, &tt.rec, DecodeGame(m, tt.ev1))
		})
	}
}

func TestDecodeGame_UnknownCodeAndBadLength(t *testing.T) {
	t.Parallel()

	m, err := NewMemory(DefaultPages)
	require.NoError(t, err)
	m.buf[recordTypeBlock*BlockSize] = 0x42
	m.buf[recordLengthBlock*BlockSize] = 0xFF
	copy(m.buf[recordNameBlock*BlockSize:], "abc")

	rec := DecodeGame(m, EV1None)
	assert.Equal(t, GameUnknown, rec.Type)
	assert.Equal(t, "abc", rec.Filename, "stops at the first NUL")
}

func TestParseGameType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    GameType
		wantErr bool
	}{
		{in: "nes", want: GameNES},
		{in: "SNES", want: GameSNES},
		{in: "gb", want: GameGB},
		{in: "GBC", want: GameGBC},
		{in: "gba", want: GameGBA},
		{in: "genesis", want: GameGenesis},
		{in: "megadrive", want: GameGenesis},
		{in: "n64", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseGameType(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownGameType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) GameType {
	t.Helper()
	g, err := ParseGameType(s)
	require.NoError(t, err)
	return g
}
