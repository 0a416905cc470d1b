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
	"bytes"
	"fmt"
	"strings"
)

// GameType is the console a cartridge tag belongs to.
type GameType byte

const (
	GameUnknown GameType = iota
	GameNES
	GameSNES
	GameGB
	GameGBC
	GameGBA
	GameGenesis
)

var gameTypeNames = map[GameType]string{
	GameNES:     "nes",
	GameSNES:    "snes",
	GameGB:      "gb",
	GameGBC:     "gbc",
	GameGBA:     "gba",
	GameGenesis: "genesis",
}

func (g GameType) String() string {
	if name, ok := gameTypeNames[g]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02X)", byte(g))
}

// ParseGameType accepts the names returned by GameType.String, in any case,
// and "megadrive" for GameGenesis.
func ParseGameType(s string) (GameType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "megadrive" {
		return GameGenesis, nil
	}
	for g, n := range gameTypeNames {
		if n == name {
			return g, nil
		}
	}
	return GameUnknown, fmt.Errorf("%w: %q", ErrUnknownGameType, s)
}

// Record layout, in 16-byte blocks counted from page 0
const (
	recordTypeBlock   = 1
	recordLengthBlock = 2
	recordNameBlock   = 3
	recordNamePage    = recordNameBlock * PagesInBlock
)

// GameRecord is the cartridge metadata stored in the user pages.
type GameRecord struct {
	Filename string
	Type     GameType
}

// RecordCapacity returns the longest filename that fits on a tag of the
// given layout and page count.
func RecordCapacity(t EV1Type, pages int) int {
	end := recordEnd(t, pages)
	if end <= recordNamePage {
		return 0
	}
	return min(0xFF, (end-recordNamePage)*PageSize)
}

// recordEnd is the first page past the record area. EV1 configuration
// pages are never part of it.
func recordEnd(t EV1Type, pages int) int {
	if t == EV1None {
		return pages
	}
	return min(t.UserEnd(), pages)
}

// EncodeGame clears the record area of m and stores rec in it. Pages below
// 4 and past the record area are preserved.
func EncodeGame(m *Memory, t EV1Type, rec GameRecord) error {
	if _, ok := gameTypeNames[rec.Type]; !ok {
		return fmt.Errorf("%w: code 0x%02X", ErrUnknownGameType, byte(rec.Type))
	}
	end := recordEnd(t, m.Pages())
	if end <= recordNamePage {
		return fmt.Errorf("%w: %d pages cannot hold a game record", ErrPageOutOfRange, m.Pages())
	}
	capacity := RecordCapacity(t, m.Pages())
	if len(rec.Filename) > capacity {
		return fmt.Errorf("%w: %d bytes, at most %d fit", ErrFilenameTooLong, len(rec.Filename), capacity)
	}
	if strings.IndexByte(rec.Filename, 0) >= 0 {
		return fmt.Errorf("%w: filename contains NUL", ErrMalformedInput)
	}

	start := PageUserData * PageSize
	clear(m.buf[start : end*PageSize])

	m.buf[recordTypeBlock*BlockSize] = byte(rec.Type)
	m.buf[recordLengthBlock*BlockSize] = byte(len(rec.Filename))
	copy(m.buf[recordNameBlock*BlockSize:end*PageSize], rec.Filename)
	return nil
}

// DecodeGame reads the record from m. An unknown type code decodes as
// GameUnknown without error; the caller decides what to do with it.
func DecodeGame(m *Memory, t EV1Type) *GameRecord {
	end := recordEnd(t, m.Pages())
	rec := &GameRecord{}
	if end <= recordNamePage {
		return rec
	}
	code := GameType(m.buf[recordTypeBlock*BlockSize])
	if _, ok := gameTypeNames[code]; ok {
		rec.Type = code
	}

	n := min(int(m.buf[recordLengthBlock*BlockSize]), RecordCapacity(t, m.Pages()))
	name := m.buf[recordNameBlock*BlockSize : recordNameBlock*BlockSize+n]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	rec.Filename = string(name)
	return rec
}
