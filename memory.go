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
	"fmt"
	"strings"
)

// Memory geometry
const (
	PageSize     = 4
	PagesInBlock = 4
	BlockSize    = PageSize * PagesInBlock

	// DefaultPages is the page count of a plain Ultralight.
	DefaultPages = 0x20
	// MaxPages covers the largest supported tag (Ultralight EV1 UL21).
	MaxPages = 0x30
)

// Page roles
const (
	PageUID0     = 0
	PageUID1     = 1
	PageLock     = 2
	PageOTP      = 3
	PageUserData = 4
)

// EV1Type selects the Ultralight EV1 memory layout used for the secret.
type EV1Type int

const (
	// EV1None is a plain Ultralight, no password protection.
	EV1None EV1Type = iota
	// EV1UL11 is MF0UL11, 20 pages.
	EV1UL11
	// EV1UL21 is MF0UL21, 41 pages.
	EV1UL21
)

func (t EV1Type) String() string {
	switch t {
	case EV1None:
		return "none"
	case EV1UL11:
		return "ul11"
	case EV1UL21:
		return "ul21"
	default:
		return fmt.Sprintf("EV1Type(%d)", int(t))
	}
}

// Pages returns the number of pages on a tag of this type, or DefaultPages
// for a plain Ultralight.
func (t EV1Type) Pages() int {
	switch t {
	case EV1UL11:
		return 0x14
	case EV1UL21:
		return 0x29
	default:
		return DefaultPages
	}
}

// UserEnd is the first page past the user data area. Configuration and
// secret pages start there.
func (t EV1Type) UserEnd() int {
	switch t {
	case EV1UL11:
		return 0x10
	case EV1UL21:
		return 0x24
	default:
		return DefaultPages
	}
}

// ParseEV1Type parses "none", "ul11" or "ul21" (case-insensitive).
func ParseEV1Type(s string) (EV1Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return EV1None, nil
	case "ul11":
		return EV1UL11, nil
	case "ul21":
		return EV1UL21, nil
	default:
		return EV1None, fmt.Errorf("%w: EV1 type %q", ErrMalformedInput, s)
	}
}

// Location addresses a byte range inside one page.
type Location struct {
	Page   int
	Offset int
	Len    int
}

// SecretLayout returns where the password and PACK live for an EV1 type.
// ok is false for EV1None.
func SecretLayout(t EV1Type) (pwd, pack Location, ok bool) {
	switch t {
	case EV1UL11:
		return Location{Page: 0x12, Len: 4}, Location{Page: 0x13, Len: 2}, true
	case EV1UL21:
		return Location{Page: 0x27, Len: 4}, Location{Page: 0x28, Len: 2}, true
	default:
		return Location{}, Location{}, false
	}
}

// CheckSecretPages reports whether a tag image of the given page count
// reaches the password and PACK pages of t.
func CheckSecretPages(t EV1Type, pages int) error {
	pwd, pack, ok := SecretLayout(t)
	if !ok {
		return nil
	}
	if last := max(pwd.Page, pack.Page); last >= pages {
		return fmt.Errorf("%w: %s secret on page 0x%02X needs more than %d pages",
			ErrPageOutOfRange, t, last, pages)
	}
	return nil
}

// Secret is the EV1 password and its acknowledge.
type Secret struct {
	Password [4]byte
	PACK     [2]byte
	Type     EV1Type
}

// Memory is the in-memory image of a tag. The buffer always holds MaxPages
// pages; Pages bounds every access.
type Memory struct {
	buf   [MaxPages * PageSize]byte
	pages int
}

// NewMemory returns a zeroed image of the given page count.
func NewMemory(pages int) (*Memory, error) {
	m := &Memory{}
	if err := m.Reset(pages); err != nil {
		return nil, err
	}
	return m, nil
}

// Reset zeroes the image and sets the page count.
func (m *Memory) Reset(pages int) error {
	if pages <= 0 || pages > MaxPages {
		return fmt.Errorf("%w: %d pages (max %d)", ErrPageOutOfRange, pages, MaxPages)
	}
	clear(m.buf[:])
	m.pages = pages
	return nil
}

// Pages returns the page count.
func (m *Memory) Pages() int {
	return m.pages
}

// Blocks returns the number of 4-page blocks covering the image.
func (m *Memory) Blocks() int {
	return (m.pages + PagesInBlock - 1) / PagesInBlock
}

// Page returns a copy of page n.
func (m *Memory) Page(n int) ([PageSize]byte, error) {
	var p [PageSize]byte
	if n < 0 || n >= m.pages {
		return p, fmt.Errorf("%w: page 0x%02X", ErrPageOutOfRange, n)
	}
	copy(p[:], m.buf[n*PageSize:])
	return p, nil
}

// SetPage overwrites page n.
func (m *Memory) SetPage(n int, data [PageSize]byte) error {
	if n < 0 || n >= m.pages {
		return fmt.Errorf("%w: page 0x%02X", ErrPageOutOfRange, n)
	}
	copy(m.buf[n*PageSize:], data[:])
	return nil
}

// Block returns a copy of block n, zero padded past the last page.
func (m *Memory) Block(n int) ([BlockSize]byte, error) {
	var b [BlockSize]byte
	if n < 0 || n >= m.Blocks() {
		return b, fmt.Errorf("%w: block %d", ErrPageOutOfRange, n)
	}
	start := n * BlockSize
	end := min(start+BlockSize, m.pages*PageSize)
	copy(b[:], m.buf[start:end])
	return b, nil
}

// SetBlock overwrites block n. Bytes past the last page are dropped.
func (m *Memory) SetBlock(n int, data [BlockSize]byte) error {
	if n < 0 || n >= m.Blocks() {
		return fmt.Errorf("%w: block %d", ErrPageOutOfRange, n)
	}
	start := n * BlockSize
	end := min(start+BlockSize, m.pages*PageSize)
	copy(m.buf[start:end], data[:])
	return nil
}

// Bytes returns a copy of the image, exactly Pages*PageSize bytes.
func (m *Memory) Bytes() []byte {
	out := make([]byte, m.pages*PageSize)
	copy(out, m.buf[:])
	return out
}

// Load replaces the image with data. len(data) must be a multiple of
// PageSize and at most MaxPages pages.
func (m *Memory) Load(data []byte) error {
	if len(data) == 0 || len(data)%PageSize != 0 {
		return fmt.Errorf("%w: %d bytes", ErrDumpSizeMismatch, len(data))
	}
	if err := m.Reset(len(data) / PageSize); err != nil {
		return err
	}
	copy(m.buf[:], data)
	return nil
}

// ApplySecret stores the password and PACK at the layout for s.Type.
// EV1None leaves the image untouched.
func (m *Memory) ApplySecret(s Secret) error {
	pwdLoc, packLoc, ok := SecretLayout(s.Type)
	if !ok {
		return nil
	}
	if err := m.put(pwdLoc, s.Password[:]); err != nil {
		return err
	}
	return m.put(packLoc, s.PACK[:])
}

func (m *Memory) put(loc Location, data []byte) error {
	if loc.Page < 0 || loc.Page >= m.pages {
		return fmt.Errorf("%w: secret page 0x%02X with %d pages", ErrPageOutOfRange, loc.Page, m.pages)
	}
	copy(m.buf[loc.Page*PageSize+loc.Offset:], data[:loc.Len])
	return nil
}
