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
	"bytes"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-ultralight"
)

// Air interface replies of the virtual tag
const (
	tagACK = 0x0A
	tagNAK = 0x00
)

// ErrNoResponse is returned when the tag stays silent, the air equivalent
// of a reader timeout.
var ErrNoResponse = errors.New("no response from tag")

// MagicMode selects how a virtual tag lets its UID pages be rewritten.
type MagicMode int

const (
	// MagicNone is a genuine tag: pages 0-1 are read-only.
	MagicNone MagicMode = iota
	// MagicGen1a opens its backdoor after HALT, 7-bit 0x40 and 0x43.
	MagicGen1a
	// MagicDirectWrite accepts plain writes to pages 0-1.
	MagicDirectWrite
)

// Test UIDs
var (
	TestUltralightUID = []byte{0x04, 0x12, 0x34, 0x56, 0x78, 0x9A, 0x80}
	TestEV1UID        = []byte{0x04, 0xA1, 0xB2, 0xC3, 0xD4, 0xE5, 0x80}
)

// Reply is one air frame sent back by the tag. Bits is the number of
// valid bits; 4-bit ACK/NAK replies have Bits == 4.
type Reply struct {
	Data []byte
	Bits int
}

// VirtualUltralight simulates a MIFARE Ultralight or Ultralight EV1 at the
// air frame level. Full frames must carry a valid CRC_A; the tag adds a
// CRC_A to data replies.
type VirtualUltralight struct {
	failReads   map[int]int
	failWrites  map[int]int
	Version     []byte
	UID         []byte
	pages       [][ultralight.PageSize]byte
	Writes      []int
	Selections  int
	Magic       MagicMode
	ATQA        [2]byte
	Password    [4]byte
	PACK        [2]byte
	SAK         byte
	Present     bool
	halted      bool
	backdoor    bool
	wupcStarted bool
	authed      bool
}

// NewVirtualUltralight creates a plain 32-page Ultralight. Page 0-2 hold
// the UID with its check bytes.
func NewVirtualUltralight(uid []byte) *VirtualUltralight {
	if uid == nil {
		uid = TestUltralightUID
	}
	v := &VirtualUltralight{
		UID:        append([]byte(nil), uid...),
		ATQA:       [2]byte{0x00, 0x44},
		pages:      make([][ultralight.PageSize]byte, ultralight.DefaultPages),
		Present:    true,
		failReads:  make(map[int]int),
		failWrites: make(map[int]int),
	}
	v.initUIDPages()
	return v
}

// NewVirtualEV1 creates an Ultralight EV1 of the given layout. Its
// password and PACK read back as zeros.
func NewVirtualEV1(uid []byte, t ultralight.EV1Type, pwd [4]byte, pack [2]byte) *VirtualUltralight {
	if uid == nil {
		uid = TestEV1UID
	}
	v := NewVirtualUltralight(uid)
	v.pages = make([][ultralight.PageSize]byte, t.Pages())
	v.initUIDPages()
	storage := byte(0x0B)
	if t == ultralight.EV1UL21 {
		storage = 0x0E
	}
	v.Version = []byte{0x00, 0x04, 0x03, 0x01, 0x01, 0x00, storage, 0x03}
	v.Password = pwd
	v.PACK = pack
	return v
}

// NewVirtualGen1a creates a Gen1a magic Ultralight.
func NewVirtualGen1a(uid []byte) *VirtualUltralight {
	v := NewVirtualUltralight(uid)
	v.Magic = MagicGen1a
	return v
}

func (v *VirtualUltralight) initUIDPages() {
	uid := make([]byte, 7)
	copy(uid, v.UID)
	bcc0 := 0x88 ^ uid[0] ^ uid[1] ^ uid[2]
	bcc1 := uid[3] ^ uid[4] ^ uid[5] ^ uid[6]
	v.pages[0] = [4]byte{uid[0], uid[1], uid[2], bcc0}
	v.pages[1] = [4]byte{uid[3], uid[4], uid[5], uid[6]}
	v.pages[2] = [4]byte{bcc1, 0x48, 0x00, 0x00}
}

// PageCount returns the number of pages on the tag.
func (v *VirtualUltralight) PageCount() int {
	return len(v.pages)
}

// Page returns the stored content of page n.
func (v *VirtualUltralight) Page(n int) [ultralight.PageSize]byte {
	return v.pages[n]
}

// SetPage stores data on page n, bypassing the air interface.
func (v *VirtualUltralight) SetPage(n int, data [ultralight.PageSize]byte) {
	v.pages[n] = data
}

// Image returns the whole memory.
func (v *VirtualUltralight) Image() []byte {
	out := make([]byte, 0, len(v.pages)*ultralight.PageSize)
	for _, p := range v.pages {
		out = append(out, p[:]...)
	}
	return out
}

// FailRead makes the READ of the block starting at page stay silent count
// times (-1 for always).
func (v *VirtualUltralight) FailRead(page, count int) {
	v.failReads[page] = count
}

// FailWrite makes writes to page stay silent count times (-1 for always).
func (v *VirtualUltralight) FailWrite(page, count int) {
	v.failWrites[page] = count
}

// Remove takes the tag out of the field.
func (v *VirtualUltralight) Remove() {
	v.Present = false
}

// Insert puts the tag back.
func (v *VirtualUltralight) Insert() {
	v.Present = true
}

// Halted reports whether the tag is in HALT state.
func (v *VirtualUltralight) Halted() bool {
	return v.halted
}

// BackdoorOpen reports whether the Gen1a backdoor is open.
func (v *VirtualUltralight) BackdoorOpen() bool {
	return v.backdoor
}

// Authenticated reports whether PWD_AUTH succeeded since the last selection.
func (v *VirtualUltralight) Authenticated() bool {
	return v.authed
}

// Select wakes and selects the tag, leaving any backdoor or
// authentication state.
func (v *VirtualUltralight) Select() error {
	if !v.Present {
		return ErrNoResponse
	}
	v.Selections++
	v.halted = false
	v.backdoor = false
	v.wupcStarted = false
	v.authed = false
	return nil
}

// Exchange processes one air frame of bits bits and returns the tag reply.
func (v *VirtualUltralight) Exchange(frame []byte, bits int) (Reply, error) {
	if !v.Present {
		return Reply{}, ErrNoResponse
	}
	if bits%8 != 0 {
		return v.shortFrame(frame, bits)
	}
	if v.wupcStarted && len(frame) == 1 && frame[0] == 0x43 {
		v.wupcStarted = false
		v.backdoor = true
		v.halted = false
		return ackReply(), nil
	}
	v.wupcStarted = false

	if !ultralight.CheckCRCA(frame) {
		return Reply{}, fmt.Errorf("%w: bad CRC on % X", ErrNoResponse, frame)
	}
	cmd := frame[:len(frame)-2]
	if v.halted && !v.backdoor {
		return Reply{}, fmt.Errorf("%w: tag halted", ErrNoResponse)
	}

	switch cmd[0] {
	case 0x50:
		if len(cmd) != 2 {
			return Reply{}, ErrNoResponse
		}
		v.halted = true
		v.backdoor = false
		v.authed = false
		return Reply{}, fmt.Errorf("%w: halted", ErrNoResponse)
	case 0x30:
		return v.read(cmd)
	case 0xA0:
		return v.write(cmd, 2+ultralight.BlockSize)
	case 0xA2:
		return v.write(cmd, 2+ultralight.PageSize)
	case 0x60:
		if v.Version == nil || len(cmd) != 1 {
			return Reply{}, ErrNoResponse
		}
		return dataReply(v.Version), nil
	case 0x1B:
		return v.pwdAuth(cmd)
	default:
		return nakReply(), nil
	}
}

func (v *VirtualUltralight) shortFrame(frame []byte, bits int) (Reply, error) {
	if bits != 7 || len(frame) != 1 {
		return Reply{}, ErrNoResponse
	}
	switch frame[0] {
	case 0x26, 0x52: // REQA, WUPA
		if frame[0] == 0x26 && v.halted {
			return Reply{}, ErrNoResponse
		}
		v.halted = false
		return Reply{Data: []byte{v.ATQA[0], v.ATQA[1]}, Bits: 16}, nil
	case 0x40:
		if v.Magic != MagicGen1a || !v.halted {
			return Reply{}, ErrNoResponse
		}
		v.wupcStarted = true
		return ackReply(), nil
	default:
		return Reply{}, ErrNoResponse
	}
}

func (v *VirtualUltralight) read(cmd []byte) (Reply, error) {
	if len(cmd) != 2 {
		return nakReply(), nil
	}
	page := int(cmd[1])
	if page >= len(v.pages) {
		return nakReply(), nil
	}
	if consume(v.failReads, page) {
		return Reply{}, fmt.Errorf("%w: read page %d", ErrNoResponse, page)
	}
	var out bytes.Buffer
	for i := range ultralight.PagesInBlock {
		p := (page + i) % len(v.pages)
		data := v.pages[p]
		if v.isSecretPage(p) {
			data = [4]byte{}
		}
		out.Write(data[:])
	}
	return dataReply(out.Bytes()), nil
}

func (v *VirtualUltralight) write(cmd []byte, want int) (Reply, error) {
	if len(cmd) != want {
		return nakReply(), nil
	}
	page := int(cmd[1])
	if page >= len(v.pages) {
		return nakReply(), nil
	}
	if consume(v.failWrites, page) {
		return Reply{}, fmt.Errorf("%w: write page %d", ErrNoResponse, page)
	}
	var data [ultralight.PageSize]byte
	copy(data[:], cmd[2:6])

	unlocked := v.backdoor || v.Magic == MagicDirectWrite
	switch {
	case page <= ultralight.PageUID1 && !unlocked:
		return nakReply(), nil
	case page == ultralight.PageLock && !unlocked:
		// Lock bytes are OR-ed; the check bytes are left alone.
		v.pages[page][2] |= data[2]
		v.pages[page][3] |= data[3]
	case page == ultralight.PageOTP && !unlocked:
		for i := range data {
			v.pages[page][i] |= data[i]
		}
	default:
		v.pages[page] = data
	}
	v.Writes = append(v.Writes, page)
	return ackReply(), nil
}

func (v *VirtualUltralight) pwdAuth(cmd []byte) (Reply, error) {
	if v.Version == nil || len(cmd) != 5 {
		return Reply{}, ErrNoResponse
	}
	if !bytes.Equal(cmd[1:5], v.Password[:]) {
		return nakReply(), nil
	}
	v.authed = true
	return dataReply(v.PACK[:]), nil
}

func (v *VirtualUltralight) isSecretPage(p int) bool {
	if v.Version == nil {
		return false
	}
	t := ultralight.EV1UL11
	if v.Version[6] == 0x0E {
		t = ultralight.EV1UL21
	}
	pwd, pack, _ := ultralight.SecretLayout(t)
	return p == pwd.Page || p == pack.Page
}

func consume(m map[int]int, key int) bool {
	n, ok := m[key]
	if !ok || n == 0 {
		return false
	}
	if n > 0 {
		m[key] = n - 1
	}
	return true
}

func ackReply() Reply {
	return Reply{Data: []byte{tagACK}, Bits: 4}
}

func nakReply() Reply {
	return Reply{Data: []byte{tagNAK}, Bits: 4}
}

func dataReply(data []byte) Reply {
	out := ultralight.AppendCRCA(data)
	return Reply{Data: out, Bits: len(out) * 8}
}
