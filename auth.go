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
	"context"
	"encoding/hex"
	"fmt"
)

// Tag command codes
const (
	cmdRead      = 0x30
	cmdCompWrite = 0xA0
	cmdGetVer    = 0x60
	cmdPwdAuth   = 0x1B
	cmdHalt      = 0x50

	// Gen1a backdoor: 7-bit 0x40 then 0x43
	cmdMagicWupc1 = 0x40
	cmdMagicWupc2 = 0x43
	magicWupcBits = 7

	ack = 0x0A
)

const versionLen = 8

// Version is a decoded GET_VERSION reply.
type Version struct {
	Raw            []byte
	Vendor         byte
	ProductType    byte
	ProductSubtype byte
	Major          byte
	Minor          byte
	StorageSize    byte
	Protocol       byte
}

// EV1Type infers the Ultralight EV1 layout from the storage size byte.
func (v *Version) EV1Type() EV1Type {
	if v.ProductType != 0x03 {
		return EV1None
	}
	switch v.StorageSize {
	case 0x0B:
		return EV1UL11
	case 0x0E:
		return EV1UL21
	default:
		return EV1None
	}
}

func (v *Version) String() string {
	return fmt.Sprintf("vendor 0x%02X type 0x%02X/0x%02X v%d.%d storage 0x%02X (%s)",
		v.Vendor, v.ProductType, v.ProductSubtype, v.Major, v.Minor, v.StorageSize, v.EV1Type())
}

func parseVersion(resp []byte) (*Version, error) {
	if len(resp) == versionLen+2 && CheckCRCA(resp) {
		resp = resp[:versionLen]
	}
	if len(resp) < versionLen {
		return nil, fmt.Errorf("%w: GET_VERSION reply of %d bytes", ErrProtocolRejected, len(resp))
	}
	return &Version{
		Raw:            append([]byte(nil), resp[:versionLen]...),
		Vendor:         resp[1],
		ProductType:    resp[2],
		ProductSubtype: resp[3],
		Major:          resp[4],
		Minor:          resp[5],
		StorageSize:    resp[6],
		Protocol:       resp[7],
	}, nil
}

// probeVersion sends GET_VERSION in raw mode.
func (t *transceiver) probeVersion(ctx context.Context) (*Version, error) {
	var resp []byte
	err := t.withRawMode(ctx, func() error {
		var err error
		resp, err = t.sendBytes(ctx, "GET_VERSION", NoPage, AppendCRCA([]byte{cmdGetVer}))
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("%w: no reply to GET_VERSION", ErrProtocolRejected)
	}
	return parseVersion(resp)
}

// authenticate sends PWD_AUTH in raw mode and returns the raw reply
// (PACK followed by its CRC on a genuine tag).
func (t *transceiver) authenticate(ctx context.Context, pwd [4]byte) ([]byte, error) {
	frame := AppendCRCA([]byte{cmdPwdAuth, pwd[0], pwd[1], pwd[2], pwd[3]})
	var resp []byte
	err := t.withRawMode(ctx, func() error {
		var err error
		resp, err = t.sendBytes(ctx, "PWD_AUTH", NoPage, frame)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// unlock opens the Gen1a backdoor: HALT, 7-bit 0x40, then 0x43.
func (t *transceiver) unlock(ctx context.Context) error {
	return t.withRawMode(ctx, func() error {
		// A halted tag does not answer HALT.
		if _, err := t.sendBytes(ctx, "HALT", NoPage, AppendCRCA([]byte{cmdHalt, 0x00})); err != nil {
			Debugf("HALT ignored: %v", err)
		}
		if _, err := t.sendBits(ctx, "unlock 1", []byte{cmdMagicWupc1}, magicWupcBits); err != nil {
			return err
		}
		if _, err := t.sendBytes(ctx, "unlock 2", NoPage, []byte{cmdMagicWupc2}); err != nil {
			return err
		}
		return nil
	})
}

// VerifyPACK reports whether an authentication reply carries the expected
// PACK. A trailing CRC is ignored.
func VerifyPACK(reply []byte, pack [2]byte) bool {
	if len(reply) < 2 {
		return false
	}
	return bytes.Equal(reply[:2], pack[:])
}

// ParsePassword parses exactly 8 hex characters into a 4-byte password.
func ParsePassword(s string) ([4]byte, error) {
	var pwd [4]byte
	if err := parseHexExact(s, pwd[:]); err != nil {
		return pwd, fmt.Errorf("password: %w", err)
	}
	return pwd, nil
}

// ParsePACK parses exactly 4 hex characters into a 2-byte PACK.
func ParsePACK(s string) ([2]byte, error) {
	var pack [2]byte
	if err := parseHexExact(s, pack[:]); err != nil {
		return pack, fmt.Errorf("PACK: %w", err)
	}
	return pack, nil
}

func parseHexExact(s string, dst []byte) error {
	if len(s) != hex.EncodedLen(len(dst)) {
		return fmt.Errorf("%w: want %d hex characters, got %d", ErrMalformedInput, hex.EncodedLen(len(dst)), len(s))
	}
	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	return nil
}
