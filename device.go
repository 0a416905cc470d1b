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
	"encoding/hex"
	"fmt"
	"strings"
)

// MaxFrameLen is the receive buffer size for a single exchange.
const MaxFrameLen = 264

// Property is a reader setting toggled for raw frame exchange.
type Property int

const (
	// PropertyHandleCRC makes the reader append and check CRC_A.
	PropertyHandleCRC Property = iota
	// PropertyEasyFraming makes the reader wrap frames for the tag.
	PropertyEasyFraming
)

func (p Property) String() string {
	switch p {
	case PropertyHandleCRC:
		return "HandleCRC"
	case PropertyEasyFraming:
		return "EasyFraming"
	default:
		return fmt.Sprintf("Property(%d)", int(p))
	}
}

// ATQA byte 1 of every MIFARE Ultralight
const ultralightATQA1 = 0x44

// Target is a selected ISO14443A tag.
type Target struct {
	UID  []byte
	ATQA [2]byte
	SAK  byte
}

// UIDString returns the UID as upper case hex.
func (t *Target) UIDString() string {
	return strings.ToUpper(hex.EncodeToString(t.UID))
}

// IsUltralight reports whether the ATQA identifies the Ultralight family.
func (t *Target) IsUltralight() bool {
	return t.ATQA[1] == ultralightATQA1
}

// Device is an NFC reader in initiator mode. Implementations live in the
// pn532 and libnfc packages.
//
// TransceiveBytes and TransceiveBits write the reply into rx and return the
// received length (bytes and bits respectively). SelectPassiveTarget returns
// ErrNoTarget when the field is empty.
type Device interface {
	SetProperty(ctx context.Context, p Property, enable bool) error
	TransceiveBytes(ctx context.Context, tx, rx []byte) (int, error)
	TransceiveBits(ctx context.Context, tx []byte, txBits int, rx []byte) (int, error)
	SelectPassiveTarget(ctx context.Context) (*Target, error)
	Close() error
	String() string
}

// ParseUID parses a hex UID such as "04A2B3C4D5E680" or "04:a2:b3".
func ParseUID(s string) ([]byte, error) {
	clean := strings.NewReplacer(":", "", " ", "", "-", "").Replace(strings.TrimSpace(s))
	if clean == "" || len(clean)%2 != 0 || len(clean) > 20 {
		return nil, fmt.Errorf("%w: UID %q", ErrMalformedInput, s)
	}
	uid, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: UID %q: %w", ErrMalformedInput, s, err)
	}
	return uid, nil
}
