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

//go:build !libnfc

package libnfc

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/go-ultralight"
)

// Device is unavailable in builds without the libnfc tag.
type Device struct{}

// Open always fails: the binary was built without libnfc.
func Open(conn string) (*Device, error) {
	return nil, fmt.Errorf("%w: %q: built without the libnfc tag", ErrOpen, conn)
}

func (*Device) SetProperty(context.Context, ultralight.Property, bool) error {
	return ErrOpen
}

func (*Device) TransceiveBytes(context.Context, []byte, []byte) (int, error) {
	return 0, ErrOpen
}

func (*Device) TransceiveBits(context.Context, []byte, int, []byte) (int, error) {
	return 0, ErrOpen
}

func (*Device) SelectPassiveTarget(context.Context) (*ultralight.Target, error) {
	return nil, ErrOpen
}

func (*Device) Close() error { return nil }

func (*Device) String() string { return "libnfc (unavailable)" }
