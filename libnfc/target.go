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

// Package libnfc implements ultralight.Device on top of libnfc. The cgo
// binding is only compiled with the libnfc build tag:
//
//	go build -tags libnfc ./cmd/gametag
package libnfc

import (
	"context"
	"errors"
	"time"

	"github.com/ZaparooProject/go-ultralight"
)

// ErrOpen is returned when no libnfc device could be opened.
var ErrOpen = errors.New("libnfc device unavailable")

var _ ultralight.Device = (*Device)(nil)

// timeoutFor converts the context deadline into a libnfc timeout in
// milliseconds. -1 selects the libnfc default.
func timeoutFor(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return -1, nil
	}
	ms := time.Until(deadline).Milliseconds()
	if ms <= 0 {
		return 0, context.DeadlineExceeded
	}
	return int(ms), nil
}

func convertTarget(atqa [2]byte, sak byte, uid []byte, uidLen int) *ultralight.Target {
	uidLen = max(0, min(uidLen, len(uid)))
	return &ultralight.Target{
		UID:  append([]byte(nil), uid[:uidLen]...),
		ATQA: atqa,
		SAK:  sak,
	}
}
