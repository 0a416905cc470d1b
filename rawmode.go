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
	"errors"
)

// enterRaw turns off reader CRC handling, then easy framing.
func (t *transceiver) enterRaw(ctx context.Context) error {
	if err := t.dev.SetProperty(ctx, PropertyHandleCRC, false); err != nil {
		return NewTransportError("disable CRC handling", NoPage, err)
	}
	if err := t.dev.SetProperty(ctx, PropertyEasyFraming, false); err != nil {
		return NewTransportError("disable easy framing", NoPage, err)
	}
	return nil
}

// exitRaw restores both properties. It tries both even if the first fails.
func (t *transceiver) exitRaw(ctx context.Context) error {
	var errs []error
	if err := t.dev.SetProperty(ctx, PropertyHandleCRC, true); err != nil {
		errs = append(errs, NewTransportError("enable CRC handling", NoPage, err))
	}
	if err := t.dev.SetProperty(ctx, PropertyEasyFraming, true); err != nil {
		errs = append(errs, NewTransportError("enable easy framing", NoPage, err))
	}
	return errors.Join(errs...)
}

// withRawMode runs fn with raw framing. The reader is restored on every
// return path, including a partial enterRaw and a cancelled ctx.
func (t *transceiver) withRawMode(ctx context.Context, fn func() error) (err error) {
	defer func() {
		if exitErr := t.exitRaw(context.WithoutCancel(ctx)); exitErr != nil {
			Debugf("raw mode exit failed: %v", exitErr)
			if err == nil {
				err = exitErr
			}
		}
	}()

	if err := t.enterRaw(ctx); err != nil {
		return err
	}
	return fn()
}
