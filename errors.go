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
	"errors"
	"fmt"
)

// Error categories used by the protocol engine
var (
	// Device errors - potentially retryable
	ErrTransportFailure = errors.New("transport failure")
	ErrNoTarget         = errors.New("no target in field")

	// Session errors - fatal
	ErrTagLost     = errors.New("tag was removed")
	ErrPersistence = errors.New("persistence failed")

	// Tag errors - not retryable
	ErrProtocolRejected = errors.New("tag rejected command")
	ErrMagicUnavailable = fmt.Errorf("%w: unable to unlock card", ErrProtocolRejected)

	// Input errors - not retryable
	ErrMalformedInput   = errors.New("malformed input")
	ErrWrongTagFamily   = fmt.Errorf("%w: not a MIFARE Ultralight tag", ErrMalformedInput)
	ErrFilenameTooLong  = fmt.Errorf("%w: filename too long", ErrMalformedInput)
	ErrUnknownGameType  = fmt.Errorf("%w: unknown game type", ErrMalformedInput)
	ErrUIDMismatch      = fmt.Errorf("%w: unexpected tag UID", ErrMalformedInput)
	ErrPageOutOfRange   = fmt.Errorf("%w: page out of range", ErrMalformedInput)
	ErrDumpSizeMismatch = fmt.Errorf("%w: dump size is not a whole number of pages", ErrMalformedInput)
)

// NoPage marks a TransportError that is not tied to a tag page.
const NoPage = -1

// TransportError wraps a failed exchange with the device.
// It matches ErrTransportFailure with errors.Is.
type TransportError struct {
	Err  error  // Underlying backend error
	Op   string // Operation that failed
	Page int    // Tag page, or NoPage
}

func (e *TransportError) Error() string {
	if e.Page != NoPage {
		return fmt.Sprintf("%s page 0x%02X: %v", e.Op, e.Page, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports the error as an ErrTransportFailure.
func (*TransportError) Is(target error) bool {
	return target == ErrTransportFailure
}

// NewTransportError creates a TransportError for op, optionally bound to a page.
func NewTransportError(op string, page int, err error) *TransportError {
	return &TransportError{Op: op, Page: page, Err: err}
}

// PersistenceError reports a failed dump save or load.
type PersistenceError struct {
	Err  error
	Path string
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("dump %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is reports the error as an ErrPersistence.
func (*PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// IsFatal reports whether err must end the session.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrTagLost),
		errors.Is(err, ErrWrongTagFamily),
		errors.Is(err, ErrUIDMismatch),
		errors.Is(err, ErrPersistence),
		errors.Is(err, ErrNoTarget):
		return true
	default:
		return false
	}
}

// IsRetryable reports whether an operation failing with err may succeed
// when repeated, e.g. selecting while no tag is in the field yet.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMalformedInput) || errors.Is(err, ErrPersistence) {
		return false
	}
	return errors.Is(err, ErrNoTarget) || errors.Is(err, ErrTransportFailure)
}
