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

package pn532

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"syscall"
)

// Transport sentinels. The constructors below attach the retry class.
var (
	ErrTransportTimeout    = errors.New("transport timeout")
	ErrTransportWrite      = errors.New("transport write failed")
	ErrTransportRead       = errors.New("transport read failed")
	ErrTransportClosed     = errors.New("transport is closed")
	ErrTransportNotReady   = errors.New("transport not ready")
	ErrCommunicationFailed = errors.New("communication failed")
	ErrNoACK               = errors.New("no ACK received")
	ErrNACKReceived        = errors.New("NACK received")
	ErrFrameCorrupted      = errors.New("frame corrupted")
	ErrChecksumMismatch    = errors.New("checksum mismatch")
)

// Device and argument sentinels; none of these is worth a retry.
var (
	ErrDeviceNotFound      = errors.New("device not found")
	ErrInvalidResponse     = errors.New("invalid response format")
	ErrCommandNotSupported = errors.New("command not supported by device")
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrDataTooLarge        = errors.New("data too large")
)

// ErrorType is the retry class of a TransportError.
type ErrorType int

const (
	ErrorTypeTransient ErrorType = iota
	ErrorTypePermanent
	ErrorTypeTimeout
)

// TransportError is a failed wire operation on one port.
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Port == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err for op on port. Transient and timeout errors
// are retryable.
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Err:       err,
		Op:        op,
		Port:      port,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

var sentinelTypes = map[error]ErrorType{
	ErrTransportTimeout:  ErrorTypeTimeout,
	ErrTransportNotReady: ErrorTypeTimeout,
	ErrNoACK:             ErrorTypeTimeout,
	ErrTransportWrite:    ErrorTypeTransient,
	ErrTransportRead:     ErrorTypeTransient,
	ErrNACKReceived:      ErrorTypeTransient,
	ErrFrameCorrupted:    ErrorTypeTransient,
	ErrChecksumMismatch:  ErrorTypeTransient,
	ErrDataTooLarge:      ErrorTypePermanent,
	ErrInvalidResponse:   ErrorTypePermanent,
}

func classified(op, port string, sentinel error) *TransportError {
	return NewTransportError(op, port, sentinel, sentinelTypes[sentinel])
}

// Shorthands used by the transports.

func NewTimeoutError(op, port string) *TransportError {
	return classified(op, port, ErrTransportTimeout)
}

func NewFrameCorruptedError(op, port string) *TransportError {
	return classified(op, port, ErrFrameCorrupted)
}

func NewDataTooLargeError(op, port string) *TransportError {
	return classified(op, port, ErrDataTooLarge)
}

func NewTransportWriteError(op, port string) *TransportError {
	return classified(op, port, ErrTransportWrite)
}

func NewTransportReadError(op, port string) *TransportError {
	return classified(op, port, ErrTransportRead)
}

func NewNoACKError(op, port string) *TransportError {
	return classified(op, port, ErrNoACK)
}

func NewNACKReceivedError(op, port string) *TransportError {
	return classified(op, port, ErrNACKReceived)
}

func NewInvalidResponseError(op, port string) *TransportError {
	return classified(op, port, ErrInvalidResponse)
}

func NewChecksumMismatchError(op, port string) *TransportError {
	return classified(op, port, ErrChecksumMismatch)
}

func NewTransportNotReadyError(op, port string) *TransportError {
	return classified(op, port, ErrTransportNotReady)
}

// Status bytes of the InDataExchange / InCommunicateThru family.
const (
	StatusOK         byte = 0x00
	StatusTimeout    byte = 0x01
	StatusCRCError   byte = 0x02
	StatusRFProtocol byte = 0x0B
	StatusAuthError  byte = 0x14
	StatusWrongState byte = 0x27
	StatusInvalidCmd byte = 0x81
	statusMask       byte = 0x3F
)

var statusText = map[byte]string{
	StatusOK:         "success",
	StatusTimeout:    "timeout",
	StatusCRCError:   "CRC error",
	0x03:             "parity error",
	0x04:             "erroneous bit count during anti-collision",
	0x05:             "framing error",
	0x06:             "abnormal bit collision",
	0x07:             "communication buffer size insufficient",
	0x09:             "RF buffer overflow",
	0x0A:             "RF field not activated in time",
	StatusRFProtocol: "RF protocol error",
	0x0D:             "overheating",
	0x0E:             "internal buffer overflow",
	0x10:             "invalid parameter",
	StatusAuthError:  "authentication error",
	StatusWrongState: "wrong context for command",
	0x29:             "target released by initiator",
	0x2B:             "card disappeared",
	StatusInvalidCmd: "command not supported",
}

// PN532Error is a non-zero status byte or an error frame from the chip.
type PN532Error struct {
	Command   string
	Context   string
	ErrorCode byte
}

// NewPN532Error reports status code for command.
func NewPN532Error(code byte, command, context string) *PN532Error {
	return &PN532Error{Command: command, Context: context, ErrorCode: code}
}

func (e *PN532Error) Error() string {
	text, ok := statusText[e.ErrorCode]
	if !ok {
		text = "unknown error"
	}
	msg := fmt.Sprintf("%s error 0x%02X (%s)", e.Command, e.ErrorCode, text)
	if e.Context == "" {
		return msg
	}
	return msg + ": " + e.Context
}

func (e *PN532Error) IsCommandNotSupported() bool { return e.ErrorCode == StatusInvalidCmd }

// IsTimeoutError reports that the tag did not answer in time.
func (e *PN532Error) IsTimeoutError() bool { return e.ErrorCode == StatusTimeout }

// IsCommandNotSupported reports a 0x81 status, an error frame, or
// ErrCommandNotSupported anywhere in the chain.
func IsCommandNotSupported(err error) bool {
	if pe := statusOf(err); pe != nil {
		return pe.IsCommandNotSupported()
	}
	return errors.Is(err, ErrCommandNotSupported)
}

// IsPN532TimeoutError reports a tag timeout status.
func IsPN532TimeoutError(err error) bool {
	pe := statusOf(err)
	return pe != nil && pe.IsTimeoutError()
}

func statusOf(err error) *PN532Error {
	var pe *PN532Error
	if errors.As(err, &pe) {
		return pe
	}
	return nil
}

// IsRetryable reports whether repeating the same command may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	if pe := statusOf(err); pe != nil {
		return pe.IsTimeoutError()
	}
	for sentinel, class := range sentinelTypes {
		if class != ErrorTypePermanent && errors.Is(err, sentinel) {
			return true
		}
	}
	return errors.Is(err, ErrCommunicationFailed)
}

// IsFatal reports that the reader itself is gone, as opposed to a single
// failed command.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) && te.Type == ErrorTypePermanent {
		return true
	}
	if deviceGone(err) {
		return true
	}
	return errors.Is(err, ErrTransportClosed) ||
		errors.Is(err, ErrDeviceNotFound) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe)
}

// deviceGone matches the errno values seen when a USB reader is unplugged
// mid-transfer.
func deviceGone(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}
	if runtime.GOOS != "windows" {
		return false
	}
	// ERROR_ACCESS_DENIED, ERROR_GEN_FAILURE, ERROR_NO_SUCH_DEVICE
	switch errno {
	case 5, 31, 433:
		return true
	}
	return false
}
