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

package frame

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-ultralight/pn532"
)

// ErrIncomplete means buf ends before the frame does. Read more and parse
// again.
var ErrIncomplete = errors.New("incomplete frame")

// Kind classifies a decoded frame.
type Kind int

const (
	KindInfo Kind = iota
	KindAck
	KindNack
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindInfo:
		return "info"
	case KindAck:
		return "ACK"
	case KindNack:
		return "NACK"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Frame is a decoded frame. Data holds the bytes after the TFI, so for a
// response Data[0] is the command code plus one.
type Frame struct {
	Data []byte
	Kind Kind
	TFI  byte
}

// Build encodes a normal information frame:
// 00 00 FF LEN LCS TFI data... DCS 00.
func Build(tfi byte, data []byte) ([]byte, error) {
	if len(data)+1 > MaxDataLength {
		return nil, pn532.NewDataTooLargeError("buildFrame", "")
	}
	length := byte(len(data) + 1)
	out := make([]byte, 0, len(data)+8)
	out = append(out, Preamble, StartCode1, StartCode2, length, -length, tfi)
	out = append(out, data...)
	out = append(out, complement(out[5:]), Postamble)
	return out, nil
}

// BuildCommand encodes a host command frame for cmd with args.
func BuildCommand(cmd byte, args []byte) ([]byte, error) {
	data := make([]byte, 0, len(args)+1)
	data = append(data, cmd)
	data = append(data, args...)
	return Build(HostToPn532, data)
}

// FindStart returns the index of the 00 FF start code in buf, or -1.
func FindStart(buf []byte) int {
	return bytes.Index(buf, []byte{StartCode1, StartCode2})
}

// IsAck reports whether buf contains an ACK frame.
func IsAck(buf []byte) bool {
	return bytes.Contains(buf, AckFrame[1:5])
}

// Parse decodes the first frame in buf and returns it with the number of
// bytes consumed, postamble included when present. Bytes before the start
// code are skipped. Extended frames are not supported.
func Parse(buf []byte) (Frame, int, error) {
	start := FindStart(buf)
	if start < 0 {
		return Frame{}, 0, ErrIncomplete
	}
	off := start + 2
	if off+2 > len(buf) {
		return Frame{}, 0, ErrIncomplete
	}
	length, lcs := buf[off], buf[off+1]

	switch {
	case length == 0x00 && lcs == 0xFF:
		return Frame{Kind: KindAck}, consumed(buf, off+2), nil
	case length == 0xFF && lcs == 0x00:
		return Frame{Kind: KindNack}, consumed(buf, off+2), nil
	case length+lcs != 0:
		return Frame{}, off + 2, pn532.NewFrameCorruptedError("parseFrame", "")
	}

	off += 2
	end := off + int(length) // index of DCS
	if end >= len(buf) {
		return Frame{}, 0, ErrIncomplete
	}
	if CalculateChecksum(buf[off:end+1]) != 0 {
		return Frame{}, end + 1, pn532.NewChecksumMismatchError("parseFrame", "")
	}

	f := Frame{TFI: buf[off], Kind: KindInfo}
	if f.TFI == ErrorTFI {
		f.Kind = KindError
	}
	f.Data = append([]byte(nil), buf[off+1:end]...)
	return f, consumed(buf, end+1), nil
}

// consumed extends n past an optional postamble.
func consumed(buf []byte, n int) int {
	if n < len(buf) && buf[n] == Postamble {
		return n + 1
	}
	return n
}

// Response validates f as the reply to cmd and returns its data starting
// with the response code. An error frame becomes {0x7F, 0x81}, which the
// device maps to a command-not-supported PN532Error.
func Response(f Frame, cmd byte) ([]byte, error) {
	switch f.Kind {
	case KindError:
		return []byte{ErrorTFI, pn532.StatusInvalidCmd}, nil
	case KindInfo:
	default:
		return nil, fmt.Errorf("%w: unexpected %s frame", pn532.ErrInvalidResponse, f.Kind)
	}
	if f.TFI != Pn532ToHost {
		return nil, fmt.Errorf("%w: TFI 0x%02X", pn532.ErrInvalidResponse, f.TFI)
	}
	if len(f.Data) == 0 || f.Data[0] != cmd+1 {
		return nil, fmt.Errorf("%w: response % X to command 0x%02X", pn532.ErrInvalidResponse, f.Data, cmd)
	}
	return f.Data, nil
}
