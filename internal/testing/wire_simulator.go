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

// Package testing provides virtual tags, a virtual reader and a wire-level
// PN532 simulator for tests.
//
// VirtualPN532 implements io.ReadWriter and speaks the PN532 host frame
// protocol (user manual section 6.2): ACK after every command, NACK
// retransmission and the fixed syntax error frame. Behind it sits one
// VirtualUltralight, reached through InDataExchange or InCommunicateThru
// with CRC and bit framing taken from the emulated CIU registers.
package testing

import (
	"bytes"
	"errors"

	"github.com/ZaparooProject/go-ultralight"
	"github.com/ZaparooProject/go-ultralight/internal/frame"
	"github.com/ZaparooProject/go-ultralight/internal/syncutil"
)

// PN532 command codes (user manual section 7)
const (
	cmdGetFirmwareVersion  = 0x02
	cmdReadRegister        = 0x06
	cmdWriteRegister       = 0x08
	cmdSAMConfiguration    = 0x14
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInCommunicateThru   = 0x42
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
)

// Status bytes (user manual table 13)
const (
	statusOK         = 0x00
	statusTimeout    = 0x01
	statusCRC        = 0x02
	statusRFProtocol = 0x0B
	statusContext    = 0x27
)

// CIU registers the simulator emulates
const (
	RegTxMode     uint16 = 0x6302
	RegRxMode     uint16 = 0x6303
	RegControl    uint16 = 0x633C
	RegBitFraming uint16 = 0x633D

	crcEnable = 0x80
	lastBits  = 0x07
)

// ErrorFrame is the fixed syntax error frame (section 6.2.1.5).
var ErrorFrame = []byte{0x00, 0x00, 0xFF, 0x01, 0xFF, 0x7F, 0x81, 0x00}

// SimulatorState tracks the internal state of the simulated PN532
type SimulatorState struct {
	MaxRetries    byte
	RFFieldOn     bool
	SAMConfigured bool
	TargetListed  bool
}

// VirtualPN532 simulates a PN532 at the wire protocol level.
type VirtualPN532 struct {
	tag                 *VirtualUltralight
	registers           map[uint16]byte
	injectStatus        map[byte]byte
	lastResponse        []byte
	Commands            []byte
	rxBuffer            bytes.Buffer
	txBuffer            bytes.Buffer
	state               SimulatorState
	mu                  syncutil.Mutex
	firmware            [4]byte
	injectChecksumError bool
	dropNextACK         bool
}

// NewVirtualPN532 creates a simulator with tag in its field (nil for an
// empty field). It reports firmware PN532 v1.6.
func NewVirtualPN532(tag *VirtualUltralight) *VirtualPN532 {
	v := &VirtualPN532{tag: tag, firmware: [4]byte{0x32, 0x01, 0x06, 0x07}}
	v.resetLocked()
	return v
}

func (v *VirtualPN532) resetLocked() {
	v.rxBuffer.Reset()
	v.txBuffer.Reset()
	v.lastResponse = nil
	v.Commands = nil
	v.state = SimulatorState{MaxRetries: 0xFF}
	v.registers = map[uint16]byte{RegTxMode: crcEnable, RegRxMode: crcEnable}
	v.injectStatus = make(map[byte]byte)
	v.injectChecksumError = false
	v.dropNextACK = false
}

// Write implements io.Writer - receives data from the host controller.
func (v *VirtualPN532) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rxBuffer.Write(data)
	v.processReceivedData()
	return len(data), nil
}

// Read implements io.Reader. It returns 0, nil when nothing is pending,
// like a serial port with a read timeout.
func (v *VirtualPN532) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.txBuffer.Len() == 0 {
		return 0, nil
	}
	n, _ := v.txBuffer.Read(buf)
	return n, nil
}

// HasPendingResponse reports whether response bytes wait to be read.
func (v *VirtualPN532) HasPendingResponse() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBuffer.Len() > 0
}

// SetTag replaces the tag in the field; nil empties it.
func (v *VirtualPN532) SetTag(tag *VirtualUltralight) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tag = tag
	v.state.TargetListed = false
}

// SetFirmwareVersion configures the GetFirmwareVersion reply.
func (v *VirtualPN532) SetFirmwareVersion(ic, ver, rev, support byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.firmware = [4]byte{ic, ver, rev, support}
}

// InjectChecksumError corrupts the DCS of the next response. A NACK from
// the host gets the intact frame.
func (v *VirtualPN532) InjectChecksumError() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.injectChecksumError = true
}

// DropNextACK suppresses the ACK of the next command.
func (v *VirtualPN532) DropNextACK() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropNextACK = true
}

// InjectStatus makes the next InDataExchange or InCommunicateThru cmd
// fail with status without reaching the tag.
func (v *VirtualPN532) InjectStatus(cmd, status byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.injectStatus[cmd] = status
}

// GetState returns the current simulator state.
func (v *VirtualPN532) GetState() SimulatorState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Register returns the emulated value of a CIU register.
func (v *VirtualPN532) Register(addr uint16) byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registers[addr]
}

// CommandCount returns how often cmd was received.
func (v *VirtualPN532) CommandCount(cmd byte) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return bytes.Count(v.Commands, []byte{cmd})
}

// Reset clears all state and buffers. The tag stays in the field.
func (v *VirtualPN532) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resetLocked()
}

func (v *VirtualPN532) processReceivedData() {
	for v.rxBuffer.Len() > 0 {
		f, n, err := frame.Parse(v.rxBuffer.Bytes())
		if errors.Is(err, frame.ErrIncomplete) {
			return
		}
		v.rxBuffer.Next(n)
		if err != nil {
			// bad checksum: the host times out waiting for the ACK
			continue
		}

		switch f.Kind {
		case frame.KindAck:
			// ACK from the host aborts the current command (6.2.2.1.d)
		case frame.KindNack:
			if v.lastResponse != nil {
				v.txBuffer.Write(v.lastResponse)
			}
		case frame.KindInfo:
			if f.TFI != frame.HostToPn532 || len(f.Data) == 0 {
				v.send(ErrorFrame)
				continue
			}
			v.processCommand(f.Data[0], f.Data[1:])
		case frame.KindError:
			v.send(ErrorFrame)
		}
	}
}

func (v *VirtualPN532) processCommand(cmd byte, params []byte) {
	v.Commands = append(v.Commands, cmd)
	if !v.dropNextACK {
		v.txBuffer.Write(frame.AckFrame)
	}
	v.dropNextACK = false

	var response []byte
	var ok bool
	switch cmd {
	case cmdGetFirmwareVersion:
		response, ok = v.firmware[:], true
	case cmdSAMConfiguration:
		response, ok = v.handleSAMConfiguration(params)
	case cmdRFConfiguration:
		response, ok = v.handleRFConfiguration(params)
	case cmdReadRegister:
		response, ok = v.handleReadRegister(params)
	case cmdWriteRegister:
		response, ok = v.handleWriteRegister(params)
	case cmdInListPassiveTarget:
		response, ok = v.handleInListPassiveTarget(params)
	case cmdInDataExchange:
		response, ok = v.handleInDataExchange(params)
	case cmdInCommunicateThru:
		response, ok = v.handleInCommunicateThru(params)
	case cmdInRelease:
		response, ok = v.handleInRelease(params)
	}
	if !ok {
		v.send(ErrorFrame)
		return
	}

	out, err := frame.Build(frame.Pn532ToHost, append([]byte{cmd + 1}, response...))
	if err != nil {
		v.send(ErrorFrame)
		return
	}
	v.send(out)
}

func (v *VirtualPN532) send(out []byte) {
	v.lastResponse = out
	if v.injectChecksumError {
		v.injectChecksumError = false
		corrupt := append([]byte(nil), out...)
		corrupt[len(corrupt)-2] ^= 0xFF
		v.txBuffer.Write(corrupt)
		return
	}
	v.txBuffer.Write(out)
}

func (v *VirtualPN532) handleSAMConfiguration(params []byte) ([]byte, bool) {
	if len(params) < 1 || params[0] < 0x01 || params[0] > 0x04 {
		return nil, false
	}
	v.state.SAMConfigured = true
	return nil, true
}

func (v *VirtualPN532) handleRFConfiguration(params []byte) ([]byte, bool) {
	if len(params) < 2 {
		return nil, false
	}
	switch params[0] {
	case 0x01:
		v.state.RFFieldOn = params[1]&0x01 != 0
		if !v.state.RFFieldOn {
			v.state.TargetListed = false
		}
	case 0x05:
		if len(params) < 4 {
			return nil, false
		}
		v.state.MaxRetries = params[3]
	}
	return nil, true
}

func (v *VirtualPN532) handleReadRegister(params []byte) ([]byte, bool) {
	if len(params) == 0 || len(params)%2 != 0 {
		return nil, false
	}
	out := make([]byte, 0, len(params)/2)
	for i := 0; i < len(params); i += 2 {
		out = append(out, v.registers[uint16(params[i])<<8|uint16(params[i+1])])
	}
	return out, true
}

func (v *VirtualPN532) handleWriteRegister(params []byte) ([]byte, bool) {
	if len(params) == 0 || len(params)%3 != 0 {
		return nil, false
	}
	for i := 0; i < len(params); i += 3 {
		v.registers[uint16(params[i])<<8|uint16(params[i+1])] = params[i+2]
	}
	return nil, true
}

func (v *VirtualPN532) handleInListPassiveTarget(params []byte) ([]byte, bool) {
	if len(params) < 2 || params[0] < 1 || params[0] > 2 || params[1] != 0x00 {
		return nil, false
	}
	v.state.RFFieldOn = true
	v.state.TargetListed = false
	if v.tag == nil || v.tag.Select() != nil {
		return []byte{0x00}, true
	}
	v.state.TargetListed = true
	out := []byte{0x01, 0x01, v.tag.ATQA[0], v.tag.ATQA[1], v.tag.SAK, byte(len(v.tag.UID))}
	return append(out, v.tag.UID...), true
}

func (v *VirtualPN532) handleInDataExchange(params []byte) ([]byte, bool) {
	if len(params) < 2 {
		return nil, false
	}
	if status, ok := v.takeInjected(cmdInDataExchange); ok {
		return []byte{status}, true
	}
	if params[0] != 0x01 || !v.state.TargetListed {
		return []byte{statusContext}, true
	}
	status, data, rxBits := v.air(params[1:], len(params[1:])*8)
	if status == statusOK && rxBits != 0 {
		// 4-bit ACK/NAK: the PN532 consumes an ACK and reports a NAK
		if data[0]&0x0F != tagACK {
			return []byte{statusRFProtocol}, true
		}
		data = nil
	}
	return append([]byte{status}, data...), true
}

func (v *VirtualPN532) handleInCommunicateThru(params []byte) ([]byte, bool) {
	if len(params) == 0 {
		return nil, false
	}
	if status, ok := v.takeInjected(cmdInCommunicateThru); ok {
		return []byte{status}, true
	}
	bits := len(params) * 8
	if last := int(v.registers[RegBitFraming] & lastBits); last != 0 {
		bits = (len(params)-1)*8 + last
	}
	status, data, _ := v.air(params, bits)
	return append([]byte{status}, data...), true
}

func (v *VirtualPN532) handleInRelease(params []byte) ([]byte, bool) {
	if len(params) < 1 {
		return nil, false
	}
	v.state.TargetListed = false
	return []byte{statusOK}, true
}

func (v *VirtualPN532) takeInjected(cmd byte) (byte, bool) {
	status, ok := v.injectStatus[cmd]
	if ok {
		delete(v.injectStatus, cmd)
	}
	return status, ok
}

// air sends txBits bits to the tag, applying the CRC settings of TxMode
// and RxMode, and updates RxLastBits in the Control register.
func (v *VirtualPN532) air(data []byte, txBits int) (status byte, reply []byte, rxBits int) {
	v.registers[RegControl] &^= lastBits
	if v.tag == nil || !v.state.RFFieldOn {
		return statusTimeout, nil, 0
	}

	out := append([]byte(nil), data...)
	if txBits%8 == 0 && v.registers[RegTxMode]&crcEnable != 0 {
		out = ultralight.AppendCRCA(out)
		txBits = len(out) * 8
	}
	r, err := v.tag.Exchange(out, txBits)
	if err != nil {
		return statusTimeout, nil, 0
	}

	if rem := r.Bits % 8; rem != 0 {
		v.registers[RegControl] |= byte(rem)
		return statusOK, r.Data[:(r.Bits+7)/8], rem
	}
	in := r.Data
	if v.registers[RegRxMode]&crcEnable != 0 {
		if !ultralight.CheckCRCA(in) {
			return statusCRC, nil, 0
		}
		in = in[:len(in)-2]
	}
	return statusOK, append([]byte(nil), in...), 0
}
