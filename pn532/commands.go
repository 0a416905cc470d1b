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

// PN532 commands (user manual section 7)
const (
	cmdGetFirmwareVersion  = 0x02
	cmdReadRegister        = 0x06
	cmdWriteRegister       = 0x08
	cmdSamConfiguration    = 0x14
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInCommunicateThru   = 0x42
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
)

// tfiError is the TFI of a PN532 application error frame.
const tfiError = 0x7F

// CIU registers of the PN533-compatible contactless front end
const (
	RegCIUTxMode     uint16 = 0x6302
	RegCIURxMode     uint16 = 0x6303
	RegCIUControl    uint16 = 0x633C
	RegCIUBitFraming uint16 = 0x633D
)

// Register bit fields
const (
	crcEnableBit   byte = 0x80 // TxMode/RxMode: TxCRCEn, RxCRCEn
	lastBitsMask   byte = 0x07 // BitFraming TxLastBits, Control RxLastBits
	maxListTargets byte = 0x01
	brTy106kbpsA   byte = 0x00
)

// RF configuration items
const (
	rfItemField      byte = 0x01
	rfItemMaxRetries byte = 0x05
)

// SAMMode selects how the PN532 uses its security access module.
type SAMMode byte

const (
	// SAMModeNormal - normal mode, the SAM is not used (default)
	SAMModeNormal SAMMode = 0x01
	// SAMModeVirtualCard - Virtual Card mode
	SAMModeVirtualCard SAMMode = 0x02
	// SAMModeWiredCard - Wired Card mode
	SAMModeWiredCard SAMMode = 0x03
	// SAMModeDualCard - Dual Card mode
	SAMModeDualCard SAMMode = 0x04
)

// DefaultPassiveActivationRetries bounds InListPassiveTarget to about one
// second instead of the chip default of retrying forever.
const DefaultPassiveActivationRetries byte = 0x0A
