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

// Package pn532 drives an NXP PN532 as an ultralight.Device. It sends raw
// ISO14443A frames with InCommunicateThru and toggles CRC and bit framing
// through the CIU registers, the way libnfc's pn53x driver does.
package pn532

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-ultralight"
	"github.com/ZaparooProject/go-ultralight/internal/syncutil"
)

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// Timeout is the transport read timeout
	Timeout time.Duration
	// PassiveActivationRetries is MxRtyPassiveActivation (0xFF = forever)
	PassiveActivationRetries byte
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		Timeout:                  time.Second,
		PassiveActivationRetries: DefaultPassiveActivationRetries,
	}
}

// Option configures a Device in New.
type Option func(*Device) error

// WithTimeout sets the transport read timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: timeout %v", ErrInvalidParameter, timeout)
		}
		d.config.Timeout = timeout
		return nil
	}
}

// WithPassiveActivationRetries sets how often InListPassiveTarget retries
// before reporting an empty field.
func WithPassiveActivationRetries(n byte) Option {
	return func(d *Device) error {
		d.config.PassiveActivationRetries = n
		return nil
	}
}

// FirmwareVersion contains PN532 firmware version information
type FirmwareVersion struct {
	Version          string
	IC               byte
	SupportIso14443a bool
	SupportIso14443b bool
	SupportIso18092  bool
}

func (f *FirmwareVersion) String() string {
	return fmt.Sprintf("PN5%02X v%s", f.IC, f.Version)
}

// Device represents a PN532 NFC reader in initiator mode. It implements
// ultralight.Device and is safe for use from several goroutines; commands
// are serialized.
type Device struct {
	transport   Transport
	config      *DeviceConfig
	firmware    *FirmwareVersion
	target      *ultralight.Target
	mu          syncutil.Mutex
	handleCRC   bool
	easyFraming bool
}

// New creates a new PN532 device with the given transport. Call Init
// before use.
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	device := &Device{
		transport:   transport,
		config:      DefaultDeviceConfig(),
		handleCRC:   true,
		easyFraming: true,
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}
	return device, nil
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// Init configures the SAM, bounds passive activation retries, reads the
// firmware version and puts the CIU into CRC mode.
func (d *Device) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.transport.SetTimeout(d.config.Timeout); err != nil {
		return fmt.Errorf("failed to set timeout on transport: %w", err)
	}

	if err := d.samConfiguration(ctx, SAMModeNormal, 0x00, 0x00); err != nil {
		return fmt.Errorf("SAM configuration failed: %w", err)
	}

	if err := d.setPassiveActivationRetries(ctx, d.config.PassiveActivationRetries); err != nil {
		// Older firmware may reject it; polling still works, only slower
		ultralight.Debugf("pn532: passive activation retries not set: %v", err)
	}

	fw, err := d.getFirmwareVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get firmware version: %w", err)
	}
	d.firmware = fw
	ultralight.Debugf("pn532: %s on %s", fw, d.transport.Type())

	if err := d.setCRC(ctx, true); err != nil {
		return err
	}
	d.handleCRC = true
	d.easyFraming = true
	return nil
}

// FirmwareVersion returns the version read by Init, or nil.
func (d *Device) FirmwareVersion() *FirmwareVersion {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.firmware
}

// GetFirmwareVersion queries the PN532 firmware version.
func (d *Device) GetFirmwareVersion(ctx context.Context) (*FirmwareVersion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getFirmwareVersion(ctx)
}

func (d *Device) getFirmwareVersion(ctx context.Context) (*FirmwareVersion, error) {
	res, err := d.transport.SendCommand(ctx, cmdGetFirmwareVersion, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to send GetFirmwareVersion command: %w", err)
	}
	ultralight.Debugf("pn532: GetFirmwareVersion response: % X", res)

	if len(res) < 5 || res[0] != cmdGetFirmwareVersion+1 {
		return nil, fmt.Errorf("%w: firmware version response % X", ErrInvalidResponse, res)
	}
	return &FirmwareVersion{
		IC:               res[1],
		Version:          fmt.Sprintf("%d.%d", res[2], res[3]),
		SupportIso14443a: res[4]&0x01 == 0x01,
		SupportIso14443b: res[4]&0x02 == 0x02,
		SupportIso18092:  res[4]&0x04 == 0x04,
	}, nil
}

// SAMConfiguration configures the security access module.
func (d *Device) SAMConfiguration(ctx context.Context, mode SAMMode, timeout, irq byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.samConfiguration(ctx, mode, timeout, irq)
}

func (d *Device) samConfiguration(ctx context.Context, mode SAMMode, timeout, irq byte) error {
	res, err := d.transport.SendCommand(ctx, cmdSamConfiguration, []byte{byte(mode), timeout, irq})
	if err != nil {
		return fmt.Errorf("SAM configuration command failed: %w", err)
	}
	if err := checkErrorFrame(res, "SAMConfiguration"); err != nil {
		return err
	}
	if len(res) == 0 || res[0] != cmdSamConfiguration+1 {
		return fmt.Errorf("%w: SAM configuration response % X", ErrInvalidResponse, res)
	}
	return nil
}

func (d *Device) setPassiveActivationRetries(ctx context.Context, maxRetries byte) error {
	// MaxRetries payload: MxRtyATR, MxRtyPSL, MxRtyPassiveActivation
	return d.rfConfiguration(ctx, rfItemMaxRetries, 0x00, 0x00, maxRetries)
}

// SetRFField switches the antenna field on or off.
func (d *Device) SetRFField(ctx context.Context, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var v byte
	if on {
		v = 0x01
	}
	return d.rfConfiguration(ctx, rfItemField, v)
}

func (d *Device) rfConfiguration(ctx context.Context, item byte, values ...byte) error {
	res, err := d.transport.SendCommand(ctx, cmdRFConfiguration, append([]byte{item}, values...))
	if err != nil {
		return fmt.Errorf("RFConfiguration 0x%02X failed: %w", item, err)
	}
	if err := checkErrorFrame(res, "RFConfiguration"); err != nil {
		return err
	}
	if len(res) == 0 || res[0] != cmdRFConfiguration+1 {
		return fmt.Errorf("%w: RFConfiguration response % X", ErrInvalidResponse, res)
	}
	return nil
}

// SetTimeout sets the transport read timeout.
func (d *Device) SetTimeout(timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config.Timeout = timeout
	if err := d.transport.SetTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set timeout on transport: %w", err)
	}
	return nil
}

// SetPassiveActivationRetries configures the maximum number of retries for
// passive activation. A finite value avoids stuck states that 0xFF
// (infinite) can cause on some boards.
func (d *Device) SetPassiveActivationRetries(ctx context.Context, maxRetries byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.setPassiveActivationRetries(ctx, maxRetries); err != nil {
		return err
	}
	d.config.PassiveActivationRetries = maxRetries
	return nil
}

// Close releases the target, turns the field off and closes the transport.
// Release and field errors are logged; only the transport error is returned.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transport == nil || !d.transport.IsConnected() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.config.Timeout)
	defer cancel()
	if d.target != nil {
		if _, err := d.transport.SendCommand(ctx, cmdInRelease, []byte{0x00}); err != nil {
			ultralight.Debugf("pn532: InRelease on close: %v", err)
		}
		d.target = nil
	}
	if err := d.rfConfiguration(ctx, rfItemField, 0x00); err != nil {
		ultralight.Debugf("pn532: field off on close: %v", err)
	}

	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

func (d *Device) String() string {
	return fmt.Sprintf("pn532 (%s)", d.transport.Type())
}

// checkErrorFrame turns a {0x7F, code} error frame into a PN532Error.
func checkErrorFrame(res []byte, command string) error {
	if len(res) >= 1 && res[0] == tfiError {
		code := StatusInvalidCmd
		if len(res) >= 2 {
			code = res[1]
		}
		return NewPN532Error(code, command, "error frame")
	}
	return nil
}

// checkStatus validates a [code, status, ...] response.
func checkStatus(res []byte, cmd byte, command string) ([]byte, error) {
	if err := checkErrorFrame(res, command); err != nil {
		return nil, err
	}
	if len(res) < 2 || res[0] != cmd+1 {
		return nil, fmt.Errorf("%w: %s response % X", ErrInvalidResponse, command, res)
	}
	if status := res[1] & statusMask; status != StatusOK {
		return nil, NewPN532Error(status, command, "")
	}
	return res[2:], nil
}

var _ ultralight.Device = (*Device)(nil)

// errNotInitialized is returned by exchanges before a target is selected.
var errNotInitialized = errors.New("no target selected")
