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

package main

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/go-ultralight"
	"github.com/ZaparooProject/go-ultralight/detection"
	"github.com/ZaparooProject/go-ultralight/internal/config"
	"github.com/ZaparooProject/go-ultralight/libnfc"
	"github.com/ZaparooProject/go-ultralight/pn532"
	"github.com/ZaparooProject/go-ultralight/transport/i2c"
	"github.com/ZaparooProject/go-ultralight/transport/pcsc"
	"github.com/ZaparooProject/go-ultralight/transport/spi"
	"github.com/ZaparooProject/go-ultralight/transport/uart"
)

// defaultPaths are used when no device path is configured. UART readers
// are detected instead.
var defaultPaths = map[string]string{
	config.DriverI2C:    "/dev/i2c-1",
	config.DriverSPI:    "/dev/spidev0.0",
	config.DriverACR122: "ACR122",
}

func transportFactory(driver string) (pn532.TransportFactory, error) {
	switch driver {
	case config.DriverUART:
		return func(path string) (pn532.Transport, error) { return uart.New(path) }, nil
	case config.DriverI2C:
		return func(path string) (pn532.Transport, error) { return i2c.New(path) }, nil
	case config.DriverSPI:
		return func(path string) (pn532.Transport, error) { return spi.New(path) }, nil
	case config.DriverACR122:
		return func(path string) (pn532.Transport, error) { return pcsc.New(path) }, nil
	default:
		return nil, fmt.Errorf("no PN532 transport for driver %q", driver)
	}
}

// openDevice opens the reader named by the device section.
func openDevice(ctx context.Context, cfg *config.Config) (ultralight.Device, error) {
	if cfg.Device.Driver == config.DriverLibNFC {
		dev, err := libnfc.Open(cfg.Device.Path)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}

	factory, err := transportFactory(cfg.Device.Driver)
	if err != nil {
		return nil, err
	}
	path := cfg.Device.Path
	if path == "" {
		path = defaultPaths[cfg.Device.Driver]
	}

	var opts []pn532.ConnectOption
	if cfg.Device.Timeout > 0 {
		opts = append(opts, pn532.WithDeviceOptions(pn532.WithTimeout(cfg.Device.Timeout)))
	}
	if path == "" {
		opts = append(opts, pn532.WithPathDetector(detection.New(detection.Options{Probe: true}).Detect))
	}
	dev, err := pn532.Connect(ctx, factory, path, opts...)
	if err != nil {
		return nil, err
	}
	return dev, nil
}
