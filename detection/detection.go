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

// Package detection finds PN532 readers on USB serial ports so a UART
// reader can be used without configuring its path.
package detection

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.bug.st/serial/enumerator"

	"github.com/ZaparooProject/go-ultralight"
	"github.com/ZaparooProject/go-ultralight/pn532"
	"github.com/ZaparooProject/go-ultralight/transport/uart"
)

// ErrNoDevicesFound is returned when no serial port looks like a reader.
var ErrNoDevicesFound = errors.New("no PN532 reader found")

const probeTimeout = 2 * time.Second

// USB-serial bridges found on PN532 boards
var knownBridges = []string{
	"067B:2303", // Prolific PL2303
	"0403:6001", // FTDI FT232
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
}

var productKeywords = []string{"pn532", "nfc", "rfid", "13.56"}

// Port is a candidate serial port.
type Port struct {
	Path    string
	VIDPID  string
	Product string
	Serial  string
	Likely  bool // known bridge or reader product string
}

// Options tune detection.
type Options struct {
	// Blocklist holds VID:PID pairs that are never probed.
	Blocklist []string
	// IgnorePaths are ports that are never probed.
	IgnorePaths []string
	// Probe sends GetFirmwareVersion to every candidate and keeps the
	// first that answers. Without it the first likely port wins.
	Probe bool
}

// Prober checks whether a PN532 answers on path.
type Prober func(ctx context.Context, path string) error

// Detector lists serial ports and picks a reader among them.
type Detector struct {
	list  func() ([]*enumerator.PortDetails, error)
	probe Prober
	opts  Options
}

// New returns a Detector over the system serial ports.
func New(opts Options) *Detector {
	return &Detector{list: enumerator.GetDetailedPortsList, probe: probeUART, opts: opts}
}

// Candidates returns the USB serial ports that may hold a reader, likely
// ones first.
func (d *Detector) Candidates() ([]Port, error) {
	details, err := d.list()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var ports []Port
	for _, pd := range details {
		if pd == nil || !pd.IsUSB {
			continue
		}
		port := Port{
			Path:    pd.Name,
			VIDPID:  strings.ToUpper(pd.VID + ":" + pd.PID),
			Product: pd.Product,
			Serial:  pd.SerialNumber,
		}
		if IsBlocked(port.VIDPID, d.opts.Blocklist) || IsPathIgnored(port.Path, d.opts.IgnorePaths) {
			continue
		}
		port.Likely = isLikelyPN532(port)
		ports = append(ports, port)
	}
	slices.SortStableFunc(ports, func(a, b Port) int {
		switch {
		case a.Likely == b.Likely:
			return 0
		case a.Likely:
			return -1
		default:
			return 1
		}
	})
	return ports, nil
}

// Detect returns the path of the first reader. It satisfies
// pn532.PathDetector.
func (d *Detector) Detect(ctx context.Context) (string, error) {
	ports, err := d.Candidates()
	if err != nil {
		return "", err
	}
	for _, port := range ports {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !d.opts.Probe {
			if port.Likely {
				return port.Path, nil
			}
			continue
		}
		// one attempt per port: retrying unknown devices only delays detection
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := d.probe(probeCtx, port.Path)
		cancel()
		if err == nil {
			return port.Path, nil
		}
		ultralight.Debugf("detection: %s (%s) did not answer: %v", port.Path, port.VIDPID, err)
	}
	return "", ErrNoDevicesFound
}

func probeUART(ctx context.Context, path string) error {
	transport, err := uart.New(path)
	if err != nil {
		return err
	}
	defer func() { _ = transport.Close() }()

	device, err := pn532.New(transport)
	if err != nil {
		return err
	}
	_, err = device.GetFirmwareVersion(ctx)
	return err
}

func isLikelyPN532(port Port) bool {
	if slices.Contains(knownBridges, port.VIDPID) {
		return true
	}
	product := strings.ToLower(port.Product)
	for _, keyword := range productKeywords {
		if strings.Contains(product, keyword) {
			return true
		}
	}
	return false
}

// IsBlocked checks if a VID:PID pair is in the blocklist (case-insensitive).
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	for _, blocked := range blocklist {
		if vidpid == strings.ToUpper(strings.TrimSpace(blocked)) {
			return true
		}
	}
	return false
}

// IsPathIgnored checks if a device path should be ignored. Paths are
// compared cleaned and case-insensitively.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	normalized := normalizedPath(devicePath)
	for _, ignore := range ignorePaths {
		if ignore != "" && normalizedPath(ignore) == normalized {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
