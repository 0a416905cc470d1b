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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-ultralight"
)

// Connection retry defaults
const (
	DefaultConnectionRetries = 3
	connectInitialBackoff    = 100 * time.Millisecond
	connectMaxBackoff        = 500 * time.Millisecond
	connectRetryTimeout      = 10 * time.Second
)

// TransportFactory is a function type for creating transports
type TransportFactory func(path string) (Transport, error)

// PathDetector finds a reader path when none was configured.
type PathDetector func(ctx context.Context) (string, error)

// ConnectOption represents a functional option for Connect
type ConnectOption func(*connectConfig) error

type connectConfig struct {
	detector          PathDetector
	deviceOptions     []Option
	connectionRetries int
}

// WithDeviceOptions adds device-level options
func WithDeviceOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceOptions = append(c.deviceOptions, opts...)
		return nil
	}
}

// WithConnectionRetries sets the number of connection attempts
func WithConnectionRetries(maxAttempts int) ConnectOption {
	return func(c *connectConfig) error {
		if maxAttempts < 1 {
			return fmt.Errorf("connection retries must be at least 1, got %d", maxAttempts)
		}
		c.connectionRetries = maxAttempts
		return nil
	}
}

// WithPathDetector resolves an empty path through detector.
func WithPathDetector(detector PathDetector) ConnectOption {
	return func(c *connectConfig) error {
		c.detector = detector
		return nil
	}
}

// Connect opens a transport with factory and initializes a Device on it.
// Transient failures during Init are retried on the same transport;
// detected paths get a single attempt.
//
//	dev, err := pn532.Connect(ctx, uart.New, "/dev/ttyUSB0")
func Connect(ctx context.Context, factory TransportFactory, path string, opts ...ConnectOption) (*Device, error) {
	if factory == nil {
		return nil, errors.New("transport factory not provided")
	}
	config := &connectConfig{connectionRetries: DefaultConnectionRetries}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}

	attempts := config.connectionRetries
	if path == "" {
		if config.detector == nil {
			return nil, fmt.Errorf("%w: no device path", ErrDeviceNotFound)
		}
		detected, err := config.detector(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to detect devices: %w", err)
		}
		ultralight.Debugf("pn532: detected reader at %s", detected)
		path = detected
		attempts = 1
	}

	transport, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}

	device, err := setupDeviceWithRetry(ctx, transport, config.deviceOptions, attempts)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	return device, nil
}

func setupDeviceWithRetry(ctx context.Context, transport Transport, opts []Option, attempts int) (*Device, error) {
	device, err := New(transport, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	retryConfig := &ultralight.RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    connectInitialBackoff,
		MaxBackoff:        connectMaxBackoff,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      connectRetryTimeout,
	}
	err = ultralight.RetryWithConfig(ctx, retryConfig, func() error {
		if err := device.Init(ctx); err != nil {
			if IsRetryable(err) && !IsFatal(err) {
				return ultralight.NewTransportError("connect", ultralight.NoPage, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize device after %d attempts: %w", attempts, err)
	}
	return device, nil
}
