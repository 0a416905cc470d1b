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

package testing

import (
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures a JitteryConnection.
type JitterConfig struct {
	// MaxLatency is the upper bound of the random delay before each read.
	MaxLatency time.Duration
	// FragmentMinBytes is the smallest fragment a read returns.
	FragmentMinBytes int
	// Seed makes fragmentation reproducible; 0 picks a random seed.
	Seed uint64
	// USBBoundary splits reads at multiples of 64 bytes, like full-speed
	// USB bulk packets of a CH340 or FTDI bridge.
	USBBoundary bool
}

// DefaultJitterConfig returns fragmenting reads with a small latency.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency:       2 * time.Millisecond,
		FragmentMinBytes: 1,
	}
}

// JitteryConnection wraps an io.ReadWriter and hands out what the backend
// produced in random fragments after a random delay. Writes pass through.
// Nothing is lost or reordered.
type JitteryConnection struct {
	backend  io.ReadWriter
	rng      *rand.Rand
	pending  []byte
	config   JitterConfig
	returned int
}

// NewJitteryConnection wraps backend.
func NewJitteryConnection(backend io.ReadWriter, config JitterConfig) *JitteryConnection {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // test jitter, not crypto
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &JitteryConnection{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0x5A5A5A5A)), //nolint:gosec // test jitter, not crypto
	}
}

// Write implements io.Writer.
func (j *JitteryConnection) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // pass-through
}

// Read implements io.Reader.
func (j *JitteryConnection) Read(buf []byte) (int, error) {
	if j.config.MaxLatency > 0 {
		time.Sleep(time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)))
	}

	if len(j.pending) == 0 {
		chunk := make([]byte, 1024)
		n, err := j.backend.Read(chunk)
		if err != nil || n == 0 {
			return 0, err //nolint:wrapcheck // pass-through
		}
		j.pending = append(j.pending, chunk[:n]...)
	}

	n := min(len(j.pending), len(buf))
	if j.config.USBBoundary {
		if untilBoundary := 64 - j.returned%64; untilBoundary < n {
			n = untilBoundary
		}
	}
	if n > j.config.FragmentMinBytes {
		n = j.config.FragmentMinBytes + j.rng.IntN(n-j.config.FragmentMinBytes+1)
	}

	copy(buf, j.pending[:n])
	j.pending = j.pending[n:]
	j.returned += n
	return n, nil
}

// Buffered returns the number of bytes read from the backend but not yet
// returned.
func (j *JitteryConnection) Buffered() int {
	return len(j.pending)
}
