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

package syncutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMutex_GuardsCounter(t *testing.T) {
	t.Parallel()

	var mu Mutex
	counter := 0
	done := make(chan struct{})
	for range 8 {
		go func() {
			for range 100 {
				mu.Lock()
				counter++
				mu.Unlock()
			}
			done <- struct{}{}
		}()
	}
	for range 8 {
		<-done
	}
	assert.Equal(t, 800, counter)
}

func TestRWMutex_AllowsConcurrentReaders(t *testing.T) {
	t.Parallel()

	var mu RWMutex
	mu.RLock()
	acquired := make(chan struct{})
	go func() {
		mu.RLock()
		close(acquired)
		mu.RUnlock()
	}()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second reader blocked")
	}
	mu.RUnlock()
}

func TestSetLockTimeout_AcceptsZero(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { SetLockTimeout(0) })
}
