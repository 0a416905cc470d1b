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

package ultralight

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Polling defaults for WaitForTarget.
const (
	DefaultPollAttempts = 20
	PollInitialBackoff  = 100 * time.Millisecond
	PollMaxBackoff      = 500 * time.Millisecond
	PollTimeout         = 10 * time.Second
)

// RetryConfig is an exponential backoff policy. The page loops never retry;
// it drives target polling and reader connection.
type RetryConfig struct {
	// MaxAttempts of 0 means a single call with no retry.
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// Jitter adds up to Jitter*backoff of random delay to each sleep.
	Jitter float64
	// RetryTimeout bounds all attempts together; 0 leaves it to ctx.
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns the policy WaitForTarget uses unless
// WithRetryConfig replaces it.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       DefaultPollAttempts,
		InitialBackoff:    PollInitialBackoff,
		MaxBackoff:        PollMaxBackoff,
		BackoffMultiplier: 1.5,
		Jitter:            0.1,
		RetryTimeout:      PollTimeout,
	}
}

// RetryableFunc is one attempt.
type RetryableFunc func() error

// RetryWithConfig calls fn until it succeeds, fails with an error IsRetryable
// rejects, or the attempts or the timeout run out. The last attempt's error
// is returned in the latter case.
func RetryWithConfig(ctx context.Context, config *RetryConfig, fn RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts <= 0 {
		return fn()
	}
	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}

	var lastErr error
	backoff := config.InitialBackoff
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}

		err := fn()
		if err == nil || !IsRetryable(err) {
			return err
		}
		lastErr = err
		Debugf("attempt %d/%d failed: %v", attempt, config.MaxAttempts, err)
		if attempt == config.MaxAttempts {
			return lastErr
		}

		timer := time.NewTimer(jittered(backoff, config.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
		backoff = nextBackoff(backoff, config)
	}
}

func nextBackoff(current time.Duration, config *RetryConfig) time.Duration {
	return min(time.Duration(float64(current)*config.BackoffMultiplier), config.MaxBackoff)
}

func jittered(base time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return base
	}
	return base + time.Duration(rand.Float64()*factor*float64(base))
}
