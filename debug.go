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
	"fmt"
	"os"
	"sync/atomic"
)

var debugEnabled atomic.Bool

func init() {
	debugEnabled.Store(os.Getenv("ULTRALIGHT_DEBUG") != "" || os.Getenv("DEBUG") != "")
}

// Debugf logs a debug line. It always lands in the session log when one is
// open, and on stderr only with debug enabled.
func Debugf(format string, args ...any) {
	debug(fmt.Sprintf(format, args...))
}

// Debugln is Debugf with fmt.Sprint formatting.
func Debugln(args ...any) {
	debug(fmt.Sprint(args...))
}

func debug(msg string) {
	sink.writeLine("DEBUG: %s", msg)
	if debugEnabled.Load() {
		fmt.Fprintln(os.Stderr, "DEBUG:", msg)
	}
}

// SetDebugEnabled turns stderr debug output on or off, overriding the
// ULTRALIGHT_DEBUG and DEBUG environment variables.
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

func DebugEnabled() bool {
	return debugEnabled.Load()
}
