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
	"io"
	"os"
)

// DefaultDumpPath is where a read saves the tag image.
const DefaultDumpPath = "dump.mfd"

// WriteDump writes the first pages pages of m to w, page-major, with no
// header or checksum.
func WriteDump(w io.Writer, m *Memory, pages int) error {
	if pages < 0 || pages > m.Pages() {
		return fmt.Errorf("%w: dump of %d pages from %d", ErrPageOutOfRange, pages, m.Pages())
	}
	data := m.Bytes()[:pages*PageSize]
	n, err := w.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return io.ErrShortWrite
	}
	return nil
}

// SaveDump writes the first pages pages of m to path.
func SaveDump(path string, m *Memory, pages int) (err error) {
	f, err := os.Create(path) //nolint:gosec // dump path is chosen by the user
	if err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &PersistenceError{Path: path, Err: cerr}
		}
	}()
	if err := WriteDump(f, m, pages); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	return nil
}

// LoadDump reads a dump written by SaveDump.
func LoadDump(path string) (*Memory, error) {
	data, err := os.ReadFile(path) //nolint:gosec // dump path is chosen by the user
	if err != nil {
		return nil, &PersistenceError{Path: path, Err: err}
	}
	m := &Memory{}
	if err := m.Load(data); err != nil {
		return nil, &PersistenceError{Path: path, Err: err}
	}
	return m, nil
}
