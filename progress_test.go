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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextProgress_Read(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewTextProgress(&buf)
	p.Begin(OpRead, 6)
	for i, r := range []PageResult{PageOK, PageOK, PageFailed, PageFailed, PageOK, PageOK} {
		p.Page(i, r)
	}
	p.End(OpRead, IOStats{Total: 6, OK: 4, Failed: 2})

	assert.Equal(t, "Reading 6 pages |..ff..|\nDone, 4 of 6 pages read (2 pages failed).\n", buf.String())
}

func TestTextProgress_Write(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewTextProgress(&buf)
	p.Begin(OpWrite, 5)
	for i, r := range []PageResult{PageSkipped, PageSkipped, PageOK, PageFailed, PageOK} {
		p.Page(i, r)
	}
	p.End(OpWrite, IOStats{Total: 5, OK: 2, Failed: 1, Skipped: 2})

	assert.Equal(t,
		"Writing 5 pages |ss.f.|\nDone, 2 of 5 pages written (2 pages skipped, 1 pages failed).\n",
		buf.String())
}
