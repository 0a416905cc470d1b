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
)

// Op names a page pass.
type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// PageResult is the outcome of one page in a pass.
type PageResult int

const (
	PageOK PageResult = iota
	PageFailed
	PageSkipped
)

// Rune returns the progress mark for the result.
func (r PageResult) Rune() rune {
	switch r {
	case PageFailed:
		return 'f'
	case PageSkipped:
		return 's'
	default:
		return '.'
	}
}

// Progress receives per-page outcomes of read and write passes.
type Progress interface {
	Begin(op Op, pages int)
	Page(page int, result PageResult)
	End(op Op, stats IOStats)
}

type nopProgress struct{}

func (nopProgress) Begin(Op, int)        {}
func (nopProgress) Page(int, PageResult) {}
func (nopProgress) End(Op, IOStats)      {}

// TextProgress renders passes as a line of page marks followed by a
// summary, e.g. "Reading 32 pages |....f...|".
type TextProgress struct {
	w io.Writer
}

// NewTextProgress returns a Progress writing to w.
func NewTextProgress(w io.Writer) *TextProgress {
	return &TextProgress{w: w}
}

func (p *TextProgress) Begin(op Op, pages int) {
	verb := "Reading"
	if op == OpWrite {
		verb = "Writing"
	}
	_, _ = fmt.Fprintf(p.w, "%s %d pages |", verb, pages)
}

func (p *TextProgress) Page(_ int, result PageResult) {
	_, _ = fmt.Fprintf(p.w, "%c", result.Rune())
}

func (p *TextProgress) End(op Op, stats IOStats) {
	_, _ = fmt.Fprint(p.w, "|\n")
	if op == OpWrite {
		_, _ = fmt.Fprintf(p.w, "Done, %d of %d pages written (%d pages skipped, %d pages failed).\n",
			stats.OK, stats.Total, stats.Skipped, stats.Failed)
		return
	}
	_, _ = fmt.Fprintf(p.w, "Done, %d of %d pages read (%d pages failed).\n",
		stats.OK, stats.Total, stats.Failed)
}
