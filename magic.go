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

import "context"

// magicCheckLen bytes of page 0 must read back as zero.
const magicCheckLen = 8

// DetectMagic reports whether the UID pages of the selected tag can be
// rewritten. It zeroes pages 0 and 1 and reads them back; a tag that kept
// its UID gets the Gen1a backdoor unlock instead, and the result of that
// unlock is reported. Only a lost tag is returned as an error.
func (s *Session) DetectMagic(ctx context.Context) (bool, error) {
	if err := s.requireTarget(); err != nil {
		return false, err
	}
	s.setState(StateUnlocking)

	var zero [PageSize]byte
	failed := false
	for page := PageUID0; page <= PageUID1; page++ {
		if failed {
			if err := s.reselect(ctx); err != nil {
				return false, err
			}
			s.setState(StateUnlocking)
		}
		err := s.writePage(ctx, page, zero)
		if err != nil {
			Debugf("magic: zero page %d: %v", page, err)
		}
		failed = err != nil
	}
	if failed {
		if err := s.reselect(ctx); err != nil {
			return false, err
		}
		s.setState(StateUnlocking)
	}

	block, err := s.readBlock(ctx, 0)
	if err == nil && isZero(block[:magicCheckLen]) {
		Debugln("magic: UID pages are writable")
		s.setState(StateSelected)
		return true, nil
	}

	if err := s.tx.unlock(ctx); err != nil {
		Debugf("magic: backdoor unlock failed: %v", err)
		s.setState(StateSelected)
		return false, nil
	}
	Debugln("magic: backdoor unlocked")
	s.setState(StateSelected)
	return true, nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
