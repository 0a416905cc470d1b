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
)

// IOStats counts page outcomes of one read or write pass.
type IOStats struct {
	Total        int
	OK           int
	Failed       int
	Skipped      int
	Reselections int
}

func (s IOStats) String() string {
	return fmt.Sprintf("%d of %d pages ok (%d skipped, %d failed, %d reselections)",
		s.OK, s.Total, s.Skipped, s.Failed, s.Reselections)
}

// WriteIntents opts in to writing the protected pages. Without them pages
// 0-1 (UID), 2 (lock bits) and 3 (OTP) are skipped.
type WriteIntents struct {
	UID  bool
	Lock bool
	OTP  bool
}

// readBlock reads the 4 pages starting at block*4.
func (s *Session) readBlock(ctx context.Context, block int) ([]byte, error) {
	page := block * PagesInBlock
	resp, err := s.tx.sendBytes(ctx, "READ", page, []byte{cmdRead, byte(page)})
	if err != nil {
		return nil, err
	}
	if len(resp) < BlockSize {
		return nil, NewTransportError("READ", page,
			fmt.Errorf("%w: %d byte reply", ErrProtocolRejected, len(resp)))
	}
	return resp[:BlockSize], nil
}

// writePage stores data on page with a compatibility write: the 4 data
// bytes followed by 12 zero bytes.
func (s *Session) writePage(ctx context.Context, page int, data [PageSize]byte) error {
	var frame [2 + BlockSize]byte
	frame[0] = cmdCompWrite
	frame[1] = byte(page)
	copy(frame[2:], data[:])

	resp, err := s.tx.sendBytes(ctx, "WRITE", page, frame[:])
	if err != nil {
		return err
	}
	if len(resp) == 1 && resp[0]&0x0F != ack {
		return NewTransportError("WRITE", page,
			fmt.Errorf("%w: NAK 0x%X", ErrProtocolRejected, resp[0]&0x0F))
	}
	return nil
}

// ReadPages reads the whole tag into memory, one READ per 4-page block.
// Failed blocks count all their pages and keep their previous content; the
// target is re-selected before the next block. Only a failed re-selection
// is returned as an error. The configured EV1 secret is merged afterwards,
// since the tag never returns it.
//
// Pages of failed blocks are remembered as unread and a following
// WritePages leaves them alone. So are the password and PACK pages of an
// EV1 layout without a secret.
func (s *Session) ReadPages(ctx context.Context) (IOStats, error) {
	if err := s.requireTarget(); err != nil {
		return IOStats{}, err
	}
	pages := s.mem.Pages()
	stats := IOStats{Total: pages}

	clear(s.unread[:])
	s.setState(StateReading)
	s.progress.Begin(OpRead, pages)

	needReselect := false
	for block := range s.mem.Blocks() {
		first := block * PagesInBlock
		n := min(PagesInBlock, pages-first)

		if needReselect {
			if err := s.reselect(ctx); err != nil {
				s.progress.End(OpRead, stats)
				return stats, err
			}
			stats.Reselections++
			s.setState(StateReading)
			needReselect = false
		}

		result := PageOK
		data, err := s.readBlock(ctx, block)
		if err != nil {
			Debugf("read block %d: %v", block, err)
			result = PageFailed
			stats.Failed += n
			needReselect = true
			for p := first; p < first+n; p++ {
				s.unread[p] = true
			}
		} else {
			if err := s.mem.SetBlock(block, [BlockSize]byte(data)); err != nil {
				return stats, err
			}
			stats.OK += n
		}
		for p := first; p < first+n; p++ {
			s.progress.Page(p, result)
		}
	}
	s.progress.End(OpRead, stats)

	if s.secret != nil {
		if err := s.mem.ApplySecret(*s.secret); err != nil {
			s.setState(StateSelected)
			return stats, err
		}
	} else if pwd, pack, ok := SecretLayout(s.ev1); ok {
		// The tag reads them as zeros; writing those back would set the password.
		for _, p := range []int{pwd.Page, pack.Page} {
			if p < pages {
				s.unread[p] = true
			}
		}
	}
	s.readPages = stats.OK
	s.setState(StateSelected)
	Debugf("read: %s", stats)
	return stats, nil
}

// WritePages writes memory to the tag page by page. The UID pages are
// written only with intents.UID and after DetectMagic succeeded; pages 2
// and 3 only with the lock and OTP intents. Pages the last read could not
// get are skipped. A failed page is counted and the target re-selected
// before the next page; a failed re-selection aborts with ErrTagLost.
func (s *Session) WritePages(ctx context.Context, intents WriteIntents) (IOStats, error) {
	if err := s.requireTarget(); err != nil {
		return IOStats{}, err
	}
	pages := s.mem.Pages()
	stats := IOStats{Total: pages}

	start := PageUID0
	if intents.UID {
		magic, err := s.DetectMagic(ctx)
		if err != nil {
			return stats, err
		}
		if !magic {
			return stats, ErrMagicUnavailable
		}
	} else {
		start = PageLock
	}

	s.setState(StateWriting)
	s.progress.Begin(OpWrite, pages)
	for p := PageUID0; p < start; p++ {
		stats.Skipped++
		s.progress.Page(p, PageSkipped)
	}

	needReselect := false
	for page := start; page < pages; page++ {
		if (page == PageLock && !intents.Lock) || (page == PageOTP && !intents.OTP) {
			stats.Skipped++
			s.progress.Page(page, PageSkipped)
			continue
		}
		if s.unread[page] {
			Debugf("write page 0x%02X skipped: not read", page)
			stats.Skipped++
			s.progress.Page(page, PageSkipped)
			continue
		}

		if needReselect {
			if err := s.reselect(ctx); err != nil {
				s.progress.End(OpWrite, stats)
				return stats, err
			}
			stats.Reselections++
			s.setState(StateWriting)
			needReselect = false
		}

		data, err := s.mem.Page(page)
		if err != nil {
			return stats, err
		}
		if err := s.writePage(ctx, page, data); err != nil {
			Debugf("write page 0x%02X: %v", page, err)
			stats.Failed++
			needReselect = true
			s.progress.Page(page, PageFailed)
			continue
		}
		stats.OK++
		s.progress.Page(page, PageOK)
	}
	s.progress.End(OpWrite, stats)
	s.setState(StateSelected)
	Debugf("write: %s", stats)
	return stats, nil
}
