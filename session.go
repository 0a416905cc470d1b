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
	"context"
	"errors"
	"fmt"
)

// State is the position of a Session in its tag lifecycle.
type State int

const (
	StateIdle State = iota
	StateSelected
	StateReading
	StateUnlocking
	StateWriting
	StateReselecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelected:
		return "selected"
	case StateReading:
		return "reading"
	case StateUnlocking:
		return "unlocking"
	case StateWriting:
		return "writing"
	case StateReselecting:
		return "reselecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Report summarizes a ReadGame or WriteGame call. Page failures are not
// errors; they show up here.
type Report struct {
	UID      string
	DumpPath string
	Read     IOStats
	Write    IOStats
}

// Option configures a Session
type Option func(*Session) error

// WithPages sets the tag page count (1 to MaxPages).
func WithPages(pages int) Option {
	return func(s *Session) error {
		if pages <= 0 || pages > MaxPages {
			return fmt.Errorf("%w: %d pages (max %d)", ErrPageOutOfRange, pages, MaxPages)
		}
		s.pages = pages
		s.pagesSet = true
		return nil
	}
}

// WithSecret configures the EV1 password and PACK. Without WithPages the
// page count follows the EV1 type.
func WithSecret(secret Secret) Option {
	return func(s *Session) error {
		if _, _, ok := SecretLayout(secret.Type); !ok {
			return fmt.Errorf("%w: secret needs an EV1 type", ErrMalformedInput)
		}
		if s.ev1 != EV1None && s.ev1 != secret.Type {
			return fmt.Errorf("%w: secret for %s on a %s layout", ErrMalformedInput, secret.Type, s.ev1)
		}
		s.secret = &secret
		s.ev1 = secret.Type
		return nil
	}
}

// WithEV1Type sets the EV1 memory layout without a secret. The record area
// then stops before the configuration pages and, without WithPages, the
// page count follows the type.
func WithEV1Type(t EV1Type) Option {
	return func(s *Session) error {
		if _, _, ok := SecretLayout(t); t != EV1None && !ok {
			return fmt.Errorf("%w: EV1 type %s", ErrMalformedInput, t)
		}
		if s.secret != nil && s.secret.Type != t {
			return fmt.Errorf("%w: %s layout with a %s secret", ErrMalformedInput, t, s.secret.Type)
		}
		s.ev1 = t
		return nil
	}
}

// WithPasswordAuth authenticates with the configured secret after each
// selection, before any page I/O.
func WithPasswordAuth() Option {
	return func(s *Session) error {
		s.authenticate = true
		return nil
	}
}

// WithProgress sets the per-page progress reporter.
func WithProgress(p Progress) Option {
	return func(s *Session) error {
		if p == nil {
			p = nopProgress{}
		}
		s.progress = p
		return nil
	}
}

// WithDumpPath sets where ReadTag saves the image ("" disables saving).
func WithDumpPath(path string) Option {
	return func(s *Session) error {
		s.dumpPath = path
		return nil
	}
}

// WithWriteIntents sets which protected pages WriteGame may write.
func WithWriteIntents(intents WriteIntents) Option {
	return func(s *Session) error {
		s.intents = intents
		return nil
	}
}

// WithRetryConfig sets the polling policy of WaitForTarget.
func WithRetryConfig(config *RetryConfig) Option {
	return func(s *Session) error {
		s.retry = config
		return nil
	}
}

// WithExpectedUID refuses to operate on a tag with another UID.
func WithExpectedUID(uid []byte) Option {
	return func(s *Session) error {
		s.expectUID = append([]byte(nil), uid...)
		return nil
	}
}

// Session drives one tag through one device. It owns the tag image and is
// not safe for concurrent use.
type Session struct {
	dev          Device
	tx           *transceiver
	mem          *Memory
	target       *Target
	secret       *Secret
	progress     Progress
	retry        *RetryConfig
	dumpPath     string
	expectUID    []byte
	intents      WriteIntents
	pages        int
	readPages    int
	state        State
	ev1          EV1Type
	unread       [MaxPages]bool
	pagesSet     bool
	authenticate bool
}

// NewSession creates a Session on dev.
func NewSession(dev Device, opts ...Option) (*Session, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", ErrMalformedInput)
	}
	s := &Session{
		dev:      dev,
		tx:       &transceiver{dev: dev},
		progress: nopProgress{},
		retry:    DefaultRetryConfig(),
		dumpPath: DefaultDumpPath,
		pages:    DefaultPages,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.ev1 != EV1None && !s.pagesSet {
		s.pages = s.ev1.Pages()
	}
	if s.authenticate && s.secret == nil {
		return nil, fmt.Errorf("%w: password authentication needs a secret", ErrMalformedInput)
	}
	if s.secret != nil {
		if err := CheckSecretPages(s.secret.Type, s.pages); err != nil {
			return nil, err
		}
	}
	mem, err := NewMemory(s.pages)
	if err != nil {
		return nil, err
	}
	s.mem = mem
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Target returns the selected tag, or nil.
func (s *Session) Target() *Target {
	return s.target
}

// Memory returns the tag image.
func (s *Session) Memory() *Memory {
	return s.mem
}

// ReadPageCount returns the number of pages the last read got from the tag.
func (s *Session) ReadPageCount() int {
	return s.readPages
}

// EV1Type returns the configured layout.
func (s *Session) EV1Type() EV1Type {
	return s.ev1
}

func (s *Session) setState(next State) {
	if s.state != next {
		Debugf("session: %s -> %s", s.state, next)
		s.state = next
	}
}

func (s *Session) requireTarget() error {
	if s.target == nil {
		return fmt.Errorf("%w: select a tag first", ErrNoTarget)
	}
	return nil
}

// Select acquires the tag in the field. The tag must be an Ultralight and
// match the expected UID if one is configured.
func (s *Session) Select(ctx context.Context) (*Target, error) {
	target, err := s.dev.SelectPassiveTarget(ctx)
	if err != nil {
		s.target = nil
		s.setState(StateIdle)
		if errors.Is(err, ErrNoTarget) {
			return nil, err
		}
		return nil, NewTransportError("select", NoPage, err)
	}
	if err := s.checkTarget(target); err != nil {
		s.target = nil
		s.setState(StateIdle)
		return nil, err
	}
	s.target = target
	s.setState(StateSelected)
	Debugf("selected %s (ATQA % X, SAK 0x%02X)", target.UIDString(), target.ATQA, target.SAK)

	if s.authenticate {
		if err := s.authWithSecret(ctx); err != nil {
			return target, err
		}
	}
	return target, nil
}

func (s *Session) checkTarget(target *Target) error {
	if !target.IsUltralight() {
		return fmt.Errorf("%w: ATQA % X", ErrWrongTagFamily, target.ATQA)
	}
	if len(s.expectUID) > 0 && !bytes.Equal(target.UID, s.expectUID) {
		return fmt.Errorf("%w: got %s", ErrUIDMismatch, target.UIDString())
	}
	return nil
}

// WaitForTarget polls Select until a tag is presented, per the retry
// configuration.
func (s *Session) WaitForTarget(ctx context.Context) (*Target, error) {
	var target *Target
	err := RetryWithConfig(ctx, s.retry, func() error {
		var err error
		target, err = s.Select(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}

// reselect re-acquires the tag after a page failure. Any failure, including
// a different tag in the field, means the tag was lost.
func (s *Session) reselect(ctx context.Context) error {
	s.setState(StateReselecting)
	target, err := s.dev.SelectPassiveTarget(ctx)
	if err == nil && !bytes.Equal(target.UID, s.target.UID) {
		err = fmt.Errorf("UID changed to %s", target.UIDString())
	}
	if err != nil {
		s.target = nil
		s.setState(StateIdle)
		return fmt.Errorf("%w: %w", ErrTagLost, err)
	}
	s.target = target
	s.setState(StateSelected)
	if s.authenticate {
		if err := s.authWithSecret(ctx); err != nil {
			Debugf("re-authentication failed: %v", err)
		}
	}
	return nil
}

// ProbeVersion sends GET_VERSION to the selected tag.
func (s *Session) ProbeVersion(ctx context.Context) (*Version, error) {
	if err := s.requireTarget(); err != nil {
		return nil, err
	}
	return s.tx.probeVersion(ctx)
}

// Authenticate sends PWD_AUTH and returns the raw reply.
func (s *Session) Authenticate(ctx context.Context, pwd [4]byte) ([]byte, error) {
	if err := s.requireTarget(); err != nil {
		return nil, err
	}
	s.setState(StateUnlocking)
	defer s.setState(StateSelected)
	return s.tx.authenticate(ctx, pwd)
}

// Unlock opens the Gen1a backdoor of the selected tag.
func (s *Session) Unlock(ctx context.Context) error {
	if err := s.requireTarget(); err != nil {
		return err
	}
	s.setState(StateUnlocking)
	defer s.setState(StateSelected)
	return s.tx.unlock(ctx)
}

func (s *Session) authWithSecret(ctx context.Context) error {
	reply, err := s.Authenticate(ctx, s.secret.Password)
	if err != nil {
		return err
	}
	if !VerifyPACK(reply, s.secret.PACK) {
		return fmt.Errorf("%w: PACK % X does not match", ErrProtocolRejected, reply)
	}
	return nil
}

// ReadTag selects the tag if needed, reads it and saves the dump. A dump
// that cannot be saved closes the device.
func (s *Session) ReadTag(ctx context.Context) (*Report, error) {
	if s.target == nil {
		if _, err := s.Select(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.mem.Reset(s.pages); err != nil {
		return nil, err
	}
	report := &Report{UID: s.target.UIDString()}
	stats, err := s.ReadPages(ctx)
	report.Read = stats
	if err != nil {
		return report, err
	}
	if s.dumpPath != "" {
		if err := SaveDump(s.dumpPath, s.mem, s.readPages); err != nil {
			if cerr := s.Close(); cerr != nil {
				Debugf("close after dump failure: %v", cerr)
			}
			return report, err
		}
		report.DumpPath = s.dumpPath
	}
	return report, nil
}

// ReadGame reads the tag and decodes its game record.
func (s *Session) ReadGame(ctx context.Context) (*GameRecord, *Report, error) {
	report, err := s.ReadTag(ctx)
	if err != nil {
		return nil, report, err
	}
	rec := DecodeGame(s.mem, s.EV1Type())
	Debugf("game record: %s %q", rec.Type, rec.Filename)
	return rec, report, nil
}

// WriteGame reads the tag, replaces its game record and writes it back.
// Pages outside the record area keep what the read returned.
func (s *Session) WriteGame(ctx context.Context, rec GameRecord) (*Report, error) {
	if _, ok := gameTypeNames[rec.Type]; !ok {
		return nil, fmt.Errorf("%w: code 0x%02X", ErrUnknownGameType, byte(rec.Type))
	}
	if capacity := RecordCapacity(s.EV1Type(), s.pages); len(rec.Filename) > capacity {
		return nil, fmt.Errorf("%w: %d bytes, at most %d fit", ErrFilenameTooLong, len(rec.Filename), capacity)
	}
	report, err := s.ReadTag(ctx)
	if err != nil {
		return report, err
	}
	if err := EncodeGame(s.mem, s.EV1Type(), rec); err != nil {
		return report, err
	}
	// The record area is fully rewritten, read or not.
	for p := PageUserData; p < recordEnd(s.EV1Type(), s.mem.Pages()); p++ {
		s.unread[p] = false
	}
	report.Write, err = s.WritePages(ctx, s.intents)
	return report, err
}

// WriteMemory writes a whole image, e.g. a loaded dump, to the tag.
func (s *Session) WriteMemory(ctx context.Context, m *Memory) (*Report, error) {
	if m.Pages() > s.mem.Pages() {
		return nil, fmt.Errorf("%w: image of %d pages for a %d page tag", ErrPageOutOfRange, m.Pages(), s.mem.Pages())
	}
	if s.target == nil {
		if _, err := s.Select(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.mem.Load(m.Bytes()); err != nil {
		return nil, err
	}
	clear(s.unread[:])
	report := &Report{UID: s.target.UIDString()}
	var err error
	report.Write, err = s.WritePages(ctx, s.intents)
	return report, err
}

// Close releases the device.
func (s *Session) Close() error {
	s.target = nil
	s.setState(StateIdle)
	if err := s.dev.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.dev, err)
	}
	return nil
}
