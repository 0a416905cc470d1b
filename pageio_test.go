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

package ultralight_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-ultralight"
	testutil "github.com/ZaparooProject/go-ultralight/internal/testing"
)

func TestReadPages_FullTag(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	fillTag(tag)
	session, reader := newSelectedSession(t, tag)

	stats, err := session.ReadPages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ultralight.IOStats{Total: 32, OK: 32}, stats)
	assert.Equal(t, tag.Image(), session.Memory().Bytes())
	assert.Equal(t, 32, session.ReadPageCount())
	assert.Len(t, reader.Frames, 8, "one READ per block")
	assert.Equal(t, []byte{0x30, 0x00, 0x02, 0xA8}, reader.Frames[0])
}

func TestReadPages_PartialFinalBlock(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	fillTag(tag)
	session, _ := newSelectedSession(t, tag, ultralight.WithPages(30))

	stats, err := session.ReadPages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, stats.Total)
	assert.Equal(t, 30, stats.OK)

	data := session.Memory().Bytes()
	require.Len(t, data, 30*ultralight.PageSize)
	assert.Equal(t, tag.Image()[:30*ultralight.PageSize], data)
}

func TestReadPages_FailedBlockIsCountedAndReselected(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	fillTag(tag)
	tag.FailRead(8, 1)
	session, reader := newSelectedSession(t, tag)

	stats, err := session.ReadPages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 28, stats.OK)
	assert.Equal(t, 4, stats.Failed)
	assert.Equal(t, 1, stats.Reselections)
	assert.Equal(t, 2, reader.Selections)

	// The failed block keeps its previous (zero) content.
	for p := 8; p < 12; p++ {
		page, err := session.Memory().Page(p)
		require.NoError(t, err)
		assert.Equal(t, [4]byte{}, page)
	}
	page, err := session.Memory().Page(12)
	require.NoError(t, err)
	assert.Equal(t, tag.Page(12), page)
	assert.Equal(t, 28, session.ReadPageCount())
}

func TestReadPages_TagLost(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	session, _ := newSelectedSession(t, tag)
	tag.Remove()

	stats, err := session.ReadPages(context.Background())
	require.ErrorIs(t, err, ultralight.ErrTagLost)
	assert.True(t, ultralight.IsFatal(err))
	assert.Equal(t, 4, stats.Failed)
}

func TestReadPages_MergesEV1Secret(t *testing.T) {
	t.Parallel()

	pwd := [4]byte{0xDE, 0xAD, 0xBE, 0xEF}
	pack := [2]byte{0x80, 0x80}
	tag := testutil.NewVirtualEV1(nil, ultralight.EV1UL11, pwd, pack)
	fillTag(tag)
	session, _ := newSelectedSession(t, tag,
		ultralight.WithSecret(ultralight.Secret{Type: ultralight.EV1UL11, Password: pwd, PACK: pack}))

	stats, err := session.ReadPages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, stats.Total)

	page, err := session.Memory().Page(0x12)
	require.NoError(t, err)
	assert.Equal(t, pwd, page)
	page, err = session.Memory().Page(0x13)
	require.NoError(t, err)
	assert.Equal(t, [4]byte{0x80, 0x80, 0x00, 0x00}, page)
	page, err = session.Memory().Page(0x11)
	require.NoError(t, err)
	assert.Equal(t, tag.Page(0x11), page)
}

func TestWritePages_SkipsProtectedPages(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	session, reader := newSelectedSession(t, tag)
	_, err := session.ReadPages(context.Background())
	require.NoError(t, err)
	require.NoError(t, session.Memory().SetPage(4, [4]byte{0xCA, 0xFE, 0xBA, 0xBE}))
	reader.Frames = nil

	stats, err := session.WritePages(context.Background(), ultralight.WriteIntents{})
	require.NoError(t, err)
	assert.Equal(t, ultralight.IOStats{Total: 32, OK: 28, Skipped: 4}, stats)
	assert.Equal(t, [4]byte{0xCA, 0xFE, 0xBA, 0xBE}, tag.Page(4))
	assert.NotContains(t, tag.Writes, 0)
	assert.NotContains(t, tag.Writes, 2)
	assert.NotContains(t, tag.Writes, 3)

	// Compatibility write: 4 data bytes then exactly 12 zeros.
	frame := reader.Frames[0]
	require.Len(t, frame, 2+16+2)
	assert.Equal(t, []byte{0xA0, 0x04, 0xCA, 0xFE, 0xBA, 0xBE}, frame[:6])
	assert.Equal(t, make([]byte, 12), frame[6:18])
}

func TestWritePages_LockAndOTPIntents(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	session, _ := newSelectedSession(t, tag)
	_, err := session.ReadPages(context.Background())
	require.NoError(t, err)
	require.NoError(t, session.Memory().SetPage(3, [4]byte{0x01, 0x02, 0x03, 0x04}))

	stats, err := session.WritePages(context.Background(), ultralight.WriteIntents{Lock: true, OTP: true})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 30, stats.OK)
	assert.Contains(t, tag.Writes, 2)
	assert.Equal(t, [4]byte{0x01, 0x02, 0x03, 0x04}, tag.Page(3))
}

func TestWritePages_FailedPageReselectsAndContinues(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	tag.FailWrite(10, 1)
	session, reader := newSelectedSession(t, tag)
	_, err := session.ReadPages(context.Background())
	require.NoError(t, err)
	selections := reader.Selections

	stats, err := session.WritePages(context.Background(), ultralight.WriteIntents{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Reselections)
	assert.Equal(t, selections+1, reader.Selections)
	assert.Equal(t, 27, stats.OK)
	assert.NotContains(t, tag.Writes, 10)
	for p := 11; p < 32; p++ {
		assert.Contains(t, tag.Writes, p)
	}
	assert.Equal(t, ultralight.StateSelected, session.State())
}

func TestWritePages_TagLostAborts(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	tag.FailWrite(6, 1)
	session, reader := newSelectedSession(t, tag)
	_, err := session.ReadPages(context.Background())
	require.NoError(t, err)
	reader.SelectHook = func(int) error {
		return ultralight.ErrNoTarget
	}

	stats, err := session.WritePages(context.Background(), ultralight.WriteIntents{})
	require.ErrorIs(t, err, ultralight.ErrTagLost)
	assert.True(t, ultralight.IsFatal(err))
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.OK, "pages 4 and 5 were written")
	assert.NotContains(t, tag.Writes, 7)
	assert.Equal(t, ultralight.StateIdle, session.State())
}

func TestWritePages_UIDIntentNeedsMagic(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	session, _ := newSelectedSession(t, tag)
	_, err := session.ReadPages(context.Background())
	require.NoError(t, err)

	_, err = session.WritePages(context.Background(), ultralight.WriteIntents{UID: true})
	require.ErrorIs(t, err, ultralight.ErrMagicUnavailable)
	require.ErrorIs(t, err, ultralight.ErrProtocolRejected)
	assert.Empty(t, tag.Writes)
}

func TestWritePages_UIDIntentOnMagicTag(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualUltralight(nil)
	tag.Magic = testutil.MagicDirectWrite
	session, _ := newSelectedSession(t, tag)
	_, err := session.ReadPages(context.Background())
	require.NoError(t, err)
	uidPage := tag.Page(0)

	newUID := [4]byte{0x04, 0x11, 0x22, 0x33}
	require.NoError(t, session.Memory().SetPage(0, newUID))

	stats, err := session.WritePages(context.Background(), ultralight.WriteIntents{UID: true})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, newUID, tag.Page(0))
	assert.NotEqual(t, uidPage, tag.Page(0))
	assert.Equal(t, session.Memory().Bytes()[4:8], tag.Image()[4:8])
}

func TestWritePages_UIDIntentOnGen1aUsesBackdoor(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualGen1a(nil)
	fillTag(tag)
	session, _ := newSelectedSession(t, tag)
	_, err := session.ReadPages(context.Background())
	require.NoError(t, err)
	page1 := tag.Page(1)

	newUID := [4]byte{0x04, 0xAA, 0xBB, 0xCC}
	require.NoError(t, session.Memory().SetPage(0, newUID))

	stats, err := session.WritePages(context.Background(), ultralight.WriteIntents{UID: true})
	require.NoError(t, err)
	assert.True(t, tag.BackdoorOpen())
	assert.Equal(t, ultralight.IOStats{Total: 32, OK: 30, Skipped: 2}, stats)
	assert.Equal(t, newUID, tag.Page(0))
	assert.Equal(t, page1, tag.Page(1))
	assert.Equal(t, session.Memory().Bytes()[16:], tag.Image()[16:])
}

func TestWriteGame_RoundTripKeepsUserPages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tag  func() *testutil.VirtualUltralight
		name string
		opts []ultralight.Option
	}{
		{
			name: "ultralight",
			tag:  func() *testutil.VirtualUltralight { return testutil.NewVirtualUltralight(nil) },
		},
		{
			name: "ev1 ul11",
			tag: func() *testutil.VirtualUltralight {
				return testutil.NewVirtualEV1(nil, ultralight.EV1UL11, [4]byte{}, [2]byte{})
			},
			opts: []ultralight.Option{ultralight.WithEV1Type(ultralight.EV1UL11)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tag := tt.tag()
			fillTag(tag)
			first, _ := newSelectedSession(t, tag, tt.opts...)
			_, err := first.WriteGame(context.Background(), ultralight.GameRecord{
				Type:     ultralight.GameSNES,
				Filename: "zelda.sfc",
			})
			require.NoError(t, err)
			before := tag.Image()

			session, _ := newSelectedSession(t, tag, tt.opts...)
			rec, _, err := session.ReadGame(context.Background())
			require.NoError(t, err)
			report, err := session.WriteGame(context.Background(), *rec)
			require.NoError(t, err)
			assert.Zero(t, report.Write.Failed)
			assert.Equal(t, before, tag.Image())
		})
	}
}
