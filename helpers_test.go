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

	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-ultralight"
	testutil "github.com/ZaparooProject/go-ultralight/internal/testing"
)

// newSelectedSession returns a session with tag already selected and dump
// saving disabled.
func newSelectedSession(
	t *testing.T, tag *testutil.VirtualUltralight, opts ...ultralight.Option,
) (*ultralight.Session, *testutil.VirtualReader) {
	t.Helper()

	reader := testutil.NewVirtualReader(tag)
	opts = append([]ultralight.Option{ultralight.WithDumpPath("")}, opts...)
	session, err := ultralight.NewSession(reader, opts...)
	require.NoError(t, err)

	_, err = session.Select(context.Background())
	require.NoError(t, err)
	return session, reader
}

// fillTag writes a recognizable pattern to every user page of tag.
func fillTag(tag *testutil.VirtualUltralight) {
	for p := ultralight.PageUserData; p < tag.PageCount(); p++ {
		tag.SetPage(p, [4]byte{byte(p), byte(p), byte(p), byte(p)})
	}
}
