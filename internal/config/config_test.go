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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-ultralight"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gametag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FullConfigResolvesRelativePaths(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
device:
  driver: pn532-i2c
  path: /dev/i2c-1
  timeout: 250ms
tag:
  pages: 41
  ev1: ul21
  password: "FFFFFFFF"
  pack: "0000"
  auth: true
write:
  otp: true
dump:
  path: dumps/last.mfd
log:
  debug: true
  session_dir: logs
  format: json
`)
	dir := filepath.Dir(path)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverI2C, cfg.Device.Driver)
	assert.Equal(t, "/dev/i2c-1", cfg.Device.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Device.Timeout)
	assert.Equal(t, 41, cfg.Tag.Pages)
	assert.True(t, cfg.Tag.Auth)
	assert.Equal(t, filepath.Join(dir, "dumps", "last.mfd"), cfg.Dump.Path)
	assert.Equal(t, filepath.Join(dir, "logs"), cfg.Log.SessionDir)
	assert.Equal(t, FormatJSON, cfg.Log.Format)
	assert.True(t, cfg.Log.Debug)
	assert.Equal(t, ultralight.WriteIntents{OTP: true}, cfg.Intents())

	secret, ok, err := cfg.Secret()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ultralight.EV1UL21, secret.Type)
	assert.Equal(t, [4]byte{0xFF, 0xFF, 0xFF, 0xFF}, secret.Password)
	assert.Equal(t, [2]byte{0x00, 0x00}, secret.PACK)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "device:\n  path: /dev/ttyUSB0\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverUART, cfg.Device.Driver)
	assert.Equal(t, FormatText, cfg.Log.Format)
	assert.Equal(t, filepath.Join(filepath.Dir(path), DefaultDumpPath), cfg.Dump.Path)
	assert.Equal(t, ultralight.WriteIntents{}, cfg.Intents())

	_, ok, err := cfg.Secret()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoad_EmptyFile(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DriverUART, cfg.Device.Driver)
}

func TestLoad_AbsolutePathsUntouched(t *testing.T) {
	t.Parallel()

	abs := filepath.Join(t.TempDir(), "tag.mfd")
	cfg, err := Load(writeConfig(t, "dump:\n  path: "+abs+"\n"))
	require.NoError(t, err)
	assert.Equal(t, abs, cfg.Dump.Path)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "unknown field", body: "device:\n  port: /dev/ttyUSB0\n", want: "field port not found"},
		{name: "bad yaml", body: "device: [", want: "parse config yaml"},
		{name: "driver", body: "device:\n  driver: pn533\n", want: "device.driver"},
		{name: "negative timeout", body: "device:\n  timeout: -1s\n", want: "device.timeout"},
		{name: "ev1", body: "tag:\n  ev1: ntag213\n", want: "tag.ev1"},
		{name: "pages", body: "tag:\n  pages: 64\n", want: "tag.pages"},
		{name: "password without ev1", body: "tag:\n  password: FFFFFFFF\n", want: "needs tag.ev1"},
		{name: "short password", body: "tag:\n  ev1: ul11\n  password: FFFF\n", want: "tag.password"},
		{name: "auth without password", body: "tag:\n  ev1: ul11\n  auth: true\n", want: "tag.auth"},
		{name: "pack", body: "tag:\n  pack: XYZW\n", want: "tag.pack"},
		{
			name: "pages below password",
			body: "tag:\n  ev1: ul21\n  password: FFFFFFFF\n  pages: 32\n",
			want: "tag.pages",
		},
		{name: "empty dump path", body: "dump:\n  path: \"  \"\n", want: "dump.path"},
		{name: "log format", body: "log:\n  format: xml\n", want: "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate_ErrorKind(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Device.Driver = "nfc-tool"
	require.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidate_SecretPages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ev1     string
		pages   int
		wantErr bool
	}{
		{name: "ul21 in 32 pages", ev1: "ul21", pages: 32, wantErr: true},
		{name: "ul21 up to password", ev1: "ul21", pages: 0x28, wantErr: true},
		{name: "ul21 full", ev1: "ul21", pages: 0x29},
		{name: "ul21 type default", ev1: "ul21"},
		{name: "ul11 in 32 pages", ev1: "ul11", pages: 32},
		{name: "ul11 short", ev1: "ul11", pages: 0x10, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			cfg.Tag.EV1 = tt.ev1
			cfg.Tag.Password = "FFFFFFFF"
			cfg.Tag.Pages = tt.pages

			err := cfg.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalid)
			require.ErrorIs(t, err, ultralight.ErrPageOutOfRange)
		})
	}
}

func TestConfig_EV1Type(t *testing.T) {
	t.Parallel()

	cfg := Default()
	ev1, err := cfg.EV1Type()
	require.NoError(t, err)
	assert.Equal(t, ultralight.EV1None, ev1)

	cfg.Tag.EV1 = "UL11"
	ev1, err = cfg.EV1Type()
	require.NoError(t, err)
	assert.Equal(t, ultralight.EV1UL11, ev1)
}
