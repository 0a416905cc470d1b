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

// Package config loads the gametag YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZaparooProject/go-ultralight"
)

// Reader drivers
const (
	DriverUART   = "pn532-uart"
	DriverI2C    = "pn532-i2c"
	DriverSPI    = "pn532-spi"
	DriverACR122 = "acr122"
	DriverLibNFC = "libnfc"
)

// Log formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// DefaultDumpPath is where a read tag image is saved when nothing else is
// configured.
const DefaultDumpPath = "dump.mfd"

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Device DeviceConfig `yaml:"device"`
	Tag    TagConfig    `yaml:"tag"`
	Write  WriteConfig  `yaml:"write"`
	Dump   DumpConfig   `yaml:"dump"`
	Log    LogConfig    `yaml:"log"`
}

type DeviceConfig struct {
	Driver  string        `yaml:"driver"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// TagConfig describes the tag. Password and PACK are written to the EV1
// secret pages; with Auth the tag is also unlocked with them before any
// page I/O.
type TagConfig struct {
	EV1      string `yaml:"ev1"`
	Password string `yaml:"password"`
	PACK     string `yaml:"pack"`
	Pages    int    `yaml:"pages"`
	Auth     bool   `yaml:"auth"`
}

// WriteConfig enables writes to the protected pages 0..3. All default to
// false so a record write never touches them.
type WriteConfig struct {
	UID  bool `yaml:"uid"`
	Lock bool `yaml:"lock"`
	OTP  bool `yaml:"otp"`
}

type DumpConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Format     string `yaml:"format"`
	SessionDir string `yaml:"session_dir"`
	Debug      bool   `yaml:"debug"`
}

// Default returns the configuration used without a config file.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{Driver: DriverUART},
		Dump:   DumpConfig{Path: DefaultDumpPath},
		Log:    LogConfig{Format: FormatText},
	}
}

// Load reads path on top of Default. Relative dump and session log paths are
// resolved against the directory of the config file.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	cfg := Default()
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.resolvePaths(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values. It does not touch the filesystem.
func (c *Config) Validate() error {
	switch c.Device.Driver {
	case DriverUART, DriverI2C, DriverSPI, DriverACR122, DriverLibNFC:
	default:
		return fmt.Errorf("%w: device.driver %q must be one of %s", ErrInvalid, c.Device.Driver,
			strings.Join([]string{DriverUART, DriverI2C, DriverSPI, DriverACR122, DriverLibNFC}, ", "))
	}
	if c.Device.Timeout < 0 {
		return fmt.Errorf("%w: device.timeout must not be negative", ErrInvalid)
	}

	ev1, err := ultralight.ParseEV1Type(c.Tag.EV1)
	if err != nil {
		return fmt.Errorf("%w: tag.ev1: %w", ErrInvalid, err)
	}
	if c.Tag.Pages != 0 && (c.Tag.Pages < 1 || c.Tag.Pages > ultralight.MaxPages) {
		return fmt.Errorf("%w: tag.pages must be 1..%d", ErrInvalid, ultralight.MaxPages)
	}
	if c.Tag.Password != "" {
		if ev1 == ultralight.EV1None {
			return fmt.Errorf("%w: tag.password needs tag.ev1", ErrInvalid)
		}
		if _, err := ultralight.ParsePassword(c.Tag.Password); err != nil {
			return fmt.Errorf("%w: tag.password: %w", ErrInvalid, err)
		}
		if c.Tag.Pages != 0 {
			if err := ultralight.CheckSecretPages(ev1, c.Tag.Pages); err != nil {
				return fmt.Errorf("%w: tag.pages: %w", ErrInvalid, err)
			}
		}
	}
	if c.Tag.PACK != "" {
		if _, err := ultralight.ParsePACK(c.Tag.PACK); err != nil {
			return fmt.Errorf("%w: tag.pack: %w", ErrInvalid, err)
		}
	}
	if c.Tag.Auth && c.Tag.Password == "" {
		return fmt.Errorf("%w: tag.auth needs tag.password", ErrInvalid)
	}

	if strings.TrimSpace(c.Dump.Path) == "" {
		return fmt.Errorf("%w: dump.path is required", ErrInvalid)
	}
	switch c.Log.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("%w: log.format %q must be text or json", ErrInvalid, c.Log.Format)
	}
	return nil
}

// Secret builds the EV1 secret from the tag section. ok is false when no
// password is configured.
func (c *Config) Secret() (secret ultralight.Secret, ok bool, err error) {
	if c.Tag.Password == "" {
		return secret, false, nil
	}
	if secret.Type, err = ultralight.ParseEV1Type(c.Tag.EV1); err != nil {
		return secret, false, err
	}
	if secret.Password, err = ultralight.ParsePassword(c.Tag.Password); err != nil {
		return secret, false, err
	}
	if c.Tag.PACK != "" {
		if secret.PACK, err = ultralight.ParsePACK(c.Tag.PACK); err != nil {
			return secret, false, err
		}
	}
	return secret, true, nil
}

// EV1Type parses tag.ev1. It is EV1None when the field is empty.
func (c *Config) EV1Type() (ultralight.EV1Type, error) {
	return ultralight.ParseEV1Type(c.Tag.EV1)
}

// Intents maps the write section to session write intents.
func (c *Config) Intents() ultralight.WriteIntents {
	return ultralight.WriteIntents{UID: c.Write.UID, Lock: c.Write.Lock, OTP: c.Write.OTP}
}

func (c *Config) resolvePaths(configPath string) {
	configDir := filepath.Dir(configPath)
	c.Dump.Path = resolvePath(configDir, c.Dump.Path)
	c.Log.SessionDir = resolvePath(configDir, c.Log.SessionDir)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}
