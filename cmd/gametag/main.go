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

// Command gametag reads and writes game records on MIFARE Ultralight tags.
//
//	gametag [global flags] <read|write|dump|restore|magic|version|uid> [flags]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"golang.org/x/term"

	"github.com/ZaparooProject/go-ultralight"
	"github.com/ZaparooProject/go-ultralight/internal/config"
)

var errUsage = errors.New("usage")

// globalFlags are accepted before the command name. Set flags override
// the config file.
type globalFlags struct {
	configPath     string
	driver         string
	device         string
	ev1            string
	password       string
	pack           string
	sessionLog     string
	logFormat      string
	expectUID      string
	pages          int
	auth           bool
	promptPassword bool
	writeUID       bool
	writeLock      bool
	writeOTP       bool
	debug          bool
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.configPath, "config", "", "YAML config file")
	fs.StringVar(&g.driver, "driver", "", "reader driver: pn532-uart, pn532-i2c, pn532-spi, acr122 or libnfc")
	fs.StringVar(&g.device, "device", "", "device path or libnfc connstring (auto-detect if empty)")
	fs.IntVar(&g.pages, "pages", 0, "tag page count (default from tag type)")
	fs.StringVar(&g.ev1, "ev1", "", "EV1 layout: none, ul11 or ul21")
	fs.StringVar(&g.password, "password", "", "EV1 password, 8 hex digits")
	fs.StringVar(&g.pack, "pack", "", "EV1 PACK, 4 hex digits")
	fs.BoolVar(&g.auth, "auth", false, "authenticate with the password before page I/O")
	fs.BoolVar(&g.promptPassword, "prompt-password", false, "read the EV1 password from the terminal")
	fs.BoolVar(&g.writeUID, "write-uid", false, "allow writing the UID pages 0 and 1")
	fs.BoolVar(&g.writeLock, "write-lock", false, "allow writing the lock page 2")
	fs.BoolVar(&g.writeOTP, "write-otp", false, "allow writing the OTP page 3")
	fs.BoolVar(&g.debug, "debug", false, "enable debug output")
	fs.StringVar(&g.sessionLog, "session-log", "", "directory for a timestamped session log")
	fs.StringVar(&g.logFormat, "log-format", "", "log format: text or json")
	fs.StringVar(&g.expectUID, "expect-uid", "", "refuse tags with another UID (hex)")
}

// apply copies the flags set on fs over cfg.
func (g *globalFlags) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "driver":
			cfg.Device.Driver = g.driver
		case "device":
			cfg.Device.Path = g.device
		case "pages":
			cfg.Tag.Pages = g.pages
		case "ev1":
			cfg.Tag.EV1 = g.ev1
		case "password":
			cfg.Tag.Password = g.password
		case "pack":
			cfg.Tag.PACK = g.pack
		case "auth":
			cfg.Tag.Auth = g.auth
		case "write-uid":
			cfg.Write.UID = g.writeUID
		case "write-lock":
			cfg.Write.Lock = g.writeLock
		case "write-otp":
			cfg.Write.OTP = g.writeOTP
		case "debug":
			cfg.Log.Debug = g.debug
		case "session-log":
			cfg.Log.SessionDir = g.sessionLog
		case "log-format":
			cfg.Log.Format = g.logFormat
		}
	})
}

// app holds the process dependencies so tests can replace them.
type app struct {
	stdout       io.Writer
	stderr       io.Writer
	openDevice   func(ctx context.Context, cfg *config.Config) (ultralight.Device, error)
	readPassword func() (string, error)
	copyText     func(string) error
	logger       *slog.Logger
}

func newApp() *app {
	a := &app{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		openDevice: openDevice,
		copyText:   clipboard.WriteAll,
	}
	a.readPassword = a.promptPassword
	return a
}

func (a *app) promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("-prompt-password needs a terminal on stdin")
	}
	_, _ = fmt.Fprint(a.stderr, "EV1 password (8 hex digits): ")
	pwd, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(a.stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(pwd)), nil
}

func (a *app) usage(fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(a.stderr, "Usage: gametag [flags] <command> [command flags]\n\n")
	_, _ = fmt.Fprintf(a.stderr, "Commands:\n")
	for _, c := range commands {
		_, _ = fmt.Fprintf(a.stderr, "  %-8s %s\n", c.name, c.summary)
	}
	_, _ = fmt.Fprintf(a.stderr, "\nFlags:\n")
	fs.PrintDefaults()
}

// loadConfig builds the effective configuration: defaults, then the
// config file, then flags.
func (a *app) loadConfig(fs *flag.FlagSet, g *globalFlags) (*config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		loaded, err := config.Load(g.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	g.apply(fs, cfg)
	if g.promptPassword {
		pwd, err := a.readPassword()
		if err != nil {
			return nil, err
		}
		cfg.Tag.Password = pwd
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs the slog handler and the session log. The
// returned function closes the session log.
func (a *app) setupLogging(cfg *config.Config) (func(), error) {
	level := slog.LevelInfo
	if cfg.Log.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == config.FormatJSON {
		a.logger = slog.New(slog.NewJSONHandler(a.stderr, opts))
	} else {
		a.logger = slog.New(slog.NewTextHandler(a.stderr, opts))
	}
	if cfg.Log.Debug {
		ultralight.SetDebugEnabled(true)
	}

	if cfg.Log.SessionDir == "" {
		return func() {}, nil
	}
	path, err := ultralight.InitSessionLog(cfg.Log.SessionDir)
	if err != nil {
		return nil, err
	}
	a.logger.Info("session log", "path", path)
	return func() {
		if err := ultralight.CloseSessionLog(); err != nil {
			a.logger.Warn("failed to close session log", "error", err)
		}
	}, nil
}

func (a *app) run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("gametag", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	var g globalFlags
	g.register(fs)
	fs.Usage = func() { a.usage(fs) }
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		a.usage(fs)
		return errUsage
	}
	cmd, ok := findCommand(fs.Arg(0))
	if !ok {
		_, _ = fmt.Fprintf(a.stderr, "unknown command %q\n", fs.Arg(0))
		a.usage(fs)
		return errUsage
	}

	cfg, err := a.loadConfig(fs, &g)
	if err != nil {
		return err
	}
	closeLog, err := a.setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	return cmd.run(ctx, a, &invocation{cfg: cfg, expectUID: g.expectUID, args: fs.Args()[1:]})
}

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp()
	err := a.run(ctx, os.Args[1:])
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, context.Canceled):
		return 0
	default:
		if a.logger != nil {
			a.logger.Error("gametag failed", "error", err)
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
}
