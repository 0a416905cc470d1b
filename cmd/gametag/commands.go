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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"

	"github.com/ZaparooProject/go-ultralight"
	"github.com/ZaparooProject/go-ultralight/internal/config"
)

// invocation is one parsed command line.
type invocation struct {
	cfg       *config.Config
	expectUID string
	args      []string
}

type command struct {
	run     func(ctx context.Context, a *app, inv *invocation) error
	name    string
	summary string
}

var commands = []command{
	{name: "read", summary: "read the tag, save the dump and print the game record", run: runRead},
	{name: "write", summary: "write a game record (-type, -file)", run: runWrite},
	{name: "dump", summary: "read the tag and save the dump (-out)", run: runDump},
	{name: "restore", summary: "write a saved dump back to the tag (-dump)", run: runRestore},
	{name: "magic", summary: "check whether the tag is a magic card", run: runMagic},
	{name: "version", summary: "print the EV1 GET_VERSION reply", run: runVersion},
	{name: "uid", summary: "print the tag UID (-copy to copy it)", run: runUID},
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func (a *app) parseCommandFlags(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(a.stderr)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() > 0 {
		_, _ = fmt.Fprintf(a.stderr, "unexpected arguments: %q\n", fs.Args())
		return errUsage
	}
	return nil
}

// sessionOptions maps the configuration to session options.
func (a *app) sessionOptions(inv *invocation) ([]ultralight.Option, error) {
	cfg := inv.cfg
	opts := []ultralight.Option{
		ultralight.WithDumpPath(cfg.Dump.Path),
		ultralight.WithWriteIntents(cfg.Intents()),
		ultralight.WithProgress(ultralight.NewTextProgress(a.stdout)),
	}
	if cfg.Tag.Pages > 0 {
		opts = append(opts, ultralight.WithPages(cfg.Tag.Pages))
	}
	ev1, err := cfg.EV1Type()
	if err != nil {
		return nil, err
	}
	if ev1 != ultralight.EV1None {
		opts = append(opts, ultralight.WithEV1Type(ev1))
	}
	secret, ok, err := cfg.Secret()
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, ultralight.WithSecret(secret))
		if cfg.Tag.Auth {
			opts = append(opts, ultralight.WithPasswordAuth())
		}
	}
	if inv.expectUID != "" {
		uid, err := ultralight.ParseUID(inv.expectUID)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ultralight.WithExpectedUID(uid))
	}
	return opts, nil
}

// withSession opens the reader, waits for a tag and calls fn.
func (a *app) withSession(ctx context.Context, inv *invocation, extra []ultralight.Option,
	fn func(s *ultralight.Session) error,
) (err error) {
	opts, err := a.sessionOptions(inv)
	if err != nil {
		return err
	}
	dev, err := a.openDevice(ctx, inv.cfg)
	if err != nil {
		return fmt.Errorf("open %s reader: %w", inv.cfg.Device.Driver, err)
	}
	session, err := ultralight.NewSession(dev, append(opts, extra...)...)
	if err != nil {
		_ = dev.Close()
		return err
	}
	defer func() {
		// a failed dump save already closed the device
		if errors.Is(err, ultralight.ErrPersistence) {
			return
		}
		if cerr := session.Close(); cerr != nil {
			a.logger.Warn("failed to close reader", "error", cerr)
		}
	}()

	a.logger.Info("waiting for tag", "reader", dev.String())
	target, err := session.WaitForTarget(ctx)
	if err != nil {
		return err
	}
	a.logger.Debug("tag selected", "uid", target.UIDString(), "sak", target.SAK)
	return fn(session)
}

func (a *app) printReport(report *ultralight.Report) {
	if report == nil {
		return
	}
	if report.Read.Total > 0 {
		_, _ = fmt.Fprintf(a.stdout, "Read: %d ok, %d failed, %d reselections\n",
			report.Read.OK, report.Read.Failed, report.Read.Reselections)
	}
	if report.Write.Total > 0 {
		_, _ = fmt.Fprintf(a.stdout, "Write: %d ok, %d failed, %d skipped\n",
			report.Write.OK, report.Write.Failed, report.Write.Skipped)
	}
	if report.DumpPath != "" {
		_, _ = fmt.Fprintf(a.stdout, "Dump: %s\n", report.DumpPath)
	}
}

func runRead(ctx context.Context, a *app, inv *invocation) error {
	fs := flag.NewFlagSet("read", flag.ContinueOnError)
	if err := a.parseCommandFlags(fs, inv.args); err != nil {
		return err
	}
	return a.withSession(ctx, inv, nil, func(s *ultralight.Session) error {
		rec, report, err := s.ReadGame(ctx)
		a.printReport(report)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.stdout, "UID: %s\n", report.UID)
		if rec.Type == ultralight.GameUnknown {
			_, _ = fmt.Fprintln(a.stdout, "Game: none")
			return nil
		}
		_, _ = fmt.Fprintf(a.stdout, "Game: %s %q\n", rec.Type, rec.Filename)
		return nil
	})
}

func runWrite(ctx context.Context, a *app, inv *invocation) error {
	fs := flag.NewFlagSet("write", flag.ContinueOnError)
	typeName := fs.String("type", "", "game type: nes, snes, gb, gbc, gba, genesis")
	file := fs.String("file", "", "game file name; only the base name is stored")
	if err := a.parseCommandFlags(fs, inv.args); err != nil {
		return err
	}
	if *typeName == "" || *file == "" {
		_, _ = fmt.Fprintln(a.stderr, "write needs -type and -file")
		return errUsage
	}
	gameType, err := ultralight.ParseGameType(*typeName)
	if err != nil {
		return err
	}
	rec := ultralight.GameRecord{Type: gameType, Filename: filepath.Base(*file)}

	return a.withSession(ctx, inv, nil, func(s *ultralight.Session) error {
		report, err := s.WriteGame(ctx, rec)
		a.printReport(report)
		if err != nil {
			return err
		}
		a.logger.Info("game record written", "uid", report.UID, "type", rec.Type.String(), "file", rec.Filename)
		return nil
	})
}

func runDump(ctx context.Context, a *app, inv *invocation) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	out := fs.String("out", "", "dump file (default dump.path)")
	if err := a.parseCommandFlags(fs, inv.args); err != nil {
		return err
	}
	path := inv.cfg.Dump.Path
	if *out != "" {
		path = *out
	}
	return a.withSession(ctx, inv, []ultralight.Option{ultralight.WithDumpPath(path)},
		func(s *ultralight.Session) error {
			report, err := s.ReadTag(ctx)
			a.printReport(report)
			return err
		})
}

func runRestore(ctx context.Context, a *app, inv *invocation) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	in := fs.String("dump", "", "dump file to write (default dump.path)")
	if err := a.parseCommandFlags(fs, inv.args); err != nil {
		return err
	}
	path := inv.cfg.Dump.Path
	if *in != "" {
		path = *in
	}
	image, err := ultralight.LoadDump(path)
	if err != nil {
		return err
	}
	var extra []ultralight.Option
	if inv.cfg.Tag.Pages == 0 {
		extra = append(extra, ultralight.WithPages(image.Pages()))
	}
	return a.withSession(ctx, inv, extra, func(s *ultralight.Session) error {
		report, err := s.WriteMemory(ctx, image)
		a.printReport(report)
		return err
	})
}

func runMagic(ctx context.Context, a *app, inv *invocation) error {
	fs := flag.NewFlagSet("magic", flag.ContinueOnError)
	if err := a.parseCommandFlags(fs, inv.args); err != nil {
		return err
	}
	return a.withSession(ctx, inv, nil, func(s *ultralight.Session) error {
		magic, err := s.DetectMagic(ctx)
		if err != nil {
			return err
		}
		if magic {
			_, _ = fmt.Fprintln(a.stdout, "Magic: yes")
		} else {
			_, _ = fmt.Fprintln(a.stdout, "Magic: no")
		}
		return nil
	})
}

func runVersion(ctx context.Context, a *app, inv *invocation) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	if err := a.parseCommandFlags(fs, inv.args); err != nil {
		return err
	}
	return a.withSession(ctx, inv, nil, func(s *ultralight.Session) error {
		v, err := s.ProbeVersion(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.stdout, "Version: % X\n", v.Raw)
		_, _ = fmt.Fprintf(a.stdout, "Type: %s\n", v)
		return nil
	})
}

func runUID(ctx context.Context, a *app, inv *invocation) error {
	fs := flag.NewFlagSet("uid", flag.ContinueOnError)
	copyUID := fs.Bool("copy", false, "copy the UID to the clipboard")
	if err := a.parseCommandFlags(fs, inv.args); err != nil {
		return err
	}
	return a.withSession(ctx, inv, nil, func(s *ultralight.Session) error {
		uid := s.Target().UIDString()
		_, _ = fmt.Fprintln(a.stdout, uid)
		if !*copyUID {
			return nil
		}
		if err := a.copyText(uid); err != nil {
			return fmt.Errorf("copy UID to clipboard: %w", err)
		}
		a.logger.Info("UID copied to clipboard")
		return nil
	})
}
