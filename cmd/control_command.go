// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/civstat/pkg/civ"
	"github.com/Thermoquad/civstat/pkg/session"
)

const controlHelp = `a | b              select band on the radio
f <MHz>            set frequency (145.5, 433.500.000)
m <mode>           set mode (fm, fm-n, am, am-n, dv)
w                  toggle wide/narrow
tm <fn>            tone function (off, tone, tsql, dtcs)
t <Hz>             tone frequency (88.5)
dtcs <code> [NN]   DTCS code and polarity (NN, NR, RN, RR)
af|sql|pwr <n>     AF gain, squelch, RF power (0-255)
dup <+|-|off>      duplex direction
offset <MHz>       duplex offset (0.6)
r [a|b]            re-read a band
id                 read transceiver ID
on | off           power the radio on or off`

// errEmptyCommand is returned for a blank command line
var errEmptyCommand = errors.New("empty command")

// controlAction is one parsed command-line entry. run returns a short
// result for the event log.
type controlAction struct {
	name string
	run  func(ctx context.Context, s *session.Session) (string, error)
}

// parseControlCommand parses a line typed into the control TUI
func parseControlCommand(line string) (controlAction, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return controlAction{}, errEmptyCommand
	}
	verb, args := strings.ToLower(fields[0]), fields[1:]

	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s: missing argument", verb)
		}
		return nil
	}
	done := func(name string, fn func(ctx context.Context, s *session.Session) error) controlAction {
		return controlAction{name: name, run: func(ctx context.Context, s *session.Session) (string, error) {
			return "", fn(ctx, s)
		}}
	}

	switch verb {
	case "help", "?":
		return controlAction{name: "help"}, nil

	case "a", "b":
		ch, _ := session.ParseChannel(verb)
		return done("select "+ch.String(), func(ctx context.Context, s *session.Session) error {
			return s.SelectChannel(ctx, ch)
		}), nil

	case "f", "freq":
		if err := need(1); err != nil {
			return controlAction{}, err
		}
		hz, err := civ.ParseFrequency(args[0])
		if err != nil {
			return controlAction{}, err
		}
		return done("frequency "+civ.FormatFrequency(hz), func(ctx context.Context, s *session.Session) error {
			return s.SetFrequency(ctx, hz)
		}), nil

	case "m", "mode":
		if err := need(1); err != nil {
			return controlAction{}, err
		}
		mode, err := civ.ParseMode(args[0])
		if err != nil {
			return controlAction{}, err
		}
		return done("mode "+mode.String(), func(ctx context.Context, s *session.Session) error {
			return s.SetMode(ctx, mode)
		}), nil

	case "w", "width":
		return done("toggle width", func(ctx context.Context, s *session.Session) error {
			st := s.Channel(s.Selected())
			if !st.Has(session.FieldMode) {
				return errors.New("mode not known yet")
			}
			return s.SetMode(ctx, st.Mode.ToggleWidth())
		}), nil

	case "tm", "tmode":
		if err := need(1); err != nil {
			return controlAction{}, err
		}
		tm, err := session.ParseToneMode(args[0])
		if err != nil {
			return controlAction{}, err
		}
		return done("tone function "+tm.String(), func(ctx context.Context, s *session.Session) error {
			return s.SetToneMode(ctx, tm)
		}), nil

	case "t", "tone":
		if err := need(1); err != nil {
			return controlAction{}, err
		}
		tenths, err := civ.ParseTone(args[0])
		if err != nil {
			return controlAction{}, err
		}
		return done("tone "+civ.FormatTone(tenths)+" Hz", func(ctx context.Context, s *session.Session) error {
			return s.SetToneFrequency(ctx, tenths)
		}), nil

	case "dtcs":
		if err := need(1); err != nil {
			return controlAction{}, err
		}
		code, err := strconv.ParseUint(args[0], 10, 16)
		if err != nil || code > 999 {
			return controlAction{}, fmt.Errorf("dtcs: invalid code %q", args[0])
		}
		d := civ.DTCS{Code: uint16(code)}
		if len(args) > 1 {
			if d.TxPolarity, d.RxPolarity, err = parsePolarity(args[1]); err != nil {
				return controlAction{}, err
			}
		}
		return done("DTCS "+d.String(), func(ctx context.Context, s *session.Session) error {
			return s.SetDTCS(ctx, d.Code, d.TxPolarity, d.RxPolarity)
		}), nil

	case "af", "sql", "pwr":
		if err := need(1); err != nil {
			return controlAction{}, err
		}
		v, err := strconv.ParseUint(args[0], 10, 16)
		if err != nil || v > 255 {
			return controlAction{}, fmt.Errorf("%s: value must be 0-255", verb)
		}
		sub := map[string]byte{"af": civ.LevelAF, "sql": civ.LevelSquelch, "pwr": civ.LevelRFPower}[verb]
		return done(fmt.Sprintf("%s %d", civ.FormatLevelSub(sub), v), func(ctx context.Context, s *session.Session) error {
			return s.SetLevel(ctx, sub, uint16(v))
		}), nil

	case "dup":
		if err := need(1); err != nil {
			return controlAction{}, err
		}
		var dir byte
		switch args[0] {
		case "+":
			dir = civ.DuplexPlus
		case "-":
			dir = civ.DuplexMinus
		case "off", "simplex":
			dir = civ.DuplexSimplex
		default:
			return controlAction{}, fmt.Errorf("dup: want +, - or off, got %q", args[0])
		}
		return done("duplex "+civ.FormatDuplex(uint16(dir)), func(ctx context.Context, s *session.Session) error {
			return s.SetDuplex(ctx, dir)
		}), nil

	case "offset":
		if err := need(1); err != nil {
			return controlAction{}, err
		}
		hz, err := civ.ParseFrequency(args[0])
		if err != nil {
			return controlAction{}, err
		}
		return done("offset "+civ.FormatFrequency(hz), func(ctx context.Context, s *session.Session) error {
			return s.SetOffset(ctx, hz)
		}), nil

	case "r", "refresh":
		var ch session.Channel
		if len(args) > 0 {
			var err error
			if ch, err = session.ParseChannel(args[0]); err != nil {
				return controlAction{}, err
			}
		}
		return done("refresh", func(ctx context.Context, s *session.Session) error {
			target := ch
			if target == session.ChannelNone {
				target = s.Selected()
			}
			if err := s.RefreshChannel(ctx, target); err != nil {
				return err
			}
			return s.RefreshDuplex(ctx)
		}), nil

	case "id":
		return controlAction{name: "transceiver ID", run: func(ctx context.Context, s *session.Session) (string, error) {
			id, err := s.ReadTransceiverID(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("0x%02X", id), nil
		}}, nil

	case "on":
		return done("power on", func(ctx context.Context, s *session.Session) error {
			return s.PowerOn(ctx)
		}), nil

	case "off":
		return done("power off", func(ctx context.Context, s *session.Session) error {
			return s.PowerOff(ctx)
		}), nil
	}

	return controlAction{}, fmt.Errorf("unknown command %q (try 'help')", verb)
}

// parsePolarity parses a two-letter DTCS polarity such as "NR"
func parsePolarity(s string) (tx, rx uint8, err error) {
	s = strings.ToUpper(s)
	if len(s) != 2 {
		return 0, 0, fmt.Errorf("dtcs: polarity must be two of N/R, got %q", s)
	}
	pol := func(c byte) (uint8, error) {
		switch c {
		case 'N':
			return 0, nil
		case 'R':
			return 1, nil
		}
		return 0, fmt.Errorf("dtcs: invalid polarity %q", c)
	}
	if tx, err = pol(s[0]); err != nil {
		return 0, 0, err
	}
	if rx, err = pol(s[1]); err != nil {
		return 0, 0, err
	}
	return tx, rx, nil
}
