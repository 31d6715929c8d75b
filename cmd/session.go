// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/Thermoquad/civstat/pkg/capture"
	"github.com/Thermoquad/civstat/pkg/session"
	"github.com/rs/zerolog"
)

// newRadioSession builds a session whose transport comes from c. When capW
// is set, all traffic is recorded to it.
func newRadioSession(c *connector, capW *capture.Writer, logger zerolog.Logger, onEvent session.EventHandler) *session.Session {
	return session.New(session.Options{
		Open: func(ctx context.Context) (session.Transport, error) {
			conn, info, err := c.Open(ctx)
			if err != nil {
				return nil, err
			}
			logger.Info().Str("connection", info).Msg("link open")
			if capW != nil {
				return capture.NewTap(conn, capW), nil
			}
			return conn, nil
		},
		Address:        byte(cfg.Address),
		DefaultChannel: cfg.Channel(),
		CommandTimeout: cfg.CommandTimeout(),
		FastPoll:       cfg.FastPoll(),
		SlowPoll:       cfg.SlowPoll(),
		Logger:         logger,
		OnEvent:        onEvent,
	})
}

// openCapture creates a capture file. An empty path disables capture.
func openCapture(path, source string) (*capture.Writer, func() error, error) {
	if path == "" {
		return nil, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	w, err := capture.NewWriter(f, source, nil)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return w, f.Close, nil
}
