// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// newConsoleLogger logs to stderr for line-oriented commands
func newConsoleLogger(debug bool) zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	return zerolog.New(w).Level(logLevel(debug)).With().Timestamp().Logger()
}

// newFileLogger logs to a rotating file. The TUI owns the terminal, so
// anything written to stderr would corrupt the screen.
func newFileLogger(path string, debug bool) (zerolog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return zerolog.Nop(), nil, err
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    1,
		MaxBackups: 2,
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := zerolog.New(lj).Level(logLevel(debug)).With().Timestamp().Logger()
	return logger, lj, nil
}

func logLevel(debug bool) zerolog.Level {
	if debug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
