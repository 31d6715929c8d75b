// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Thermoquad/civstat/pkg/session"
	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

const (
	appName = "civstat"
	cfgFile = "config.toml"
	// cfgEnv overrides the config file location
	cfgEnv = "CIVSTAT_CFG"
)

// Config holds every setting that can come from the config file. Flags
// given on the command line win over the file.
type Config struct {
	Port        string `toml:"port"`
	Baud        int    `toml:"baud"`
	URL         string `toml:"url"`
	Username    string `toml:"username"`
	NoSSLVerify bool   `toml:"no_ssl_verify"`

	Address        int    `toml:"address"`
	DefaultChannel string `toml:"default_channel"`

	CommandTimeoutMs int `toml:"command_timeout_ms"`
	FastPollMs       int `toml:"fast_poll_ms"`
	SlowPollMs       int `toml:"slow_poll_ms"`

	DebugLogging bool   `toml:"debug_logging"`
	LogFile      string `toml:"log_file"`
}

func defaultConfig() Config {
	return Config{
		Baud:             19200,
		Address:          0xB4,
		DefaultChannel:   "A",
		CommandTimeoutMs: 2000,
		FastPollMs:       500,
		SlowPollMs:       5000,
		LogFile:          filepath.Join(xdg.StateHome, appName, appName+".log"),
	}
}

// Channel returns the channel selected after initialization
func (c Config) Channel() session.Channel {
	ch, err := session.ParseChannel(c.DefaultChannel)
	if err != nil {
		return session.ChannelA
	}
	return ch
}

// CommandTimeout returns the per-command timeout
func (c Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMs) * time.Millisecond
}

// FastPoll returns the meter/level poll interval
func (c Config) FastPoll() time.Duration {
	return time.Duration(c.FastPollMs) * time.Millisecond
}

// SlowPoll returns the GPS poll interval
func (c Config) SlowPoll() time.Duration {
	return time.Duration(c.SlowPollMs) * time.Millisecond
}

// configPath resolves the config file: --config, then CIVSTAT_CFG, then
// the XDG config directory
func configPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv(cfgEnv); p != "" {
		return p
	}
	return filepath.Join(xdg.ConfigHome, appName, cfgFile)
}

// loadConfig starts from the defaults and unmarshals the file on top, so
// keys missing from the file keep their default. A missing file is not an
// error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config %s: %w", path, err)
	}
	return cfg, nil
}

// applyFlags overrides cfg with every persistent flag set on the command
// line
func applyFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("address") {
		cfg.Address = int(civAddress)
	}
	if flags.Changed("channel") {
		cfg.DefaultChannel = defaultChannel
	}
	if flags.Changed("timeout") {
		cfg.CommandTimeoutMs = int(commandTimeout / time.Millisecond)
	}
	if flags.Changed("debug") {
		cfg.DebugLogging = debugLogging
	}
	if flags.Changed("log-file") {
		cfg.LogFile = logFile
	}
}

func (c Config) validate() error {
	if c.Address <= 0 || c.Address > 0xFF {
		return fmt.Errorf("CI-V address 0x%X out of range", c.Address)
	}
	if _, err := session.ParseChannel(c.DefaultChannel); err != nil {
		return err
	}
	if c.CommandTimeoutMs <= 0 || c.FastPollMs <= 0 || c.SlowPollMs <= 0 {
		return errors.New("timeouts and poll intervals must be positive")
	}
	return nil
}
