// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Session flags
	civAddress     uint8
	defaultChannel string
	commandTimeout time.Duration

	// General flags
	configFile   string
	debugLogging bool
	logFile      string

	// cfg is the merged config file and flags, loaded before every command
	cfg Config
)

var rootCmd = &cobra.Command{
	Use:   "civstat",
	Short: "CI-V session tool for the Icom ID-52A Plus",
	Long: `civstat - A CLI tool for driving and monitoring an Icom ID-52A Plus over CI-V.

Keeps a shadow copy of both bands (A and B), polls meters and GPS in the
background, and provides commands for raw frame logging, capture replay
and an interactive control panel.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 19200]
  WebSocket: --url ws://host/path [--username user]

Settings may also come from a TOML config file at
$XDG_CONFIG_HOME/civstat/config.toml (or --config, or CIVSTAT_CFG).
Flags given on the command line win over the file.

For WebSocket authentication, the password is read from the CIVSTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 19200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Session flags
	rootCmd.PersistentFlags().Uint8Var(&civAddress, "address", 0xB4, "Radio CI-V address")
	rootCmd.PersistentFlags().StringVar(&defaultChannel, "channel", "A", "Channel selected after initialization (A or B)")
	rootCmd.PersistentFlags().DurationVar(&commandTimeout, "timeout", 2*time.Second, "Per-command reply timeout")

	// General flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/civstat/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file for the control TUI")
}

func loadSettings(cmd *cobra.Command, args []string) error {
	loaded, err := loadConfig(configPath(configFile))
	if err != nil {
		return err
	}
	applyFlags(cmd, &loaded)
	if err := loaded.validate(); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
