// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/Thermoquad/civstat/pkg/civ"
	"github.com/Thermoquad/civstat/pkg/session"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the state of both bands and exit",
	Long: `Connect to the radio, read the full state of bands A and B, print it
together with the current meters and levels, and disconnect.

Supports both serial and WebSocket connections.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := newConsoleLogger(cfg.DebugLogging)
	conn := newConnector(cfg)
	sess := newRadioSession(conn, nil, logger, nil)

	if err := sess.Connect(ctx); err != nil {
		return err
	}
	defer sess.Disconnect()

	id, err := sess.ReadTransceiverID(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("transceiver ID read failed")
	}
	if err := sess.RefreshDuplex(ctx); err != nil {
		logger.Warn().Err(err).Msg("duplex read failed")
	}

	fmt.Printf("civstat - Status\n")
	fmt.Printf("Connection: %s\n", conn.Info())
	if id != 0 {
		fmt.Printf("Transceiver ID: 0x%02X\n", id)
	}
	fmt.Printf("Selected: %s\n\n", sess.Selected())

	for _, ch := range session.Channels {
		marker := " "
		if ch == sess.Selected() {
			marker = "*"
		}
		fmt.Printf("%s %s  %s\n", marker, ch, formatChannelState(sess.Channel(ch)))
	}
	fmt.Println()

	aux := sess.Aux()
	if !aux.DuplexTime.IsZero() {
		fmt.Printf("Duplex: %s  Offset: %s MHz\n", civ.FormatDuplex(aux.Duplex), civ.FormatFrequency(aux.OffsetHz))
	}
	if af, ok := sess.Level(civ.LevelAF); ok {
		fmt.Printf("AF: %d  ", af)
	}
	if sql, ok := sess.Level(civ.LevelSquelch); ok {
		fmt.Printf("SQL: %d", sql)
	}
	fmt.Println()
	fmt.Println()
	fmt.Print(sess.Stats())
	return nil
}

// formatChannelState renders the known fields of a channel on one line
func formatChannelState(st session.ChannelState) string {
	var parts []string
	if st.Has(session.FieldFrequency) {
		parts = append(parts, civ.FormatFrequency(st.FrequencyHz)+" MHz")
	}
	if st.Has(session.FieldMode) {
		parts = append(parts, st.Mode.String())
	}
	if st.Has(session.FieldToneMode) {
		parts = append(parts, "tone="+st.ToneMode.String())
		switch st.ToneMode {
		case session.ToneTx:
			parts = append(parts, civ.FormatTone(st.TxToneTenths)+" Hz")
		case session.ToneSquelch:
			parts = append(parts, civ.FormatTone(st.TxToneTenths)+"/"+civ.FormatTone(st.RxToneTenths)+" Hz")
		case session.ToneDTCS:
			parts = append(parts, "DTCS "+st.DTCS.String())
		}
	}
	if len(parts) == 0 {
		return "(unknown)"
	}
	return strings.Join(parts, "  ")
}
