// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/civstat/pkg/capture"
	"github.com/Thermoquad/civstat/pkg/civ"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Decode a capture file offline",
	Long: `Decode a capture written by 'raw_log --capture' or 'control --capture'
and print it in the same format as raw_log. Transmitted chunks are shown
as hex, received chunks are decoded.

No connection is opened.`,
	Args:              cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := capture.NewReader(f)
	if err != nil {
		return err
	}

	hdr := r.Header()
	fmt.Printf("civstat - Replay\n")
	fmt.Printf("Capture: %s (format v%d)\n", args[0], hdr.Version)
	if hdr.ID != "" {
		fmt.Printf("ID: %s\n", hdr.ID)
	}
	if hdr.Source != "" {
		fmt.Printf("Source: %s\n", hdr.Source)
	}
	fmt.Println()

	fb := civ.NewFrameBuffer()
	records := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		records++

		if rec.Direction == capture.DirTX {
			fmt.Printf("[%s] %s %s\n", rec.Time().Format("15:04:05.000"), rec.Direction, civ.FormatHex(rec.Data))
			continue
		}
		printChunk(fb, rec.Data, rec.Time())
	}

	fmt.Printf("\n%d records\n", records)
	return nil
}
