// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/civstat/pkg/capture"
	"github.com/Thermoquad/civstat/pkg/civ"
	"github.com/spf13/cobra"
)

var (
	rawLogCapture string
	rawLogHex     bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display CI-V traffic in human-readable format",
	Long: `Continuously decode and display CI-V frames as they arrive, without
sending anything to the radio.

Transceive broadcasts, replies to other controllers and echoes on the bus
are all shown. With --capture, every received chunk is also written to a
capture file that can be decoded later with 'civstat replay'.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogCapture, "capture", "", "Write received bytes to a capture file")
	rawLogCmd.Flags().BoolVar(&rawLogHex, "hex", false, "Also print every frame as hex")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	connector := newConnector(cfg)
	conn, connInfo, err := connector.Open(ctx)
	if err != nil {
		return err
	}

	capW, closeCapture, err := openCapture(rawLogCapture, connInfo)
	if err != nil {
		conn.Close()
		return err
	}
	defer closeCapture()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	fmt.Printf("civstat - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if capW != nil {
		fmt.Printf("Capture: %s\n", rawLogCapture)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	fb := civ.NewFrameBuffer()
	if rawLogHex {
		fb.OnFrame(func(raw []byte) {
			fmt.Printf("[%s]        %s\n", time.Now().Format("15:04:05.000"), civ.FormatHex(raw))
		})
	}

	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if capW != nil {
				if werr := capW.Write(capture.DirRX, buf[:n]); werr != nil {
					fmt.Fprintf(os.Stderr, "capture: %v\n", werr)
				}
			}
			printChunk(fb, buf[:n], time.Now())
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, ErrConnectionClosed) {
				fmt.Println("Connection closed")
				break
			}
			return fmt.Errorf("read: %w", err)
		}
	}

	if capW != nil {
		fmt.Printf("\n%d chunks captured\n", capW.Count())
	}
	return nil
}

// printChunk feeds data to fb and prints every frame and error it yields
func printChunk(fb *civ.FrameBuffer, data []byte, at time.Time) {
	ts := at.Format("15:04:05.000")
	for {
		responses, err := fb.Feed(data)
		data = nil
		for _, r := range responses {
			tag := "   "
			if r.Broadcast {
				tag = "TRX"
			}
			fmt.Printf("[%s] %s %s\n", ts, tag, civ.FormatResponse(r))
		}
		if err == nil {
			return
		}
		fmt.Printf("[%s] ERR %v\n", ts, err)
	}
}
