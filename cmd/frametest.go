// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/civstat/pkg/civ"
	"github.com/spf13/cobra"
)

var (
	frameTestTimeout int
	frameTestProbe   bool
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test a connection by waiting for a valid CI-V frame",
	Long: `Wait for a valid CI-V frame from a radio until timeout.

Bytes that are not part of a well-formed frame are skipped, as are echoes
of our own writes. Without --probe the command only listens, which needs
the radio's "CI-V Transceive" setting on and the dial to be turned. With
--probe it first sends a frequency read to the configured address.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking cabling, baud rate and WebSocket bridges.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "wait", 10, "Seconds to wait for a frame")
	frameTestCmd.Flags().BoolVar(&frameTestProbe, "probe", false, "Send a frequency read instead of only listening")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := newConnector(cfg).Open(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("civstat - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)

	if frameTestProbe {
		probe := civ.ReadFrequency().To(byte(cfg.Address))
		if _, err := conn.Write(probe.Bytes()); err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			os.Exit(2)
		}
		fmt.Printf("Sent %s\n", civ.FormatHex(probe.Bytes()))
	}
	fmt.Printf("Waiting for valid CI-V frame...\n\n")

	fb := civ.NewFrameBuffer()
	frameChan := make(chan civ.Response, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		buf := make([]byte, 128)
		skipped := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			data := buf[:n]
			for {
				responses, decodeErr := fb.Feed(data)
				data = nil
				if len(responses) > 0 {
					if skipped > 0 {
						fmt.Printf("(skipped %d malformed frames)\n", skipped)
					}
					frameChan <- responses[0]
					return
				}
				if decodeErr == nil {
					break
				}
				skipped++
			}
		}
	}()

	// Wait for frame or timeout
	select {
	case r := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Kind: %s\n", r.Kind)
		fmt.Printf("  Command: %s (0x%02X)\n", civ.FormatCommand(r.Command), r.Command)
		fmt.Printf("  Broadcast: %v\n", r.Broadcast)
		fmt.Printf("  Decoded: %s\n", civ.FormatResponse(r))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(frameTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameTestTimeout)
		os.Exit(1)
	}

	return nil
}
