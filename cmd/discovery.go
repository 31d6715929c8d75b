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

var discoveryTimeout int

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover radios on the CI-V bus",
	Long: `Send a broadcast "read transceiver ID" to find every radio on the line.

Each radio answers from its own CI-V address, so this reports the address
to configure with --address as well as the model ID the radio reports.
Radios with "CI-V Transceive" disabled may still answer; radios set to
ignore broadcast requests will not.

Examples:
  # Serial discovery
  civstat discovery --port /dev/ttyUSB0

  # Over a WebSocket bridge
  civstat discovery --url ws://bridge.local/civ

Exit codes:
  0 - Discovery successful (at least one radio found)
  1 - Discovery failed (no radios or timeout)
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "wait", 3, "Seconds to wait for answers")
}

type discoveredRadio struct {
	address byte
	id      uint16
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	conn, connInfo, err := newConnector(cfg).Open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("civstat - Radio Discovery\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Wait: %d seconds\n\n", discoveryTimeout)

	found := make(chan discoveredRadio, 16)
	errChan := make(chan error, 1)

	fb := civ.NewFrameBuffer()
	fb.OnFrame(func(raw []byte) {
		if radio, ok := parseDiscoveryAnswer(raw); ok {
			found <- radio
		}
	})

	request := civ.ReadTransceiverID().To(civ.AddrBroadcast)
	fmt.Printf("Sending %s to broadcast address...\n", civ.FormatHex(request.Bytes()))
	if _, err := conn.Write(request.Bytes()); err != nil {
		fmt.Printf("SEND FAILED: %v\n", err)
		os.Exit(2)
	}

	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			data := buf[:n]
			for {
				// Answers are collected by the frame callback
				_, ferr := fb.Feed(data)
				data = nil
				if ferr == nil {
					break
				}
			}
		}
	}()

	radios := make(map[byte]discoveredRadio)
	deadline := time.After(time.Duration(discoveryTimeout) * time.Second)

collect:
	for {
		select {
		case radio := <-found:
			if _, seen := radios[radio.address]; seen {
				continue
			}
			radios[radio.address] = radio
			fmt.Printf("\nRadio found:\n")
			fmt.Printf("  Address: 0x%02X\n", radio.address)
			fmt.Printf("  Transceiver ID: 0x%02X\n", radio.id)
		case err := <-errChan:
			fmt.Printf("READ FAILED: %v\n", err)
			os.Exit(2)
		case <-deadline:
			break collect
		}
	}

	// Summary
	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Radios found: %d\n", len(radios))

	if len(radios) == 0 {
		fmt.Printf("No radios answered. Check the cable, baud rate and radio power.\n")
		os.Exit(1)
	}

	return nil
}

// parseDiscoveryAnswer extracts the source address and model ID from a
// transceiver ID reply
func parseDiscoveryAnswer(raw []byte) (discoveredRadio, bool) {
	f, _, _, err := civ.ParseFrame(raw)
	if err != nil || f == nil || f.Src == civ.AddrController || f.Command != civ.CmdReadID {
		return discoveredRadio{}, false
	}
	r, err := civ.ParseResponse(f)
	if err != nil || r.Kind != civ.KindTransceiverID {
		return discoveredRadio{}, false
	}
	return discoveredRadio{address: f.Src, id: r.Value}, true
}
