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

	"github.com/Thermoquad/civstat/pkg/session"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the link by reading the transceiver ID",
	Long: `Read the radio's transceiver ID repeatedly and report the round trip.

Works over both serial and the WebSocket bridge, and is useful for verifying:
  - The link is established (and HTTP Basic authentication works)
  - The radio answers at the configured CI-V address
  - Commands and replies flow in both directions

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 100*time.Millisecond, "Delay between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := newConsoleLogger(cfg.DebugLogging)
	conn := newConnector(cfg)
	sess := newRadioSession(conn, nil, logger, nil)

	if err := sess.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("civstat - Ping\n")
	fmt.Printf("Connection: %s\n", conn.Info())
	fmt.Printf("Timeout: %v per ping\n", cfg.CommandTimeout())
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount, failCount := 0, 0
	var total time.Duration
	limiter := rate.NewLimiter(rate.Every(pingInterval), 1)

	for i := 1; i <= pingCount; i++ {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		start := time.Now()
		id, err := sess.ReadTransceiverID(ctx)
		rtt := time.Since(start)

		switch {
		case err == nil:
			fmt.Printf("ID 0x%02X, rtt=%v\n", id, rtt.Round(time.Millisecond))
			successCount++
			total += rtt
		case errors.Is(err, session.ErrNoReply):
			fmt.Printf("TIMEOUT (no reply in %v)\n", cfg.CommandTimeout())
			failCount++
		default:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		}

		if ctx.Err() != nil {
			break
		}
	}

	_ = sess.Disconnect()

	sent := successCount + failCount
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d replies received, %.0f%% loss\n",
		sent, successCount, float64(failCount)/float64(max(sent, 1))*100)
	if successCount > 0 {
		fmt.Printf("average rtt=%v\n", (total / time.Duration(successCount)).Round(time.Millisecond))
	}

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
