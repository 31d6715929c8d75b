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

	"github.com/Thermoquad/civstat/pkg/civ"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var monitorShowAll bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch CI-V bus health and transceive broadcasts",
	Long: `Passively watch the CI-V line and track frame statistics.

This command never writes to the radio. It shows:
  - Frame counts by kind (broadcasts, replies, OK/NG acknowledgements)
  - Malformed frames and decode errors
  - Frame and error rates
  - The frequency and mode last announced by transceive broadcasts

By default only errors and rejections are logged. Use --show-all to log
every decoded frame.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorShowAll, "show-all", false, "Log every frame (not just errors)")
}

// busStats counts decoded CI-V traffic
type busStats struct {
	StartTime time.Time

	Frames       uint64
	Broadcasts   uint64
	Acks         uint64
	Rejects      uint64
	Unknown      uint64
	DecodeErrors uint64

	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec

	lastFrames uint64
	lastErrors uint64
	lastCalc   time.Time
}

func newBusStats(now time.Time) *busStats {
	return &busStats{StartTime: now, lastCalc: now}
}

func (s *busStats) update(r civ.Response) {
	s.Frames++
	if r.Broadcast {
		s.Broadcasts++
	}
	switch r.Kind {
	case civ.KindOK:
		s.Acks++
	case civ.KindReject:
		s.Rejects++
	case civ.KindUnknown:
		s.Unknown++
	}
}

func (s *busStats) decodeError() {
	s.DecodeErrors++
}

// calculateRates updates the rates over the interval since the last call
func (s *busStats) calculateRates(now time.Time) {
	dt := now.Sub(s.lastCalc).Seconds()
	if dt <= 0 {
		return
	}
	s.FrameRate = float64(s.Frames-s.lastFrames) / dt
	s.ErrorRate = float64(s.DecodeErrors-s.lastErrors) / dt
	s.lastFrames = s.Frames
	s.lastErrors = s.DecodeErrors
	s.lastCalc = now
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	connector := newConnector(cfg)
	conn, connInfo, err := connector.Open(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	m := initialMonitorModel(connInfo, monitorShowAll)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Reader goroutine
	go func() {
		fb := civ.NewFrameBuffer()
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := buf[:n]
				for {
					responses, ferr := fb.Feed(data)
					data = nil
					p.Send(busDataMsg{responses: responses, decodeErr: ferr})
					if ferr == nil {
						break
					}
				}
			}
			if err != nil {
				if !errors.Is(err, ErrConnectionClosed) {
					p.Send(busDataMsg{decodeErr: fmt.Errorf("read: %w", err)})
				}
				p.Send(busClosedMsg{})
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
