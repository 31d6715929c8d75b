// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/civstat/pkg/capture"
	"github.com/Thermoquad/civstat/pkg/session"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	minBackoff = 1 * time.Second
	maxBackoff = 30 * time.Second
)

var controlCapture string

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling the radio",
	Long: `Control an ID-52A Plus via an interactive terminal UI.

Features:
  - Both bands (A and B) shown side by side from the shadow state
  - Live S-meter, AF and squelch levels, GPS position
  - Frequency, mode, tone, DTCS, duplex and level control
  - Link statistics and an event log
  - Automatic reconnection on connection loss

Tab switches the viewed band, a/b select a band on the radio, and ':' opens
the command line (type 'help' there for the command list). Logs go to the
file given by --log-file, never to the terminal.

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().StringVar(&controlCapture, "capture", "", "Record all traffic to a capture file")
}

// sessionManager runs one session at a time and replaces it with a new one
// whenever the link is lost, backing off between attempts
type sessionManager struct {
	connector *connector
	capture   *capture.Writer
	logger    zerolog.Logger
	clock     clockwork.Clock

	p      *tea.Program
	events chan session.Event
	done   chan struct{}

	mu   sync.RWMutex
	sess *session.Session
}

func newSessionManager(c *connector, capW *capture.Writer, logger zerolog.Logger) *sessionManager {
	return &sessionManager{
		connector: c,
		capture:   capW,
		logger:    logger,
		clock:     clockwork.NewRealClock(),
		events:    make(chan session.Event, 100),
		done:      make(chan struct{}),
	}
}

// session returns the current session, or nil between connections
func (sm *sessionManager) session() *session.Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sess
}

func (sm *sessionManager) setSession(s *session.Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sess = s
}

func runControl(cmd *cobra.Command, args []string) error {
	logger, closeLog, err := newFileLogger(cfg.LogFile, cfg.DebugLogging)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer closeLog.Close()

	conn := newConnector(cfg)
	// Ask before the TUI takes over the terminal
	if err := conn.ensurePassword(); err != nil {
		return err
	}

	capW, closeCapture, err := openCapture(controlCapture, conn.Info())
	if err != nil {
		return err
	}
	defer closeCapture()

	sm := newSessionManager(conn, capW, logger)
	m := initialControlModel(sm, conn.Info())

	p := tea.NewProgram(m, tea.WithAltScreen())
	sm.p = p

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sm.run()
	}()
	go func() {
		defer wg.Done()
		sm.batchEvents()
	}()

	_, runErr := p.Run()
	close(sm.done)
	wg.Wait()

	if runErr != nil {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return nil
}

// run connects, waits for the link to drop and reconnects, until done
func (sm *sessionManager) run() {
	backoff := minBackoff
	for {
		lost := make(chan struct{}, 1)
		sess := newRadioSession(sm.connector, sm.capture, sm.logger, sm.onEvent(lost))

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-sm.done:
				cancel()
			case <-ctx.Done():
			}
		}()

		sm.p.Send(connectingMsg{})
		err := sess.Connect(ctx)
		cancel()

		if err == nil {
			backoff = minBackoff
			sm.setSession(sess)
			sm.p.Send(connectedMsg{connInfo: sm.connector.Info()})

			select {
			case <-sm.done:
				sm.setSession(nil)
				_ = sess.Disconnect()
				return
			case <-lost:
			}

			sm.setSession(nil)
			_ = sess.Disconnect()
			sm.p.Send(connectionLostMsg{})
		} else {
			sm.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("connect failed")
			sm.p.Send(connectFailedMsg{err: err, retryIn: backoff})
		}

		select {
		case <-sm.done:
			return
		case <-sm.clock.After(backoff):
		}

		if err != nil {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// onEvent queues session events for the TUI without blocking the session
// read loop, and signals lost once the session has shut itself down
func (sm *sessionManager) onEvent(lost chan<- struct{}) session.EventHandler {
	return func(e session.Event) {
		select {
		case sm.events <- e:
		default:
		}
		if e.Type == session.EventState && e.State == session.StateDisconnected {
			select {
			case lost <- struct{}{}:
			default:
			}
		}
	}
}

// batchEvents sends queued events to the TUI at a fixed rate
func (sm *sessionManager) batchEvents() {
	ticker := sm.clock.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sm.done:
			return
		case <-ticker.Chan():
			var batch eventBatchMsg

		drainLoop:
			for {
				select {
				case e := <-sm.events:
					batch.events = append(batch.events, e)
				default:
					break drainLoop
				}
			}

			if len(batch.events) > 0 {
				sm.p.Send(batch)
			}
		}
	}
}
