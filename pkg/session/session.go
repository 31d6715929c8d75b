// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session drives an interactive CI-V session with a radio.
//
// A Session owns one transport. Commands go through a Queue that keeps a
// single command in flight; a read goroutine feeds received bytes through
// the Router, which answers the in-flight command and keeps a shadow copy
// of both channels (A and B) plus live telemetry. A Poller refreshes the
// telemetry in the background.
//
// A Session is used once: after Disconnect, build a new one to reconnect.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/civstat/pkg/civ"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// State is a lifecycle state
type State uint8

// Lifecycle states
const (
	StateDisconnected State = iota
	StateConnecting
	StateInitializing
	StateActive
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Transport is the raw byte link to the radio
type Transport interface {
	io.ReadWriteCloser
}

// Options configures a Session
type Options struct {
	// Open establishes the transport. Required.
	Open func(ctx context.Context) (Transport, error)
	// NewDecoder returns a fresh decoder per connection. Defaults to civ.NewFrameBuffer.
	NewDecoder func() Decoder

	Address        byte    // radio CI-V address, default civ.AddrID52
	DefaultChannel Channel // channel selected after initialization, default A

	CommandTimeout time.Duration
	FastPoll       time.Duration
	SlowPoll       time.Duration

	Clock   clockwork.Clock
	Logger  zerolog.Logger
	OnEvent EventHandler
}

// Session is one connection to a radio
type Session struct {
	opts Options
	log  zerolog.Logger

	mu     sync.Mutex
	state  State
	viewed Channel
	used   bool

	disconnecting atomic.Bool

	transport Transport
	decoder   Decoder
	queue     *Queue
	router    *Router
	poller    *Poller
	store     *ChannelStore
	telemetry *Telemetry
	stats     *Statistics

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates a disconnected session
func New(opts Options) *Session {
	if opts.NewDecoder == nil {
		opts.NewDecoder = func() Decoder { return civ.NewFrameBuffer() }
	}
	if opts.Address == 0 {
		opts.Address = civ.AddrID52
	}
	if opts.DefaultChannel == ChannelNone {
		opts.DefaultChannel = ChannelA
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.OnEvent == nil {
		opts.OnEvent = func(Event) {}
	}

	stats := NewStatistics(opts.Clock)
	return &Session{
		opts:      opts,
		log:       opts.Logger.With().Str("component", "session").Logger(),
		viewed:    opts.DefaultChannel,
		store:     NewChannelStore(opts.DefaultChannel),
		telemetry: NewTelemetry(),
		stats:     stats,
	}
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()

	s.log.Debug().Str("state", st.String()).Msg("session state")
	s.opts.OnEvent(Event{Type: EventState, Time: s.opts.Clock.Now(), State: st})
}

// Connect opens the transport, initializes both channels and starts
// polling. On failure the session is left disconnected.
func (s *Session) Connect(ctx context.Context) error {
	if s.opts.Open == nil {
		return ErrNoTransport
	}

	s.mu.Lock()
	if s.used || s.disconnecting.Load() {
		s.mu.Unlock()
		if s.disconnecting.Load() {
			return ErrClosed
		}
		return ErrAlreadyConnected
	}
	s.used = true
	s.state = StateConnecting
	s.mu.Unlock()
	s.log.Debug().Str("state", StateConnecting.String()).Msg("session state")
	s.opts.OnEvent(Event{Type: EventState, Time: s.opts.Clock.Now(), State: StateConnecting})

	t, err := s.opts.Open(ctx)
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("open transport: %w", err)
	}

	decoder := s.opts.NewDecoder()
	queue := NewQueue(t, QueueConfig{
		Clock:   s.opts.Clock,
		Timeout: s.opts.CommandTimeout,
		Logger:  s.opts.Logger.With().Str("component", "queue").Logger(),
		Stats:   s.stats,
	})
	router := NewRouter(RouterConfig{
		Decoder:   decoder,
		Queue:     queue,
		Store:     s.store,
		Telemetry: s.telemetry,
		Stats:     s.stats,
		Clock:     s.opts.Clock,
		Logger:    s.opts.Logger.With().Str("component", "router").Logger(),
		OnEvent:   s.opts.OnEvent,
	})
	poller := NewPoller(queue, PollerConfig{
		Clock:   s.opts.Clock,
		Fast:    s.opts.FastPoll,
		Slow:    s.opts.SlowPoll,
		Address: s.opts.Address,
		Logger:  s.opts.Logger.With().Str("component", "poller").Logger(),
		Stats:   s.stats,
	})

	// Disconnect sets the flag before taking s.mu, so either it sees the
	// fields below or we see the flag and own the transport.
	s.mu.Lock()
	if s.disconnecting.Load() {
		s.mu.Unlock()
		if err := t.Close(); err != nil {
			s.log.Debug().Err(err).Msg("close transport")
		}
		return ErrClosed
	}
	readCtx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(readCtx)
	s.transport = t
	s.decoder = decoder
	s.queue = queue
	s.router = router
	s.poller = poller
	s.cancel = cancel
	s.group = group
	group.Go(func() error { return s.readLoop(groupCtx, t, router) })
	s.mu.Unlock()
	go s.watch(group)

	if err := s.initialize(ctx); err != nil {
		_ = s.Disconnect()
		return fmt.Errorf("initialize: %w", err)
	}
	return nil
}

// readLoop is the only reader of the transport and the only caller of the
// router
func (s *Session) readLoop(ctx context.Context, t Transport, router *Router) error {
	buf := make([]byte, 256)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := t.Read(buf)
		if n > 0 {
			s.stats.read(n)
			router.Process(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil || s.disconnecting.Load() {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
	}
}

// watch tears the session down when the read loop fails
func (s *Session) watch(group *errgroup.Group) {
	err := group.Wait()
	if err == nil || s.disconnecting.Load() {
		return
	}

	s.log.Error().Err(err).Msg("link lost")
	s.opts.OnEvent(Event{Type: EventError, Time: s.opts.Clock.Now(), Err: err})
	_ = s.Disconnect()
}

// initialize powers the radio on, reads the full state of both channels
// and re-selects the default channel
func (s *Session) initialize(ctx context.Context) error {
	s.setState(StateInitializing)

	reply, err := s.do(ctx, civ.PowerOn(), ChannelNone)
	if err != nil {
		return err
	}
	if reply == nil {
		s.log.Warn().Msg("no reply to power on, continuing")
	}

	for _, ch := range Channels {
		if err := s.selectChannel(ctx, ch); err != nil {
			if isFatal(err) {
				return err
			}
			s.log.Warn().Err(err).Str("channel", ch.String()).Msg("select failed, skipping channel")
			continue
		}
		if err := s.readChannel(ctx, ch); err != nil {
			return err
		}
	}

	if err := s.selectChannel(ctx, s.opts.DefaultChannel); err != nil && isFatal(err) {
		return err
	}
	return s.activate()
}

// activate starts the poller and enters StateActive
func (s *Session) activate() error {
	// Disconnect stops the poller after taking s.mu, so checking the flag
	// under the lock means a started poller is always stopped.
	s.mu.Lock()
	if s.disconnecting.Load() {
		s.mu.Unlock()
		return ErrClosed
	}
	s.poller.Start()
	s.state = StateActive
	s.mu.Unlock()

	s.log.Debug().Str("state", StateActive.String()).Msg("session state")
	s.opts.OnEvent(Event{Type: EventState, Time: s.opts.Clock.Now(), State: StateActive})
	return nil
}

// isFatal separates link and context failures from a radio that merely
// did not answer or said no
func isFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrNoReply) && !errors.Is(err, ErrRejected)
}

// readChannel reads every stored field of ch. ch must already be selected.
func (s *Session) readChannel(ctx context.Context, ch Channel) error {
	_, err := s.all(ctx, ch,
		civ.ReadFrequency(),
		civ.ReadMode(),
		civ.ReadToneMode(),
		civ.ReadTxTone(),
		civ.ReadRxTone(),
		civ.ReadDTCS(),
	)
	return err
}

// Disconnect stops polling, drains the queue and closes the transport.
// Calling it again, or concurrently, does nothing. It waits for the read
// goroutine to exit and must not be called synchronously from an
// EventHandler.
func (s *Session) Disconnect() error {
	if !s.disconnecting.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	used := s.used
	poller, queue, cancel := s.poller, s.queue, s.cancel
	transport, group, decoder := s.transport, s.group, s.decoder
	s.mu.Unlock()
	if !used {
		return nil
	}

	s.setState(StateDisconnecting)

	if poller != nil {
		poller.Stop()
	}
	if queue != nil {
		queue.Drain()
	}
	if cancel != nil {
		cancel()
	}

	var closeErr error
	if transport != nil {
		closeErr = transport.Close()
	}

	var err error
	if group != nil {
		err = group.Wait()
	}
	if decoder != nil {
		decoder.Reset()
	}
	s.store.Reset()
	s.telemetry.Reset()

	s.setState(StateDisconnected)
	if err != nil {
		return err
	}
	return closeErr
}

// do enqueues one command and waits for it
func (s *Session) do(ctx context.Context, f civ.Frame, hint Channel) (*Reply, error) {
	reply, err := s.queue.Enqueue(f.To(s.opts.Address).Bytes(), hint).Wait(ctx)
	if err == nil && reply == nil && s.disconnecting.Load() {
		return nil, ErrClosed
	}
	return reply, err
}

// all enqueues commands back to back with the same hint and waits for
// every one. Replies are returned in order; missing replies are nil.
func (s *Session) all(ctx context.Context, hint Channel, frames ...civ.Frame) ([]*Reply, error) {
	futures := make([]*Future, len(frames))
	for i, f := range frames {
		futures[i] = s.queue.Enqueue(f.To(s.opts.Address).Bytes(), hint)
	}

	replies := make([]*Reply, len(frames))
	for i, fut := range futures {
		r, err := fut.Wait(ctx)
		if err != nil {
			return replies, err
		}
		replies[i] = r
	}
	if s.disconnecting.Load() {
		return replies, ErrClosed
	}
	return replies, nil
}

// acknowledged converts a set command's reply into an error
func acknowledged(reply *Reply) error {
	switch {
	case reply == nil:
		return ErrNoReply
	case reply.Response.Kind == civ.KindReject:
		return ErrRejected
	}
	return nil
}

func (s *Session) active() error {
	if s.State() != StateActive {
		return ErrNotActive
	}
	return nil
}

func (s *Session) selectChannel(ctx context.Context, ch Channel) error {
	reply, err := s.do(ctx, ch.selectFrame(), ch)
	if err != nil {
		return err
	}
	if err := acknowledged(reply); err != nil {
		return fmt.Errorf("select %s: %w", ch, err)
	}
	s.store.SetSelected(ch)
	return nil
}

// setAndRead enqueues a set command followed by its read-backs, all hinted
// with the selected channel, and reports the set command's outcome
func (s *Session) setAndRead(ctx context.Context, hint Channel, set civ.Frame, reads ...civ.Frame) error {
	replies, err := s.all(ctx, hint, append([]civ.Frame{set}, reads...)...)
	if err != nil {
		return err
	}
	return acknowledged(replies[0])
}

// SelectChannel selects ch on the radio and makes it the viewed channel
func (s *Session) SelectChannel(ctx context.Context, ch Channel) error {
	if err := s.active(); err != nil {
		return err
	}
	if err := s.selectChannel(ctx, ch); err != nil {
		return err
	}
	s.View(ch)
	return nil
}

// View changes the channel presented to the user without touching the
// radio
func (s *Session) View(ch Channel) {
	if ch == ChannelNone {
		return
	}
	s.mu.Lock()
	s.viewed = ch
	s.mu.Unlock()
}

// Viewed returns the channel presented to the user
func (s *Session) Viewed() Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewed
}

// SetFrequency tunes the selected channel and reads the frequency back
func (s *Session) SetFrequency(ctx context.Context, hz uint64) error {
	if err := s.active(); err != nil {
		return err
	}
	f, err := civ.SetFrequency(hz)
	if err != nil {
		return err
	}
	return s.setAndRead(ctx, s.store.Selected(), f, civ.ReadFrequency())
}

// SetMode changes the selected channel's mode and reads it back
func (s *Session) SetMode(ctx context.Context, m civ.Mode) error {
	if err := s.active(); err != nil {
		return err
	}
	f, err := civ.SetMode(m)
	if err != nil {
		return err
	}
	return s.setAndRead(ctx, s.store.Selected(), f, civ.ReadMode())
}

// SetToneMode changes the selected channel's tone function and reads it back
func (s *Session) SetToneMode(ctx context.Context, m ToneMode) error {
	if err := s.active(); err != nil {
		return err
	}
	f, err := civ.SetToneMode(uint8(m))
	if err != nil {
		return err
	}
	return s.setAndRead(ctx, s.store.Selected(), f, civ.ReadToneMode())
}

// SetToneFrequency sets the transmit tone of the selected channel. In tone
// squelch mode the receive tone is set to the same value. Both tones are
// read back.
func (s *Session) SetToneFrequency(ctx context.Context, tenths uint16) error {
	if err := s.active(); err != nil {
		return err
	}
	ch := s.store.Selected()

	tx, err := civ.SetTone(civ.ToneRepeater, tenths)
	if err != nil {
		return err
	}
	frames := []civ.Frame{tx}
	if s.store.Get(ch).ToneMode == ToneSquelch {
		rx, _ := civ.SetTone(civ.ToneTSQL, tenths)
		frames = append(frames, rx)
	}
	frames = append(frames, civ.ReadTxTone(), civ.ReadRxTone())

	replies, err := s.all(ctx, ch, frames...)
	if err != nil {
		return err
	}
	if err := acknowledged(replies[0]); err != nil {
		return err
	}
	if len(frames) == 4 {
		return acknowledged(replies[1])
	}
	return nil
}

// SetDTCS sets the selected channel's DTCS code and polarities and reads
// them back
func (s *Session) SetDTCS(ctx context.Context, code uint16, txPol, rxPol uint8) error {
	if err := s.active(); err != nil {
		return err
	}
	f, err := civ.SetDTCS(code, txPol, rxPol)
	if err != nil {
		return err
	}
	return s.setAndRead(ctx, s.store.Selected(), f, civ.ReadDTCS())
}

// SetLevel sets a level (AF, squelch, RF power) and reads it back
func (s *Session) SetLevel(ctx context.Context, sub byte, value uint16) error {
	if err := s.active(); err != nil {
		return err
	}
	f, err := civ.SetLevel(sub, value)
	if err != nil {
		return err
	}
	return s.setAndRead(ctx, ChannelNone, f, civ.ReadLevel(sub))
}

// SetDuplex sets the selected channel's duplex direction and reads it back
func (s *Session) SetDuplex(ctx context.Context, dir byte) error {
	if err := s.active(); err != nil {
		return err
	}
	f, err := civ.SetDuplex(dir)
	if err != nil {
		return err
	}
	return s.setAndRead(ctx, s.store.Selected(), f, civ.ReadDuplex())
}

// SetOffset sets the selected channel's duplex offset and reads it back
func (s *Session) SetOffset(ctx context.Context, hz uint64) error {
	if err := s.active(); err != nil {
		return err
	}
	f, err := civ.SetOffset(hz)
	if err != nil {
		return err
	}
	return s.setAndRead(ctx, s.store.Selected(), f, civ.ReadOffset())
}

// RefreshDuplex reads the selected channel's duplex direction and offset
func (s *Session) RefreshDuplex(ctx context.Context) error {
	if err := s.active(); err != nil {
		return err
	}
	_, err := s.all(ctx, s.store.Selected(), civ.ReadDuplex(), civ.ReadOffset())
	return err
}

// RefreshChannel re-reads every field of ch, then restores the previous
// selection
func (s *Session) RefreshChannel(ctx context.Context, ch Channel) error {
	if err := s.active(); err != nil {
		return err
	}
	prev := s.store.Selected()
	if err := s.selectChannel(ctx, ch); err != nil {
		return err
	}
	if err := s.readChannel(ctx, ch); err != nil {
		return err
	}
	if prev != ch {
		return s.selectChannel(ctx, prev)
	}
	return nil
}

// ReadTransceiverID asks the radio for its CI-V model ID
func (s *Session) ReadTransceiverID(ctx context.Context) (uint16, error) {
	if err := s.active(); err != nil {
		return 0, err
	}
	reply, err := s.do(ctx, civ.ReadTransceiverID(), ChannelNone)
	if err != nil {
		return 0, err
	}
	if err := acknowledged(reply); err != nil {
		return 0, err
	}
	if reply.Response.Kind != civ.KindTransceiverID {
		return 0, fmt.Errorf("%w: got %s", civ.ErrUnexpectedResponse, reply.Response.Kind)
	}
	return reply.Response.Value, nil
}

// PowerOn turns the radio on and re-reads both channels. If that fails
// the session returns to StateActive with polling running, so the caller
// can retry; a lost link still disconnects it.
func (s *Session) PowerOn(ctx context.Context) error {
	if err := s.active(); err != nil {
		return err
	}
	err := s.initialize(ctx)
	if err == nil || errors.Is(err, ErrClosed) {
		return err
	}
	if aerr := s.activate(); aerr != nil {
		return aerr
	}
	return err
}

// PowerOff stops polling and turns the radio off. Polling resumes after
// PowerOn.
func (s *Session) PowerOff(ctx context.Context) error {
	if err := s.active(); err != nil {
		return err
	}
	s.poller.Stop()
	reply, err := s.do(ctx, civ.PowerOff(), ChannelNone)
	if err != nil {
		return err
	}
	return acknowledged(reply)
}

// Channel returns the shadow state of ch
func (s *Session) Channel(ch Channel) ChannelState {
	return s.store.Get(ch)
}

// Selected returns the channel selected on the radio
func (s *Session) Selected() Channel {
	return s.store.Selected()
}

// Level returns the last reported value of a level sub-command
func (s *Session) Level(sub byte) (uint16, bool) {
	return s.telemetry.Level(sub)
}

// Meter returns the last reported value of a meter sub-command
func (s *Session) Meter(sub byte) (uint16, bool) {
	return s.telemetry.Meter(sub)
}

// Aux returns the last auxiliary telemetry record
func (s *Session) Aux() AuxRecord {
	return s.telemetry.Aux()
}

// Stats returns a snapshot of link statistics
func (s *Session) Stats() Counters {
	return s.stats.Snapshot()
}

// Polling reports whether the background poller is running
func (s *Session) Polling() bool {
	s.mu.Lock()
	poller := s.poller
	s.mu.Unlock()
	return poller != nil && poller.Running()
}
