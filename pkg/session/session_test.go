// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/civstat/pkg/civ"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) handle(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) states() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []State
	for _, e := range l.events {
		if e.Type == EventState {
			out = append(out, e.State)
		}
	}
	return out
}

func (l *eventLog) errors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []error
	for _, e := range l.events {
		if e.Type == EventError {
			out = append(out, e.Err)
		}
	}
	return out
}

func countState(states []State, want State) int {
	n := 0
	for _, s := range states {
		if s == want {
			n++
		}
	}
	return n
}

func newTestSession(radio *simRadio, log *eventLog) *Session {
	return New(Options{
		Open:    func(context.Context) (Transport, error) { return radio, nil },
		Clock:   clockwork.NewFakeClock(),
		Logger:  zerolog.Nop(),
		OnEvent: log.handle,
	})
}

func connectTestSession(t *testing.T) (*Session, *simRadio, *eventLog) {
	t.Helper()
	radio := newSimRadio()
	log := &eventLog{}
	s := newTestSession(radio, log)
	require.NoError(t, s.Connect(waitCtx(t)))
	t.Cleanup(func() { _ = s.Disconnect() })
	return s, radio, log
}

// wireCommands returns the command and payload bytes of frames as the
// radio sees them
func wireCommands(frames ...civ.Frame) [][]byte {
	out := make([][]byte, len(frames))
	for i, f := range frames {
		b := f.Bytes()
		out[i] = b[4 : len(b)-1]
	}
	return out
}

func TestSession_InitializationSequence(t *testing.T) {
	s, radio, log := connectTestSession(t)

	reads := []civ.Frame{
		civ.ReadFrequency(),
		civ.ReadMode(),
		civ.ReadToneMode(),
		civ.ReadTxTone(),
		civ.ReadRxTone(),
		civ.ReadDTCS(),
	}
	want := []civ.Frame{civ.PowerOn(), civ.SelectVFOA()}
	want = append(want, reads...)
	want = append(want, civ.SelectVFOB())
	want = append(want, reads...)
	want = append(want, civ.SelectVFOA())

	assert.Equal(t, wireCommands(want...), radio.commands())
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, ChannelA, s.Selected())
	assert.Equal(t, ChannelA, s.Viewed())
	assert.True(t, s.Polling())
	assert.Equal(t,
		[]State{StateConnecting, StateInitializing, StateActive},
		log.states())
}

func TestSession_ShadowsBothChannels(t *testing.T) {
	s, _, _ := connectTestSession(t)

	a := s.Channel(ChannelA)
	assert.Equal(t, uint64(145_000_000), a.FrequencyHz)
	assert.Equal(t, civ.ModeFM, a.Mode)
	assert.Equal(t, ToneOff, a.ToneMode)
	assert.Equal(t, uint16(885), a.TxToneTenths)
	assert.Equal(t, civ.DTCS{Code: 23}, a.DTCS)
	assert.True(t, a.Has(FieldFrequency|FieldMode|FieldToneMode|FieldTxTone|FieldRxTone|FieldDTCS))

	b := s.Channel(ChannelB)
	assert.Equal(t, uint64(433_500_000), b.FrequencyHz)
	assert.Equal(t, civ.ModeFMN, b.Mode)
	assert.Equal(t, ToneTx, b.ToneMode)
	assert.Equal(t, uint16(1000), b.TxToneTenths)
	assert.Equal(t, uint16(885), b.RxToneTenths)
	assert.Equal(t, civ.DTCS{Code: 754, TxPolarity: 1}, b.DTCS)
}

func TestSession_SetFrequency(t *testing.T) {
	s, radio, _ := connectTestSession(t)

	require.NoError(t, s.SetFrequency(waitCtx(t), 146_520_000))
	assert.Equal(t, uint64(146_520_000), radio.state(0).freq)
	assert.Equal(t, uint64(146_520_000), s.Channel(ChannelA).FrequencyHz)
	assert.Equal(t, uint64(433_500_000), s.Channel(ChannelB).FrequencyHz)

	err := s.SetFrequency(waitCtx(t), civ.MaxFrequencyHz+1)
	assert.ErrorIs(t, err, civ.ErrFrequencyRange)
}

func TestSession_SelectChannelThenSet(t *testing.T) {
	s, radio, _ := connectTestSession(t)

	require.NoError(t, s.SelectChannel(waitCtx(t), ChannelB))
	assert.Equal(t, ChannelB, s.Selected())
	assert.Equal(t, ChannelB, s.Viewed())

	require.NoError(t, s.SetMode(waitCtx(t), civ.ModeAM))
	assert.Equal(t, civ.ModeAM, radio.state(1).mode)
	assert.Equal(t, civ.ModeAM, s.Channel(ChannelB).Mode)
	assert.Equal(t, civ.ModeFM, s.Channel(ChannelA).Mode)
}

func TestSession_ToneSquelchRoundTrip(t *testing.T) {
	s, radio, _ := connectTestSession(t)

	require.NoError(t, s.SetToneMode(waitCtx(t), ToneSquelch))
	require.Equal(t, ToneSquelch, s.Channel(ChannelA).ToneMode)

	require.NoError(t, s.SetToneFrequency(waitCtx(t), 1000))

	a := s.Channel(ChannelA)
	assert.Equal(t, uint16(1000), a.TxToneTenths)
	assert.Equal(t, uint16(1000), a.RxToneTenths, "tone squelch sets both tones")
	assert.Equal(t, uint16(1000), radio.state(0).rxTone)
}

func TestSession_ToneFrequencyLeavesRxTone(t *testing.T) {
	s, radio, _ := connectTestSession(t)

	require.NoError(t, s.SetToneMode(waitCtx(t), ToneTx))
	require.NoError(t, s.SetToneFrequency(waitCtx(t), 1318))

	a := s.Channel(ChannelA)
	assert.Equal(t, uint16(1318), a.TxToneTenths)
	assert.Equal(t, uint16(885), a.RxToneTenths)
	assert.Equal(t, uint16(885), radio.state(0).rxTone)
}

func TestSession_SetDTCSAndDuplex(t *testing.T) {
	s, radio, _ := connectTestSession(t)

	require.NoError(t, s.SetDTCS(waitCtx(t), 131, 1, 0))
	assert.Equal(t, civ.DTCS{Code: 131, TxPolarity: 1}, s.Channel(ChannelA).DTCS)
	assert.Equal(t, civ.DTCS{Code: 131, TxPolarity: 1}, radio.state(0).dtcs)

	// the simulated radio has no duplex support and says NG
	err := s.SetDuplex(waitCtx(t), civ.DuplexMinus)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, StateActive, s.State(), "a rejected set is not fatal")
}

func TestSession_SetLevel(t *testing.T) {
	s, _, _ := connectTestSession(t)

	require.NoError(t, s.SetLevel(waitCtx(t), civ.LevelSquelch, 200))
	v, ok := s.Level(civ.LevelSquelch)
	require.True(t, ok)
	assert.Equal(t, uint16(200), v)

	assert.ErrorIs(t, s.SetLevel(waitCtx(t), civ.LevelAF, 256), civ.ErrInvalidArgument)
}

func TestSession_RefreshChannelRestoresSelection(t *testing.T) {
	s, radio, _ := connectTestSession(t)
	before := len(radio.commands())

	require.NoError(t, s.RefreshChannel(waitCtx(t), ChannelB))

	got := radio.commands()[before:]
	require.Len(t, got, 8)
	assert.Equal(t, wireCommands(civ.SelectVFOB())[0], got[0])
	assert.Equal(t, wireCommands(civ.SelectVFOA())[0], got[7])
	assert.Equal(t, ChannelA, s.Selected())
}

func TestSession_ReadTransceiverID(t *testing.T) {
	s, _, _ := connectTestSession(t)

	id, err := s.ReadTransceiverID(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, uint16(civ.AddrID52), id)
	assert.Equal(t, uint16(civ.AddrID52), s.Aux().TransceiverID)
}

func TestSession_PowerCycle(t *testing.T) {
	s, radio, _ := connectTestSession(t)

	require.NoError(t, s.PowerOff(waitCtx(t)))
	assert.False(t, s.Polling())

	before := len(radio.commands())
	require.NoError(t, s.PowerOn(waitCtx(t)))
	assert.True(t, s.Polling())
	assert.Len(t, radio.commands()[before:], 16, "power on re-reads both channels")
}

func TestSession_Statistics(t *testing.T) {
	s, _, _ := connectTestSession(t)

	// the last write is counted after its reply may already have resolved it
	require.Eventually(t, func() bool { return s.Stats().Commands == 16 }, time.Second, time.Millisecond)

	st := s.Stats()
	assert.Equal(t, uint64(16), st.Responses)
	assert.Zero(t, st.Unsolicited)
	assert.Zero(t, st.Timeouts)
	assert.Greater(t, st.RxBytes, st.TxBytes, "echoes and replies both arrive")
}

func TestSession_NotActive(t *testing.T) {
	t.Parallel()
	s := newTestSession(newSimRadio(), &eventLog{})

	assert.ErrorIs(t, s.SetFrequency(context.Background(), 145_000_000), ErrNotActive)
	assert.ErrorIs(t, s.SelectChannel(context.Background(), ChannelB), ErrNotActive)
	_, err := s.ReadTransceiverID(context.Background())
	assert.ErrorIs(t, err, ErrNotActive)
	assert.NoError(t, s.Disconnect(), "disconnecting an unused session is a no-op")
}

func TestSession_NoTransport(t *testing.T) {
	t.Parallel()
	s := New(Options{})
	assert.ErrorIs(t, s.Connect(context.Background()), ErrNoTransport)
}

func TestSession_OpenFailure(t *testing.T) {
	t.Parallel()
	errNoPort := errors.New("no such port")
	log := &eventLog{}
	s := New(Options{
		Open:    func(context.Context) (Transport, error) { return nil, errNoPort },
		Clock:   clockwork.NewFakeClock(),
		Logger:  zerolog.Nop(),
		OnEvent: log.handle,
	})

	err := s.Connect(context.Background())
	require.ErrorIs(t, err, errNoPort)
	assert.Equal(t, StateDisconnected, s.State())
	assert.Equal(t, []State{StateConnecting, StateDisconnected}, log.states())
	require.NoError(t, s.Disconnect())
}

func TestSession_SingleUse(t *testing.T) {
	s, _, _ := connectTestSession(t)

	assert.ErrorIs(t, s.Connect(waitCtx(t)), ErrAlreadyConnected)
	require.NoError(t, s.Disconnect())
	assert.ErrorIs(t, s.Connect(waitCtx(t)), ErrClosed)
}

func TestSession_DisconnectResolvesOutstandingCommands(t *testing.T) {
	s, radio, log := connectTestSession(t)
	radio.setSilent(true)

	before := radio.writeCount()
	futures := make([]*Future, 4)
	for i := range futures {
		futures[i] = s.queue.Enqueue(sendBytes(civ.ReadFrequency()), ChannelA)
	}
	require.Equal(t, before+1, radio.writeCount(), "one in flight, three queued")

	require.NoError(t, s.Disconnect())

	for _, f := range futures {
		reply, err := f.Wait(waitCtx(t))
		require.NoError(t, err)
		assert.Nil(t, reply)
	}
	assert.Equal(t, before+1, radio.writeCount(), "nothing written during teardown")
	assert.Equal(t, StateDisconnected, s.State())
	assert.False(t, s.Polling())
	assert.Equal(t, ChannelState{}, s.Channel(ChannelA), "shadow state is cleared")
	assert.Equal(t, 1, countState(log.states(), StateDisconnected))
}

func TestSession_ConcurrentDisconnect(t *testing.T) {
	s, _, log := connectTestSession(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Disconnect()
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return countState(log.states(), StateDisconnected) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, countState(log.states(), StateDisconnecting))
}

func TestSession_LinkLossDisconnects(t *testing.T) {
	s, radio, log := connectTestSession(t)

	radio.unplug()

	require.Eventually(t, func() bool { return s.State() == StateDisconnected }, 2*time.Second, time.Millisecond)
	errs := log.errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], io.ErrUnexpectedEOF)
	assert.Equal(t, 1, countState(log.states(), StateDisconnected))
	assert.False(t, s.Polling())
}

func TestSession_DisconnectWhileConnecting(t *testing.T) {
	radio := newSimRadio()
	log := &eventLog{}
	entered := make(chan struct{})
	release := make(chan struct{})
	s := New(Options{
		Open: func(context.Context) (Transport, error) {
			close(entered)
			<-release
			return radio, nil
		},
		Clock:   clockwork.NewFakeClock(),
		Logger:  zerolog.Nop(),
		OnEvent: log.handle,
	})

	connected := make(chan error, 1)
	go func() { connected <- s.Connect(waitCtx(t)) }()

	<-entered
	assert.Equal(t, StateConnecting, s.State())
	require.NoError(t, s.Disconnect())
	close(release)

	select {
	case err := <-connected:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return")
	}

	assert.Zero(t, radio.writeCount(), "nothing is sent on an abandoned connection")
	_, err := radio.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.ErrClosedPipe, "transport is closed")
	assert.Equal(t, StateDisconnected, s.State())
	assert.False(t, s.Polling())
	assert.NotContains(t, log.states(), StateActive)
	assert.NoError(t, s.Disconnect())
}

func TestSession_FailedPowerOnStaysActive(t *testing.T) {
	s, radio, log := connectTestSession(t)
	radio.setSilent(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.PowerOn(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, StateActive, s.State())
	assert.True(t, s.Polling())
	states := log.states()
	assert.Equal(t, []State{StateInitializing, StateActive}, states[len(states)-2:])

	require.NoError(t, s.Disconnect())
	assert.Equal(t, StateDisconnected, s.State())
	assert.False(t, s.Polling())
}

func TestSession_PowerOnAfterDisconnect(t *testing.T) {
	s, _, _ := connectTestSession(t)
	require.NoError(t, s.Disconnect())

	assert.ErrorIs(t, s.PowerOn(waitCtx(t)), ErrNotActive)
	assert.Equal(t, StateDisconnected, s.State())
	assert.False(t, s.Polling())
}

func TestSession_DisconnectFromEventHandler(t *testing.T) {
	radio := newSimRadio()
	log := &eventLog{}
	done := make(chan error, 1)
	var once sync.Once
	var s *Session
	s = New(Options{
		Open:   func(context.Context) (Transport, error) { return radio, nil },
		Clock:  clockwork.NewFakeClock(),
		Logger: zerolog.Nop(),
		OnEvent: func(e Event) {
			log.handle(e)
			if e.Type == EventResponse && !e.Solicited {
				once.Do(func() {
					go func() { done <- s.Disconnect() }()
				})
			}
		},
	})
	require.NoError(t, s.Connect(waitCtx(t)))

	data, err := civ.EncodeBCDLE(147_000_000, 5)
	require.NoError(t, err)
	broadcast := []byte{civ.Preamble, civ.Preamble, civ.AddrBroadcast, civ.AddrID52, 0x00}
	broadcast = append(broadcast, data...)
	radio.announce(append(broadcast, civ.EOM))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect from the event handler did not finish")
	}
	assert.Equal(t, StateDisconnected, s.State())
	assert.Equal(t, 1, countState(log.states(), StateDisconnected))
}
