// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"sync"
	"testing"

	"github.com/Thermoquad/civstat/pkg/civ"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routerFixture struct {
	writer    *recordingWriter
	queue     *Queue
	store     *ChannelStore
	telemetry *Telemetry
	stats     *Statistics
	router    *Router

	mu     sync.Mutex
	events []Event
}

func newRouterFixture() *routerFixture {
	clock := clockwork.NewFakeClock()
	fx := &routerFixture{
		writer:    &recordingWriter{},
		store:     NewChannelStore(ChannelA),
		telemetry: NewTelemetry(),
		stats:     NewStatistics(clock),
	}
	fx.queue = NewQueue(fx.writer, QueueConfig{Clock: clock, Stats: fx.stats})
	fx.router = NewRouter(RouterConfig{
		Decoder:   civ.NewFrameBuffer(),
		Queue:     fx.queue,
		Store:     fx.store,
		Telemetry: fx.telemetry,
		Stats:     fx.stats,
		Clock:     clock,
		OnEvent: func(e Event) {
			fx.mu.Lock()
			fx.events = append(fx.events, e)
			fx.mu.Unlock()
		},
	})
	return fx
}

func (fx *routerFixture) eventsOf(typ EventType) []Event {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	var out []Event
	for _, e := range fx.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func freqBytes(hz uint64) []byte {
	data, _ := civ.EncodeBCDLE(hz, 5)
	return radioBytes(civ.CmdReadFreq, data...)
}

func TestRouter_HintWinsOverSelection(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture()
	require.Equal(t, ChannelA, fx.store.Selected())

	f := fx.queue.Enqueue(sendBytes(civ.ReadFrequency()), ChannelB)
	fx.router.Process(freqBytes(146_520_000))

	reply, err := f.Wait(waitCtx(t))
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, ChannelB, reply.Channel)
	assert.Equal(t, civ.KindFrequency, reply.Response.Kind)

	b := fx.store.Get(ChannelB)
	assert.True(t, b.Has(FieldFrequency))
	assert.Equal(t, uint64(146_520_000), b.FrequencyHz)
	assert.False(t, fx.store.Get(ChannelA).Has(FieldFrequency), "selected channel must be untouched")
}

func TestRouter_UnsolicitedAppliesToSelected(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture()
	fx.store.SetSelected(ChannelB)

	fx.router.Process(radioBytes(civ.CmdReadMode, 0x02, 0x01))

	assert.Equal(t, civ.ModeAM, fx.store.Get(ChannelB).Mode)
	events := fx.eventsOf(EventResponse)
	require.Len(t, events, 1)
	assert.False(t, events[0].Solicited)
	assert.Equal(t, ChannelB, events[0].Channel)
	assert.Equal(t, uint64(1), fx.stats.Snapshot().Unsolicited)
}

func TestRouter_ParseErrorResolvesWithoutReply(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture()

	f1 := fx.queue.Enqueue(sendBytes(civ.ReadFrequency()), ChannelA)
	f2 := fx.queue.Enqueue(sendBytes(civ.ReadMode()), ChannelA)

	// bad BCD digit in the frequency
	fx.router.Process(radioBytes(civ.CmdReadFreq, 0x0A, 0x00, 0x00, 0x45, 0x01))

	reply, err := f1.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.False(t, fx.store.Get(ChannelA).Has(FieldFrequency))

	require.Equal(t, 2, fx.writer.count(), "queue advances after a parse error")
	require.Len(t, fx.eventsOf(EventError), 1)
	assert.ErrorIs(t, fx.eventsOf(EventError)[0].Err, civ.ErrInvalidBCD)

	fx.router.Process(radioBytes(civ.CmdReadMode, 0x05, 0x01))
	reply, err = f2.Wait(waitCtx(t))
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, civ.ModeFM, fx.store.Get(ChannelA).Mode)
}

func TestRouter_OnlyFirstResponseInChunkAnswers(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture()

	f1 := fx.queue.Enqueue(sendBytes(civ.ReadFrequency()), ChannelB)
	f2 := fx.queue.Enqueue(sendBytes(civ.ReadFrequency()), ChannelB)

	chunk := append(freqBytes(145_000_000), freqBytes(433_500_000)...)
	fx.router.Process(chunk)

	reply, err := f1.Wait(waitCtx(t))
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, uint64(145_000_000), reply.Response.Hz)

	select {
	case <-f2.Done():
		t.Fatal("second command was written after the chunk arrived and cannot be answered by it")
	default:
	}
	assert.Equal(t, uint64(145_000_000), fx.store.Get(ChannelB).FrequencyHz)
	assert.Equal(t, uint64(433_500_000), fx.store.Get(ChannelA).FrequencyHz, "extra response is unsolicited")

	fx.queue.Drain()
}

func TestRouter_BroadcastNeverAnswers(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture()

	f := fx.queue.Enqueue(sendBytes(civ.ReadMeter(civ.MeterS)), ChannelNone)

	data, _ := civ.EncodeBCDLE(147_000_000, 5)
	broadcast := []byte{civ.Preamble, civ.Preamble, civ.AddrBroadcast, civ.AddrID52, 0x00}
	broadcast = append(broadcast, data...)
	broadcast = append(broadcast, civ.EOM)
	fx.router.Process(broadcast)

	select {
	case <-f.Done():
		t.Fatal("transceive broadcast must not answer the in-flight command")
	default:
	}
	assert.Equal(t, uint64(147_000_000), fx.store.Get(ChannelA).FrequencyHz)

	fx.router.Process(radioBytes(civ.CmdMeter, civ.MeterS, 0x01, 0x20))
	reply, err := f.Wait(waitCtx(t))
	require.NoError(t, err)
	require.NotNil(t, reply)
	v, ok := fx.telemetry.Meter(civ.MeterS)
	assert.True(t, ok)
	assert.Equal(t, uint16(120), v)
}

func TestRouter_DispatchTargets(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture()

	stream := radioBytes(civ.OK)
	stream = append(stream, radioBytes(civ.CmdLevel, civ.LevelSquelch, 0x00, 0x42)...)
	stream = append(stream, radioBytes(civ.CmdDuplex, civ.DuplexPlus)...)
	stream = append(stream, radioBytes(civ.CmdReadOffset, 0x00, 0x60, 0x00)...)
	stream = append(stream, radioBytes(0x1A, 0x05, 0x00)...)
	stream = append(stream, sendBytes(civ.ReadMode())...) // echo
	fx.router.Process(stream)

	assert.Equal(t, ChannelState{}, fx.store.Get(ChannelA), "no channel state from acks or telemetry")
	assert.Equal(t, ChannelState{}, fx.store.Get(ChannelB))

	sql, ok := fx.telemetry.Level(civ.LevelSquelch)
	assert.True(t, ok)
	assert.Equal(t, uint16(42), sql)

	aux := fx.telemetry.Aux()
	assert.Equal(t, uint16(civ.DuplexPlus), aux.Duplex)
	assert.Equal(t, uint64(600_000), aux.OffsetHz)
	assert.False(t, aux.DuplexTime.IsZero())

	assert.Len(t, fx.eventsOf(EventResponse), 5, "echo is dropped, unknown is still reported")
	assert.Empty(t, fx.eventsOf(EventError))
}
