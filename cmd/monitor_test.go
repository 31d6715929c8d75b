// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/civstat/pkg/civ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusStats(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := newBusStats(start)

	s.update(civ.Response{Kind: civ.KindFrequency, Broadcast: true})
	s.update(civ.Response{Kind: civ.KindOK})
	s.update(civ.Response{Kind: civ.KindReject})
	s.update(civ.Response{Kind: civ.KindUnknown})
	s.decodeError()

	assert.Equal(t, uint64(4), s.Frames)
	assert.Equal(t, uint64(1), s.Broadcasts)
	assert.Equal(t, uint64(1), s.Acks)
	assert.Equal(t, uint64(1), s.Rejects)
	assert.Equal(t, uint64(1), s.Unknown)
	assert.Equal(t, uint64(1), s.DecodeErrors)

	s.calculateRates(start.Add(2 * time.Second))
	assert.InDelta(t, 2.0, s.FrameRate, 1e-9)
	assert.InDelta(t, 0.5, s.ErrorRate, 1e-9)

	// no new traffic
	s.calculateRates(start.Add(3 * time.Second))
	assert.Zero(t, s.FrameRate)

	// same instant leaves rates alone
	s.update(civ.Response{Kind: civ.KindOK})
	s.calculateRates(start.Add(3 * time.Second))
	assert.Zero(t, s.FrameRate)
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{61 * time.Second, "1 minute and 1 second"},
		{2 * time.Hour, "2 hours"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "1 day, 2 hours, 3 minutes, and 4 seconds"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatUptime(tt.d))
	}
}

func TestMonitorModel_Update(t *testing.T) {
	m := initialMonitorModel("test", false)

	next, _ := m.Update(busDataMsg{responses: []civ.Response{
		{Kind: civ.KindFrequency, Hz: 145_500_000, Broadcast: true},
		{Kind: civ.KindMode, Mode: civ.ModeFM, Broadcast: true},
		{Kind: civ.KindFrequency, Hz: 433_000_000},
		{Kind: civ.KindReject},
	}})
	m = next.(monitorModel)

	require.NotNil(t, m.lastRadio)
	assert.Equal(t, uint64(145_500_000), m.lastRadio.frequencyHz, "only broadcasts update the radio panel")
	assert.Equal(t, civ.ModeFM, m.lastRadio.mode)
	assert.Equal(t, uint64(4), m.stats.Frames)
	require.Len(t, m.eventLog, 1, "errors-only mode logs just the NG")
	assert.True(t, m.eventLog[0].isError)

	next, _ = m.Update(busDataMsg{decodeErr: errors.New("bad frame")})
	m = next.(monitorModel)
	assert.Equal(t, uint64(1), m.stats.DecodeErrors)
	assert.Len(t, m.eventLog, 2)

	next, _ = m.Update(busClosedMsg{})
	m = next.(monitorModel)
	assert.True(t, m.closed)
	assert.Contains(t, m.View(), "Connection closed")
}

func TestMonitorModel_ShowAll(t *testing.T) {
	m := initialMonitorModel("test", true)
	next, _ := m.Update(busDataMsg{responses: []civ.Response{
		{Kind: civ.KindFrequency, Hz: 145_500_000, Broadcast: true},
		{Kind: civ.KindOK},
	}})
	m = next.(monitorModel)
	require.Len(t, m.eventLog, 2)
	assert.Contains(t, m.eventLog[0].message, "TRX")
}

func TestParseDiscoveryAnswer(t *testing.T) {
	answer := civ.Frame{Dst: civ.AddrController, Src: 0xA2, Command: civ.CmdReadID, Sub: 0x00, HasSub: true, Data: []byte{0xB4}}
	radio, ok := parseDiscoveryAnswer(answer.Bytes())
	require.True(t, ok)
	assert.Equal(t, byte(0xA2), radio.address)
	assert.Equal(t, uint16(0xB4), radio.id)

	// our own broadcast request echoed back
	_, ok = parseDiscoveryAnswer(civ.ReadTransceiverID().To(civ.AddrBroadcast).Bytes())
	assert.False(t, ok)

	other := civ.Frame{Dst: civ.AddrController, Src: 0xA2, Command: civ.OK}
	_, ok = parseDiscoveryAnswer(other.Bytes())
	assert.False(t, ok)
}
