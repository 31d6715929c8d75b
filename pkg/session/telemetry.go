// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"sync"
	"time"

	"github.com/Thermoquad/civstat/pkg/civ"
)

// AuxRecord is the last auxiliary telemetry reported by the radio.
// Zero times mean the value has not been reported yet.
type AuxRecord struct {
	Position     civ.Position
	PositionTime time.Time

	Duplex     uint16 // civ.DuplexSimplex / DuplexMinus / DuplexPlus
	DuplexTime time.Time

	OffsetHz   uint64
	OffsetTime time.Time

	TransceiverID     uint16
	TransceiverIDTime time.Time
}

// Telemetry holds meter and level scalars and the auxiliary record.
// These values are not per-channel.
type Telemetry struct {
	mu     sync.RWMutex
	levels map[byte]uint16
	meters map[byte]uint16
	aux    AuxRecord
}

// NewTelemetry creates an empty telemetry store
func NewTelemetry() *Telemetry {
	t := &Telemetry{}
	t.Reset()
	return t
}

// Apply records a telemetry response. It returns false for kinds that are
// not telemetry.
func (t *Telemetry) Apply(resp civ.Response, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch resp.Kind {
	case civ.KindLevel:
		t.levels[resp.Sub] = resp.Value
	case civ.KindMeter:
		t.meters[resp.Sub] = resp.Value
	case civ.KindGPS:
		t.aux.Position = resp.Position
		t.aux.PositionTime = now
	case civ.KindDuplex:
		t.aux.Duplex = resp.Value
		t.aux.DuplexTime = now
	case civ.KindOffset:
		t.aux.OffsetHz = resp.Hz
		t.aux.OffsetTime = now
	case civ.KindTransceiverID:
		t.aux.TransceiverID = resp.Value
		t.aux.TransceiverIDTime = now
	default:
		return false
	}
	return true
}

// Level returns the last value of a level sub-command
func (t *Telemetry) Level(sub byte) (uint16, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.levels[sub]
	return v, ok
}

// Meter returns the last value of a meter sub-command
func (t *Telemetry) Meter(sub byte) (uint16, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.meters[sub]
	return v, ok
}

// Aux returns a copy of the auxiliary record
func (t *Telemetry) Aux() AuxRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.aux
}

// Reset clears all telemetry
func (t *Telemetry) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.levels = make(map[byte]uint16)
	t.meters = make(map[byte]uint16)
	t.aux = AuxRecord{}
}
