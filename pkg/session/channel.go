// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Thermoquad/civstat/pkg/civ"
)

// Channel is one of the radio's two receivers (VFO A / VFO B)
type Channel uint8

// ChannelNone means "no hint": the response applies to whichever channel
// is currently selected on the radio.
const (
	ChannelNone Channel = iota
	ChannelA
	ChannelB
)

// Channels lists the addressable channels in initialization order
var Channels = []Channel{ChannelA, ChannelB}

func (c Channel) String() string {
	switch c {
	case ChannelA:
		return "A"
	case ChannelB:
		return "B"
	default:
		return "-"
	}
}

// Other returns the opposite channel
func (c Channel) Other() Channel {
	if c == ChannelA {
		return ChannelB
	}
	return ChannelA
}

// ParseChannel parses "a" or "b"
func ParseChannel(s string) (Channel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return ChannelA, nil
	case "B":
		return ChannelB, nil
	}
	return ChannelNone, fmt.Errorf("invalid channel %q (want A or B)", s)
}

func (c Channel) selectFrame() civ.Frame {
	if c == ChannelB {
		return civ.SelectVFOB()
	}
	return civ.SelectVFOA()
}

// ToneMode is the tone squelch function reported by the radio
type ToneMode uint8

// Tone squelch functions
const (
	ToneOff     ToneMode = 0 // no tone
	ToneTx      ToneMode = 1 // tone on transmit only
	ToneSquelch ToneMode = 2 // tone on transmit and receive
	ToneDTCS    ToneMode = 3 // digital-coded squelch
)

func (m ToneMode) String() string {
	return civ.FormatToneMode(uint16(m))
}

// ParseToneMode parses a tone function name: off, tone, tsql or dtcs
func ParseToneMode(s string) (ToneMode, error) {
	for m := ToneOff; m <= ToneDTCS; m++ {
		if strings.EqualFold(strings.TrimSpace(s), m.String()) {
			return m, nil
		}
	}
	return ToneOff, fmt.Errorf("invalid tone mode %q (want off, tone, tsql or dtcs)", s)
}

// Fields returns the ChannelState fields that are meaningful for this tone
// mode. Presentation uses it to decide what to show and edit.
func (m ToneMode) Fields() Field {
	switch m {
	case ToneTx:
		return FieldTxTone
	case ToneSquelch:
		return FieldTxTone | FieldRxTone
	case ToneDTCS:
		return FieldDTCS
	}
	return 0
}

// Field is a bitmask naming ChannelState fields
type Field uint8

// ChannelState fields
const (
	FieldFrequency Field = 1 << iota
	FieldMode
	FieldToneMode
	FieldTxTone
	FieldRxTone
	FieldDTCS
)

// ChannelState is the last known configuration of one channel.
// A field is only meaningful once its bit is set in Known.
type ChannelState struct {
	FrequencyHz  uint64
	Mode         civ.Mode
	ToneMode     ToneMode
	TxToneTenths uint16
	RxToneTenths uint16
	DTCS         civ.DTCS
	Known        Field
}

// Has reports whether the radio has reported every field in f
func (s ChannelState) Has(f Field) bool {
	return s.Known&f == f
}

// ChannelStore holds the shadow state of both channels and which channel
// is selected on the radio. Only the router writes channel state.
type ChannelStore struct {
	mu       sync.RWMutex
	channels map[Channel]*ChannelState
	selected Channel
	initial  Channel
}

// NewChannelStore creates an empty store with selected as the assumed
// current selection
func NewChannelStore(selected Channel) *ChannelStore {
	if selected == ChannelNone {
		selected = ChannelA
	}
	st := &ChannelStore{initial: selected}
	st.Reset()
	return st
}

// Apply records a response against ch, or against the selected channel
// when ch is ChannelNone. It returns the channel written and false for
// response kinds that are not channel state.
func (st *ChannelStore) Apply(ch Channel, resp civ.Response) (Channel, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if ch == ChannelNone {
		ch = st.selected
	}
	s, ok := st.channels[ch]
	if !ok {
		return ChannelNone, false
	}

	switch resp.Kind {
	case civ.KindFrequency:
		s.FrequencyHz = resp.Hz
		s.Known |= FieldFrequency
	case civ.KindMode:
		s.Mode = resp.Mode
		s.Known |= FieldMode
	case civ.KindToneMode:
		s.ToneMode = ToneMode(resp.Value)
		s.Known |= FieldToneMode
	case civ.KindToneFrequency:
		switch resp.Sub {
		case civ.ToneRepeater:
			s.TxToneTenths = resp.Value
			s.Known |= FieldTxTone
		case civ.ToneTSQL:
			s.RxToneTenths = resp.Value
			s.Known |= FieldRxTone
		default:
			return ChannelNone, false
		}
	case civ.KindDTCS:
		s.DTCS = resp.DTCS
		s.Known |= FieldDTCS
	default:
		return ChannelNone, false
	}
	return ch, true
}

// Get returns a copy of a channel's state
func (st *ChannelStore) Get(ch Channel) ChannelState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if s, ok := st.channels[ch]; ok {
		return *s
	}
	return ChannelState{}
}

// Selected returns the channel currently selected on the radio
func (st *ChannelStore) Selected() Channel {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.selected
}

// SetSelected records a confirmed selection
func (st *ChannelStore) SetSelected(ch Channel) {
	if ch == ChannelNone {
		return
	}
	st.mu.Lock()
	st.selected = ch
	st.mu.Unlock()
}

// Reset forgets everything the radio has reported
func (st *ChannelStore) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.channels = map[Channel]*ChannelState{
		ChannelA: {},
		ChannelB: {},
	}
	st.selected = st.initial
}
