// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package civ

import (
	"fmt"
	"strings"
)

// Mode is an operating mode with its filter width folded in
type Mode uint8

// Operating modes supported by the ID-52A Plus
const (
	ModeUnknown Mode = iota
	ModeFM
	ModeFMN
	ModeAM
	ModeAMN
	ModeDV
)

// Wire values for mode and filter
const (
	modeByteAM   = 0x02
	modeByteFM   = 0x05
	modeByteDV   = 0x17
	filterWide   = 0x01
	filterNarrow = 0x02
)

// Modes lists the selectable modes in display order
var Modes = []Mode{ModeFM, ModeFMN, ModeAM, ModeAMN, ModeDV}

// ModeFromBytes decodes the mode/filter pair of a mode response
func ModeFromBytes(mode, filter byte) (Mode, error) {
	switch {
	case mode == modeByteFM && filter == filterWide:
		return ModeFM, nil
	case mode == modeByteFM && filter == filterNarrow:
		return ModeFMN, nil
	case mode == modeByteAM && filter == filterWide:
		return ModeAM, nil
	case mode == modeByteAM && filter == filterNarrow:
		return ModeAMN, nil
	case mode == modeByteDV:
		return ModeDV, nil
	}
	return ModeUnknown, fmt.Errorf("%w: mode 0x%02X filter 0x%02X", ErrUnknownMode, mode, filter)
}

// Bytes returns the mode and filter bytes for a set-mode command
func (m Mode) Bytes() (byte, byte, error) {
	switch m {
	case ModeFM:
		return modeByteFM, filterWide, nil
	case ModeFMN:
		return modeByteFM, filterNarrow, nil
	case ModeAM:
		return modeByteAM, filterWide, nil
	case ModeAMN:
		return modeByteAM, filterNarrow, nil
	case ModeDV:
		return modeByteDV, filterWide, nil
	}
	return 0, 0, fmt.Errorf("%w: %d", ErrUnknownMode, m)
}

// ToggleWidth swaps between the wide and narrow filter of the same mode.
// DV has a single width and is returned unchanged.
func (m Mode) ToggleWidth() Mode {
	switch m {
	case ModeFM:
		return ModeFMN
	case ModeFMN:
		return ModeFM
	case ModeAM:
		return ModeAMN
	case ModeAMN:
		return ModeAM
	}
	return m
}

// IsNarrow reports whether the narrow filter is selected
func (m Mode) IsNarrow() bool {
	return m == ModeFMN || m == ModeAMN
}

func (m Mode) String() string {
	switch m {
	case ModeFM:
		return "FM"
	case ModeFMN:
		return "FM-N"
	case ModeAM:
		return "AM"
	case ModeAMN:
		return "AM-N"
	case ModeDV:
		return "DV"
	}
	return "UNKNOWN"
}

// ParseMode parses a mode name such as "fm", "FM-N" or "amn"
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FM":
		return ModeFM, nil
	case "FM-N", "FMN":
		return ModeFMN, nil
	case "AM":
		return ModeAM, nil
	case "AM-N", "AMN":
		return ModeAMN, nil
	case "DV":
		return ModeDV, nil
	}
	return ModeUnknown, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}
