// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package civ

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseFrequency parses a frequency typed by a user. It accepts MHz with
// an optional decimal part ("145.5", "433.500"), the grouped form produced
// by FormatFrequency ("145.500.000"), or a plain number of Hz
// ("145500000"). Bare numbers below 10000 are taken as MHz.
func ParseFrequency(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.ToLower(s), "mhz")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty frequency", ErrInvalidArgument)
	}

	parts := strings.Split(s, ".")
	var hz uint64
	switch len(parts) {
	case 1:
		n, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: frequency %q", ErrInvalidArgument, s)
		}
		hz = n
		if n < 10_000 {
			hz = n * 1_000_000
		}
	case 2:
		mhz, frac, err := splitDecimal(parts[0], parts[1], 6)
		if err != nil {
			return 0, fmt.Errorf("%w: frequency %q", ErrInvalidArgument, s)
		}
		hz = mhz*1_000_000 + frac
	case 3:
		if len(parts[1]) != 3 || len(parts[2]) != 3 {
			return 0, fmt.Errorf("%w: frequency %q", ErrInvalidArgument, s)
		}
		mhz, frac, err := splitDecimal(parts[0], parts[1]+parts[2], 6)
		if err != nil {
			return 0, fmt.Errorf("%w: frequency %q", ErrInvalidArgument, s)
		}
		hz = mhz*1_000_000 + frac
	default:
		return 0, fmt.Errorf("%w: frequency %q", ErrInvalidArgument, s)
	}

	if hz > MaxFrequencyHz {
		return 0, fmt.Errorf("%w: %d Hz", ErrFrequencyRange, hz)
	}
	return hz, nil
}

// ParseTone parses a CTCSS tone in Hz ("88.5", "100") into tenths of Hz
func ParseTone(s string) (uint16, error) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "hz")
	s = strings.TrimSpace(s)

	whole, fracStr, _ := strings.Cut(s, ".")
	hz, frac, err := splitDecimal(whole, fracStr, 1)
	if err != nil {
		return 0, fmt.Errorf("%w: tone %q", ErrInvalidArgument, s)
	}
	tenths := hz*10 + frac
	if tenths > 9999 {
		return 0, fmt.Errorf("%w: tone %q out of range", ErrInvalidArgument, s)
	}
	return uint16(tenths), nil
}

// splitDecimal parses whole and a fractional digit string scaled to
// digits places. Extra fractional digits are rejected.
func splitDecimal(whole, frac string, digits int) (uint64, uint64, error) {
	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	if len(frac) > digits {
		return 0, 0, fmt.Errorf("too many decimal places")
	}
	if frac == "" {
		return w, 0, nil
	}
	f, err := strconv.ParseUint(frac, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	for i := len(frac); i < digits; i++ {
		f *= 10
	}
	return w, f, nil
}
