// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package civ

import "errors"

// Codec errors
var (
	ErrInvalidFrame       = errors.New("civ: invalid frame")
	ErrInvalidBCD         = errors.New("civ: invalid BCD data")
	ErrFrequencyRange     = errors.New("civ: frequency out of range")
	ErrUnknownMode        = errors.New("civ: unknown operating mode")
	ErrUnexpectedResponse = errors.New("civ: unexpected response sub-command")
	ErrInvalidArgument    = errors.New("civ: invalid command argument")
)
