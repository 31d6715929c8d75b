// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package civ

import (
	"bytes"
	"fmt"
)

// Frame is one CI-V message without its preamble and EOM
type Frame struct {
	Dst     byte
	Src     byte
	Command byte
	Sub     byte
	HasSub  bool
	Data    []byte
}

// NewFrame creates a controller → radio frame without a sub-command
func NewFrame(command byte, data ...byte) Frame {
	return Frame{
		Dst:     AddrID52,
		Src:     AddrController,
		Command: command,
		Data:    data,
	}
}

// NewSubFrame creates a controller → radio frame with a sub-command
func NewSubFrame(command, sub byte, data ...byte) Frame {
	f := NewFrame(command, data...)
	f.Sub = sub
	f.HasSub = true
	return f
}

// To returns a copy of the frame addressed to the given radio
func (f Frame) To(addr byte) Frame {
	f.Dst = addr
	return f
}

// Bytes serializes the frame to wire format
func (f Frame) Bytes() []byte {
	out := make([]byte, 0, MinFrameSize+1+len(f.Data))
	out = append(out, Preamble, Preamble, f.Dst, f.Src, f.Command)
	if f.HasSub {
		out = append(out, f.Sub)
	}
	out = append(out, f.Data...)
	return append(out, EOM)
}

// Payload returns everything between the command byte and EOM.
// Some responses (frequency, offset) carry no sub-command, so the byte the
// parser filed as Sub is really the first data byte.
func (f Frame) Payload() []byte {
	if !f.HasSub {
		return f.Data
	}
	out := make([]byte, 0, 1+len(f.Data))
	out = append(out, f.Sub)
	return append(out, f.Data...)
}

// IsOK returns true for an FB (accepted) response
func (f Frame) IsOK() bool { return f.Command == OK }

// IsNG returns true for an FA (rejected) response
func (f Frame) IsNG() bool { return f.Command == NG }

// ParseFrame locates the first complete frame in buf.
//
// start is the index of the frame's preamble (-1 if buf holds no preamble)
// and end is the index just past its EOM. A nil frame with a nil error means
// more bytes are needed. On error, buf[start:end] is the rejected frame.
func ParseFrame(buf []byte) (frame *Frame, start, end int, err error) {
	start = bytes.Index(buf, []byte{Preamble, Preamble})
	if start < 0 {
		return nil, -1, 0, nil
	}

	// Collapse runs of preamble bytes (wake-up sequences) so the last two
	// FE bytes begin the frame.
	for start+2 < len(buf) && buf[start+2] == Preamble {
		start++
	}

	eom := bytes.IndexByte(buf[start:], EOM)
	if eom < 0 {
		return nil, start, 0, nil
	}
	end = start + eom + 1

	raw := buf[start:end]
	if len(raw) < MinFrameSize {
		return nil, start, end, fmt.Errorf("%w: %d bytes", ErrInvalidFrame, len(raw))
	}

	f := &Frame{
		Dst:     raw[2],
		Src:     raw[3],
		Command: raw[4],
	}

	payload := raw[5 : len(raw)-1]
	if f.Command != OK && f.Command != NG && len(payload) > 0 {
		f.Sub = payload[0]
		f.HasSub = true
		if len(payload) > 1 {
			f.Data = append([]byte(nil), payload[1:]...)
		}
	}

	return f, start, end, nil
}
