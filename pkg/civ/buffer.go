// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package civ

import "fmt"

// FrameBuffer reassembles frames from an arbitrary chunked byte stream and
// decodes them into responses.
//
// Frames whose source is the controller address are echoes of our own
// writes (the CI-V line is shared) and are dropped.
type FrameBuffer struct {
	buf        []byte
	controller byte
	onFrame    func(raw []byte)
}

// NewFrameBuffer creates a frame buffer for the default controller address
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{
		buf:        make([]byte, 0, maxBufferSize),
		controller: AddrController,
	}
}

// OnFrame registers a callback invoked with the raw bytes of every complete
// frame, echoes included. Used for traffic capture.
func (fb *FrameBuffer) OnFrame(fn func(raw []byte)) {
	fb.onFrame = fn
}

// Reset discards any partially received frame
func (fb *FrameBuffer) Reset() {
	fb.buf = fb.buf[:0]
}

// Buffered returns the number of bytes awaiting a complete frame
func (fb *FrameBuffer) Buffered() int {
	return len(fb.buf)
}

// Feed appends data and returns every response completed by it.
//
// Decoding stops at the first malformed frame: the responses that preceded
// it are returned together with the error, the bad frame is discarded and
// any following bytes stay buffered. Call Feed(nil) to continue decoding
// the remainder.
func (fb *FrameBuffer) Feed(data []byte) ([]Response, error) {
	fb.buf = append(fb.buf, data...)

	var out []Response
	for {
		frame, start, end, err := ParseFrame(fb.buf)
		if err != nil {
			fb.consume(end)
			return out, err
		}

		if frame == nil {
			fb.trim(start)
			if len(fb.buf) > maxBufferSize {
				n := len(fb.buf)
				fb.Reset()
				return out, fmt.Errorf("%w: no EOM after %d bytes", ErrInvalidFrame, n)
			}
			return out, nil
		}

		if fb.onFrame != nil {
			fb.onFrame(append([]byte(nil), fb.buf[start:end]...))
		}
		fb.consume(end)

		if frame.Src == fb.controller {
			continue
		}

		resp, err := ParseResponse(frame)
		if err != nil {
			return out, fmt.Errorf("cmd 0x%02X: %w", frame.Command, err)
		}
		out = append(out, resp)
	}
}

// consume drops the first n bytes, keeping the backing array
func (fb *FrameBuffer) consume(n int) {
	fb.buf = fb.buf[:copy(fb.buf, fb.buf[n:])]
}

// trim drops garbage ahead of a partial frame. With no preamble at all, a
// trailing FE is kept since it may be the first half of one.
func (fb *FrameBuffer) trim(start int) {
	if start > 0 {
		fb.consume(start)
		return
	}
	if start < 0 {
		if n := len(fb.buf); n > 0 && fb.buf[n-1] == Preamble {
			fb.consume(n - 1)
		} else {
			fb.Reset()
		}
	}
}
