// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records raw CI-V traffic to a file and reads it back.
//
// A capture is a stream of CBOR items: one Header followed by any number
// of Records, each encoded as a three-element array
// [unix_nanos, direction, bytes].
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Magic identifies a capture file
const Magic = "civstat-capture"

// Version is the capture format version written by this package
const Version = 1

// ErrNotCapture is returned when a stream does not start with a capture header
var ErrNotCapture = errors.New("capture: not a capture file")

// Direction is which way the bytes travelled
type Direction uint8

// Directions
const (
	DirRX Direction = iota // radio → controller
	DirTX                  // controller → radio
)

func (d Direction) String() string {
	if d == DirTX {
		return "TX"
	}
	return "RX"
}

// Header is the first item of every capture
type Header struct {
	Magic   string `cbor:"1,keyasint"`
	Version uint   `cbor:"2,keyasint"`
	Source  string `cbor:"3,keyasint,omitempty"`
	Started int64  `cbor:"4,keyasint"`
	ID      string `cbor:"5,keyasint,omitempty"`
}

// Record is one chunk of bytes as it crossed the link
type Record struct {
	_         struct{} `cbor:",toarray"`
	UnixNanos int64
	Direction Direction
	Data      []byte
}

// Time returns the record timestamp
func (r Record) Time() time.Time {
	return time.Unix(0, r.UnixNanos)
}

// Writer appends records to a capture stream. It is safe for concurrent use.
type Writer struct {
	mu    sync.Mutex
	enc   *cbor.Encoder
	clock clockwork.Clock
	n     int
}

// NewWriter writes a header to w and returns a Writer for the records
func NewWriter(w io.Writer, source string, clock clockwork.Clock) (*Writer, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	enc := cbor.NewEncoder(w)
	hdr := Header{
		Magic:   Magic,
		Version: Version,
		Source:  source,
		Started: clock.Now().UnixNano(),
		ID:      uuid.NewString(),
	}
	if err := enc.Encode(hdr); err != nil {
		return nil, fmt.Errorf("capture: write header: %w", err)
	}
	return &Writer{enc: enc, clock: clock}, nil
}

// Write records data travelling in direction dir
func (w *Writer) Write(dir Direction, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	rec := Record{
		UnixNanos: w.clock.Now().UnixNano(),
		Direction: dir,
		Data:      append([]byte(nil), data...),
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("capture: write record: %w", err)
	}
	w.n++
	return nil
}

// Count returns the number of records written
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Reader reads records from a capture stream
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader reads and validates the capture header
func NewReader(r io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(r)
	var hdr Header
	if err := dec.Decode(&hdr); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotCapture, err)
	}
	if hdr.Magic != Magic {
		return nil, ErrNotCapture
	}
	if hdr.Version > Version {
		return nil, fmt.Errorf("capture: unsupported version %d", hdr.Version)
	}
	return &Reader{dec: dec, header: hdr}, nil
}

// Header returns the capture header
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next record, or io.EOF at the end of the stream
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("capture: read record: %w", err)
	}
	return rec, nil
}
