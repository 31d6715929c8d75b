// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"io"
	"sync"
)

// Tap wraps a link so every chunk read or written is also recorded. Record
// failures never fail the link; the first one is kept for Err.
type Tap struct {
	rwc io.ReadWriteCloser
	w   *Writer

	mu  sync.Mutex
	err error
}

// NewTap returns rwc with traffic recorded to w
func NewTap(rwc io.ReadWriteCloser, w *Writer) *Tap {
	return &Tap{rwc: rwc, w: w}
}

func (t *Tap) Read(p []byte) (int, error) {
	n, err := t.rwc.Read(p)
	if n > 0 {
		t.record(DirRX, p[:n])
	}
	return n, err
}

func (t *Tap) Write(p []byte) (int, error) {
	n, err := t.rwc.Write(p)
	if n > 0 {
		t.record(DirTX, p[:n])
	}
	return n, err
}

// Close closes the underlying link
func (t *Tap) Close() error {
	return t.rwc.Close()
}

// Err returns the first recording error, if any
func (t *Tap) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Tap) record(dir Direction, data []byte) {
	if err := t.w.Write(dir, data); err != nil {
		t.mu.Lock()
		if t.err == nil {
			t.err = err
		}
		t.mu.Unlock()
	}
}
