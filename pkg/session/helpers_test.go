// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/Thermoquad/civstat/pkg/civ"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingWriter records every write. failNext makes the next write fail.
type recordingWriter struct {
	mu       sync.Mutex
	writes   [][]byte
	failNext bool
	onWrite  func(data []byte)
}

var errWriteFailed = errors.New("write failed")

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	fail := w.failNext
	w.failNext = false
	w.writes = append(w.writes, append([]byte(nil), p...))
	hook := w.onWrite
	w.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	if fail {
		return 0, errWriteFailed
	}
	return len(p), nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes)
}

func (w *recordingWriter) get(i int) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes[i]
}

// radioBytes builds a radio → controller frame
func radioBytes(cmd byte, payload ...byte) []byte {
	out := []byte{civ.Preamble, civ.Preamble, civ.AddrController, civ.AddrID52, cmd}
	out = append(out, payload...)
	return append(out, civ.EOM)
}

// sendBytes is the wire form of a command the session would send
func sendBytes(f civ.Frame) []byte {
	return f.Bytes()
}

type simVFO struct {
	freq     uint64
	mode     civ.Mode
	toneMode uint8
	txTone   uint16
	rxTone   uint16
	dtcs     civ.DTCS
}

// simRadio is an in-memory ID-52 that answers CI-V commands. Like the real
// bus, every command is echoed back before the reply.
type simRadio struct {
	mu       sync.Mutex
	vfo      [2]simVFO
	selected int
	silent   bool
	levels   map[byte]uint16
	writes   [][]byte

	pr *io.PipeReader
	pw *io.PipeWriter
}

func newSimRadio() *simRadio {
	pr, pw := io.Pipe()
	return &simRadio{
		vfo: [2]simVFO{
			{freq: 145_000_000, mode: civ.ModeFM, txTone: 885, rxTone: 885, dtcs: civ.DTCS{Code: 23}},
			{freq: 433_500_000, mode: civ.ModeFMN, toneMode: 1, txTone: 1000, rxTone: 885, dtcs: civ.DTCS{Code: 754, TxPolarity: 1}},
		},
		levels: map[byte]uint16{civ.LevelAF: 128, civ.LevelSquelch: 10},
		pr:     pr,
		pw:     pw,
	}
}

func (r *simRadio) Read(p []byte) (int, error) { return r.pr.Read(p) }

func (r *simRadio) Close() error {
	r.pw.Close()
	return r.pr.Close()
}

// announce sends a transceive broadcast, as the radio does when its
// dial is turned
func (r *simRadio) announce(frame []byte) {
	go func() { _, _ = r.pw.Write(frame) }()
}

// unplug makes the next read fail as if the cable were pulled
func (r *simRadio) unplug() {
	r.pw.CloseWithError(io.ErrUnexpectedEOF)
}

func (r *simRadio) setSilent(v bool) {
	r.mu.Lock()
	r.silent = v
	r.mu.Unlock()
}

func (r *simRadio) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.writes)
}

// commands returns the command/sub pairs written so far
func (r *simRadio) commands() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.writes))
	for i, w := range r.writes {
		out[i] = w[4 : len(w)-1]
	}
	return out
}

func (r *simRadio) state(i int) simVFO {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vfo[i]
}

func (r *simRadio) Write(p []byte) (int, error) {
	r.mu.Lock()
	r.writes = append(r.writes, append([]byte(nil), p...))
	out := append([]byte(nil), p...) // echo
	if !r.silent {
		if f, _, _, err := civ.ParseFrame(p); err == nil && f != nil {
			out = append(out, r.reply(f)...)
		}
	}
	r.mu.Unlock()

	go func() { _, _ = r.pw.Write(out) }()
	return len(p), nil
}

func (r *simRadio) reply(f *civ.Frame) []byte {
	ok := radioBytes(civ.OK)
	ng := radioBytes(civ.NG)
	v := &r.vfo[r.selected]
	payload := f.Payload()

	bcd := func(n uint8) byte { b, _ := civ.EncodeBCDByte(n); return b }

	switch f.Command {
	case civ.CmdPower:
		return ok
	case civ.CmdVFO:
		switch f.Sub {
		case civ.VFOA:
			r.selected = 0
		case civ.VFOB:
			r.selected = 1
		default:
			return ng
		}
		return ok
	case civ.CmdReadFreq:
		data, _ := civ.EncodeBCDLE(v.freq, 5)
		return radioBytes(civ.CmdReadFreq, data...)
	case civ.CmdSetFreq:
		hz, err := civ.DecodeBCDLE(payload)
		if err != nil {
			return ng
		}
		v.freq = hz
		return ok
	case civ.CmdReadMode:
		m, fl, _ := v.mode.Bytes()
		return radioBytes(civ.CmdReadMode, m, fl)
	case civ.CmdSetMode:
		m, err := civ.ModeFromBytes(f.Sub, f.Data[0])
		if err != nil {
			return ng
		}
		v.mode = m
		return ok
	case civ.CmdVarious:
		if f.Sub != civ.VariousToneSquelch {
			return ng
		}
		if len(f.Data) == 0 {
			return radioBytes(civ.CmdVarious, civ.VariousToneSquelch, v.toneMode)
		}
		v.toneMode = f.Data[0]
		return ok
	case civ.CmdTone:
		switch f.Sub {
		case civ.ToneRepeater, civ.ToneTSQL:
			tone := &v.txTone
			if f.Sub == civ.ToneTSQL {
				tone = &v.rxTone
			}
			if len(f.Data) == 0 {
				return radioBytes(civ.CmdTone, f.Sub, 0x00, bcd(uint8(*tone/100)), bcd(uint8(*tone%100)))
			}
			ht, _ := civ.DecodeBCDByte(f.Data[1])
			ut, _ := civ.DecodeBCDByte(f.Data[2])
			*tone = uint16(ht)*100 + uint16(ut)
			return ok
		case civ.ToneDTCS:
			if len(f.Data) == 0 {
				d := v.dtcs
				return radioBytes(civ.CmdTone, civ.ToneDTCS,
					d.TxPolarity<<4|d.RxPolarity, bcd(uint8(d.Code/100)), bcd(uint8(d.Code%100)))
			}
			first, _ := civ.DecodeBCDByte(f.Data[1])
			rest, _ := civ.DecodeBCDByte(f.Data[2])
			v.dtcs = civ.DTCS{Code: uint16(first)*100 + uint16(rest), TxPolarity: f.Data[0] >> 4, RxPolarity: f.Data[0] & 0x0F}
			return ok
		}
		return ng
	case civ.CmdLevel:
		if len(f.Data) == 0 {
			data, _ := civ.EncodeBCDBE(uint64(r.levels[f.Sub]), 2)
			return radioBytes(civ.CmdLevel, append([]byte{f.Sub}, data...)...)
		}
		val, _ := civ.DecodeBCDBE(f.Data)
		r.levels[f.Sub] = uint16(val)
		return ok
	case civ.CmdMeter:
		return radioBytes(civ.CmdMeter, f.Sub, 0x01, 0x20)
	case civ.CmdReadID:
		return radioBytes(civ.CmdReadID, 0x00, civ.AddrID52)
	}
	return ng
}

// isCommand reports whether a written command matches f
func isCommand(written []byte, f civ.Frame) bool {
	return bytes.Equal(written, sendBytes(f))
}
