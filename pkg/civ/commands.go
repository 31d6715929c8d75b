// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package civ

import "fmt"

// Read commands

// ReadFrequency creates a read-operating-frequency command
func ReadFrequency() Frame { return NewFrame(CmdReadFreq) }

// ReadMode creates a read-operating-mode command
func ReadMode() Frame { return NewFrame(CmdReadMode) }

// ReadLevel creates a read-level command (AF, RF gain, squelch, RF power)
func ReadLevel(sub byte) Frame { return NewSubFrame(CmdLevel, sub) }

// ReadMeter creates a read-meter command
func ReadMeter(sub byte) Frame { return NewSubFrame(CmdMeter, sub) }

// ReadToneMode creates a read of the tone squelch function (0=off, 1=tone, 2=TSQL, 3=DTCS)
func ReadToneMode() Frame { return NewSubFrame(CmdVarious, VariousToneSquelch) }

// ReadTxTone creates a read of the repeater (transmit) tone
func ReadTxTone() Frame { return NewSubFrame(CmdTone, ToneRepeater) }

// ReadRxTone creates a read of the tone squelch (receive) tone
func ReadRxTone() Frame { return NewSubFrame(CmdTone, ToneTSQL) }

// ReadDTCS creates a read of the DTCS code and polarity
func ReadDTCS() Frame { return NewSubFrame(CmdTone, ToneDTCS) }

// ReadDuplex creates a read-duplex-direction command
func ReadDuplex() Frame { return NewFrame(CmdDuplex) }

// ReadOffset creates a read-duplex-offset command
func ReadOffset() Frame { return NewFrame(CmdReadOffset) }

// ReadTransceiverID creates a read-transceiver-ID command
func ReadTransceiverID() Frame { return NewSubFrame(CmdReadID, 0x00) }

// ReadGPS creates a read-my-position command
func ReadGPS() Frame { return NewSubFrame(CmdReadGPS, 0x00) }

// Control commands

// SelectVFOA selects band A
func SelectVFOA() Frame { return NewSubFrame(CmdVFO, VFOA) }

// SelectVFOB selects band B
func SelectVFOB() Frame { return NewSubFrame(CmdVFO, VFOB) }

// PowerOn creates a power-on command
func PowerOn() Frame { return NewSubFrame(CmdPower, PowerOnSub) }

// PowerOff creates a power-off command
func PowerOff() Frame { return NewSubFrame(CmdPower, PowerOffSub) }

// Set commands

// SetFrequency creates a set-operating-frequency command
func SetFrequency(hz uint64) (Frame, error) {
	if hz > MaxFrequencyHz {
		return Frame{}, fmt.Errorf("%w: %d Hz", ErrFrequencyRange, hz)
	}
	data, err := EncodeBCDLE(hz, 5)
	if err != nil {
		return Frame{}, err
	}
	return NewFrame(CmdSetFreq, data...), nil
}

// SetMode creates a set-operating-mode command
func SetMode(m Mode) (Frame, error) {
	mode, filter, err := m.Bytes()
	if err != nil {
		return Frame{}, err
	}
	return NewSubFrame(CmdSetMode, mode, filter), nil
}

// SetLevel creates a set-level command (0-255)
func SetLevel(sub byte, value uint16) (Frame, error) {
	if value > 255 {
		return Frame{}, fmt.Errorf("%w: level %d out of range 0-255", ErrInvalidArgument, value)
	}
	data, err := EncodeBCDBE(uint64(value), 2)
	if err != nil {
		return Frame{}, err
	}
	return NewSubFrame(CmdLevel, sub, data...), nil
}

// SetToneMode sets the tone squelch function (0=off, 1=tone, 2=TSQL, 3=DTCS)
func SetToneMode(mode uint8) (Frame, error) {
	if mode > 3 {
		return Frame{}, fmt.Errorf("%w: tone mode %d", ErrInvalidArgument, mode)
	}
	return NewSubFrame(CmdVarious, VariousToneSquelch, mode), nil
}

// SetTone sets the Tx (ToneRepeater) or Rx (ToneTSQL) tone in tenths of Hz.
// 88.5 Hz is 885 and encodes as 00 08 85.
func SetTone(sub byte, tenths uint16) (Frame, error) {
	if sub != ToneRepeater && sub != ToneTSQL {
		return Frame{}, fmt.Errorf("%w: tone sub 0x%02X", ErrInvalidArgument, sub)
	}
	if tenths > 9999 {
		return Frame{}, fmt.Errorf("%w: tone %d out of range", ErrInvalidArgument, tenths)
	}
	ht, _ := EncodeBCDByte(uint8(tenths / 100))
	ut, _ := EncodeBCDByte(uint8(tenths % 100))
	return NewSubFrame(CmdTone, sub, 0x00, ht, ut), nil
}

// SetDTCS sets the DTCS code (000-999) and polarities (0=normal, 1=reverse)
func SetDTCS(code uint16, txPol, rxPol uint8) (Frame, error) {
	if code > 999 {
		return Frame{}, fmt.Errorf("%w: DTCS code %d out of range", ErrInvalidArgument, code)
	}
	if txPol > 1 || rxPol > 1 {
		return Frame{}, fmt.Errorf("%w: DTCS polarity %d/%d", ErrInvalidArgument, txPol, rxPol)
	}
	first, _ := EncodeBCDByte(uint8(code / 100))
	rest, _ := EncodeBCDByte(uint8(code % 100))
	return NewSubFrame(CmdTone, ToneDTCS, txPol<<4|rxPol, first, rest), nil
}

// SetDuplex sets the duplex direction (DuplexSimplex, DuplexMinus, DuplexPlus)
func SetDuplex(dir byte) (Frame, error) {
	switch dir {
	case DuplexSimplex, DuplexMinus, DuplexPlus:
		return NewSubFrame(CmdDuplex, dir), nil
	}
	return Frame{}, fmt.Errorf("%w: duplex 0x%02X", ErrInvalidArgument, dir)
}

// SetOffset sets the duplex offset. The radio stores it in 100 Hz steps.
func SetOffset(hz uint64) (Frame, error) {
	if hz%100 != 0 {
		return Frame{}, fmt.Errorf("%w: offset %d Hz is not a multiple of 100", ErrFrequencyRange, hz)
	}
	data, err := EncodeBCDLE(hz/100, 3)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: offset %d Hz", ErrFrequencyRange, hz)
	}
	return NewFrame(CmdSetOffset, data...), nil
}
