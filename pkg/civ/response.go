// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package civ

import (
	"fmt"
	"time"
)

// Kind identifies the variant held by a Response
type Kind uint8

// Response variants
const (
	KindUnknown Kind = iota
	KindOK
	KindReject
	KindFrequency
	KindMode
	KindLevel
	KindMeter
	KindGPS
	KindToneMode
	KindToneFrequency
	KindDTCS
	KindDuplex
	KindOffset
	KindTransceiverID
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindReject:
		return "NG"
	case KindFrequency:
		return "FREQUENCY"
	case KindMode:
		return "MODE"
	case KindLevel:
		return "LEVEL"
	case KindMeter:
		return "METER"
	case KindGPS:
		return "GPS"
	case KindToneMode:
		return "TONE_MODE"
	case KindToneFrequency:
		return "TONE_FREQUENCY"
	case KindDTCS:
		return "DTCS"
	case KindDuplex:
		return "DUPLEX"
	case KindOffset:
		return "OFFSET"
	case KindTransceiverID:
		return "TRANSCEIVER_ID"
	default:
		return "UNKNOWN"
	}
}

// DTCS is a digital-coded squelch code with its polarities.
// Polarity 0 is normal, 1 is reversed.
type DTCS struct {
	Code       uint16
	TxPolarity uint8
	RxPolarity uint8
}

func (d DTCS) String() string {
	pol := func(p uint8) string {
		if p == 0 {
			return "N"
		}
		return "R"
	}
	return fmt.Sprintf("%03d %s%s", d.Code, pol(d.TxPolarity), pol(d.RxPolarity))
}

// Position is a decoded GPS report in decimal units
type Position struct {
	Latitude  float64 // degrees, negative is south
	Longitude float64 // degrees, negative is west
	Altitude  float64 // meters
	Speed     float64 // km/h
	Course    uint16  // degrees
	UTC       time.Time
}

// Response is a decoded frame from the radio.
//
// Only the fields belonging to Kind are meaningful:
//
//	KindFrequency, KindOffset   Hz
//	KindMode                    Mode
//	KindLevel, KindMeter        Sub, Value
//	KindToneMode                Sub, Value (raw byte)
//	KindToneFrequency           Sub, Value (tenths of Hz)
//	KindDTCS                    DTCS
//	KindDuplex                  Value (0x10/0x11/0x12)
//	KindTransceiverID           Value
//	KindGPS                     Position
//
// Broadcast is set for transceive frames the radio sends on its own when
// the operator changes a setting; they never answer a command.
type Response struct {
	Kind      Kind
	Command   byte
	Sub       byte
	Hz        uint64
	Mode      Mode
	Value     uint16
	DTCS      DTCS
	Position  Position
	Broadcast bool
}

// ParseResponse decodes a frame received from the radio.
// The variant is inferred from the command byte; unrecognized commands
// produce KindUnknown rather than an error.
func ParseResponse(f *Frame) (Response, error) {
	r := Response{Command: f.Command, Sub: f.Sub, Broadcast: f.Dst == AddrBroadcast}

	switch f.Command {
	case OK:
		r.Kind = KindOK
		return r, nil
	case NG:
		r.Kind = KindReject
		return r, nil

	// 0x00 and 0x01 are transceive broadcasts sent when the dial moves
	case 0x00, CmdReadFreq, CmdSetFreq:
		return parseFrequency(f, r)
	case 0x01, CmdReadMode, CmdSetMode:
		return parseMode(f, r)

	case CmdLevel:
		r.Kind = KindLevel
		return parseLevelValue(f, r)
	case CmdMeter:
		r.Kind = KindMeter
		return parseLevelValue(f, r)

	case CmdVarious:
		if !f.HasSub || len(f.Data) < 1 {
			return r, fmt.Errorf("%w: various response too short", ErrInvalidFrame)
		}
		if f.Sub != VariousToneSquelch {
			r.Kind = KindUnknown
			return r, nil
		}
		r.Kind = KindToneMode
		r.Value = uint16(f.Data[0])
		return r, nil

	case CmdTone:
		return parseTone(f, r)

	case CmdDuplex:
		if !f.HasSub {
			return r, fmt.Errorf("%w: duplex response too short", ErrInvalidFrame)
		}
		r.Kind = KindDuplex
		r.Value = uint16(f.Sub)
		return r, nil

	case CmdReadOffset, CmdSetOffset:
		payload := f.Payload()
		if len(payload) != 3 {
			return r, fmt.Errorf("%w: offset payload %d bytes", ErrInvalidFrame, len(payload))
		}
		raw, err := DecodeBCDLE(payload)
		if err != nil {
			return r, err
		}
		r.Kind = KindOffset
		r.Hz = raw * 100
		return r, nil

	case CmdReadID:
		if !f.HasSub {
			return r, fmt.Errorf("%w: transceiver ID response too short", ErrInvalidFrame)
		}
		r.Kind = KindTransceiverID
		// 19 00 <id>; some firmware omits the 00 sub-command
		if len(f.Data) > 0 {
			r.Value = uint16(f.Data[0])
		} else {
			r.Value = uint16(f.Sub)
		}
		return r, nil

	case CmdReadGPS:
		return parseGPS(f, r)
	}

	r.Kind = KindUnknown
	return r, nil
}

func parseFrequency(f *Frame, r Response) (Response, error) {
	payload := f.Payload()
	if len(payload) != 5 {
		return r, fmt.Errorf("%w: frequency payload %d bytes", ErrInvalidFrame, len(payload))
	}
	hz, err := DecodeBCDLE(payload)
	if err != nil {
		return r, err
	}
	r.Kind = KindFrequency
	r.Hz = hz
	return r, nil
}

func parseMode(f *Frame, r Response) (Response, error) {
	if !f.HasSub || len(f.Data) < 1 {
		return r, fmt.Errorf("%w: mode response too short", ErrInvalidFrame)
	}
	m, err := ModeFromBytes(f.Sub, f.Data[0])
	if err != nil {
		return r, err
	}
	r.Kind = KindMode
	r.Mode = m
	return r, nil
}

func parseLevelValue(f *Frame, r Response) (Response, error) {
	if !f.HasSub || len(f.Data) != 2 {
		return r, fmt.Errorf("%w: %s response needs sub and 2 data bytes", ErrInvalidFrame, r.Kind)
	}
	v, err := DecodeBCDBE(f.Data)
	if err != nil {
		return r, err
	}
	r.Value = uint16(v)
	return r, nil
}

// parseTone decodes 1B 00/01 (tone frequency) and 1B 02 (DTCS)
func parseTone(f *Frame, r Response) (Response, error) {
	if !f.HasSub || len(f.Data) != 3 {
		return r, fmt.Errorf("%w: tone response needs sub and 3 data bytes", ErrInvalidFrame)
	}

	switch f.Sub {
	case ToneRepeater, ToneTSQL:
		ht, err := DecodeBCDByte(f.Data[1])
		if err != nil {
			return r, err
		}
		ut, err := DecodeBCDByte(f.Data[2])
		if err != nil {
			return r, err
		}
		r.Kind = KindToneFrequency
		r.Value = uint16(ht)*100 + uint16(ut)
		return r, nil

	case ToneDTCS:
		first, err := DecodeBCDByte(f.Data[1])
		if err != nil {
			return r, err
		}
		rest, err := DecodeBCDByte(f.Data[2])
		if err != nil {
			return r, err
		}
		r.Kind = KindDTCS
		r.DTCS = DTCS{
			Code:       uint16(first)*100 + uint16(rest),
			TxPolarity: hi(f.Data[0]),
			RxPolarity: lo(f.Data[0]),
		}
		return r, nil
	}

	return r, fmt.Errorf("%w: tone sub 0x%02X", ErrUnexpectedResponse, f.Sub)
}

// parseGPS decodes the 27-byte position report of command 0x23 sub 0x00.
// Digit boundaries do not align with bytes, so fields are assembled from
// individual nibbles.
func parseGPS(f *Frame, r Response) (Response, error) {
	if !f.HasSub || f.Sub != 0x00 {
		return r, fmt.Errorf("%w: GPS sub 0x%02X", ErrUnexpectedResponse, f.Sub)
	}
	d := f.Data
	if len(d) != gpsDataSize {
		return r, fmt.Errorf("%w: GPS payload %d bytes", ErrInvalidFrame, len(d))
	}
	for _, b := range d {
		if hi(b) > 9 || lo(b) > 9 {
			return r, fmt.Errorf("%w: 0x%02X in GPS payload", ErrInvalidBCD, b)
		}
	}

	digits := func(ns ...uint8) float64 {
		var v float64
		for _, n := range ns {
			v = v*10 + float64(n)
		}
		return v
	}

	// dd mm.mmm
	lat := digits(hi(d[0]), lo(d[0])) +
		(digits(hi(d[1]), lo(d[1]))+digits(hi(d[2]), lo(d[2]), hi(d[3]))/1000)/60
	if lo(d[4]) != 1 {
		lat = -lat
	}

	// ddd mm.mmm
	lon := digits(lo(d[5]), hi(d[6]), lo(d[6])) +
		(digits(hi(d[7]), lo(d[7]))+digits(hi(d[8]), lo(d[8]), hi(d[9]))/1000)/60
	if lo(d[10]) != 1 {
		lon = -lon
	}

	alt := digits(hi(d[11]), lo(d[11]), hi(d[12]), lo(d[12]), hi(d[13]), lo(d[13])) / 10
	if lo(d[14]) == 1 {
		alt = -alt
	}

	course := digits(hi(d[15]), lo(d[15]), hi(d[16]))
	speed := digits(hi(d[17]), lo(d[17]), hi(d[18]), lo(d[18]), hi(d[19]), lo(d[19])) / 10

	year := int(digits(hi(d[20]), lo(d[20]), hi(d[21]), lo(d[21])))
	num := func(b byte) int { return int(hi(b))*10 + int(lo(b)) }

	r.Kind = KindGPS
	r.Position = Position{
		Latitude:  lat,
		Longitude: lon,
		Altitude:  alt,
		Speed:     speed,
		Course:    uint16(course),
		UTC: time.Date(year, time.Month(num(d[22])), num(d[23]),
			num(d[24]), num(d[25]), num(d[26]), 0, time.UTC),
	}
	return r, nil
}
