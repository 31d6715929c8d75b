// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package civ

import (
	"fmt"
	"strings"
)

// FormatCommand returns the human-readable name for a command byte
func FormatCommand(cmd byte) string {
	switch cmd {
	case 0x00:
		return "TRANSCEIVE_FREQ"
	case 0x01:
		return "TRANSCEIVE_MODE"
	case CmdReadFreq:
		return "READ_FREQ"
	case CmdReadMode:
		return "READ_MODE"
	case CmdSetFreq:
		return "SET_FREQ"
	case CmdSetMode:
		return "SET_MODE"
	case CmdVFO:
		return "VFO"
	case CmdReadOffset:
		return "READ_OFFSET"
	case CmdSetOffset:
		return "SET_OFFSET"
	case CmdDuplex:
		return "DUPLEX"
	case CmdLevel:
		return "LEVEL"
	case CmdMeter:
		return "METER"
	case CmdVarious:
		return "VARIOUS"
	case CmdPower:
		return "POWER"
	case CmdReadID:
		return "READ_ID"
	case CmdTone:
		return "TONE"
	case CmdReadGPS:
		return "READ_GPS"
	case OK:
		return "OK"
	case NG:
		return "NG"
	default:
		return "UNKNOWN"
	}
}

// FormatLevelSub names a level (0x14) sub-command
func FormatLevelSub(sub byte) string {
	switch sub {
	case LevelAF:
		return "AF"
	case LevelRFGain:
		return "RF_GAIN"
	case LevelSquelch:
		return "SQL"
	case LevelRFPower:
		return "RF_POWER"
	default:
		return fmt.Sprintf("0x%02X", sub)
	}
}

// FormatMeterSub names a meter (0x15) sub-command
func FormatMeterSub(sub byte) string {
	switch sub {
	case MeterS:
		return "S"
	case MeterPower:
		return "PO"
	default:
		return fmt.Sprintf("0x%02X", sub)
	}
}

// FormatToneMode names a tone squelch function value
func FormatToneMode(v uint16) string {
	switch v {
	case 0:
		return "OFF"
	case 1:
		return "TONE"
	case 2:
		return "TSQL"
	case 3:
		return "DTCS"
	default:
		return fmt.Sprintf("0x%02X", v)
	}
}

// FormatDuplex names a duplex direction byte
func FormatDuplex(v uint16) string {
	switch v {
	case DuplexSimplex:
		return "SIMPLEX"
	case DuplexMinus:
		return "DUP-"
	case DuplexPlus:
		return "DUP+"
	default:
		return fmt.Sprintf("0x%02X", v)
	}
}

// FormatFrequency renders Hz as MHz with kHz grouping, e.g. 145.500.000
func FormatFrequency(hz uint64) string {
	mhz := hz / 1_000_000
	khz := (hz / 1_000) % 1_000
	h := hz % 1_000
	return fmt.Sprintf("%d.%03d.%03d", mhz, khz, h)
}

// FormatTone renders tenths of Hz as a decimal, e.g. 885 → "88.5"
func FormatTone(tenths uint16) string {
	return fmt.Sprintf("%d.%d", tenths/10, tenths%10)
}

// FormatHex renders raw bytes as space-separated hex
func FormatHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// FormatResponse formats a response into a one-line human-readable string
func FormatResponse(r Response) string {
	switch r.Kind {
	case KindOK, KindReject:
		return r.Kind.String()
	case KindFrequency:
		return fmt.Sprintf("FREQUENCY %s MHz", FormatFrequency(r.Hz))
	case KindOffset:
		return fmt.Sprintf("OFFSET %s MHz", FormatFrequency(r.Hz))
	case KindMode:
		return fmt.Sprintf("MODE %s", r.Mode)
	case KindLevel:
		return fmt.Sprintf("LEVEL %s=%d", FormatLevelSub(r.Sub), r.Value)
	case KindMeter:
		return fmt.Sprintf("METER %s=%d", FormatMeterSub(r.Sub), r.Value)
	case KindToneMode:
		return fmt.Sprintf("TONE_MODE %s", FormatToneMode(r.Value))
	case KindToneFrequency:
		dir := "TX"
		if r.Sub == ToneTSQL {
			dir = "RX"
		}
		return fmt.Sprintf("TONE %s %s Hz", dir, FormatTone(r.Value))
	case KindDTCS:
		return fmt.Sprintf("DTCS %s", r.DTCS)
	case KindDuplex:
		return fmt.Sprintf("DUPLEX %s", FormatDuplex(r.Value))
	case KindTransceiverID:
		return fmt.Sprintf("TRANSCEIVER_ID 0x%02X", r.Value)
	case KindGPS:
		return fmt.Sprintf("GPS %s", FormatPosition(r.Position))
	default:
		return fmt.Sprintf("UNKNOWN cmd=%s (0x%02X) sub=0x%02X", FormatCommand(r.Command), r.Command, r.Sub)
	}
}

// FormatPosition renders a position as decimal degrees with altitude,
// speed and course
func FormatPosition(p Position) string {
	ns, ew := "N", "E"
	lat, lon := p.Latitude, p.Longitude
	if lat < 0 {
		ns, lat = "S", -lat
	}
	if lon < 0 {
		ew, lon = "W", -lon
	}
	return fmt.Sprintf("%.5f°%s %.5f°%s alt=%.1fm spd=%.1fkm/h crs=%d° %s",
		lat, ns, lon, ew, p.Altitude, p.Speed, p.Course, p.UTC.Format("2006-01-02 15:04:05Z"))
}
