// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package civ implements the CI-V frame codec used by Icom transceivers.
//
// CI-V is a half-duplex request/response protocol on a single shared line.
// Every frame has the shape:
//
//	FE FE <dst> <src> <cmd> [<sub>] [<data>...] FD
//
// This package builds command frames, reassembles frames from an arbitrary
// byte stream and decodes them into typed Response values. Session handling
// (queueing, timeouts, shadow state) lives in package session.
package civ

// Protocol framing bytes
const (
	Preamble = 0xFE
	EOM      = 0xFD
	OK       = 0xFB
	NG       = 0xFA
)

// Bus addresses
const (
	AddrBroadcast  = 0x00 // transceive frames
	AddrID52       = 0xB4 // ID-52A Plus default
	AddrController = 0xE0
)

// MinFrameSize is FE FE dst src cmd FD
const MinFrameSize = 6

// maxBufferSize bounds the reassembly buffer when no EOM ever arrives.
const maxBufferSize = 1024

// Command bytes
const (
	CmdReadFreq   = 0x03
	CmdReadMode   = 0x04
	CmdSetFreq    = 0x05
	CmdSetMode    = 0x06
	CmdVFO        = 0x07
	CmdReadOffset = 0x0C
	CmdSetOffset  = 0x0D
	CmdDuplex     = 0x0F
	CmdLevel      = 0x14
	CmdMeter      = 0x15
	CmdVarious    = 0x16
	CmdPower      = 0x18
	CmdReadID     = 0x19
	CmdTone       = 0x1B
	CmdReadGPS    = 0x23
)

// Level sub-commands (0x14)
const (
	LevelAF      = 0x01
	LevelRFGain  = 0x02
	LevelSquelch = 0x03
	LevelRFPower = 0x0A
)

// Meter sub-commands (0x15)
const (
	MeterS     = 0x02
	MeterPower = 0x11
)

// Various sub-commands (0x16)
const (
	VariousToneSquelch = 0x5D
)

// Tone sub-commands (0x1B)
const (
	ToneRepeater = 0x00 // Tx tone
	ToneTSQL     = 0x01 // Rx tone
	ToneDTCS     = 0x02
)

// VFO sub-commands (0x07). The ID-52A Plus selects bands with 0xD0/0xD1
// rather than the 0x00/0x01 used by HF rigs.
const (
	VFOA = 0xD0
	VFOB = 0xD1
)

// Power sub-commands (0x18)
const (
	PowerOffSub = 0x00
	PowerOnSub  = 0x01
)

// Duplex directions (0x0F)
const (
	DuplexSimplex = 0x10
	DuplexMinus   = 0x11
	DuplexPlus    = 0x12
)

// MaxFrequencyHz is the largest value representable in 5 BCD bytes.
const MaxFrequencyHz = 9_999_999_999

// gpsDataSize is the number of payload bytes in a position report.
const gpsDataSize = 27
