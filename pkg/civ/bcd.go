// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package civ

import "fmt"

// DecodeBCDByte decodes one packed BCD byte (0x00-0x99)
func DecodeBCDByte(b byte) (uint8, error) {
	hi, lo := b>>4, b&0x0F
	if hi > 9 || lo > 9 {
		return 0, fmt.Errorf("%w: 0x%02X", ErrInvalidBCD, b)
	}
	return hi*10 + lo, nil
}

// EncodeBCDByte encodes a value 0-99 as one packed BCD byte
func EncodeBCDByte(v uint8) (byte, error) {
	if v > 99 {
		return 0, fmt.Errorf("%w: %d does not fit in one byte", ErrInvalidBCD, v)
	}
	return (v/10)<<4 | v%10, nil
}

// DecodeBCDLE decodes little-endian BCD (least significant digit pair first).
// Frequencies and offsets use this order.
func DecodeBCDLE(data []byte) (uint64, error) {
	var result uint64
	for i := len(data) - 1; i >= 0; i-- {
		d, err := DecodeBCDByte(data[i])
		if err != nil {
			return 0, err
		}
		result = result*100 + uint64(d)
	}
	return result, nil
}

// EncodeBCDLE encodes value into n little-endian BCD bytes
func EncodeBCDLE(value uint64, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, _ := EncodeBCDByte(uint8(value % 100))
		out[i] = b
		value /= 100
	}
	if value != 0 {
		return nil, fmt.Errorf("%w: value does not fit in %d bytes", ErrInvalidBCD, n)
	}
	return out, nil
}

// DecodeBCDBE decodes big-endian BCD (most significant digit pair first).
// Levels and meters use this order.
func DecodeBCDBE(data []byte) (uint64, error) {
	var result uint64
	for _, b := range data {
		d, err := DecodeBCDByte(b)
		if err != nil {
			return 0, err
		}
		result = result*100 + uint64(d)
	}
	return result, nil
}

// EncodeBCDBE encodes value into n big-endian BCD bytes
func EncodeBCDBE(value uint64, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		b, _ := EncodeBCDByte(uint8(value % 100))
		out[i] = b
		value /= 100
	}
	if value != 0 {
		return nil, fmt.Errorf("%w: value does not fit in %d bytes", ErrInvalidBCD, n)
	}
	return out, nil
}

// hi and lo return the individual digits of a BCD byte without validation.
// Position reports mix digit boundaries across bytes, so they are decoded
// nibble by nibble.
func hi(b byte) uint8 { return (b >> 4) & 0x0F }
func lo(b byte) uint8 { return b & 0x0F }
