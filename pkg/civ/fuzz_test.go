// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package civ

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng creates a random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomValidFrame returns one of a handful of well-formed radio responses
func randomValidFrame(rng *rand.Rand) []byte {
	switch rng.Intn(5) {
	case 0:
		return radioFrame(OK)
	case 1:
		hz := uint64(rng.Int63n(MaxFrequencyHz))
		data, _ := EncodeBCDLE(hz, 5)
		return radioFrame(CmdReadFreq, data...)
	case 2:
		v, _ := EncodeBCDBE(uint64(rng.Intn(256)), 2)
		return radioFrame(CmdMeter, append([]byte{MeterS}, v...)...)
	case 3:
		return radioFrame(CmdVarious, VariousToneSquelch, byte(rng.Intn(4)))
	default:
		return radioFrame(CmdReadMode, 0x05, 0x01)
	}
}

// TestFuzzFrameBuffer_RandomBytes feeds random noise in random chunk sizes.
// The buffer must never panic and must stay bounded.
func TestFuzzFrameBuffer_RandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for round := 0; round < rounds; round++ {
		fb := NewFrameBuffer()
		noise := make([]byte, rng.Intn(256))
		rng.Read(noise)

		for len(noise) > 0 {
			n := 1 + rng.Intn(len(noise))
			_, err := fb.Feed(noise[:n])
			for err != nil {
				_, err = fb.Feed(nil)
			}
			noise = noise[n:]
		}

		if fb.Buffered() > maxBufferSize {
			t.Fatalf("round %d: buffer grew to %d bytes", round, fb.Buffered())
		}
	}
}

// TestFuzzFrameBuffer_RecoversAfterNoise checks that a valid frame following
// arbitrary noise (without EOM bytes) is always decoded.
func TestFuzzFrameBuffer_RecoversAfterNoise(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for round := 0; round < rounds; round++ {
		fb := NewFrameBuffer()

		noise := make([]byte, rng.Intn(32))
		for i := range noise {
			b := byte(rng.Intn(256))
			if b == EOM || b == Preamble {
				b = 0x00
			}
			noise[i] = b
		}
		frame := randomValidFrame(rng)

		var got []Response
		resps, err := fb.Feed(append(noise, frame...))
		got = append(got, resps...)
		for err != nil {
			resps, err = fb.Feed(nil)
			got = append(got, resps...)
		}

		if len(got) != 1 {
			t.Fatalf("round %d: expected 1 response after noise % X, got %d", round, noise, len(got))
		}
	}
}
