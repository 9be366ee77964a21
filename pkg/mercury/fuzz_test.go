// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package mercury

import (
	"bytes"
	"errors"
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

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func randomBytes(rng *rand.Rand, max int) []byte {
	b := make([]byte, rng.Intn(max+1))
	rng.Read(b)
	return b
}

func TestFuzz_CRCDetectsSingleBitFlips(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		data := randomBytes(rng, 64)
		if len(data) == 0 {
			continue
		}
		crc := CalculateCRC(data)
		if !MatchCRC(crc[:], CalculateCRC(data)) {
			t.Fatalf("round %d: CRC does not match itself for % X", i, data)
		}

		flipped := append([]byte(nil), data...)
		bit := rng.Intn(len(flipped) * 8)
		flipped[bit/8] ^= 1 << (bit % 8)
		if CalculateCRC(flipped) == crc {
			t.Fatalf("round %d: bit %d flip not detected in % X", i, bit, data)
		}
	}
}

func TestFuzz_FrameRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		address := byte(rng.Intn(256)) & 0xFE
		command := byte(rng.Intn(256))
		params := randomBytes(rng, 32)

		payload, err := ParseFrame(BuildFrame(address, command, params...), address)
		if err != nil {
			t.Fatalf("round %d: ParseFrame error: %v", i, err)
		}
		want := append([]byte{command}, params...)
		if !bytes.Equal(payload, want) {
			t.Fatalf("round %d: payload = % X, want % X", i, payload, want)
		}
	}
}

func TestFuzz_ParseFrameRandomInput(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		raw := randomBytes(rng, 300)
		payload, err := ParseFrame(raw, 0x9A)
		if err == nil {
			if len(payload) != len(raw)-1-CRCLength {
				t.Fatalf("round %d: payload length %d for %d byte frame", i, len(payload), len(raw))
			}
			continue
		}
		if !errors.Is(err, ErrWrongLength) && !errors.Is(err, ErrWrongCRC) && !errors.Is(err, ErrWrongAddress) {
			t.Fatalf("round %d: unexpected error type: %v", i, err)
		}
	}
}
