// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

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

func randomPayload(rng *rand.Rand, max int) []byte {
	p := make([]byte, rng.Intn(max+1))
	rng.Read(p)
	return p
}

func randomChecksum(rng *rand.Rand) Checksum {
	if rng.Intn(2) == 0 {
		return ChecksumXModem
	}
	return ChecksumCCITTFalse
}

// TestFuzzDecoder_RandomBytes feeds random bytes to the decoder
// and verifies it doesn't crash or panic
func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder(randomChecksum(rng))
		for _, b := range randomPayload(rng, 512) {
			d.DecodeByte(b)
		}
	}
}

// TestFuzzReadFrame_RandomBytes verifies ReadFrame never panics on garbage
// and only accepts frames whose checksum verifies.
func TestFuzzReadFrame_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		sum := randomChecksum(rng)
		data := randomPayload(rng, 600)
		payload, err := ReadFrame(bytes.NewReader(data), sum)
		if err != nil {
			continue
		}
		header := 2
		if data[0] == StartLong {
			header = 3
		}
		end := header + len(payload)
		if !bytes.Equal(data[header:end], payload) {
			t.Fatalf("round %d: accepted payload is not the framed bytes", i)
		}
		if crc := uint16(data[end])<<8 | uint16(data[end+1]); crc != sum.Sum(payload) {
			t.Fatalf("round %d: accepted frame with bad checksum", i)
		}
	}
}

// TestFuzzFrame_RoundTrip encodes random payloads and decodes them with both
// ReadFrame and the incremental Decoder.
func TestFuzzFrame_RoundTrip(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		sum := randomChecksum(rng)
		payload := randomPayload(rng, 700)
		frame := MustEncodeFrame(payload, sum)

		got, err := ReadFrame(bytes.NewReader(frame), sum)
		if err != nil {
			t.Fatalf("round %d len=%d: ReadFrame failed: %v", i, len(payload), err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("round %d: ReadFrame payload mismatch", i)
		}

		d := NewDecoder(sum)
		var decoded *Frame
		for _, b := range frame {
			f, err := d.DecodeByte(b)
			if err != nil {
				t.Fatalf("round %d: decoder error: %v", i, err)
			}
			if f != nil {
				decoded = f
			}
		}
		if decoded == nil || !bytes.Equal(decoded.Payload, payload) {
			t.Fatalf("round %d: decoder payload mismatch", i)
		}
	}
}

// TestFuzzFrame_SingleBitCorruption verifies every single-bit flip inside the
// payload or checksum is rejected.
func TestFuzzFrame_SingleBitCorruption(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		sum := randomChecksum(rng)
		payload := randomPayload(rng, 200)
		if len(payload) == 0 {
			payload = []byte{OpAlive}
		}
		frame := MustEncodeFrame(payload, sum)

		// Short header: payload and CRC span [2, len-1)
		pos := 2 + rng.Intn(len(frame)-3)
		frame[pos] ^= 1 << uint(rng.Intn(8))

		_, err := ReadFrame(bytes.NewReader(frame), sum)
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("round %d: flip at %d: err = %v, want checksum mismatch", i, pos, err)
		}
	}
}

// TestFuzzFrame_SingleBitCorruptionLongHeader repeats the single-bit check
// with payloads that need the three-byte header.
func TestFuzzFrame_SingleBitCorruptionLongHeader(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		sum := randomChecksum(rng)
		payload := make([]byte, MaxShortPayload+1+rng.Intn(1024))
		rng.Read(payload)
		frame := MustEncodeFrame(payload, sum)
		if frame[0] != StartLong {
			t.Fatalf("round %d: %d byte payload got start byte 0x%02x", i, len(payload), frame[0])
		}

		// Long header: payload and CRC span [3, len-1)
		pos := 3 + rng.Intn(len(frame)-4)
		frame[pos] ^= 1 << uint(rng.Intn(8))

		_, err := ReadFrame(bytes.NewReader(frame), sum)
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("round %d: flip at %d: err = %v, want checksum mismatch", i, pos, err)
		}
	}
}

// TestFuzzValues_RoundTrip encodes random telemetry and checks the decoder
// reproduces the integer wire values exactly.
func TestFuzzValues_RoundTrip(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		v := Values{
			TempFET:       float64(rng.Intn(2000)-500) / 10,
			Voltage:       float64(rng.Intn(1000)) / 10,
			DutyCycle:     float64(rng.Intn(2001)-1000) / 1000,
			RPM:           float64(rng.Intn(200000) - 100000),
			Tachometer:    rng.Int31() - rng.Int31(),
			TachometerAbs: rng.Int31(),
			Fault:         Fault(rng.Intn(7)),
		}
		got, err := DecodeValues(EncodeValues(v))
		if err != nil {
			t.Fatalf("round %d: DecodeValues failed: %v", i, err)
		}
		if !approx(got.TempFET, v.TempFET) || !approx(got.Voltage, v.Voltage) ||
			!approx(got.DutyCycle, v.DutyCycle) || got.RPM != v.RPM ||
			got.Tachometer != v.Tachometer || got.Fault != v.Fault {
			t.Fatalf("round %d: got %+v, want %+v", i, got, v)
		}
	}
}
