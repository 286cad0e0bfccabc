// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"fmt"
	"time"
)

// Decoder is an incremental frame decoder for passively following a live
// byte stream. Unlike ReadFrame it never blocks and resynchronises on the
// next start marker after an error.
type Decoder struct {
	state   int
	sum     Checksum
	long    bool
	length  int
	payload []byte
	crc     uint16
	skipped int
}

// NewDecoder creates a new protocol decoder
func NewDecoder(sum Checksum) *Decoder {
	return &Decoder{state: stateIdle, sum: sum}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.long = false
	d.length = 0
	d.payload = nil
	d.crc = 0
}

// Skipped returns the number of bytes discarded while hunting for a start marker.
func (d *Decoder) Skipped() int {
	return d.skipped
}

// DecodeByte processes a single byte through the decoder state machine
// Returns a completed frame, or nil if the frame is incomplete
// Returns an error if decoding fails
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	switch d.state {
	case stateIdle:
		switch b {
		case StartShort:
			d.Reset()
			d.state = stateLengthLo
		case StartLong:
			d.Reset()
			d.long = true
			d.state = stateLengthHi
		default:
			d.skipped++
		}
		return nil, nil

	case stateLengthHi:
		d.length = int(b) << 8
		d.state = stateLengthLo
		return nil, nil

	case stateLengthLo:
		d.length |= int(b)
		d.payload = make([]byte, 0, d.length)
		if d.length == 0 {
			d.state = stateCRC1
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		d.payload = append(d.payload, b)
		if len(d.payload) >= d.length {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.crc |= uint16(b)
		d.state = stateEnd
		return nil, nil

	case stateEnd:
		frame := &Frame{Payload: d.payload, CRC: d.crc, Long: d.long}
		d.Reset()
		if b != EndByte {
			return nil, &FrameError{Kind: BadTerminator, Detail: fmt.Sprintf("got 0x%02X", b)}
		}
		if calculated := d.sum.Sum(frame.Payload); calculated != frame.CRC {
			return nil, &FrameError{
				Kind:   ChecksumMismatch,
				Detail: fmt.Sprintf("expected 0x%04X, got 0x%04X", calculated, frame.CRC),
			}
		}
		frame.Timestamp = time.Now()
		return frame, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}
