// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// Frame is a complete, checksum-validated unit of the wire protocol.
type Frame struct {
	Payload   []byte
	CRC       uint16
	Long      bool
	Timestamp time.Time
}

// Opcode returns the first payload byte, or 0 for an empty payload.
func (f *Frame) Opcode() byte {
	if len(f.Payload) == 0 {
		return 0
	}
	return f.Payload[0]
}

// EncodeFrame wraps payload in a frame ready for transmission.
// Payloads up to MaxShortPayload bytes get the short header.
func EncodeFrame(payload []byte, sum Checksum) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	var frame []byte
	if len(payload) <= MaxShortPayload {
		frame = make([]byte, 0, 2+len(payload)+ChecksumSize+1)
		frame = append(frame, StartShort, uint8(len(payload)))
	} else {
		frame = make([]byte, 0, 3+len(payload)+ChecksumSize+1)
		frame = append(frame, StartLong, uint8(len(payload)>>8), uint8(len(payload)))
	}
	frame = append(frame, payload...)

	// CRC is big-endian on the wire
	crc := sum.Sum(payload)
	frame = append(frame, byte(crc>>8), byte(crc&0xFF))

	return append(frame, EndByte), nil
}

// MustEncodeFrame is EncodeFrame for payloads known to fit.
// Panics on encoding error.
func MustEncodeFrame(payload []byte, sum Checksum) []byte {
	data, err := EncodeFrame(payload, sum)
	if err != nil {
		panic(fmt.Sprintf("vesc: encode error: %v", err))
	}
	return data
}

// ReadFrame reads exactly one frame from r and returns its payload.
//
// r is expected to behave like a serial port with a read timeout: a Read
// returning no bytes (or io.EOF, or a timeout error) means the stream ran dry.
// If that happens before the first byte, ErrNoData is returned; later it is a
// Truncated frame error. The payload is only returned once the terminator and
// checksum have been verified.
func ReadFrame(r io.Reader, sum Checksum) ([]byte, error) {
	var marker [1]byte
	n, err := readFull(r, marker[:])
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNoData
	}

	var length int
	switch marker[0] {
	case StartShort:
		var hdr [1]byte
		if err := readExact(r, hdr[:], "length"); err != nil {
			return nil, err
		}
		length = int(hdr[0])
	case StartLong:
		var hdr [2]byte
		if err := readExact(r, hdr[:], "length"); err != nil {
			return nil, err
		}
		length = int(binary.BigEndian.Uint16(hdr[:]))
	default:
		return nil, &FrameError{Kind: BadMarker, Detail: fmt.Sprintf("got 0x%02X", marker[0])}
	}

	body := make([]byte, length+ChecksumSize)
	if err := readExact(r, body, "payload"); err != nil {
		return nil, err
	}

	var end [1]byte
	n, err = readFull(r, end[:])
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, &FrameError{Kind: BadTerminator, Detail: "missing"}
	}
	if end[0] != EndByte {
		return nil, &FrameError{Kind: BadTerminator, Detail: fmt.Sprintf("got 0x%02X", end[0])}
	}

	payload := body[:length]
	received := binary.BigEndian.Uint16(body[length:])
	calculated := sum.Sum(payload)
	if received != calculated {
		return nil, &FrameError{
			Kind:   ChecksumMismatch,
			Detail: fmt.Sprintf("expected 0x%04X, got 0x%04X", calculated, received),
		}
	}

	return payload, nil
}

// readExact fills buf or reports a Truncated frame naming the missing part.
func readExact(r io.Reader, buf []byte, part string) error {
	n, err := readFull(r, buf)
	if err != nil {
		return err
	}
	if n < len(buf) {
		return &FrameError{Kind: Truncated, Detail: fmt.Sprintf("%s: got %d of %d bytes", part, n, len(buf))}
	}
	return nil
}

// readFull reads until buf is full or the stream runs dry. Running dry is not
// an error; only genuine I/O failures are returned.
func readFull(r io.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if errors.Is(err, io.EOF) || isTimeout(err) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
	return total, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
