// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"errors"
	"fmt"
)

// ErrNoData is returned by ReadFrame when the stream produced no byte at all
// before it ran dry. Callers treat it as a silent link rather than corruption.
var ErrNoData = errors.New("vesc: no data received")

// FrameErrorKind classifies frame decode failures.
type FrameErrorKind int

// Frame error kinds
const (
	ChecksumMismatch FrameErrorKind = iota + 1
	BadTerminator
	Truncated
	BadMarker
)

func (k FrameErrorKind) String() string {
	switch k {
	case ChecksumMismatch:
		return "checksum mismatch"
	case BadTerminator:
		return "bad terminator"
	case Truncated:
		return "truncated frame"
	case BadMarker:
		return "bad start marker"
	default:
		return "frame error"
	}
}

// FrameError reports a malformed frame on the wire.
type FrameError struct {
	Kind   FrameErrorKind
	Detail string
}

// Sentinels for errors.Is matching on kind.
var (
	ErrChecksumMismatch = &FrameError{Kind: ChecksumMismatch}
	ErrBadTerminator    = &FrameError{Kind: BadTerminator}
	ErrTruncated        = &FrameError{Kind: Truncated}
	ErrBadMarker        = &FrameError{Kind: BadMarker}
)

// Error implements the error interface
func (e *FrameError) Error() string {
	if e.Detail == "" {
		return "vesc: " + e.Kind.String()
	}
	return fmt.Sprintf("vesc: %s: %s", e.Kind, e.Detail)
}

// Is matches any FrameError of the same kind.
func (e *FrameError) Is(target error) bool {
	t, ok := target.(*FrameError)
	return ok && t.Kind == e.Kind
}

// ParseErrorKind classifies payload parse failures.
type ParseErrorKind int

// Parse error kinds
const (
	PayloadTruncated ParseErrorKind = iota + 1
	UnexpectedOpcode
)

// ParseError reports a reply payload that does not match its expected layout.
type ParseError struct {
	Kind   ParseErrorKind
	Opcode byte
	Length int
	Want   int
}

// Error implements the error interface
func (e *ParseError) Error() string {
	switch e.Kind {
	case UnexpectedOpcode:
		return fmt.Sprintf("vesc: unexpected reply opcode 0x%02X", e.Opcode)
	default:
		return fmt.Sprintf("vesc: payload for 0x%02X truncated: %d bytes (want %d)", e.Opcode, e.Length, e.Want)
	}
}

// Is matches any ParseError of the same kind.
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	return ok && t.Kind == e.Kind
}

// ErrPayloadTruncated matches ParseErrors of kind PayloadTruncated.
var ErrPayloadTruncated = &ParseError{Kind: PayloadTruncated}
