// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import "fmt"

// ErrorKind classifies request failures.
type ErrorKind int

// Error kinds
const (
	// Timeout means no reply byte arrived within the read timeout.
	Timeout ErrorKind = iota + 1
	// ProtocolFailure means the reply was malformed twice in a row.
	ProtocolFailure
	// PortUnavailable means the underlying port failed.
	PortUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case ProtocolFailure:
		return "protocol failure"
	case PortUnavailable:
		return "port unavailable"
	default:
		return "transport error"
	}
}

// Error is returned by Request. Err holds the underlying cause, if any.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Sentinels for errors.Is matching on kind.
var (
	ErrTimeout         = &Error{Kind: Timeout}
	ErrProtocolFailure = &Error{Kind: ProtocolFailure}
	ErrPortUnavailable = &Error{Kind: PortUnavailable}
)

// Error implements the error interface
func (e *Error) Error() string {
	msg := "transport: " + e.Kind.String()
	if e.Op != "" {
		msg = fmt.Sprintf("transport: %s: %s", e.Op, e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
