// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport serializes request/reply exchanges with a VESC over a
// byte stream.
//
// All traffic, from API calls and from the ramp scheduler alike, passes
// through a single gate so that a request and its reply are never
// interleaved with another exchange.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/vescmotor/pkg/vesc"
)

// Port is the byte stream the transport drives. A Read that returns no bytes
// is taken to mean the read timeout elapsed.
type Port interface {
	io.Reader
	io.Writer
}

// Ports that can discard unread input have stale replies flushed before
// each request.
type inputResetter interface {
	ResetInputBuffer() error
}

type readTimeoutSetter interface {
	SetReadTimeout(time.Duration) error
}

// DefaultTimeout is used when Config.Timeout is zero.
const DefaultTimeout = time.Second

// Config holds transport settings.
type Config struct {
	Timeout  time.Duration
	Checksum vesc.Checksum
}

// Transport owns a Port and performs one exchange at a time.
type Transport struct {
	port  Port
	cfg   Config
	gate  chan struct{}
	log   log.FieldLogger
	stats counters
	start time.Time
}

// New creates a transport over port. If port supports it, its read timeout
// is set to cfg.Timeout. A nil logger uses the logrus standard logger.
func New(port Port, cfg Config, logger log.FieldLogger) (*Transport, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	if s, ok := port.(readTimeoutSetter); ok {
		if err := s.SetReadTimeout(cfg.Timeout); err != nil {
			return nil, &Error{Kind: PortUnavailable, Op: "set read timeout", Err: err}
		}
	}
	return &Transport{
		port:  port,
		cfg:   cfg,
		gate:  make(chan struct{}, 1),
		log:   logger.WithField("component", "transport"),
		start: time.Now(),
	}, nil
}

// Timeout returns the configured read timeout.
func (t *Transport) Timeout() time.Duration {
	return t.cfg.Timeout
}

// Statistics returns a snapshot of the link counters.
func (t *Transport) Statistics() Statistics {
	return t.stats.snapshot(t.start)
}

// Request frames payload, writes it and, if expectReply is set, reads one
// reply frame and returns its payload.
//
// A malformed reply is retried once with the same request; a second failure
// returns a ProtocolFailure. A reply that never starts returns a Timeout
// without retrying. Write and read failures of the port itself return
// PortUnavailable. ctx bounds only the wait for exclusive access.
func (t *Transport) Request(ctx context.Context, payload []byte, expectReply bool) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errors.New("encode request: empty payload")
	}
	frame, err := vesc.EncodeFrame(payload, t.cfg.Checksum)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	select {
	case t.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-t.gate }()

	t.stats.requests.Add(1)
	opcode := payload[0]
	logger := t.log.WithField("opcode", fmt.Sprintf("0x%02X", opcode))

	for attempt := 0; ; attempt++ {
		reply, err := t.exchange(frame, opcode, expectReply)
		if err == nil {
			if expectReply {
				t.stats.replies.Add(1)
			}
			return reply, nil
		}

		var frameErr *vesc.FrameError
		switch {
		case errors.Is(err, vesc.ErrNoData):
			t.stats.timeouts.Add(1)
			logger.Debug("no reply")
			return nil, &Error{Kind: Timeout, Op: "read reply"}

		case errors.As(err, &frameErr) || errors.Is(err, errUnexpectedReply):
			if errors.Is(err, vesc.ErrChecksumMismatch) {
				t.stats.checksumErrors.Add(1)
			} else {
				t.stats.frameErrors.Add(1)
			}
			if attempt == 0 {
				t.stats.retries.Add(1)
				logger.WithField("err", err).Debug("malformed reply, retrying")
				continue
			}
			t.stats.protocolFailures.Add(1)
			return nil, &Error{Kind: ProtocolFailure, Op: "read reply", Err: err}

		default:
			t.stats.portErrors.Add(1)
			return nil, err
		}
	}
}

var errUnexpectedReply = errors.New("reply opcode does not match request")

// exchange performs one write and, optionally, one frame read.
// Caller holds the gate.
func (t *Transport) exchange(frame []byte, opcode byte, expectReply bool) ([]byte, error) {
	if r, ok := t.port.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			return nil, &Error{Kind: PortUnavailable, Op: "reset input", Err: err}
		}
	}

	if _, err := t.port.Write(frame); err != nil {
		return nil, &Error{Kind: PortUnavailable, Op: "write", Err: err}
	}
	if !expectReply {
		return nil, nil
	}

	reply, err := vesc.ReadFrame(t.port, t.cfg.Checksum)
	if err != nil {
		var frameErr *vesc.FrameError
		if errors.Is(err, vesc.ErrNoData) || errors.As(err, &frameErr) {
			return nil, err
		}
		return nil, &Error{Kind: PortUnavailable, Op: "read", Err: err}
	}

	if len(reply) == 0 || reply[0] != opcode {
		return nil, errUnexpectedReply
	}
	return reply, nil
}
