// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"sync/atomic"
	"time"
)

// counters are updated by the transport while holding the gate, and read
// concurrently by Statistics.
type counters struct {
	requests         atomic.Uint64
	replies          atomic.Uint64
	retries          atomic.Uint64
	timeouts         atomic.Uint64
	checksumErrors   atomic.Uint64
	frameErrors      atomic.Uint64
	protocolFailures atomic.Uint64
	portErrors       atomic.Uint64
}

// Statistics is a snapshot of link activity since the transport was created.
type Statistics struct {
	StartTime        time.Time `json:"start_time"`
	Requests         uint64    `json:"requests"`
	Replies          uint64    `json:"replies"`
	Retries          uint64    `json:"retries"`
	Timeouts         uint64    `json:"timeouts"`
	ChecksumErrors   uint64    `json:"checksum_errors"`
	FrameErrors      uint64    `json:"frame_errors"`
	ProtocolFailures uint64    `json:"protocol_failures"`
	PortErrors       uint64    `json:"port_errors"`

	// Rates (calculated)
	RequestRate float64 `json:"request_rate"` // requests/sec
	ErrorRate   float64 `json:"error_rate"`   // errors/sec
}

func (c *counters) snapshot(start time.Time) Statistics {
	s := Statistics{
		StartTime:        start,
		Requests:         c.requests.Load(),
		Replies:          c.replies.Load(),
		Retries:          c.retries.Load(),
		Timeouts:         c.timeouts.Load(),
		ChecksumErrors:   c.checksumErrors.Load(),
		FrameErrors:      c.frameErrors.Load(),
		ProtocolFailures: c.protocolFailures.Load(),
		PortErrors:       c.portErrors.Load(),
	}
	if elapsed := time.Since(start).Seconds(); elapsed > 0 {
		s.RequestRate = float64(s.Requests) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
	return s
}

// Errors returns the number of failed requests.
func (s Statistics) Errors() uint64 {
	return s.Timeouts + s.ProtocolFailures + s.PortErrors
}

// AsMap returns the snapshot as a flat map for structured command replies.
func (s Statistics) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"requests":          s.Requests,
		"replies":           s.Replies,
		"retries":           s.Retries,
		"timeouts":          s.Timeouts,
		"checksum_errors":   s.ChecksumErrors,
		"frame_errors":      s.FrameErrors,
		"protocol_failures": s.ProtocolFailures,
		"port_errors":       s.PortErrors,
	}
}

// String returns a formatted statistics summary
func (s Statistics) String() string {
	var okPercent float64
	if s.Requests > 0 {
		okPercent = float64(s.Requests-s.Errors()) * 100.0 / float64(s.Requests)
	}

	result := fmt.Sprintf("=== Link Statistics (%.0f seconds) ===\n", time.Since(s.StartTime).Seconds())
	result += fmt.Sprintf("Requests:        %8d (%.1f%% ok)\n", s.Requests, okPercent)
	result += fmt.Sprintf("Replies:         %8d\n", s.Replies)
	if s.Retries > 0 {
		result += fmt.Sprintf("Retries:         %8d\n", s.Retries)
	}
	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d\n", s.ChecksumErrors)
	}
	if s.FrameErrors > 0 {
		result += fmt.Sprintf("Frame Errors:    %8d\n", s.FrameErrors)
	}
	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	}
	if s.ProtocolFailures > 0 {
		result += fmt.Sprintf("Protocol Fails:  %8d\n", s.ProtocolFailures)
	}
	if s.PortErrors > 0 {
		result += fmt.Sprintf("Port Errors:     %8d\n", s.PortErrors)
	}
	result += fmt.Sprintf("Request Rate:    %8.1f req/sec\n", s.RequestRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "======================================\n"
	return result
}
