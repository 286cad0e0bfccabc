// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link opens the byte streams a VESC is reached over: a local serial
// port, a WebSocket bridge, or an in-memory simulator.
package link

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Thermoquad/vescmotor/pkg/vesc"
	"github.com/Thermoquad/vescmotor/pkg/vesc/vescsim"
)

// SimScheme selects the in-memory simulator.
const SimScheme = "sim://"

// Conn is a bidirectional byte link. Every Conn returned by this package
// also implements SetReadTimeout and ResetInputBuffer.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Options configures Open.
type Options struct {
	Baudrate    int
	ReadTimeout time.Duration

	// WebSocket only
	Username      string
	Password      string
	SkipTLSVerify bool

	// Simulator only
	Checksum   vesc.Checksum
	DutyFormat vesc.DutyCycleFormat
}

// Open dispatches on target: ws:// and wss:// URLs dial a WebSocket bridge,
// sim:// starts a simulator, anything else is a serial device path. The
// returned description is suitable for display.
func Open(target string, opts Options) (Conn, string, error) {
	var (
		conn Conn
		desc string
		err  error
	)

	switch {
	case target == "":
		return nil, "", fmt.Errorf("no port or URL specified")
	case strings.HasPrefix(target, "ws://"), strings.HasPrefix(target, "wss://"):
		conn, err = OpenWebSocket(target, opts.Username, opts.Password, opts.SkipTLSVerify)
		desc = fmt.Sprintf("WebSocket: %s", target)
	case strings.HasPrefix(target, SimScheme):
		conn = OpenSim(opts)
		desc = "Simulator"
	default:
		conn, err = OpenSerial(target, opts.Baudrate)
		desc = fmt.Sprintf("Serial: %s @ %d baud", target, opts.Baudrate)
	}
	if err != nil {
		return nil, "", err
	}

	if opts.ReadTimeout > 0 {
		if err := conn.SetReadTimeout(opts.ReadTimeout); err != nil {
			conn.Close()
			return nil, "", fmt.Errorf("set read timeout: %w", err)
		}
	}
	return conn, desc, nil
}

// OpenSim returns a simulated device speaking the checksum and duty format
// in opts.
func OpenSim(opts Options) *vescsim.Device {
	simOpts := []vescsim.Option{vescsim.WithChecksum(opts.Checksum)}
	if opts.DutyFormat != "" {
		simOpts = append(simOpts, vescsim.WithDutyFormat(opts.DutyFormat))
	}
	return vescsim.New(simOpts...)
}
