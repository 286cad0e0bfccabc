// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package vescsim provides an in-memory VESC that speaks the serial protocol.
//
// A Device is written to and read from like a serial port. Every complete
// frame written is decoded and applied to the simulated motor state; commands
// that expect a reply queue a response frame for the next Read.
package vescsim

import (
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/vescmotor/pkg/vesc"
)

// DefaultTicksPerRotation matches the controller default.
const DefaultTicksPerRotation = 42

// Device is a simulated VESC. It is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	sum     vesc.Checksum
	format  vesc.DutyCycleFormat
	decoder *vesc.Decoder
	out     []byte
	closed  bool

	values   vesc.Values
	firmware vesc.Firmware
	ticks    float64
	tach     float64
	tachAbs  float64
	last     time.Time
	now      func() time.Time

	commands  []vesc.Command
	writes    int
	badFrames int

	corrupt  int
	drop     int
	silent   bool
	writeErr error

	readTimeout time.Duration
}

// Option configures a Device.
type Option func(*Device)

// WithChecksum selects the checksum variant the device expects and sends.
func WithChecksum(sum vesc.Checksum) Option {
	return func(d *Device) { d.sum = sum }
}

// WithDutyFormat selects how SetDuty parameters are interpreted.
func WithDutyFormat(f vesc.DutyCycleFormat) Option {
	return func(d *Device) { d.format = f }
}

// WithClock replaces the time source used to integrate the tachometer.
func WithClock(now func() time.Time) Option {
	return func(d *Device) { d.now = now }
}

// WithTicksPerRotation sets how many tachometer ticks make one revolution.
func WithTicksPerRotation(ticks float64) Option {
	return func(d *Device) { d.ticks = ticks }
}

// WithFirmware sets the version reported to GetFirmware.
func WithFirmware(fw vesc.Firmware) Option {
	return func(d *Device) { d.firmware = fw }
}

// New creates a simulated device at rest with a healthy 24V supply.
func New(opts ...Option) *Device {
	d := &Device{
		sum:    vesc.ChecksumCCITTFalse,
		format: vesc.DutyInt,
		ticks:  DefaultTicksPerRotation,
		now:    time.Now,
		values: vesc.Values{
			TempFET:   25,
			TempMotor: 25,
			Voltage:   24,
		},
		firmware: vesc.Firmware{Major: 5, Minor: 2, Hardware: "vescsim"},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.decoder = vesc.NewDecoder(d.sum)
	d.last = d.now()
	return d
}

// Write accepts host bytes and processes every complete frame.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, io.ErrClosedPipe
	}
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	d.writes++

	for _, b := range p {
		frame, err := d.decoder.DecodeByte(b)
		if err != nil {
			d.badFrames++
			continue
		}
		if frame != nil {
			d.handle(frame.Payload)
		}
	}
	return len(p), nil
}

// Read returns queued reply bytes. With nothing queued it returns (0, nil)
// immediately, as a serial port does when its read timeout expires.
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, io.ErrClosedPipe
	}
	n := copy(p, d.out)
	d.out = d.out[n:]
	return n, nil
}

// Close marks the device closed. Further I/O fails.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// SetReadTimeout records the timeout; reads never block.
func (d *Device) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readTimeout = t
	return nil
}

// ResetInputBuffer discards queued reply bytes.
func (d *Device) ResetInputBuffer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = nil
	return nil
}

// Inject queues raw bytes for the host to read, for example a stale reply.
func (d *Device) Inject(b []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = append(d.out, b...)
}

// CorruptReplies flips a checksum bit in the next n replies.
func (d *Device) CorruptReplies(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.corrupt = n
}

// DropReplies swallows the next n replies.
func (d *Device) DropReplies(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drop = n
}

// SetSilent makes the device stop answering altogether.
func (d *Device) SetSilent(silent bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent = silent
}

// FailWrites makes every Write fail with err. Pass nil to recover.
func (d *Device) FailWrites(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeErr = err
}

// SetValues replaces the simulated telemetry. The tachometer is reset to the
// values given.
func (d *Device) SetValues(v vesc.Values) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values = v
	d.tach = float64(v.Tachometer)
	d.tachAbs = float64(v.TachometerAbs)
	d.last = d.now()
}

// Values returns the current simulated telemetry.
func (d *Device) Values() vesc.Values {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.integrate()
	return d.snapshot()
}

// Commands returns every command decoded so far, in order.
func (d *Device) Commands() []vesc.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]vesc.Command(nil), d.commands...)
}

// ClearCommands forgets the command log.
func (d *Device) ClearCommands() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = nil
}

// Writes returns the number of Write calls.
func (d *Device) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

// BadFrames returns the number of malformed frames the device received.
func (d *Device) BadFrames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.badFrames
}
