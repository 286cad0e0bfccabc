// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package motor exposes a VESC as a motor: power, velocity, position and
// current control plus telemetry queries.
//
// Power changes go through a ramp scheduler; every other command is sent
// once, directly. All traffic shares one transport.
package motor

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/Thermoquad/vescmotor/pkg/ramp"
	"github.com/Thermoquad/vescmotor/pkg/transport"
	"github.com/Thermoquad/vescmotor/pkg/vesc"
)

// Conn is the byte link a controller drives.
type Conn interface {
	io.ReadWriteCloser
}

// Properties describes optional motor capabilities.
type Properties struct {
	PositionReporting bool `json:"position_reporting"`
}

// Controller drives one VESC.
type Controller struct {
	cfg    Config
	conn   Conn
	tr     *transport.Transport
	ramp   *ramp.Scheduler
	logger *log.Logger
	log    *log.Entry
	format vesc.DutyCycleFormat
	stop   context.CancelFunc

	closeOnce sync.Once
	closeErr  error

	mu         sync.Mutex
	snapshot   vesc.Values
	snapshotAt time.Time
	zeroTicks  int32
	zeroOffset float64
	debug      bool

	opMu     sync.Mutex
	opCancel context.CancelFunc
	opID     uint64
}

// New wraps conn in a controller and starts the ramp loop. cfg must be
// valid. The device is probed once; a silent device is logged, not fatal.
// A nil logger uses the logrus standard logger.
func New(ctx context.Context, conn Conn, cfg Config, logger *log.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	tr, err := transport.New(conn, transport.Config{
		Timeout:  cfg.TimeoutDuration(),
		Checksum: cfg.ChecksumVariant(),
	}, logger)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:    cfg,
		conn:   conn,
		tr:     tr,
		logger: logger,
		log:    logger.WithField("component", "motor"),
		format: cfg.DutyCycleFormat,
		debug:  cfg.Debug,
	}
	c.ramp = ramp.New(ramp.Config{
		Enabled:  cfg.RampUpEnabled,
		Rate:     cfg.RampUpRate,
		Interval: cfg.CommandIntervalDuration(),
	}, c.sendDuty, logger)

	loopCtx, cancel := context.WithCancel(context.Background())
	c.stop = cancel
	c.ramp.Start(loopCtx)

	if _, err := c.Values(ctx); err != nil {
		c.log.WithField("err", err).Warn("device did not answer connection test")
	} else {
		c.log.Info("connected to VESC")
	}
	return c, nil
}

// Close stops the motor, ends the ramp loop and closes the link. Later
// calls return the first call's result without touching the link.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.cancelRunning()
		c.ramp.Stop()
		c.stop()

		ctx, cancel := context.WithTimeout(context.Background(), c.tr.Timeout())
		defer cancel()
		stopErr := c.send(ctx, vesc.SetDuty{Duty: 0})
		c.closeErr = multierr.Combine(stopErr, c.conn.Close())
	})
	return c.closeErr
}

// Transport returns the shared transport, for link statistics.
func (c *Controller) Transport() *transport.Transport {
	return c.tr
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// SetPower ramps the duty cycle toward powerPct, clamped to [-1, 1].
// With ramping disabled the value is sent before SetPower returns.
func (c *Controller) SetPower(ctx context.Context, powerPct float64) error {
	if math.IsNaN(powerPct) {
		return &InvalidArgumentError{Command: "set_power", Argument: "power", Reason: "not a number"}
	}
	c.cancelRunning()
	powerPct = math.Max(-1, math.Min(1, powerPct))
	c.log.WithField("value", powerPct).Debug("set power")
	return c.ramp.SetTarget(ctx, powerPct)
}

// SetRPM commands a constant electrical RPM, cancelling any power ramp.
func (c *Controller) SetRPM(ctx context.Context, rpm float64) error {
	c.cancelRunning()
	return c.setRPM(ctx, rpm)
}

func (c *Controller) setRPM(ctx context.Context, rpm float64) error {
	c.ramp.Cancel(0)
	c.log.WithField("value", rpm).Debug("set rpm")
	return c.send(ctx, vesc.SetRPM{RPM: rpm})
}

// SetCurrent commands a motor current in amps, cancelling any power ramp.
func (c *Controller) SetCurrent(ctx context.Context, amps float64) error {
	c.cancelRunning()
	c.ramp.Cancel(0)
	return c.send(ctx, vesc.SetCurrent{Amps: amps})
}

// SetBrakeCurrent commands a braking current in amps.
func (c *Controller) SetBrakeCurrent(ctx context.Context, amps float64) error {
	c.cancelRunning()
	c.ramp.Cancel(0)
	return c.send(ctx, vesc.SetCurrentBrake{Amps: amps})
}

// SetHandbrake holds the rotor with the given current in amps.
func (c *Controller) SetHandbrake(ctx context.Context, amps float64) error {
	c.cancelRunning()
	c.ramp.Cancel(0)
	return c.send(ctx, vesc.SetHandbrake{Amps: amps})
}

// SetPosition commands the position controller, in degrees.
func (c *Controller) SetPosition(ctx context.Context, degrees float64) error {
	c.cancelRunning()
	c.ramp.Cancel(0)
	return c.send(ctx, vesc.SetPosition{Degrees: degrees})
}

// Stop cancels any ramp or timed move and sends duty 0 immediately.
func (c *Controller) Stop(ctx context.Context) error {
	c.cancelRunning()
	c.ramp.Cancel(0)
	c.log.Debug("stop")
	return c.send(ctx, vesc.SetDuty{Duty: 0})
}

// GoFor turns the given number of revolutions at rpm, then stops. The
// direction is the product of the signs of rpm and revolutions. It blocks for
// |revolutions/rpm| minutes. If ctx ends first the motor is stopped and the
// context error returned; if another command supersedes the move, GoFor
// returns nil without stopping.
func (c *Controller) GoFor(ctx context.Context, rpm, revolutions float64) error {
	if rpm == 0 || math.IsNaN(rpm) || math.IsInf(rpm, 0) {
		return &InvalidArgumentError{Command: "go_for", Argument: "rpm", Reason: "must be finite and non-zero"}
	}
	if math.IsNaN(revolutions) || math.IsInf(revolutions, 0) {
		return &InvalidArgumentError{Command: "go_for", Argument: "revolutions", Reason: "must be finite"}
	}
	if revolutions == 0 {
		return c.Stop(ctx)
	}

	dir := 1.0
	if math.Signbit(rpm) != math.Signbit(revolutions) {
		dir = -1
	}
	duration := time.Duration(math.Abs(revolutions/rpm) * float64(time.Minute))

	opCtx, done := c.newOp(ctx)
	defer done()

	if err := c.setRPM(ctx, dir*math.Abs(rpm)); err != nil {
		return err
	}
	c.log.WithFields(log.Fields{"rpm": dir * math.Abs(rpm), "duration": duration}).Info("go for")

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return c.send(ctx, vesc.SetDuty{Duty: 0})
	case <-opCtx.Done():
	}

	if ctx.Err() != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), c.tr.Timeout())
		defer cancel()
		return multierr.Combine(ctx.Err(), c.send(stopCtx, vesc.SetDuty{Duty: 0}))
	}
	c.log.Debug("go for superseded")
	return nil
}

// GoTo turns to the absolute position (in revolutions) at |rpm|.
func (c *Controller) GoTo(ctx context.Context, rpm, position float64) error {
	current, err := c.Position(ctx)
	if err != nil {
		return err
	}
	return c.GoFor(ctx, math.Abs(rpm), position-current)
}

// ResetZeroPosition makes the current tachometer reading correspond to
// offset revolutions.
func (c *Controller) ResetZeroPosition(ctx context.Context, offset float64) error {
	v, err := c.Values(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.zeroTicks = v.Tachometer
	c.zeroOffset = offset
	c.mu.Unlock()
	c.log.WithField("offset", offset).Info("reset zero position")
	return nil
}

// Position returns the position in revolutions relative to the zero
// reference.
func (c *Controller) Position(ctx context.Context) (float64, error) {
	v, err := c.cachedValues(ctx)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(v.Tachometer-c.zeroTicks)/c.cfg.TicksPerRotation + c.zeroOffset, nil
}

// IsPowered reports whether the device is driving the motor and the duty
// cycle it reports.
func (c *Controller) IsPowered(ctx context.Context) (bool, float64, error) {
	v, err := c.cachedValues(ctx)
	if err != nil {
		return false, 0, err
	}
	return v.DutyCycle != 0, v.DutyCycle, nil
}

// IsMoving reports whether the rotor is turning.
func (c *Controller) IsMoving(ctx context.Context) (bool, error) {
	v, err := c.cachedValues(ctx)
	if err != nil {
		return false, err
	}
	return v.RPM != 0, nil
}

// Properties returns the optional capabilities of the motor.
func (c *Controller) Properties(ctx context.Context) (Properties, error) {
	return Properties{PositionReporting: true}, nil
}

// Values queries a fresh telemetry snapshot and caches it.
func (c *Controller) Values(ctx context.Context) (vesc.Values, error) {
	reply, err := c.request(ctx, vesc.GetValues{})
	if err != nil {
		return vesc.Values{}, err
	}
	v, err := vesc.DecodeValues(reply)
	if err != nil {
		return vesc.Values{}, err
	}

	c.mu.Lock()
	c.snapshot = v
	c.snapshotAt = time.Now()
	c.mu.Unlock()
	return v, nil
}

// Firmware queries the firmware version.
func (c *Controller) Firmware(ctx context.Context) (vesc.Firmware, error) {
	reply, err := c.request(ctx, vesc.GetFirmware{})
	if err != nil {
		return vesc.Firmware{}, err
	}
	return vesc.DecodeFirmware(reply)
}

// Ping sends an Alive probe and returns the round trip time.
func (c *Controller) Ping(ctx context.Context) (time.Duration, []byte, error) {
	start := time.Now()
	reply, err := c.request(ctx, vesc.Alive{})
	return time.Since(start), reply, err
}

// CommandedPower returns the duty cycle most recently sent by the ramp.
func (c *Controller) CommandedPower() float64 {
	return c.ramp.Current()
}

// Ramping reports whether a power ramp is in progress.
func (c *Controller) Ramping() bool {
	return c.ramp.Ramping()
}

// SetDebug switches the controller logger between info and debug level.
func (c *Controller) SetDebug(debug bool) {
	c.mu.Lock()
	c.debug = debug
	c.mu.Unlock()
	if debug {
		c.logger.SetLevel(log.DebugLevel)
	} else {
		c.logger.SetLevel(log.InfoLevel)
	}
}

// Debug reports whether debug logging is on.
func (c *Controller) Debug() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debug
}

// cachedValues returns the cached snapshot unless it is older than the read
// timeout, in which case it is refreshed.
func (c *Controller) cachedValues(ctx context.Context) (vesc.Values, error) {
	c.mu.Lock()
	v, at := c.snapshot, c.snapshotAt
	c.mu.Unlock()
	if !at.IsZero() && time.Since(at) < c.tr.Timeout() {
		return v, nil
	}
	return c.Values(ctx)
}

func (c *Controller) sendDuty(ctx context.Context, duty float64) error {
	return c.send(ctx, vesc.SetDuty{Duty: duty})
}

func (c *Controller) send(ctx context.Context, cmd vesc.Command) error {
	_, err := c.request(ctx, cmd)
	return err
}

func (c *Controller) request(ctx context.Context, cmd vesc.Command) ([]byte, error) {
	payload, err := vesc.EncodeCommand(cmd, c.format)
	if err != nil {
		return nil, err
	}
	return c.tr.Request(ctx, payload, cmd.ExpectsReply())
}

// newOp registers a cancellable long-running operation, superseding any
// previous one.
func (c *Controller) newOp(ctx context.Context) (context.Context, func()) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.opCancel != nil {
		c.opCancel()
	}
	opCtx, cancel := context.WithCancel(ctx)
	c.opID++
	id := c.opID
	c.opCancel = cancel
	return opCtx, func() {
		c.opMu.Lock()
		defer c.opMu.Unlock()
		cancel()
		if c.opID == id {
			c.opCancel = nil
		}
	}
}

func (c *Controller) cancelRunning() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.opCancel != nil {
		c.opCancel()
		c.opCancel = nil
	}
}
