// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motor

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/vescmotor/pkg/transport"
	"github.com/Thermoquad/vescmotor/pkg/vesc"
	"github.com/Thermoquad/vescmotor/pkg/vesc/vescsim"
)

type fixture struct {
	dev  *vescsim.Device
	ctrl *Controller
	hook *test.Hook
	log  *logrus.Logger
}

func newFixture(t *testing.T, modify func(c *Config)) *fixture {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Timeout = 0.05
	cfg.RampUpEnabled = false
	if modify != nil {
		modify(&cfg)
	}

	logger, hook := test.NewNullLogger()
	dev := vescsim.New()
	ctrl, err := New(context.Background(), dev, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })

	dev.ClearCommands()
	return &fixture{dev: dev, ctrl: ctrl, hook: hook, log: logger}
}

func lastCommand(t *testing.T, dev *vescsim.Device) vesc.Command {
	t.Helper()
	cmds := dev.Commands()
	require.NotEmpty(t, cmds)
	return cmds[len(cmds)-1]
}

func TestNew_ProbesDevice(t *testing.T) {
	logger, hook := test.NewNullLogger()
	dev := vescsim.New()
	cfg := DefaultConfig()
	cfg.Timeout = 0.05

	ctrl, err := New(context.Background(), dev, cfg, logger)
	require.NoError(t, err)
	defer ctrl.Close()

	assert.Equal(t, []vesc.Command{vesc.GetValues{}}, dev.Commands())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
}

func TestNew_SilentDeviceWarns(t *testing.T) {
	logger, hook := test.NewNullLogger()
	dev := vescsim.New()
	dev.SetSilent(true)
	cfg := DefaultConfig()
	cfg.Timeout = 0.05

	ctrl, err := New(context.Background(), dev, cfg, logger)
	require.NoError(t, err)
	defer ctrl.Close()

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Baudrate = -1
	_, err := New(context.Background(), vescsim.New(), cfg, nil)

	var cfgErr *ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestSetPower_RampDisabledSendsOnce(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.ctrl.SetPower(context.Background(), 0.8))
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, []vesc.Command{vesc.SetDuty{Duty: 0.8}}, f.dev.Commands())
	assert.Equal(t, 0.8, f.ctrl.CommandedPower())
}

func TestSetPower_Clamped(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.ctrl.SetPower(context.Background(), 3))
	assert.Equal(t, vesc.SetDuty{Duty: 1}, lastCommand(t, f.dev))

	var argErr *InvalidArgumentError
	assert.True(t, errors.As(f.ctrl.SetPower(context.Background(), nan()), &argErr))
}

func TestSetPower_Ramps(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.RampUpEnabled = true
		c.RampUpRate = 100
		c.CommandInterval = 0.001
	})

	require.NoError(t, f.ctrl.SetPower(context.Background(), 0.5))
	require.Eventually(t, func() bool { return !f.ctrl.Ramping() }, 2*time.Second, time.Millisecond)

	cmds := f.dev.Commands()
	assert.Len(t, cmds, 5)
	assert.Equal(t, vesc.SetDuty{Duty: 0.5}, cmds[len(cmds)-1])
	assert.InDelta(t, 0.5, f.dev.Values().DutyCycle, 1e-9)
}

func TestSetRPM_CancelsRamp(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.RampUpEnabled = true
		c.RampUpRate = 0.1
		c.CommandInterval = 0.001
	})
	ctx := context.Background()

	require.NoError(t, f.ctrl.SetPower(ctx, 1.0))
	require.Eventually(t, func() bool { return len(f.dev.Commands()) >= 3 }, 2*time.Second, time.Millisecond)

	require.NoError(t, f.ctrl.SetRPM(ctx, 1500))
	assert.False(t, f.ctrl.Ramping())
	assert.Equal(t, 0.0, f.ctrl.CommandedPower())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, vesc.SetRPM{RPM: 1500}, lastCommand(t, f.dev))
}

func TestStop_BypassesRamp(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.RampUpEnabled = true
		c.CommandInterval = 0.001
	})
	ctx := context.Background()

	require.NoError(t, f.ctrl.SetPower(ctx, 1.0))
	require.Eventually(t, func() bool { return len(f.dev.Commands()) >= 2 }, 2*time.Second, time.Millisecond)

	require.NoError(t, f.ctrl.Stop(ctx))
	assert.False(t, f.ctrl.Ramping())
	assert.Equal(t, vesc.SetDuty{Duty: 0}, lastCommand(t, f.dev))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, vesc.SetDuty{Duty: 0}, lastCommand(t, f.dev))
}

func TestOneShotCommands(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.ctrl.SetCurrent(ctx, 2.5))
	require.NoError(t, f.ctrl.SetBrakeCurrent(ctx, 1))
	require.NoError(t, f.ctrl.SetHandbrake(ctx, 0.5))
	require.NoError(t, f.ctrl.SetPosition(ctx, 90))

	assert.Equal(t, []vesc.Command{
		vesc.SetCurrent{Amps: 2.5},
		vesc.SetCurrentBrake{Amps: 1},
		vesc.SetHandbrake{Amps: 0.5},
		vesc.SetPosition{Degrees: 90},
	}, f.dev.Commands())
}

func TestDutyFloatFormat(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dev := vescsim.New(vescsim.WithDutyFormat(vesc.DutyFloat))
	cfg := DefaultConfig()
	cfg.Timeout = 0.05
	cfg.RampUpEnabled = false
	cfg.DutyCycleFormat = vesc.DutyFloat

	ctrl, err := New(context.Background(), dev, cfg, logger)
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.SetPower(context.Background(), -0.5))
	assert.Equal(t, vesc.SetDuty{Duty: -0.5}, lastCommand(t, dev))
}

func TestXModemChecksum(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dev := vescsim.New(vescsim.WithChecksum(vesc.ChecksumXModem))
	cfg := DefaultConfig()
	cfg.Timeout = 0.05
	cfg.Checksum = "xmodem"

	ctrl, err := New(context.Background(), dev, cfg, logger)
	require.NoError(t, err)
	defer ctrl.Close()

	_, err = ctrl.Values(context.Background())
	assert.NoError(t, err)
}

func TestPositionAndZero(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.dev.SetValues(vesc.Values{Voltage: 24, Tachometer: 84})
	_, err := f.ctrl.Values(ctx)
	require.NoError(t, err)

	pos, err := f.ctrl.Position(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, pos, 1e-9)

	require.NoError(t, f.ctrl.ResetZeroPosition(ctx, 1.5))
	pos, err = f.ctrl.Position(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, pos, 1e-9)

	f.dev.SetValues(vesc.Values{Voltage: 24, Tachometer: 126})
	_, err = f.ctrl.Values(ctx)
	require.NoError(t, err)
	pos, err = f.ctrl.Position(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, pos, 1e-9)
}

func TestIsPoweredAndMoving(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	powered, _, err := f.ctrl.IsPowered(ctx)
	require.NoError(t, err)
	assert.False(t, powered)

	require.NoError(t, f.ctrl.SetRPM(ctx, 1200))
	_, err = f.ctrl.Values(ctx)
	require.NoError(t, err)

	moving, err := f.ctrl.IsMoving(ctx)
	require.NoError(t, err)
	assert.True(t, moving)

	powered, duty, err := f.ctrl.IsPowered(ctx)
	require.NoError(t, err)
	assert.True(t, powered)
	assert.InDelta(t, 0.04, duty, 1e-3)

	props, err := f.ctrl.Properties(ctx)
	require.NoError(t, err)
	assert.True(t, props.PositionReporting)
}

func TestCachedSnapshot(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Timeout = 0.2 })
	ctx := context.Background()

	_, err := f.ctrl.Values(ctx)
	require.NoError(t, err)
	f.dev.ClearCommands()

	_, err = f.ctrl.IsMoving(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.dev.Commands(), "fresh snapshot should be reused")

	time.Sleep(250 * time.Millisecond)
	_, err = f.ctrl.IsMoving(ctx)
	require.NoError(t, err)
	assert.Equal(t, []vesc.Command{vesc.GetValues{}}, f.dev.Commands())
}

func TestGoFor_Direction(t *testing.T) {
	tests := []struct {
		name      string
		rpm, revs float64
		want      float64
	}{
		{"forward", 6000, 1, 6000},
		{"negative rpm", -6000, 1, -6000},
		{"negative revolutions", 6000, -1, -6000},
		{"both negative", -6000, -1, 6000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			start := time.Now()
			require.NoError(t, f.ctrl.GoFor(context.Background(), tt.rpm, tt.revs))

			// one revolution at 6000 rpm is 10 ms
			assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
			assert.Equal(t, []vesc.Command{vesc.SetRPM{RPM: tt.want}, vesc.SetDuty{Duty: 0}}, f.dev.Commands())
		})
	}
}

func TestGoFor_ZeroRevolutionsStops(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.ctrl.GoFor(context.Background(), 100, 0))
	assert.Equal(t, []vesc.Command{vesc.SetDuty{Duty: 0}}, f.dev.Commands())
}

func TestGoFor_InvalidRPM(t *testing.T) {
	f := newFixture(t, nil)
	var argErr *InvalidArgumentError
	assert.True(t, errors.As(f.ctrl.GoFor(context.Background(), 0, 1), &argErr))
	assert.Empty(t, f.dev.Commands())
}

func TestGoFor_ContextCancelStops(t *testing.T) {
	f := newFixture(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := f.ctrl.GoFor(ctx, 60, 100)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, vesc.SetDuty{Duty: 0}, lastCommand(t, f.dev))
}

func TestGoFor_Superseded(t *testing.T) {
	f := newFixture(t, nil)

	done := make(chan error, 1)
	go func() { done <- f.ctrl.GoFor(context.Background(), 60, 100) }()
	require.Eventually(t, func() bool { return len(f.dev.Commands()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, f.ctrl.SetPower(context.Background(), 0.3))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("GoFor was not superseded")
	}
	assert.Equal(t, vesc.SetDuty{Duty: 0.3}, lastCommand(t, f.dev))
}

func TestGoTo(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.dev.SetValues(vesc.Values{Voltage: 24, Tachometer: 42})
	_, err := f.ctrl.Values(ctx)
	require.NoError(t, err)
	f.dev.ClearCommands()

	// From 1 revolution back to 0
	require.NoError(t, f.ctrl.GoTo(ctx, 6000, 0))
	assert.Equal(t, []vesc.Command{vesc.SetRPM{RPM: -6000}, vesc.SetDuty{Duty: 0}}, f.dev.Commands())
}

func TestErrorsSurfaceUnchanged(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.dev.SetSilent(true)
	_, err := f.ctrl.Values(ctx)
	assert.True(t, errors.Is(err, transport.ErrTimeout))
	var trErr *transport.Error
	require.True(t, errors.As(err, &trErr))
	assert.Equal(t, transport.Timeout, trErr.Kind)

	f.dev.SetSilent(false)
	f.dev.CorruptReplies(2)
	_, err = f.ctrl.Values(ctx)
	assert.True(t, errors.Is(err, transport.ErrProtocolFailure))

	f.dev.FailWrites(io.ErrClosedPipe)
	err = f.ctrl.SetRPM(ctx, 100)
	assert.True(t, errors.Is(err, transport.ErrPortUnavailable))
	f.dev.FailWrites(nil)
}

func TestFirmwareAndPing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	fw, err := f.ctrl.Firmware(ctx)
	require.NoError(t, err)
	assert.Equal(t, "vescsim", fw.Hardware)

	rtt, reply, err := f.ctrl.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{vesc.OpAlive}, reply)
	assert.Greater(t, rtt, time.Duration(0))
}

func TestClose(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dev := vescsim.New()
	cfg := DefaultConfig()
	cfg.Timeout = 0.05

	ctrl, err := New(context.Background(), dev, cfg, logger)
	require.NoError(t, err)

	require.NoError(t, ctrl.Close())
	assert.Equal(t, vesc.SetDuty{Duty: 0}, lastCommand(t, dev))

	_, err = dev.Write([]byte{0})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestClose_Idempotent(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dev := vescsim.New()
	cfg := DefaultConfig()
	cfg.Timeout = 0.05

	ctrl, err := New(context.Background(), dev, cfg, logger)
	require.NoError(t, err)

	require.NoError(t, ctrl.Close())
	writes := dev.Writes()

	require.NoError(t, ctrl.Close())
	assert.Equal(t, writes, dev.Writes())
}

func TestNew_SubNanosecondInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RampUpEnabled = true
	cfg.CommandInterval = 1e-10
	_, err := New(context.Background(), vescsim.New(), cfg, nil)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, "command_interval", cfgErr.Field)
}

func TestClose_ReportsStopFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dev := vescsim.New()
	cfg := DefaultConfig()
	cfg.Timeout = 0.05

	ctrl, err := New(context.Background(), dev, cfg, logger)
	require.NoError(t, err)

	dev.FailWrites(io.ErrUnexpectedEOF)
	err = ctrl.Close()
	assert.True(t, errors.Is(err, transport.ErrPortUnavailable))
}
