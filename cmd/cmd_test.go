// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/vescmotor/pkg/motor"
	"github.com/Thermoquad/vescmotor/pkg/vesc"
	"github.com/Thermoquad/vescmotor/pkg/vesc/vescsim"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{45 * time.Second, "45 seconds"},
		{61 * time.Second, "1 minute and 1 second"},
		{time.Hour + time.Minute + time.Second, "1 hour, 1 minute, and 1 second"},
		{48 * time.Hour, "2 days"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatUptime(tt.d), "duration %v", tt.d)
	}
}

func TestInspectFrame(t *testing.T) {
	request := &vesc.Frame{Payload: []byte{vesc.OpGetValues}}
	errs, err := inspectFrame(request)
	assert.NoError(t, err)
	assert.Empty(t, errs)

	reply := &vesc.Frame{Payload: vesc.EncodeValues(vesc.Values{Voltage: 150})}
	errs, err = inspectFrame(reply)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, vesc.AnomalyVoltage, errs[0].Type)

	truncated := &vesc.Frame{Payload: []byte{vesc.OpGetValues, 0x01, 0x02}}
	_, err = inspectFrame(truncated)
	assert.Error(t, err)

	other := &vesc.Frame{Payload: []byte{vesc.OpAlive}}
	errs, err = inspectFrame(other)
	assert.NoError(t, err)
	assert.Empty(t, errs)
}

func newSimController(t *testing.T) (*motor.Controller, *vescsim.Device) {
	t.Helper()
	cfg := motor.DefaultConfig()
	cfg.Port = "sim://"
	cfg.Timeout = 0.05
	cfg.RampUpEnabled = false

	logger, _ := test.NewNullLogger()
	dev := vescsim.New()
	ctrl, err := motor.New(context.Background(), dev, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })
	dev.ClearCommands()
	return ctrl, dev
}

// run executes a command returned by Update and feeds its message back.
func run(t *testing.T, m monitorModel, cmd tea.Cmd) monitorModel {
	t.Helper()
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	return next.(monitorModel)
}

func TestMonitorModel_PowerKeys(t *testing.T) {
	ctrl, dev := newSimController(t)
	m := initialMonitorModel(ctrl, "Simulator", time.Second, 0.1)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = run(t, next.(monitorModel), cmd)
	assert.InDelta(t, 0.1, m.power, 1e-9)

	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'+'}})
	m = run(t, next.(monitorModel), cmd)
	assert.InDelta(t, 0.2, m.power, 1e-9)

	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeySpace})
	m = run(t, next.(monitorModel), cmd)
	assert.Zero(t, m.power)

	assert.Equal(t, []vesc.Command{
		vesc.SetDuty{Duty: 0.1},
		vesc.SetDuty{Duty: 0.2},
		vesc.SetDuty{Duty: 0},
	}, dev.Commands())
	require.Len(t, m.eventLog, 3)
	assert.Equal(t, "Stopped", m.eventLog[2].message)
}

func TestMonitorModel_PowerClamped(t *testing.T) {
	ctrl, _ := newSimController(t)
	m := initialMonitorModel(ctrl, "Simulator", time.Second, 0.5)

	for i := 0; i < 4; i++ {
		next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyDown})
		m = run(t, next.(monitorModel), cmd)
	}
	assert.Equal(t, -1.0, m.power)
}

func TestMonitorModel_RPMInput(t *testing.T) {
	ctrl, dev := newSimController(t)
	m := initialMonitorModel(ctrl, "Simulator", time.Second, 0.1)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	m = next.(monitorModel)
	require.True(t, m.editing)

	for _, r := range "2500" {
		next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(monitorModel)
	}
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = run(t, next.(monitorModel), cmd)

	assert.False(t, m.editing)
	assert.Equal(t, []vesc.Command{vesc.SetRPM{RPM: 2500}}, dev.Commands())
}

func TestMonitorModel_Telemetry(t *testing.T) {
	ctrl, dev := newSimController(t)
	m := initialMonitorModel(ctrl, "Simulator", time.Second, 0.1)
	assert.Contains(t, m.View(), "Waiting for telemetry")

	dev.SetValues(vesc.Values{Voltage: 24, TempFET: 30, TempMotor: 30, Fault: vesc.FaultOverTempFET})
	m = run(t, m, m.pollCmd())
	require.NotNil(t, m.values)
	assert.Equal(t, vesc.FaultOverTempFET, m.values.Fault)
	require.Len(t, m.anomalies, 1)
	assert.True(t, m.eventLog[len(m.eventLog)-1].isError)
	assert.Contains(t, m.View(), "OVER_TEMP_FET")

	next, _ := m.Update(valuesMsg{err: errors.New("link down")})
	m = next.(monitorModel)
	assert.Contains(t, m.View(), "stale: link down")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m = next.(monitorModel)
	assert.True(t, m.quitting)
	assert.NotNil(t, cmd)
}

func TestCommands_Simulator(t *testing.T) {
	commands := [][]string{
		{"values", "--port", "sim://", "--timeout", "0.1"},
		{"values", "--port", "sim://", "--json"},
		{"firmware", "--port", "sim://"},
		{"stop", "--port", "sim://"},
		{"do", `{"command":"get_status"}`, "--port", "sim://"},
		{"go-for", "6000", "1", "--port", "sim://"},
		{"power", "0.2", "--hold", "0.05", "--port", "sim://", "--no-ramp"},
	}
	for _, args := range commands {
		rootCmd.SetArgs(args)
		assert.NoError(t, rootCmd.Execute(), "args %v", args)
	}

	rootCmd.SetArgs([]string{"do", `{"command":"launch"}`, "--port", "sim://"})
	var unsupported *motor.UnsupportedCommandError
	assert.True(t, errors.As(rootCmd.Execute(), &unsupported))

	t.Cleanup(func() { _ = rootCmd.PersistentFlags().Set("baud", "115200") })
	rootCmd.SetArgs([]string{"stop", "--port", "sim://", "--baud", "-1"})
	var cfgErr *motor.ConfigError
	assert.True(t, errors.As(rootCmd.Execute(), &cfgErr))
}
