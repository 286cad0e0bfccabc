// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/vescmotor/pkg/motor"
	"github.com/Thermoquad/vescmotor/pkg/transport"
	"github.com/Thermoquad/vescmotor/pkg/vesc"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// monitorModel is the bubbletea model for the monitor command
type monitorModel struct {
	ctrl      *motor.Controller
	connInfo  string
	poll      time.Duration
	step      float64
	connected time.Time

	values     *vesc.Values
	position   float64
	lastErr    error
	anomalies  []vesc.ValidationError
	link       transport.Statistics
	power      float64
	stats      *vesc.Statistics
	eventLog   []logEntry
	maxEntries int

	rpmInput textinput.Model
	editing  bool

	width    int
	height   int
	quitting bool
}

// Messages
type monitorTickMsg time.Time

type valuesMsg struct {
	values   vesc.Values
	position float64
	err      error
}

type commandDoneMsg struct {
	desc string
	err  error
}

func initialMonitorModel(ctrl *motor.Controller, connInfo string, poll time.Duration, step float64) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "3000"
	ti.CharLimit = 7
	ti.Width = 10

	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return monitorModel{
		ctrl:       ctrl,
		connInfo:   connInfo,
		poll:       poll,
		step:       step,
		connected:  time.Now(),
		stats:      vesc.NewStatistics(),
		eventLog:   make([]logEntry, 0),
		maxEntries: 100,
		rpmInput:   ti,
		width:      80,
		height:     24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.pollCmd(), monitorTickCmd(m.poll))
}

func monitorTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

// pollCmd queries telemetry off the UI goroutine.
func (m monitorModel) pollCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*ctrl.Config().TimeoutDuration())
		defer cancel()
		v, err := ctrl.Values(ctx)
		if err != nil {
			return valuesMsg{err: err}
		}
		pos, _ := ctrl.Position(ctx)
		return valuesMsg{values: v, position: pos}
	}
}

// controlCmd runs a controller call off the UI goroutine.
func (m monitorModel) controlCmd(desc string, fn func(ctx context.Context) error) tea.Cmd {
	timeout := 2 * m.ctrl.Config().TimeoutDuration()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return commandDoneMsg{desc: desc, err: fn(ctx)}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		m.stats.CalculateRates()
		m.link = m.ctrl.Transport().Statistics()
		return m, tea.Batch(m.pollCmd(), monitorTickCmd(m.poll))

	case valuesMsg:
		if msg.err != nil {
			if m.lastErr == nil || m.lastErr.Error() != msg.err.Error() {
				m.addLogEntry(fmt.Sprintf("Telemetry: %v", msg.err), true)
			}
			m.lastErr = msg.err
			m.stats.Update(nil, msg.err, nil)
			return m, nil
		}
		if m.lastErr != nil {
			m.addLogEntry("Telemetry restored", false)
		}
		m.lastErr = nil
		v := msg.values
		m.values = &v
		m.position = msg.position
		m.anomalies = vesc.ValidateValues(v)
		m.stats.Update(&vesc.Frame{Timestamp: time.Now()}, nil, m.anomalies)
		for _, a := range m.anomalies {
			m.addLogEntry(a.Message, a.Type == vesc.AnomalyFault)
		}

	case commandDoneMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.desc, msg.err), true)
		} else {
			m.addLogEntry(msg.desc, false)
		}
	}
	return m, nil
}

func (m monitorModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editing {
		switch msg.String() {
		case "esc":
			m.editing = false
			m.rpmInput.Blur()
			return m, nil
		case "enter":
			m.editing = false
			m.rpmInput.Blur()
			rpm, err := strconv.ParseFloat(strings.TrimSpace(m.rpmInput.Value()), 64)
			m.rpmInput.SetValue("")
			if err != nil {
				m.addLogEntry(fmt.Sprintf("Invalid RPM: %v", err), true)
				return m, nil
			}
			m.power = 0
			return m, m.controlCmd(fmt.Sprintf("RPM set to %.0f", rpm), func(ctx context.Context) error {
				return m.ctrl.SetRPM(ctx, rpm)
			})
		}
		var cmd tea.Cmd
		m.rpmInput, cmd = m.rpmInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "up", "+", "=":
		return m.setPower(m.power + m.step)
	case "down", "-":
		return m.setPower(m.power - m.step)
	case " ", "space", "s":
		m.power = 0
		return m, m.controlCmd("Stopped", m.ctrl.Stop)
	case "r":
		m.editing = true
		cmd := m.rpmInput.Focus()
		return m, cmd
	case "z":
		return m, m.controlCmd("Zero position reset", func(ctx context.Context) error {
			return m.ctrl.ResetZeroPosition(ctx, 0)
		})
	}
	return m, nil
}

func (m monitorModel) setPower(p float64) (tea.Model, tea.Cmd) {
	p = math.Max(-1, math.Min(1, math.Round(p*1000)/1000))
	m.power = p
	return m, m.controlCmd(fmt.Sprintf("Power set to %.3f", p), func(ctx context.Context) error {
		return m.ctrl.SetPower(ctx, p)
	})
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.eventLog) > m.maxEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxEntries:]
	}
}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	units := []struct {
		name string
		size int64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	parts := []string{}
	for _, u := range units {
		n := seconds / u.size
		seconds %= u.size
		switch {
		case n == 1:
			parts = append(parts, "1 "+u.name)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Stopping motor...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("VESCMOTOR - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | connected %s | q quit, ↑/↓ power, space stop, r rpm, z zero",
		m.connInfo, formatUptime(time.Since(m.connected)))))
	s.WriteString("\n\n")

	// Control state
	control := strings.Builder{}
	ramping := ""
	if m.ctrl.Ramping() {
		ramping = warningStyle.Render(" (ramping)")
	}
	control.WriteString(fmt.Sprintf("%s %s   %s %s%s\n",
		labelStyle.Render("Target power:"), valueStyle.Render(fmt.Sprintf("%+.3f", m.power)),
		labelStyle.Render("Commanded:"), valueStyle.Render(fmt.Sprintf("%+.3f", m.ctrl.CommandedPower())), ramping,
	))
	if m.editing {
		control.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("RPM:"), m.rpmInput.View()))
	} else {
		control.WriteString(headerStyle.Render("press r to enter an RPM setpoint"))
	}
	s.WriteString(boxStyle.Render(control.String()))
	s.WriteString("\n\n")

	// Telemetry
	s.WriteString(labelStyle.Render("Telemetry:"))
	s.WriteString("\n")
	telemetry := strings.Builder{}
	switch {
	case m.values == nil && m.lastErr == nil:
		telemetry.WriteString(warningStyle.Render("⏳ Waiting for telemetry..."))
	case m.values == nil:
		telemetry.WriteString(errorStyle.Render(fmt.Sprintf("✗ %v", m.lastErr)))
	default:
		v := m.values
		fault := valueStyle.Render(v.Fault.String())
		if v.Fault != vesc.FaultNone {
			fault = errorStyle.Render(v.Fault.String())
		}
		telemetry.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			labelStyle.Render("Duty:"), valueStyle.Render(fmt.Sprintf("%+.3f", v.DutyCycle)),
			labelStyle.Render("RPM:"), valueStyle.Render(fmt.Sprintf("%.0f", v.RPM)),
			labelStyle.Render("Fault:"), fault,
		))
		telemetry.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			labelStyle.Render("Motor:"), valueStyle.Render(fmt.Sprintf("%.2fA", v.MotorCurrent)),
			labelStyle.Render("Input:"), valueStyle.Render(fmt.Sprintf("%.2fA", v.InputCurrent)),
			labelStyle.Render("Voltage:"), valueStyle.Render(fmt.Sprintf("%.2fV", v.Voltage)),
		))
		telemetry.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			labelStyle.Render("FET:"), valueStyle.Render(fmt.Sprintf("%.1f°C", v.TempFET)),
			labelStyle.Render("Motor temp:"), valueStyle.Render(fmt.Sprintf("%.1f°C", v.TempMotor)),
		))
		telemetry.WriteString(fmt.Sprintf("%s %s   %s %s",
			labelStyle.Render("Tachometer:"), valueStyle.Render(fmt.Sprintf("%d", v.Tachometer)),
			labelStyle.Render("Position:"), valueStyle.Render(fmt.Sprintf("%.3f rev", m.position)),
		))
		if m.lastErr != nil {
			telemetry.WriteString("\n" + errorStyle.Render(fmt.Sprintf("✗ stale: %v", m.lastErr)))
		}
	}
	s.WriteString(boxStyle.Render(telemetry.String()))
	s.WriteString("\n\n")

	// Link statistics
	linkContent := fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("Requests:"), valueStyle.Render(fmt.Sprintf("%d", m.link.Requests)),
		labelStyle.Render("Retries:"), valueStyle.Render(fmt.Sprintf("%d", m.link.Retries)),
		labelStyle.Render("Timeouts:"), func() string {
			if m.link.Timeouts > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", m.link.Timeouts))
			}
			return valueStyle.Render("0")
		}(),
		labelStyle.Render("Anomalies:"), func() string {
			if m.stats.AnomalousValues > 0 {
				return warningStyle.Render(fmt.Sprintf("%d", m.stats.AnomalousValues))
			}
			return valueStyle.Render("0")
		}(),
	)
	s.WriteString(boxStyle.Render(linkContent))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 20 // Reserve space for header and panels
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	logContent := strings.Builder{}
	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
			}
		}
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(logContent.String()))
	return s.String()
}
