// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	pollInterval float64
	powerStep    float64
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for monitoring and driving the motor",
	Long: `Monitor VESC telemetry and drive the motor from an interactive terminal UI.

Keys:
  up / +      increase power by --step
  down / -    decrease power by --step
  space       stop (duty 0)
  r           enter an RPM setpoint
  z           reset zero position
  q, ctrl+c   quit (the motor is stopped)

Telemetry is polled every --poll seconds and checked for implausible values.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Float64Var(&pollInterval, "poll", 0.5, "Telemetry poll interval in seconds")
	monitorCmd.Flags().Float64Var(&powerStep, "step", 0.05, "Power change per key press")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctrl, connInfo, err := openController(cmd)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	// Log lines would corrupt the alt screen
	log.SetLevel(log.ErrorLevel)

	m := initialMonitorModel(ctrl, connInfo, time.Duration(pollInterval*float64(time.Second)), powerStep)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
