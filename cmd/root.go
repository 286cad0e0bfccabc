// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/vescmotor/pkg/motor"
	"github.com/Thermoquad/vescmotor/pkg/vesc"
)

var (
	configFile string

	// Connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsUsername    string
	wsNoSSLVerify bool

	// Controller flags
	timeoutSec      float64
	dutyFormat      string
	checksumName    string
	noRamp          bool
	rampRate        float64
	commandInterval float64
	debug           bool
	jsonLogs        bool
)

var rootCmd = &cobra.Command{
	Use:   "vescmotor",
	Short: "VESC motor controller driver",
	Long: `vescmotor - drive and monitor a VESC motor controller over its serial protocol.

Provides one-shot motor commands, telemetry queries, passive frame logging,
an interactive monitor and shell, and MQTT/CBOR telemetry export.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 115200]
  WebSocket: --port ws://host/path [--username user]
  Simulator: --port sim://

Settings are read from --config (TOML or YAML), then VESC_* environment
variables, then command-line flags.

For WebSocket authentication, the password is read from the VESC_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Config file (.toml, .yaml)")

	pf.StringVarP(&portName, "port", "p", "", "Serial device, ws:// URL or sim://")
	pf.IntVarP(&baudRate, "baud", "b", motor.DefaultBaudrate, "Baud rate (serial only)")

	pf.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	pf.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	pf.Float64Var(&timeoutSec, "timeout", motor.DefaultTimeout, "Reply timeout in seconds")
	pf.StringVar(&dutyFormat, "duty-format", string(vesc.DutyInt), "Duty cycle encoding (int or float)")
	pf.StringVar(&checksumName, "checksum", "ccitt-false", "Frame checksum (ccitt-false or xmodem)")
	pf.BoolVar(&noRamp, "no-ramp", false, "Send power changes immediately")
	pf.Float64Var(&rampRate, "ramp-rate", motor.DefaultRampUpRate, "Power ramp rate (duty per second)")
	pf.Float64Var(&commandInterval, "interval", motor.DefaultCommandInterval, "Ramp step interval in seconds")
	pf.BoolVar(&debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&jsonLogs, "json-logs", false, "Log in JSON")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	if jsonLogs {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	if debug {
		log.SetLevel(log.DebugLevel)
	}
	return nil
}

// loadConfig merges the config file, environment and explicitly set flags.
func loadConfig(cmd *cobra.Command) (motor.Config, error) {
	cfg, err := motor.LoadConfig(configFile)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Baudrate = baudRate
	}
	if flags.Changed("timeout") {
		cfg.Timeout = timeoutSec
	}
	if flags.Changed("duty-format") {
		cfg.DutyCycleFormat = vesc.DutyCycleFormat(dutyFormat)
	}
	if flags.Changed("checksum") {
		cfg.Checksum = checksumName
	}
	if flags.Changed("no-ramp") {
		cfg.RampUpEnabled = !noRamp
	}
	if flags.Changed("ramp-rate") {
		cfg.RampUpRate = rampRate
	}
	if flags.Changed("interval") {
		cfg.CommandInterval = commandInterval
	}
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	return cfg, cfg.Validate()
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
