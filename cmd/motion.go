// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/vescmotor/pkg/motor"
	"github.com/Thermoquad/vescmotor/pkg/vesc"
)

var (
	holdSeconds float64
	jsonOutput  bool
)

var valuesCmd = &cobra.Command{
	Use:   "values",
	Short: "Query and print one telemetry snapshot",
	Args:  cobra.NoArgs,
	RunE: withController(func(ctx context.Context, ctrl *motor.Controller, args []string) error {
		v, err := ctrl.Values(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(v)
		}
		fmt.Print(vesc.FormatValues(v))
		for _, verr := range vesc.ValidateValues(v) {
			fmt.Printf("  WARNING: %s\n", verr.Message)
		}
		return nil
	}),
}

var firmwareCmd = &cobra.Command{
	Use:   "firmware",
	Short: "Print the firmware version",
	Args:  cobra.NoArgs,
	RunE: withController(func(ctx context.Context, ctrl *motor.Controller, args []string) error {
		fw, err := ctrl.Firmware(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Firmware %d.%02d (%s)\n", fw.Major, fw.Minor, fw.Hardware)
		return nil
	}),
}

var powerCmd = &cobra.Command{
	Use:   "power <duty>",
	Short: "Ramp the duty cycle to a value in [-1, 1] and hold it",
	Long: `Ramp the duty cycle toward the given value and hold it until --hold
expires or Ctrl+C is pressed. The motor is stopped on exit.`,
	Args: cobra.ExactArgs(1),
	RunE: withController(func(ctx context.Context, ctrl *motor.Controller, args []string) error {
		duty, err := parseFloatArg("duty", args[0])
		if err != nil {
			return err
		}
		if err := ctrl.SetPower(ctx, duty); err != nil {
			return err
		}
		fmt.Printf("Power set to %.3f\n", duty)
		return hold(ctx, ctrl)
	}),
}

var rpmCmd = &cobra.Command{
	Use:   "rpm <erpm>",
	Short: "Hold a constant electrical RPM",
	Args:  cobra.ExactArgs(1),
	RunE: withController(func(ctx context.Context, ctrl *motor.Controller, args []string) error {
		rpm, err := parseFloatArg("rpm", args[0])
		if err != nil {
			return err
		}
		if err := ctrl.SetRPM(ctx, rpm); err != nil {
			return err
		}
		return hold(ctx, ctrl)
	}),
}

var currentCmd = &cobra.Command{
	Use:   "current <amps>",
	Short: "Hold a constant motor current",
	Args:  cobra.ExactArgs(1),
	RunE: withController(func(ctx context.Context, ctrl *motor.Controller, args []string) error {
		amps, err := parseFloatArg("current", args[0])
		if err != nil {
			return err
		}
		if err := ctrl.SetCurrent(ctx, amps); err != nil {
			return err
		}
		return hold(ctx, ctrl)
	}),
}

var brakeCmd = &cobra.Command{
	Use:   "brake <amps>",
	Short: "Apply a braking current",
	Args:  cobra.ExactArgs(1),
	RunE: withController(func(ctx context.Context, ctrl *motor.Controller, args []string) error {
		amps, err := parseFloatArg("current", args[0])
		if err != nil {
			return err
		}
		if err := ctrl.SetBrakeCurrent(ctx, amps); err != nil {
			return err
		}
		return hold(ctx, ctrl)
	}),
}

var handbrakeCmd = &cobra.Command{
	Use:   "handbrake <amps>",
	Short: "Hold the rotor in place with the given current",
	Args:  cobra.ExactArgs(1),
	RunE: withController(func(ctx context.Context, ctrl *motor.Controller, args []string) error {
		amps, err := parseFloatArg("current", args[0])
		if err != nil {
			return err
		}
		if err := ctrl.SetHandbrake(ctx, amps); err != nil {
			return err
		}
		return hold(ctx, ctrl)
	}),
}

var positionCmd = &cobra.Command{
	Use:   "position <degrees>",
	Short: "Command the position controller",
	Args:  cobra.ExactArgs(1),
	RunE: withController(func(ctx context.Context, ctrl *motor.Controller, args []string) error {
		deg, err := parseFloatArg("degrees", args[0])
		if err != nil {
			return err
		}
		if err := ctrl.SetPosition(ctx, deg); err != nil {
			return err
		}
		return hold(ctx, ctrl)
	}),
}

var goForCmd = &cobra.Command{
	Use:   "go-for <rpm> <revolutions>",
	Short: "Turn a number of revolutions, then stop",
	Args:  cobra.ExactArgs(2),
	RunE: withController(func(ctx context.Context, ctrl *motor.Controller, args []string) error {
		rpm, err := parseFloatArg("rpm", args[0])
		if err != nil {
			return err
		}
		revs, err := parseFloatArg("revolutions", args[1])
		if err != nil {
			return err
		}
		start := time.Now()
		if err := ctrl.GoFor(ctx, rpm, revs); err != nil {
			return err
		}
		fmt.Printf("Done in %v\n", time.Since(start).Round(time.Millisecond))
		return printPosition(ctx, ctrl)
	}),
}

var goToCmd = &cobra.Command{
	Use:   "go-to <rpm> <position>",
	Short: "Turn to an absolute position in revolutions, then stop",
	Args:  cobra.ExactArgs(2),
	RunE: withController(func(ctx context.Context, ctrl *motor.Controller, args []string) error {
		rpm, err := parseFloatArg("rpm", args[0])
		if err != nil {
			return err
		}
		pos, err := parseFloatArg("position", args[1])
		if err != nil {
			return err
		}
		if err := ctrl.GoTo(ctx, rpm, pos); err != nil {
			return err
		}
		return printPosition(ctx, ctrl)
	}),
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the motor (duty cycle 0)",
	Args:  cobra.NoArgs,
	RunE: withController(func(ctx context.Context, ctrl *motor.Controller, args []string) error {
		return ctrl.Stop(ctx)
	}),
}

var doCmd = &cobra.Command{
	Use:   "do <json>",
	Short: "Run a generic command, e.g. '{\"command\":\"get_status\"}'",
	Args:  cobra.ExactArgs(1),
	RunE: withController(func(ctx context.Context, ctrl *motor.Controller, args []string) error {
		var req map[string]interface{}
		if err := json.Unmarshal([]byte(args[0]), &req); err != nil {
			return fmt.Errorf("invalid command JSON: %w", err)
		}
		res, err := ctrl.DoCommand(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(res)
	}),
}

func init() {
	for _, c := range []*cobra.Command{powerCmd, rpmCmd, currentCmd, brakeCmd, handbrakeCmd, positionCmd} {
		c.Flags().Float64Var(&holdSeconds, "hold", 0, "Seconds to hold before stopping (0 = until Ctrl+C)")
	}
	valuesCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")

	rootCmd.AddCommand(valuesCmd, firmwareCmd, powerCmd, rpmCmd, currentCmd, brakeCmd,
		handbrakeCmd, positionCmd, goForCmd, goToCmd, stopCmd, doCmd)
}

type controllerFunc func(ctx context.Context, ctrl *motor.Controller, args []string) error

// withController opens a controller for the duration of fn. The motor is
// stopped when the controller closes.
func withController(fn controllerFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		ctrl, _, err := openController(cmd)
		if err != nil {
			return err
		}
		runErr := fn(ctx, ctrl, args)
		if err := ctrl.Close(); err != nil && runErr == nil {
			return err
		}
		return runErr
	}
}

// hold waits for --hold or an interrupt, printing telemetry once a second.
func hold(ctx context.Context, ctrl *motor.Controller) error {
	if holdSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(holdSeconds*float64(time.Second)))
		defer cancel()
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("Stopping")
			return nil
		case <-ticker.C:
			v, err := ctrl.Values(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				fmt.Fprintf(os.Stderr, "telemetry: %v\n", err)
				continue
			}
			fmt.Printf("duty=%.3f rpm=%.0f current=%.2fA voltage=%.2fV fault=%s\n",
				v.DutyCycle, v.RPM, v.MotorCurrent, v.Voltage, v.Fault)
		}
	}
}

func printPosition(ctx context.Context, ctrl *motor.Controller) error {
	pos, err := ctrl.Position(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Position: %.3f rev\n", pos)
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseFloatArg(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}
