// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/vescmotor/pkg/motor"
	"github.com/Thermoquad/vescmotor/pkg/vesc"
)

const controllerKey = "$controller"

var shellCmd = &cobra.Command{
	Use:   "shell [command...]",
	Short: "Interactive shell for driving the motor",
	Long: `Open an interactive shell connected to the VESC. Type "help" for the
command list. With arguments, a single shell command is run and the shell exits.

The motor is stopped when the shell exits.`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	ctrl, connInfo, err := openController(cmd)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	sh := newShell(ctrl)
	if len(args) > 0 {
		return sh.Process(args...)
	}

	sh.Printf("Connected: %s\n", connInfo)
	sh.Run()
	sh.Close()
	return nil
}

// newShell builds an ishell.Shell whose commands drive ctrl.
func newShell(ctrl *motor.Controller) *ishell.Shell {
	sh := ishell.New()
	sh.Set(controllerKey, ctrl)
	sh.SetPrompt("vesc> ")

	for _, c := range shellCommands {
		sh.AddCmd(c)
	}
	return sh
}

func controllerFrom(c *ishell.Context) *motor.Controller {
	return c.Get(controllerKey).(*motor.Controller)
}

// floatCommand parses len(params) float arguments and passes them to fn.
func floatCommand(name, help string, params []string, fn func(ctx context.Context, ctrl *motor.Controller, args []float64) error) *ishell.Cmd {
	usage := name
	for _, p := range params {
		usage += " <" + p + ">"
	}
	return &ishell.Cmd{
		Name: name,
		Help: help + ": " + usage,
		Func: func(c *ishell.Context) {
			if len(c.Args) != len(params) {
				c.Err(fmt.Errorf("usage: %s", usage))
				return
			}
			values := make([]float64, len(params))
			for i, raw := range c.Args {
				v, err := parseFloatArg(params[i], raw)
				if err != nil {
					c.Err(err)
					return
				}
				values[i] = v
			}
			if err := fn(context.Background(), controllerFrom(c), values); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	}
}

var shellCommands = []*ishell.Cmd{
	{
		Name: "values",
		Help: "print a telemetry snapshot",
		Func: func(c *ishell.Context) {
			v, err := controllerFrom(c).Values(context.Background())
			if err != nil {
				c.Err(err)
				return
			}
			c.Print(vesc.FormatValues(v))
		},
	},
	floatCommand("power", "ramp duty cycle", []string{"duty"}, func(ctx context.Context, ctrl *motor.Controller, a []float64) error {
		return ctrl.SetPower(ctx, a[0])
	}),
	floatCommand("rpm", "set electrical RPM", []string{"erpm"}, func(ctx context.Context, ctrl *motor.Controller, a []float64) error {
		return ctrl.SetRPM(ctx, a[0])
	}),
	floatCommand("current", "set motor current", []string{"amps"}, func(ctx context.Context, ctrl *motor.Controller, a []float64) error {
		return ctrl.SetCurrent(ctx, a[0])
	}),
	floatCommand("brake", "set braking current", []string{"amps"}, func(ctx context.Context, ctrl *motor.Controller, a []float64) error {
		return ctrl.SetBrakeCurrent(ctx, a[0])
	}),
	floatCommand("handbrake", "hold the rotor", []string{"amps"}, func(ctx context.Context, ctrl *motor.Controller, a []float64) error {
		return ctrl.SetHandbrake(ctx, a[0])
	}),
	floatCommand("position", "command the position controller", []string{"degrees"}, func(ctx context.Context, ctrl *motor.Controller, a []float64) error {
		return ctrl.SetPosition(ctx, a[0])
	}),
	floatCommand("go-for", "turn revolutions then stop", []string{"rpm", "revolutions"}, func(ctx context.Context, ctrl *motor.Controller, a []float64) error {
		return ctrl.GoFor(ctx, a[0], a[1])
	}),
	floatCommand("go-to", "turn to a position then stop", []string{"rpm", "position"}, func(ctx context.Context, ctrl *motor.Controller, a []float64) error {
		return ctrl.GoTo(ctx, a[0], a[1])
	}),
	floatCommand("zero", "make the current position read as offset", []string{"offset"}, func(ctx context.Context, ctrl *motor.Controller, a []float64) error {
		return ctrl.ResetZeroPosition(ctx, a[0])
	}),
	{
		Name: "stop",
		Help: "stop the motor",
		Func: func(c *ishell.Context) {
			if err := controllerFrom(c).Stop(context.Background()); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	},
	{
		Name: "where",
		Help: "print the position in revolutions",
		Func: func(c *ishell.Context) {
			pos, err := controllerFrom(c).Position(context.Background())
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%.3f\n", pos)
		},
	},
	{
		Name: "do",
		Help: "run a generic command: do <json>",
		Func: func(c *ishell.Context) {
			var req map[string]interface{}
			if err := json.Unmarshal([]byte(strings.Join(c.Args, " ")), &req); err != nil {
				c.Err(fmt.Errorf("invalid command JSON: %w", err))
				return
			}
			res, err := controllerFrom(c).DoCommand(context.Background(), req)
			if err != nil {
				c.Err(err)
				return
			}
			out, err := json.Marshal(res)
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(string(out))
		},
	},
	{
		Name: "stats",
		Help: "print link statistics",
		Func: func(c *ishell.Context) {
			c.Print(controllerFrom(c).Transport().Statistics().String())
		},
	},
	{
		Name: "debug",
		Help: "toggle debug logging: debug on|off",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 || (c.Args[0] != "on" && c.Args[0] != "off") {
				c.Err(fmt.Errorf("usage: debug on|off"))
				return
			}
			controllerFrom(c).SetDebug(c.Args[0] == "on")
			c.Println("OK")
		},
	},
}
