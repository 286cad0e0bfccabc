// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motor

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
)

// Command kinds accepted by DoCommand.
const (
	CmdGetValues       = "get_vesc_values"
	CmdSetCurrent      = "set_current"
	CmdSetBrakeCurrent = "set_brake_current"
	CmdSetHandbrake    = "set_handbrake"
	CmdSetPosition     = "set_position"
	CmdGetFirmware     = "get_firmware"
	CmdPing            = "ping"
	CmdTestConnection  = "test_connection"
	CmdGetStatus       = "get_status"
	CmdSetDebug        = "set_debug"
)

// Request is one of the fixed set of DoCommand requests.
type Request interface {
	Kind() string
	isRequest()
}

// GetValuesRequest returns the full telemetry snapshot.
type GetValuesRequest struct{}

// SetCurrentRequest sets the motor current in amps.
type SetCurrentRequest struct{ Current float64 }

// SetBrakeCurrentRequest sets the braking current in amps.
type SetBrakeCurrentRequest struct{ Current float64 }

// SetHandbrakeRequest holds the rotor with a current in amps.
type SetHandbrakeRequest struct{ Current float64 }

// SetPositionRequest commands the position controller in degrees.
type SetPositionRequest struct{ Degrees float64 }

// GetFirmwareRequest returns the firmware version.
type GetFirmwareRequest struct{}

// PingRequest sends an Alive probe.
type PingRequest struct{}

// TestConnectionRequest checks that the device answers a telemetry query.
type TestConnectionRequest struct{}

// GetStatusRequest summarises controller and link state.
type GetStatusRequest struct{}

// SetDebugRequest toggles debug logging.
type SetDebugRequest struct{ Debug bool }

func (GetValuesRequest) Kind() string       { return CmdGetValues }
func (SetCurrentRequest) Kind() string      { return CmdSetCurrent }
func (SetBrakeCurrentRequest) Kind() string { return CmdSetBrakeCurrent }
func (SetHandbrakeRequest) Kind() string    { return CmdSetHandbrake }
func (SetPositionRequest) Kind() string     { return CmdSetPosition }
func (GetFirmwareRequest) Kind() string     { return CmdGetFirmware }
func (PingRequest) Kind() string            { return CmdPing }
func (TestConnectionRequest) Kind() string  { return CmdTestConnection }
func (GetStatusRequest) Kind() string       { return CmdGetStatus }
func (SetDebugRequest) Kind() string        { return CmdSetDebug }

func (GetValuesRequest) isRequest()       {}
func (SetCurrentRequest) isRequest()      {}
func (SetBrakeCurrentRequest) isRequest() {}
func (SetHandbrakeRequest) isRequest()    {}
func (SetPositionRequest) isRequest()     {}
func (GetFirmwareRequest) isRequest()     {}
func (PingRequest) isRequest()            {}
func (TestConnectionRequest) isRequest()  {}
func (GetStatusRequest) isRequest()       {}
func (SetDebugRequest) isRequest()        {}

// ParseRequest converts a {"command": kind, ...} map into a Request.
func ParseRequest(cmd map[string]interface{}) (Request, error) {
	raw, ok := cmd["command"]
	if !ok {
		return nil, &UnsupportedCommandError{}
	}
	name, ok := raw.(string)
	if !ok {
		return nil, &UnsupportedCommandError{Command: fmt.Sprint(raw)}
	}

	switch name {
	case CmdGetValues:
		return GetValuesRequest{}, nil
	case CmdSetCurrent:
		v, err := numberArg(cmd, name, "current")
		if err != nil {
			return nil, err
		}
		return SetCurrentRequest{Current: v}, nil
	case CmdSetBrakeCurrent:
		v, err := numberArg(cmd, name, "current")
		if err != nil {
			return nil, err
		}
		return SetBrakeCurrentRequest{Current: v}, nil
	case CmdSetHandbrake:
		v, err := numberArg(cmd, name, "current")
		if err != nil {
			return nil, err
		}
		return SetHandbrakeRequest{Current: v}, nil
	case CmdSetPosition:
		v, err := numberArg(cmd, name, "degrees")
		if err != nil {
			return nil, err
		}
		return SetPositionRequest{Degrees: v}, nil
	case CmdGetFirmware:
		return GetFirmwareRequest{}, nil
	case CmdPing:
		return PingRequest{}, nil
	case CmdTestConnection:
		return TestConnectionRequest{}, nil
	case CmdGetStatus:
		return GetStatusRequest{}, nil
	case CmdSetDebug:
		v, ok := cmd["debug"]
		if !ok {
			return nil, &InvalidArgumentError{Command: name, Argument: "debug", Reason: "missing"}
		}
		b, ok := v.(bool)
		if !ok {
			return nil, &InvalidArgumentError{Command: name, Argument: "debug", Reason: fmt.Sprintf("want bool, got %T", v)}
		}
		return SetDebugRequest{Debug: b}, nil
	default:
		return nil, &UnsupportedCommandError{Command: name}
	}
}

func numberArg(cmd map[string]interface{}, command, arg string) (float64, error) {
	raw, ok := cmd[arg]
	if !ok {
		return 0, &InvalidArgumentError{Command: command, Argument: arg, Reason: "missing"}
	}

	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int32:
		v = float64(n)
	case int64:
		v = float64(n)
	case uint64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, &InvalidArgumentError{Command: command, Argument: arg, Reason: err.Error()}
		}
		v = f
	default:
		return 0, &InvalidArgumentError{Command: command, Argument: arg, Reason: fmt.Sprintf("want number, got %T", raw)}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &InvalidArgumentError{Command: command, Argument: arg, Reason: "must be finite"}
	}
	return v, nil
}

// DoCommand parses and executes a generic command map.
func (c *Controller) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	req, err := ParseRequest(cmd)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, req)
}

// Execute runs a parsed request.
func (c *Controller) Execute(ctx context.Context, req Request) (map[string]interface{}, error) {
	switch r := req.(type) {
	case GetValuesRequest:
		v, err := c.Values(ctx)
		if err != nil {
			return nil, err
		}
		return v.AsMap(), nil

	case SetCurrentRequest:
		if err := c.SetCurrent(ctx, r.Current); err != nil {
			return nil, err
		}
		return map[string]interface{}{"current": r.Current}, nil

	case SetBrakeCurrentRequest:
		if err := c.SetBrakeCurrent(ctx, r.Current); err != nil {
			return nil, err
		}
		return map[string]interface{}{"current": r.Current}, nil

	case SetHandbrakeRequest:
		if err := c.SetHandbrake(ctx, r.Current); err != nil {
			return nil, err
		}
		return map[string]interface{}{"current": r.Current}, nil

	case SetPositionRequest:
		if err := c.SetPosition(ctx, r.Degrees); err != nil {
			return nil, err
		}
		return map[string]interface{}{"degrees": r.Degrees}, nil

	case GetFirmwareRequest:
		fw, err := c.Firmware(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"major":    fw.Major,
			"minor":    fw.Minor,
			"version":  fmt.Sprintf("%d.%02d", fw.Major, fw.Minor),
			"hardware": fw.Hardware,
		}, nil

	case PingRequest:
		rtt, reply, err := c.Ping(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"response":   hex.EncodeToString(reply),
			"latency_ms": float64(rtt.Microseconds()) / 1000,
		}, nil

	case TestConnectionRequest:
		if _, err := c.Values(ctx); err != nil {
			return map[string]interface{}{"connected": false, "message": err.Error()}, nil
		}
		return map[string]interface{}{"connected": true}, nil

	case GetStatusRequest:
		return c.status(ctx), nil

	case SetDebugRequest:
		c.SetDebug(r.Debug)
		return map[string]interface{}{"debug_mode": r.Debug}, nil

	default:
		return nil, &UnsupportedCommandError{Command: req.Kind()}
	}
}

// status reports commanded state, telemetry when available and link counters.
func (c *Controller) status(ctx context.Context) map[string]interface{} {
	status := map[string]interface{}{
		"current_power": c.CommandedPower(),
		"ramping":       c.Ramping(),
		"debug_mode":    c.Debug(),
		"link":          c.tr.Statistics().AsMap(),
	}

	v, err := c.cachedValues(ctx)
	if err != nil {
		status["telemetry_error"] = err.Error()
		return status
	}
	c.mu.Lock()
	position := float64(v.Tachometer-c.zeroTicks)/c.cfg.TicksPerRotation + c.zeroOffset
	c.mu.Unlock()

	status["is_powered"] = v.DutyCycle != 0
	status["duty_cycle"] = v.DutyCycle
	status["current_rpm"] = v.RPM
	status["is_moving"] = v.RPM != 0
	status["position"] = position
	status["fault"] = v.Fault.String()
	return status
}
