// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DutyCycleFormat selects how SetDuty serializes its parameter.
type DutyCycleFormat string

// Duty cycle formats
const (
	// DutyInt is a big-endian int32 scaled by ScaleDuty.
	DutyInt DutyCycleFormat = "int"
	// DutyFloat is a big-endian IEEE-754 float32, for legacy firmware.
	DutyFloat DutyCycleFormat = "float"
)

// ParseDutyCycleFormat validates a configuration value.
func ParseDutyCycleFormat(s string) (DutyCycleFormat, error) {
	switch DutyCycleFormat(s) {
	case DutyInt, DutyFloat:
		return DutyCycleFormat(s), nil
	}
	return "", fmt.Errorf("unknown duty cycle format %q (want int or float)", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *DutyCycleFormat) UnmarshalText(text []byte) error {
	v, err := ParseDutyCycleFormat(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Command is one of the fixed set of commands the driver can send.
// Values are immutable and built fresh per call.
type Command interface {
	// Opcode returns the command's opcode byte.
	Opcode() byte
	// ExpectsReply reports whether the device answers the command.
	ExpectsReply() bool
	fmt.Stringer

	appendParams(dst []byte, format DutyCycleFormat) ([]byte, error)
}

// SetDuty sets the duty cycle, -1.0 to 1.0.
type SetDuty struct{ Duty float64 }

// SetCurrent sets the motor current in amps.
type SetCurrent struct{ Amps float64 }

// SetCurrentBrake sets the braking current in amps.
type SetCurrentBrake struct{ Amps float64 }

// SetRPM sets the electrical RPM.
type SetRPM struct{ RPM float64 }

// SetPosition commands the position controller, in degrees.
type SetPosition struct{ Degrees float64 }

// SetHandbrake holds the motor with the given current in amps.
type SetHandbrake struct{ Amps float64 }

// GetValues requests a telemetry snapshot.
type GetValues struct{}

// GetFirmware requests the firmware version.
type GetFirmware struct{}

// Alive is a keep-alive probe.
type Alive struct{}

func (SetDuty) Opcode() byte         { return OpSetDuty }
func (SetCurrent) Opcode() byte      { return OpSetCurrent }
func (SetCurrentBrake) Opcode() byte { return OpSetCurrentBrake }
func (SetRPM) Opcode() byte          { return OpSetRPM }
func (SetPosition) Opcode() byte     { return OpSetPosition }
func (SetHandbrake) Opcode() byte    { return OpSetHandbrake }
func (GetValues) Opcode() byte       { return OpGetValues }
func (GetFirmware) Opcode() byte     { return OpGetFirmware }
func (Alive) Opcode() byte           { return OpAlive }

func (SetDuty) ExpectsReply() bool         { return false }
func (SetCurrent) ExpectsReply() bool      { return false }
func (SetCurrentBrake) ExpectsReply() bool { return false }
func (SetRPM) ExpectsReply() bool          { return false }
func (SetPosition) ExpectsReply() bool     { return false }
func (SetHandbrake) ExpectsReply() bool    { return false }
func (GetValues) ExpectsReply() bool       { return true }
func (GetFirmware) ExpectsReply() bool     { return true }
func (Alive) ExpectsReply() bool           { return true }

func (c SetDuty) String() string         { return fmt.Sprintf("SET_DUTY(%.5f)", c.Duty) }
func (c SetCurrent) String() string      { return fmt.Sprintf("SET_CURRENT(%.3fA)", c.Amps) }
func (c SetCurrentBrake) String() string { return fmt.Sprintf("SET_CURRENT_BRAKE(%.3fA)", c.Amps) }
func (c SetRPM) String() string          { return fmt.Sprintf("SET_RPM(%.0f)", c.RPM) }
func (c SetPosition) String() string     { return fmt.Sprintf("SET_POS(%.6f°)", c.Degrees) }
func (c SetHandbrake) String() string    { return fmt.Sprintf("SET_HANDBRAKE(%.3fA)", c.Amps) }
func (GetValues) String() string         { return "GET_VALUES" }
func (GetFirmware) String() string       { return "FW_VERSION" }
func (Alive) String() string             { return "ALIVE" }

func (c SetDuty) appendParams(dst []byte, format DutyCycleFormat) ([]byte, error) {
	duty, err := clampDuty(c.Duty)
	if err != nil {
		return nil, err
	}
	if format == DutyFloat {
		return binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(duty))), nil
	}
	return appendScaled(dst, duty, ScaleDuty)
}

func (c SetCurrent) appendParams(dst []byte, _ DutyCycleFormat) ([]byte, error) {
	return appendScaled(dst, c.Amps, ScaleCurrent)
}

func (c SetCurrentBrake) appendParams(dst []byte, _ DutyCycleFormat) ([]byte, error) {
	return appendScaled(dst, c.Amps, ScaleCurrent)
}

func (c SetRPM) appendParams(dst []byte, _ DutyCycleFormat) ([]byte, error) {
	return appendScaled(dst, c.RPM, ScaleRPM)
}

func (c SetPosition) appendParams(dst []byte, _ DutyCycleFormat) ([]byte, error) {
	return appendScaled(dst, c.Degrees, ScalePosition)
}

func (c SetHandbrake) appendParams(dst []byte, _ DutyCycleFormat) ([]byte, error) {
	return appendScaled(dst, c.Amps, ScaleCurrent)
}

func (GetValues) appendParams(dst []byte, _ DutyCycleFormat) ([]byte, error)   { return dst, nil }
func (GetFirmware) appendParams(dst []byte, _ DutyCycleFormat) ([]byte, error) { return dst, nil }
func (Alive) appendParams(dst []byte, _ DutyCycleFormat) ([]byte, error)       { return dst, nil }

// EncodeCommand serializes cmd as a frame payload: opcode followed by its
// parameters. Only SetDuty honours format; every other parameter is a scaled
// big-endian int32.
func EncodeCommand(cmd Command, format DutyCycleFormat) ([]byte, error) {
	payload := make([]byte, 1, 5)
	payload[0] = cmd.Opcode()
	payload, err := cmd.appendParams(payload, format)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd, err)
	}
	return payload, nil
}

func clampDuty(duty float64) (float64, error) {
	if math.IsNaN(duty) {
		return 0, fmt.Errorf("duty cycle is NaN")
	}
	return math.Max(-1, math.Min(1, duty)), nil
}

func appendScaled(dst []byte, value, scale float64) ([]byte, error) {
	scaled := math.Round(value * scale)
	if math.IsNaN(scaled) || scaled > math.MaxInt32 || scaled < math.MinInt32 {
		return nil, fmt.Errorf("value %v out of range for scale %v", value, scale)
	}
	return binary.BigEndian.AppendUint32(dst, uint32(int32(scaled))), nil
}

// DecodeCommand parses a command payload as produced by EncodeCommand.
func DecodeCommand(payload []byte, format DutyCycleFormat) (Command, error) {
	if len(payload) == 0 {
		return nil, &ParseError{Kind: PayloadTruncated, Want: 1}
	}
	op := payload[0]
	switch op {
	case OpGetValues:
		return GetValues{}, nil
	case OpGetFirmware:
		return GetFirmware{}, nil
	case OpAlive:
		return Alive{}, nil
	case OpSetDuty, OpSetCurrent, OpSetCurrentBrake, OpSetRPM, OpSetPosition, OpSetHandbrake:
	default:
		return nil, &ParseError{Kind: UnexpectedOpcode, Opcode: op}
	}

	if len(payload) < 5 {
		return nil, &ParseError{Kind: PayloadTruncated, Opcode: op, Length: len(payload), Want: 5}
	}
	bits := binary.BigEndian.Uint32(payload[1:5])
	raw := float64(int32(bits))

	switch op {
	case OpSetDuty:
		if format == DutyFloat {
			return SetDuty{Duty: float64(math.Float32frombits(bits))}, nil
		}
		return SetDuty{Duty: raw / ScaleDuty}, nil
	case OpSetCurrent:
		return SetCurrent{Amps: raw / ScaleCurrent}, nil
	case OpSetCurrentBrake:
		return SetCurrentBrake{Amps: raw / ScaleCurrent}, nil
	case OpSetRPM:
		return SetRPM{RPM: raw / ScaleRPM}, nil
	case OpSetPosition:
		return SetPosition{Degrees: raw / ScalePosition}, nil
	default:
		return SetHandbrake{Amps: raw / ScaleCurrent}, nil
	}
}
