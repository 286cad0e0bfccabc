// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Fixed layout of the GetValues reply body (after the opcode byte).
const (
	valuesFixedSize    = 53
	valuesWithPIDSize  = valuesFixedSize + 4
	valuesWithIDSize   = valuesWithPIDSize + 1
	firmwareHeaderSize = 2
)

// Values is a decoded GetValues reply in physical units.
// A Values is never partially updated; each query yields a new one.
type Values struct {
	TempFET          float64 `json:"temp_fet"`
	TempMotor        float64 `json:"temp_motor"`
	MotorCurrent     float64 `json:"motor_current"`
	InputCurrent     float64 `json:"input_current"`
	CurrentD         float64 `json:"current_d"`
	CurrentQ         float64 `json:"current_q"`
	DutyCycle        float64 `json:"duty_cycle"`
	RPM              float64 `json:"rpm"`
	Voltage          float64 `json:"voltage"`
	AmpHours         float64 `json:"amp_hours"`
	AmpHoursCharged  float64 `json:"amp_hours_charged"`
	WattHours        float64 `json:"watt_hours"`
	WattHoursCharged float64 `json:"watt_hours_charged"`
	Tachometer       int32   `json:"tachometer"`
	TachometerAbs    int32   `json:"tachometer_abs"`
	Fault            Fault   `json:"fault"`
	PIDPos           float64 `json:"pid_pos,omitempty"`
	HasPIDPos        bool    `json:"has_pid_pos"`
	ControllerID     uint8   `json:"controller_id,omitempty"`
	HasControllerID  bool    `json:"has_controller_id"`
}

// AsMap returns the snapshot as a flat map for structured command replies.
func (v Values) AsMap() map[string]interface{} {
	m := map[string]interface{}{
		"temp_fet":           v.TempFET,
		"temp_motor":         v.TempMotor,
		"motor_current":      v.MotorCurrent,
		"input_current":      v.InputCurrent,
		"current_d":          v.CurrentD,
		"current_q":          v.CurrentQ,
		"duty_cycle":         v.DutyCycle,
		"rpm":                v.RPM,
		"voltage":            v.Voltage,
		"amp_hours":          v.AmpHours,
		"amp_hours_charged":  v.AmpHoursCharged,
		"watt_hours":         v.WattHours,
		"watt_hours_charged": v.WattHoursCharged,
		"tachometer":         v.Tachometer,
		"tachometer_abs":     v.TachometerAbs,
		"fault_code":         uint8(v.Fault),
		"fault":              v.Fault.String(),
	}
	if v.HasPIDPos {
		m["pid_pos"] = v.PIDPos
	}
	if v.HasControllerID {
		m["controller_id"] = v.ControllerID
	}
	return m
}

// valueReader walks a big-endian payload at fixed offsets.
type valueReader struct {
	buf []byte
	off int
}

func (r *valueReader) i16(scale float64) float64 {
	v := int16(binary.BigEndian.Uint16(r.buf[r.off:]))
	r.off += 2
	return float64(v) / scale
}

func (r *valueReader) i32(scale float64) float64 {
	return float64(r.raw32()) / scale
}

func (r *valueReader) raw32() int32 {
	v := int32(binary.BigEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	return v
}

func (r *valueReader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

// DecodeValues parses a GetValues reply payload (opcode included).
func DecodeValues(payload []byte) (Values, error) {
	if len(payload) == 0 {
		return Values{}, &ParseError{Kind: PayloadTruncated, Opcode: OpGetValues, Want: 1 + valuesFixedSize}
	}
	if payload[0] != OpGetValues {
		return Values{}, &ParseError{Kind: UnexpectedOpcode, Opcode: payload[0]}
	}
	body := payload[1:]
	if len(body) < valuesFixedSize {
		return Values{}, &ParseError{
			Kind:   PayloadTruncated,
			Opcode: OpGetValues,
			Length: len(payload),
			Want:   1 + valuesFixedSize,
		}
	}

	r := &valueReader{buf: body}
	v := Values{
		TempFET:      r.i16(10),
		TempMotor:    r.i16(10),
		MotorCurrent: r.i32(100),
		InputCurrent: r.i32(100),
		CurrentD:     r.i32(100),
		CurrentQ:     r.i32(100),
		DutyCycle:    r.i16(1000),
		RPM:          r.i32(1),
		Voltage:      r.i16(10),
	}
	v.AmpHours = r.i32(10000)
	v.AmpHoursCharged = r.i32(10000)
	v.WattHours = r.i32(10000)
	v.WattHoursCharged = r.i32(10000)
	v.Tachometer = r.raw32()
	v.TachometerAbs = r.raw32()
	v.Fault = Fault(r.u8())

	if len(body) >= valuesWithPIDSize {
		v.PIDPos = r.i32(ScalePosition)
		v.HasPIDPos = true
	}
	if len(body) >= valuesWithIDSize {
		v.ControllerID = r.u8()
		v.HasControllerID = true
	}
	return v, nil
}

// EncodeValues builds a GetValues reply payload. It is the inverse of
// DecodeValues up to the wire resolution of each field.
func EncodeValues(v Values) []byte {
	b := make([]byte, 0, 1+valuesWithIDSize)
	b = append(b, OpGetValues)
	b = appendI16(b, v.TempFET, 10)
	b = appendI16(b, v.TempMotor, 10)
	b = appendI32(b, v.MotorCurrent, 100)
	b = appendI32(b, v.InputCurrent, 100)
	b = appendI32(b, v.CurrentD, 100)
	b = appendI32(b, v.CurrentQ, 100)
	b = appendI16(b, v.DutyCycle, 1000)
	b = appendI32(b, v.RPM, 1)
	b = appendI16(b, v.Voltage, 10)
	b = appendI32(b, v.AmpHours, 10000)
	b = appendI32(b, v.AmpHoursCharged, 10000)
	b = appendI32(b, v.WattHours, 10000)
	b = appendI32(b, v.WattHoursCharged, 10000)
	b = binary.BigEndian.AppendUint32(b, uint32(v.Tachometer))
	b = binary.BigEndian.AppendUint32(b, uint32(v.TachometerAbs))
	b = append(b, uint8(v.Fault))
	if v.HasPIDPos || v.HasControllerID {
		b = appendI32(b, v.PIDPos, ScalePosition)
	}
	if v.HasControllerID {
		b = append(b, v.ControllerID)
	}
	return b
}

func appendI16(b []byte, v, scale float64) []byte {
	return binary.BigEndian.AppendUint16(b, uint16(int16(math.Round(v*scale))))
}

func appendI32(b []byte, v, scale float64) []byte {
	return binary.BigEndian.AppendUint32(b, uint32(int32(math.Round(v*scale))))
}

// Firmware is a decoded GetFirmware reply.
type Firmware struct {
	Major    uint8  `json:"major"`
	Minor    uint8  `json:"minor"`
	Hardware string `json:"hardware"`
}

// DecodeFirmware parses a GetFirmware reply payload (opcode included).
func DecodeFirmware(payload []byte) (Firmware, error) {
	if len(payload) == 0 || payload[0] != OpGetFirmware {
		var op byte
		if len(payload) > 0 {
			op = payload[0]
		}
		return Firmware{}, &ParseError{Kind: UnexpectedOpcode, Opcode: op}
	}
	body := payload[1:]
	if len(body) < firmwareHeaderSize {
		return Firmware{}, &ParseError{
			Kind:   PayloadTruncated,
			Opcode: OpGetFirmware,
			Length: len(payload),
			Want:   1 + firmwareHeaderSize,
		}
	}
	fw := Firmware{Major: body[0], Minor: body[1]}
	name := body[firmwareHeaderSize:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	fw.Hardware = string(name)
	return fw, nil
}

// EncodeFirmware builds a GetFirmware reply payload.
func EncodeFirmware(fw Firmware) []byte {
	b := []byte{OpGetFirmware, fw.Major, fw.Minor}
	b = append(b, fw.Hardware...)
	return append(b, 0)
}
