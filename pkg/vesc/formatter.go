// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp.Format("15:04:05.000")
	header := "short"
	if f.Long {
		header = "long"
	}

	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d header=%s crc=0x%04X\n",
		timestamp, FormatOpcode(f.Opcode()), f.Opcode(), len(f.Payload), header, f.CRC)

	if len(f.Payload) > 1 {
		result += formatParams(f.Opcode(), f.Payload)
	}
	return result
}

// FormatOpcode returns the human-readable name for an opcode
func FormatOpcode(op byte) string {
	switch op {
	case OpSetDuty:
		return "SET_DUTY"
	case OpSetCurrent:
		return "SET_CURRENT"
	case OpSetCurrentBrake:
		return "SET_CURRENT_BRAKE"
	case OpSetRPM:
		return "SET_RPM"
	case OpSetPosition:
		return "SET_POS"
	case OpSetHandbrake:
		return "SET_HANDBRAKE"
	case OpGetValues:
		return "GET_VALUES"
	case OpGetFirmware:
		return "FW_VERSION"
	case OpAlive:
		return "ALIVE"
	default:
		return "UNKNOWN"
	}
}

func formatParams(op byte, payload []byte) string {
	params := payload[1:]
	if len(params) == 4 {
		raw := int32(binary.BigEndian.Uint32(params))
		switch op {
		case OpSetDuty:
			// Either encoding is possible; show both readings
			f := math.Float32frombits(uint32(raw))
			return fmt.Sprintf("  Duty: %.5f (int) / %.5f (float)\n", float64(raw)/ScaleDuty, f)
		case OpSetCurrent, OpSetCurrentBrake, OpSetHandbrake:
			return fmt.Sprintf("  Current: %.3f A\n", float64(raw)/ScaleCurrent)
		case OpSetRPM:
			return fmt.Sprintf("  RPM: %d\n", raw)
		case OpSetPosition:
			return fmt.Sprintf("  Position: %.6f°\n", float64(raw)/ScalePosition)
		}
	}

	switch op {
	case OpGetValues:
		if v, err := DecodeValues(payload); err == nil {
			return FormatValues(v)
		}
	case OpGetFirmware:
		if fw, err := DecodeFirmware(payload); err == nil {
			return fmt.Sprintf("  Firmware: %d.%02d (%s)\n", fw.Major, fw.Minor, fw.Hardware)
		}
	}

	// Default: hex dump
	result := "  Payload: "
	for i, b := range params {
		if i > 0 && i%16 == 0 {
			result += "\n           "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}

// FormatValues formats a telemetry snapshot as an indented block
func FormatValues(v Values) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "  Voltage:       %.1f V\n", v.Voltage)
	fmt.Fprintf(&sb, "  Duty:          %.3f\n", v.DutyCycle)
	fmt.Fprintf(&sb, "  RPM:           %.0f\n", v.RPM)
	fmt.Fprintf(&sb, "  Motor current: %.2f A\n", v.MotorCurrent)
	fmt.Fprintf(&sb, "  Input current: %.2f A\n", v.InputCurrent)
	fmt.Fprintf(&sb, "  Temp FET:      %.1f°C\n", v.TempFET)
	fmt.Fprintf(&sb, "  Temp motor:    %.1f°C\n", v.TempMotor)
	fmt.Fprintf(&sb, "  Consumed:      %.4f Ah / %.4f Wh\n", v.AmpHours, v.WattHours)
	fmt.Fprintf(&sb, "  Charged:       %.4f Ah / %.4f Wh\n", v.AmpHoursCharged, v.WattHoursCharged)
	fmt.Fprintf(&sb, "  Tachometer:    %d (abs %d)\n", v.Tachometer, v.TachometerAbs)
	if v.HasPIDPos {
		fmt.Fprintf(&sb, "  PID position:  %.3f°\n", v.PIDPos)
	}
	fmt.Fprintf(&sb, "  Fault:         %s\n", v.Fault)
	return sb.String()
}
