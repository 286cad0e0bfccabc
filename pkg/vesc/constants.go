// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package vesc implements the VESC serial framing protocol and its command set.
//
// A frame is a start marker, a length header, the payload, a 16-bit checksum
// over the payload and a terminator byte. Payloads of up to 255 bytes use the
// short header (one length byte); longer payloads use the long header (two
// big-endian length bytes). The first payload byte is always the opcode.
package vesc

// Protocol framing bytes
const (
	StartShort = 0x02
	StartLong  = 0x03
	EndByte    = 0x03
)

// Frame size limits
const (
	MaxShortPayload = 255
	MaxPayloadSize  = 65535
	ChecksumSize    = 2
)

// CRC-16 configuration
const (
	crcPolynomial    = 0x1021
	crcInitialFalse  = 0xFFFF
	crcInitialXModem = 0x0000
)

// Opcodes. The numbering is the contract of the firmware this driver targets;
// it is kept in one table so it can be swapped for other firmware revisions.
const (
	OpSetDuty         = 0x00
	OpSetCurrent      = 0x01
	OpSetCurrentBrake = 0x02
	OpSetRPM          = 0x03
	OpSetPosition     = 0x04
	OpSetHandbrake    = 0x05
	OpGetValues       = 0x27
	OpGetFirmware     = 0x32
	OpAlive           = 0x3A
)

// Scale factors between physical units and the integer wire representation.
const (
	ScaleDuty     = 100000.0
	ScaleCurrent  = 1000.0
	ScaleRPM      = 1.0
	ScalePosition = 1000000.0
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLengthHi
	stateLengthLo
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)

// Fault codes reported in GetValues replies.
type Fault uint8

// Fault code values
const (
	FaultNone Fault = iota
	FaultOverVoltage
	FaultUnderVoltage
	FaultDRV
	FaultAbsOverCurrent
	FaultOverTempFET
	FaultOverTempMotor
)

// String returns the firmware name of the fault.
func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "NONE"
	case FaultOverVoltage:
		return "OVER_VOLTAGE"
	case FaultUnderVoltage:
		return "UNDER_VOLTAGE"
	case FaultDRV:
		return "DRV"
	case FaultAbsOverCurrent:
		return "ABS_OVER_CURRENT"
	case FaultOverTempFET:
		return "OVER_TEMP_FET"
	case FaultOverTempMotor:
		return "OVER_TEMP_MOTOR"
	default:
		return "UNKNOWN"
	}
}
