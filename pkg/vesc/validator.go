// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"fmt"
	"math"
)

// AnomalyType represents different types of telemetry anomalies
type AnomalyType int

const (
	AnomalyVoltage AnomalyType = iota
	AnomalyTemperature
	AnomalyDutyRange
	AnomalyFault
)

// Telemetry plausibility limits
const (
	minVoltage     = 0.0
	maxVoltage     = 100.0
	minTemperature = -40.0
	maxTempFET     = 110.0
	maxTempMotor   = 130.0
)

// ValidationError represents a telemetry validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateValues checks a snapshot for implausible readings and reported faults.
// Returns a slice of validation errors (empty if the snapshot looks sane)
func ValidateValues(v Values) []ValidationError {
	errors := []ValidationError{}

	if v.Voltage < minVoltage || v.Voltage > maxVoltage {
		errors = append(errors, ValidationError{
			Type:    AnomalyVoltage,
			Message: fmt.Sprintf("Input voltage out of range (%.1fV, valid: %.0f to %.0fV)", v.Voltage, minVoltage, maxVoltage),
			Details: map[string]interface{}{"value": v.Voltage, "min": minVoltage, "max": maxVoltage},
		})
	}

	if v.TempFET < minTemperature || v.TempFET > maxTempFET {
		errors = append(errors, ValidationError{
			Type:    AnomalyTemperature,
			Message: fmt.Sprintf("FET temperature out of range (%.1f°C, valid: %.0f to %.0f°C)", v.TempFET, minTemperature, maxTempFET),
			Details: map[string]interface{}{"sensor": "fet", "value": v.TempFET, "max": maxTempFET},
		})
	}

	if v.TempMotor < minTemperature || v.TempMotor > maxTempMotor {
		errors = append(errors, ValidationError{
			Type:    AnomalyTemperature,
			Message: fmt.Sprintf("Motor temperature out of range (%.1f°C, valid: %.0f to %.0f°C)", v.TempMotor, minTemperature, maxTempMotor),
			Details: map[string]interface{}{"sensor": "motor", "value": v.TempMotor, "max": maxTempMotor},
		})
	}

	if math.Abs(v.DutyCycle) > 1.0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyDutyRange,
			Message: fmt.Sprintf("Duty cycle out of range (%.3f, valid: -1 to 1)", v.DutyCycle),
			Details: map[string]interface{}{"value": v.DutyCycle},
		})
	}

	if v.Fault != FaultNone {
		errors = append(errors, ValidationError{
			Type:    AnomalyFault,
			Message: fmt.Sprintf("Controller fault %s (0x%02X)", v.Fault, uint8(v.Fault)),
			Details: map[string]interface{}{"fault": uint8(v.Fault)},
		})
	}

	return errors
}
