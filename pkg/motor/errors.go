// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motor

import "fmt"

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// UnsupportedCommandError is returned by DoCommand for an unknown command kind.
type UnsupportedCommandError struct {
	Command string
}

// Error implements the error interface
func (e *UnsupportedCommandError) Error() string {
	if e.Command == "" {
		return "missing command value"
	}
	return fmt.Sprintf("unsupported command: %s", e.Command)
}

// InvalidArgumentError is returned when a command argument is missing or has
// the wrong type or range.
type InvalidArgumentError struct {
	Command  string
	Argument string
	Reason   string
}

// Error implements the error interface
func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Command, e.Argument, e.Reason)
}
