// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motor

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/Thermoquad/vescmotor/pkg/vesc"
)

// Config holds the controller settings. Durations are in seconds.
type Config struct {
	Port             string               `toml:"port" yaml:"port" env:"VESC_PORT"`
	Baudrate         int                  `toml:"baudrate" yaml:"baudrate" env:"VESC_BAUDRATE"`
	Timeout          float64              `toml:"timeout" yaml:"timeout" env:"VESC_TIMEOUT"`
	DutyCycleFormat  vesc.DutyCycleFormat `toml:"duty_cycle_format" yaml:"duty_cycle_format" env:"VESC_DUTY_CYCLE_FORMAT"`
	RampUpEnabled    bool                 `toml:"ramp_up_enabled" yaml:"ramp_up_enabled" env:"VESC_RAMP_UP_ENABLED"`
	RampUpRate       float64              `toml:"ramp_up_rate" yaml:"ramp_up_rate" env:"VESC_RAMP_UP_RATE"`
	CommandInterval  float64              `toml:"command_interval" yaml:"command_interval" env:"VESC_COMMAND_INTERVAL"`
	Checksum         string               `toml:"checksum" yaml:"checksum" env:"VESC_CHECKSUM"`
	TicksPerRotation float64              `toml:"ticks_per_rotation" yaml:"ticks_per_rotation" env:"VESC_TICKS_PER_ROTATION"`
	Debug            bool                 `toml:"debug" yaml:"debug" env:"VESC_DEBUG"`
}

// Default settings
const (
	DefaultPort             = "/dev/ttyACM0"
	DefaultBaudrate         = 115200
	DefaultTimeout          = 1.0
	DefaultRampUpRate       = 0.1
	DefaultCommandInterval  = 0.01
	DefaultTicksPerRotation = 42
)

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		Port:             DefaultPort,
		Baudrate:         DefaultBaudrate,
		Timeout:          DefaultTimeout,
		DutyCycleFormat:  vesc.DutyInt,
		RampUpEnabled:    true,
		RampUpRate:       DefaultRampUpRate,
		CommandInterval:  DefaultCommandInterval,
		Checksum:         vesc.ChecksumCCITTFalse.String(),
		TicksPerRotation: DefaultTicksPerRotation,
	}
}

// LoadConfig reads path over the defaults, applies VESC_* environment
// overrides and validates the result. An empty path skips the file.
// The file format is chosen by extension: .toml, .yaml or .yml.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "unable to read config file %s", path)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if _, err := toml.Decode(string(data), &cfg); err != nil {
				return cfg, errors.Wrapf(err, "unable to parse %s", path)
			}
		case ".yaml", ".yml":
			if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
				return cfg, errors.Wrapf(err, "unable to parse %s", path)
			}
		default:
			return cfg, errors.Errorf("unsupported config format %q", filepath.Ext(path))
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "unable to apply environment overrides")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every field and returns a *ConfigError for the first
// invalid one.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Port) == "":
		return &ConfigError{Field: "port", Reason: "must not be empty"}
	case c.Baudrate <= 0:
		return &ConfigError{Field: "baudrate", Reason: "must be positive"}
	case !positive(c.Timeout):
		return &ConfigError{Field: "timeout", Reason: "must be positive"}
	case !positive(c.RampUpRate):
		return &ConfigError{Field: "ramp_up_rate", Reason: "must be positive"}
	case !positive(c.CommandInterval):
		return &ConfigError{Field: "command_interval", Reason: "must be positive"}
	case !positive(c.TicksPerRotation):
		return &ConfigError{Field: "ticks_per_rotation", Reason: "must be positive"}
	case c.TimeoutDuration() <= 0:
		return &ConfigError{Field: "timeout", Reason: "must be at least 1ns"}
	case c.CommandIntervalDuration() <= 0:
		return &ConfigError{Field: "command_interval", Reason: "must be at least 1ns"}
	}
	if _, err := vesc.ParseDutyCycleFormat(string(c.DutyCycleFormat)); err != nil {
		return &ConfigError{Field: "duty_cycle_format", Reason: err.Error()}
	}
	if _, err := vesc.ParseChecksum(c.Checksum); err != nil {
		return &ConfigError{Field: "checksum", Reason: err.Error()}
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c Config) TimeoutDuration() time.Duration {
	return seconds(c.Timeout)
}

// CommandIntervalDuration returns CommandInterval as a time.Duration.
func (c Config) CommandIntervalDuration() time.Duration {
	return seconds(c.CommandInterval)
}

// ChecksumVariant returns the parsed checksum. Validate first.
func (c Config) ChecksumVariant() vesc.Checksum {
	sum, _ := vesc.ParseChecksum(c.Checksum)
	return sum
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
