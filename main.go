// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// vescmotor - VESC motor controller driver
//
// A CLI tool for driving a VESC motor controller and monitoring its
// telemetry over the VESC serial protocol.

package main

import (
	"os"

	"github.com/Thermoquad/vescmotor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
