// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vescsim

import (
	"math"

	"github.com/Thermoquad/vescmotor/pkg/vesc"
)

// Simulated motor constants
const (
	maxRPM       = 30000.0
	rpmPerAmp    = 500.0
	currentPerDC = 20.0
)

// handle applies one decoded payload. Caller holds d.mu.
func (d *Device) handle(payload []byte) {
	cmd, err := vesc.DecodeCommand(payload, d.format)
	if err != nil {
		d.badFrames++
		return
	}
	d.integrate()
	d.commands = append(d.commands, cmd)

	switch c := cmd.(type) {
	case vesc.SetDuty:
		d.values.DutyCycle = c.Duty
		d.values.RPM = math.Round(c.Duty * maxRPM)
		d.values.MotorCurrent = math.Abs(c.Duty) * currentPerDC
	case vesc.SetCurrent:
		d.values.MotorCurrent = c.Amps
		d.values.RPM = math.Max(-maxRPM, math.Min(maxRPM, c.Amps*rpmPerAmp))
		d.values.DutyCycle = d.values.RPM / maxRPM
	case vesc.SetRPM:
		d.values.RPM = c.RPM
		d.values.DutyCycle = c.RPM / maxRPM
	case vesc.SetCurrentBrake, vesc.SetHandbrake:
		d.values.RPM = 0
		d.values.DutyCycle = 0
	case vesc.SetPosition:
		d.values.PIDPos = c.Degrees
		d.values.HasPIDPos = true
		d.values.RPM = 0
		d.values.DutyCycle = 0
	case vesc.GetValues:
		d.reply(vesc.EncodeValues(d.snapshot()))
	case vesc.GetFirmware:
		d.reply(vesc.EncodeFirmware(d.firmware))
	case vesc.Alive:
		d.reply([]byte{vesc.OpAlive})
	}
}

// integrate advances the tachometer by the time elapsed at the current RPM.
func (d *Device) integrate() {
	now := d.now()
	dt := now.Sub(d.last).Minutes()
	d.last = now
	if dt <= 0 {
		return
	}
	delta := d.values.RPM * dt * d.ticks
	d.tach += delta
	d.tachAbs += math.Abs(delta)
}

func (d *Device) snapshot() vesc.Values {
	v := d.values
	v.Tachometer = int32(math.Round(d.tach))
	v.TachometerAbs = int32(math.Round(d.tachAbs))
	return v
}

// reply queues a response frame, applying any injected faults.
func (d *Device) reply(payload []byte) {
	if d.silent {
		return
	}
	if d.drop > 0 {
		d.drop--
		return
	}
	frame := vesc.MustEncodeFrame(payload, d.sum)
	if d.corrupt > 0 {
		d.corrupt--
		frame[len(frame)-2] ^= 0x01
	}
	d.out = append(d.out, frame...)
}
