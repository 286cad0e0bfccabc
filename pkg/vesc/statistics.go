// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates for a passively
// monitored stream. It is not safe for concurrent use.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	CRCErrors       uint64
	TerminatorError uint64
	DecodeErrors    uint64
	TruncatedValues uint64
	AnomalousValues uint64
	VoltageErrors   uint64
	TempErrors      uint64
	DutyErrors      uint64
	Faults          uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a frame and its errors
func (s *Statistics) Update(frame *Frame, decodeErr error, validationErrors []ValidationError) {
	s.TotalFrames++

	if decodeErr != nil {
		switch {
		case errors.Is(decodeErr, ErrChecksumMismatch):
			s.CRCErrors++
		case errors.Is(decodeErr, ErrBadTerminator):
			s.TerminatorError++
		case errors.Is(decodeErr, ErrPayloadTruncated):
			s.TruncatedValues++
		default:
			s.DecodeErrors++
		}
		return
	}

	if len(validationErrors) > 0 {
		for _, err := range validationErrors {
			switch err.Type {
			case AnomalyVoltage:
				s.VoltageErrors++
			case AnomalyTemperature:
				s.TempErrors++
			case AnomalyDutyRange:
				s.DutyErrors++
			case AnomalyFault:
				s.Faults++
			}
			s.AnomalousValues++
		}
	} else {
		s.ValidFrames++
	}

	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.errorCount()) / elapsed
	}
}

func (s *Statistics) errorCount() uint64 {
	return s.CRCErrors + s.TerminatorError + s.DecodeErrors + s.TruncatedValues + s.AnomalousValues
}

func (s *Statistics) percent(n uint64) float64 {
	if s.TotalFrames == 0 {
		return 0
	}
	return float64(n) * 100.0 / float64(s.TotalFrames)
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, s.percent(s.ValidFrames))

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, s.percent(s.CRCErrors))
	}
	if s.TerminatorError > 0 {
		result += fmt.Sprintf("Bad Terminator:  %8d (%.1f%%)\n", s.TerminatorError, s.percent(s.TerminatorError))
	}
	if s.TruncatedValues > 0 {
		result += fmt.Sprintf("Short Replies:   %8d (%.1f%%)\n", s.TruncatedValues, s.percent(s.TruncatedValues))
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, s.percent(s.DecodeErrors))
	}
	if s.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d\n", s.AnomalousValues)
		if s.VoltageErrors > 0 {
			result += fmt.Sprintf("  Voltage:          %5d\n", s.VoltageErrors)
		}
		if s.TempErrors > 0 {
			result += fmt.Sprintf("  Temperature:      %5d\n", s.TempErrors)
		}
		if s.DutyErrors > 0 {
			result += fmt.Sprintf("  Duty Range:       %5d\n", s.DutyErrors)
		}
		if s.Faults > 0 {
			result += fmt.Sprintf("  Faults:           %5d\n", s.Faults)
		}
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
