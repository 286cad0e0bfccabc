// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/vescmotor/pkg/link"
	"github.com/Thermoquad/vescmotor/pkg/vesc"
)

var (
	errorsOnly    bool
	statsInterval int
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display VESC frames on the link in human-readable format",
	Long: `Passively decode and display VESC frames as they arrive.

Each frame is shown with timestamp, command name and decoded parameters.
GetValues replies are checked for implausible telemetry, and checksum or
framing errors are reported once the decoder has synchronized.

Statistics are printed every --stats-interval seconds (0 disables them).

Supports serial and WebSocket connections.`,
	Args: cobra.NoArgs,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&errorsOnly, "errors-only", false, "Only show errors and anomalies")
	rawLogCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics interval in seconds")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conn, connInfo, err := OpenConnection(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	fmt.Printf("vescmotor - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := vesc.NewDecoder(cfg.ChecksumVariant())
	stats := vesc.NewStatistics()
	synchronized := false
	buf := make([]byte, 256)

	var statsTick <-chan time.Time
	if statsInterval > 0 {
		ticker := time.NewTicker(time.Duration(statsInterval) * time.Second)
		defer ticker.Stop()
		statsTick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			fmt.Print(stats.String())
			return nil
		case <-statsTick:
			stats.CalculateRates()
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		default:
		}

		n, err := conn.Read(buf)
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if errors.Is(err, link.ErrConnectionClosed) {
				log.Info("connection closed")
				return nil
			}
			log.WithField("err", err).Warn("read error")
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for i := 0; i < n; i++ {
			frame, decodeErr := decoder.DecodeByte(buf[i])
			if decodeErr != nil {
				if synchronized {
					stats.Update(nil, decodeErr, nil)
					printDecodeError(decodeErr)
				}
				continue
			}
			if frame == nil {
				continue
			}
			if !synchronized {
				synchronized = true
				if skipped := decoder.Skipped(); skipped > 0 {
					fmt.Printf("[SYNC] Synchronized after skipping %d bytes\n\n", skipped)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			}

			validationErrors, valuesErr := inspectFrame(frame)
			if valuesErr != nil {
				stats.Update(nil, valuesErr, nil)
				printDecodeError(valuesErr)
				continue
			}
			stats.Update(frame, nil, validationErrors)
			if len(validationErrors) > 0 {
				printValidationErrors(frame, validationErrors)
			} else if !errorsOnly {
				fmt.Print(vesc.FormatFrame(frame))
			}
		}
	}
}

// inspectFrame validates GetValues replies. Requests and other frames pass.
func inspectFrame(frame *vesc.Frame) ([]vesc.ValidationError, error) {
	if frame.Opcode() != vesc.OpGetValues || len(frame.Payload) == 1 {
		return nil, nil
	}
	v, err := vesc.DecodeValues(frame.Payload)
	if err != nil {
		return nil, err
	}
	return vesc.ValidateValues(v), nil
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> FRAME DISCARDED <<<\n\n")
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(frame *vesc.Frame, errs []vesc.ValidationError) {
	timestamp := frame.Timestamp.Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n",
		timestamp, vesc.FormatOpcode(frame.Opcode()), frame.Opcode())
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, err := range errs {
		switch err.Type {
		case vesc.AnomalyFault:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
		case vesc.AnomalyVoltage, vesc.AnomalyTemperature, vesc.AnomalyDutyRange:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}
	fmt.Println()
}
