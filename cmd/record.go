// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/vescmotor/pkg/telemetry"
	"github.com/Thermoquad/vescmotor/pkg/vesc"
)

var (
	recordInterval float64
	replayJSON     bool
)

var recordCmd = &cobra.Command{
	Use:   "record <file>",
	Short: "Record telemetry snapshots to a CBOR file",
	Long: `Poll telemetry every --every seconds and append each timestamped
snapshot to the file as a CBOR item. Runs until Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecord,
}

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Print telemetry recorded by the record command",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	rootCmd.AddCommand(recordCmd, replayCmd)
	recordCmd.Flags().Float64Var(&recordInterval, "every", 0.5, "Seconds between snapshots")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Print one JSON object per snapshot")
}

func runRecord(cmd *cobra.Command, args []string) error {
	f, err := os.OpenFile(args[0], os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	ctrl, connInfo, err := openController(cmd)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	fmt.Printf("Recording %s to %s, press Ctrl+C to stop\n", connInfo, args[0])
	rec := telemetry.NewRecorder(w)
	if err := rec.Record(ctx, ctrl, time.Duration(recordInterval*float64(time.Second)), log.StandardLogger()); err != nil {
		return err
	}
	fmt.Printf("\n%d snapshots recorded\n", rec.Count())
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	rd := telemetry.NewReader(bufio.NewReader(f))
	stats := vesc.NewStatistics()
	for {
		s, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		anomalies := vesc.ValidateValues(s.Values)
		stats.Update(&vesc.Frame{Timestamp: s.Time}, nil, anomalies)
		if replayJSON {
			if err := printJSON(s); err != nil {
				return err
			}
			continue
		}
		fmt.Printf("[%s]\n", s.Time.Local().Format("2006-01-02 15:04:05.000"))
		fmt.Print(vesc.FormatValues(s.Values))
		for _, a := range anomalies {
			fmt.Printf("  WARNING: %s\n", a.Message)
		}
		fmt.Println()
	}

	if !replayJSON {
		fmt.Printf("%d snapshots, %d anomalies\n", stats.TotalFrames, stats.AnomalousValues)
	}
	return nil
}
