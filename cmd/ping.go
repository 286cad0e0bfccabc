// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	pingCount    int
	pingInterval float64
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the connection with Alive requests",
	Long: `Send Alive requests to the VESC and wait for each reply.

Exit codes:
  0 - All pings answered
  1 - One or more pings failed or timed out
  2 - Connection error

Useful for testing a serial link or a WebSocket bridge.`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().Float64Var(&pingInterval, "wait", 1, "Seconds between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	ctrl, connInfo, err := openController(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("vescmotor - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %v per ping\n", ctrl.Config().TimeoutDuration())
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	var total time.Duration
	for i := 1; i <= pingCount && ctx.Err() == nil; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)
		rtt, _, err := ctrl.Ping(ctx)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
		} else {
			fmt.Printf("reply in %v\n", rtt.Round(time.Microsecond))
			successCount++
			total += rtt
		}

		if i < pingCount {
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(pingInterval * float64(time.Second))):
			}
		}
	}

	fmt.Printf("\n%d/%d answered", successCount, pingCount)
	if successCount > 0 {
		fmt.Printf(", average %v", (total / time.Duration(successCount)).Round(time.Microsecond))
	}
	fmt.Println()
	fmt.Print(ctrl.Transport().Statistics().String())

	ctrl.Close()
	if successCount < pingCount {
		os.Exit(1)
	}
	return nil
}
