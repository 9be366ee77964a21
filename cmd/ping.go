// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the link to the meter with TEST_CHANNEL requests",
	Long: `Send TEST_CHANNEL requests to the meter and report the round trip time.

If the meter reports that its channel needs setup, the channel is opened with
the configured password before the request is retried.

This is useful for verifying:
  - The converter or serial port is reachable
  - The meter address is correct
  - Responses pass CRC and address checks

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 100*time.Millisecond, "Delay between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	session, t, info, err := connect(ctx)
	if err != nil {
		return err
	}
	defer t.Close()

	fmt.Fprintf(out, "Meterstat - Ping Test\n")
	fmt.Fprintf(out, "Connection: %s\n", info)
	fmt.Fprintf(out, "Meter: %d\n", session.Address())
	fmt.Fprintf(out, "Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0

pings:
	for i := 1; i <= pingCount; i++ {
		fmt.Fprintf(out, "Ping %d/%d: ", i, pingCount)

		start := time.Now()
		ok, err := session.TestChannel(ctx)
		rtt := time.Since(start)

		switch {
		case err != nil:
			fmt.Fprintf(out, "FAILED: %v\n", err)
			failCount++
		case !ok:
			fmt.Fprintf(out, "REJECTED by meter, rtt=%v\n", rtt.Round(time.Millisecond))
			failCount++
		default:
			fmt.Fprintf(out, "OK from meter %d, rtt=%v\n", session.Address(), rtt.Round(time.Millisecond))
			successCount++
		}

		if i == pingCount {
			break
		}

		timer := time.NewTimer(pingInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			break pings
		case <-timer.C:
		}
	}

	sent := successCount + failCount
	fmt.Fprintf(out, "\n--- Ping statistics ---\n")
	fmt.Fprintf(out, "%d pings sent, %d responses received, %.0f%% loss\n",
		sent, successCount, lossPercent(failCount, sent))

	if failCount > 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d of %d pings failed", failCount, sent)}
	}
	return nil
}

func lossPercent(failed, sent int) float64 {
	if sent == 0 {
		return 0
	}
	return float64(failed) / float64(sent) * 100
}
