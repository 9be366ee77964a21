// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/meterstat/internal/config"
	"github.com/Thermoquad/meterstat/internal/record"
	"github.com/Thermoquad/meterstat/internal/stats"
)

var (
	pollInterval  time.Duration
	pollFormat    string
	pollCount     int
	pollShowStats bool
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Read snapshots periodically",
	Long: `Read every instantaneous value plus total energy at a fixed interval and
write one record per snapshot.

Formats:
  text  Human-readable report
  json  One JSON object per line
  cbor  CBOR sequence, one item per snapshot

Failed snapshots are logged and polling continues. Stop with Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
	pollCmd.Flags().DurationVar(&pollInterval, "interval", 10*time.Second, "Time between snapshots")
	pollCmd.Flags().StringVarP(&pollFormat, "format", "f", "text", "Output format (text, json, cbor)")
	pollCmd.Flags().IntVarP(&pollCount, "count", "n", 0, "Stop after N snapshots (0 for no limit)")
	pollCmd.Flags().BoolVar(&pollShowStats, "stats", false, "Print exchange statistics on exit")
}

func runPoll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if cmd.Flags().Changed("interval") {
		settings.Poll.Interval = config.Duration(pollInterval)
	}
	if cmd.Flags().Changed("format") {
		settings.Poll.Format = pollFormat
	}
	format, err := record.ParseFormat(settings.Poll.Format)
	if err != nil {
		return err
	}

	statistics := stats.NewStatistics()
	session, t, info, err := connect(ctx, statistics)
	if err != nil {
		return err
	}
	defer t.Close()

	logger.Info("polling", "connection", info, "interval", settings.Poll.Interval.Std())

	w := record.NewWriter(cmd.OutOrStdout(), format)
	ticker := time.NewTicker(settings.Poll.Interval.Std())
	defer ticker.Stop()

	err = withChannel(ctx, session, func() error {
		for n := 1; ; n++ {
			snapshot, err := session.ReadSnapshot(ctx)
			switch {
			case ctx.Err() != nil:
				return nil
			case err != nil:
				logger.Warn("snapshot failed", "error", err, "kind", stats.Classify(err))
			default:
				if err := w.Write(snapshot); err != nil {
					return err
				}
			}

			if pollCount > 0 && n >= pollCount {
				return nil
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	if pollShowStats {
		fmt.Fprint(cmd.ErrOrStderr(), statistics.String())
	}
	return err
}
