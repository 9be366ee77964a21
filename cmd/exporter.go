// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/meterstat/internal/config"
	"github.com/Thermoquad/meterstat/internal/metrics"
	"github.com/Thermoquad/meterstat/pkg/mercury"
)

var (
	exporterListen   string
	exporterInterval time.Duration
)

var exporterCmd = &cobra.Command{
	Use:   "exporter",
	Short: "Serve meter readings as Prometheus metrics",
	Long: `Poll the meter in the background and serve the latest snapshot on /metrics.

Gauges keep their last value when a poll fails; mercury_polls_total and
mercury_last_success_timestamp_seconds show whether the data is fresh.`,
	Args: cobra.NoArgs,
	RunE: runExporter,
}

func init() {
	rootCmd.AddCommand(exporterCmd)
	exporterCmd.Flags().StringVarP(&exporterListen, "listen", "l", ":9236", "HTTP listen address")
	exporterCmd.Flags().DurationVar(&exporterInterval, "interval", 15*time.Second, "Time between polls")
}

func runExporter(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if cmd.Flags().Changed("listen") {
		settings.Exporter.Listen = exporterListen
	}
	if cmd.Flags().Changed("interval") {
		settings.Exporter.Interval = config.Duration(exporterInterval)
	}

	reg := metrics.NewRegistry()
	meterMetrics := metrics.NewMeterMetrics(reg, byte(settings.Meter.Address))

	session, t, info, err := connect(ctx, meterMetrics)
	if err != nil {
		return err
	}
	defer t.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	server := &http.Server{
		Addr:              settings.Exporter.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go pollMetrics(ctx, session, meterMetrics, settings.Exporter.Interval.Std())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("exporter listening", "listen", settings.Exporter.Listen, "connection", info)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// pollMetrics refreshes m from the meter until ctx is cancelled
func pollMetrics(ctx context.Context, session *mercury.Session, m *metrics.MeterMetrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snapshot, err := session.ReadSnapshot(ctx)
		if ctx.Err() != nil {
			return
		}
		m.ObservePoll(err)
		if err != nil {
			logger.Warn("poll failed", "error", err)
		} else {
			m.SetSnapshot(snapshot)
			logger.Debug("poll complete", "power", snapshot.Power.Sum)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
