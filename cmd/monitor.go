// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/meterstat/internal/stats"
	"github.com/Thermoquad/meterstat/pkg/mercury"
)

var (
	monitorInterval time.Duration
	monitorShowAll  bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live dashboard of meter readings and link health",
	Long: `Poll the meter continuously and show the latest values per phase together
with exchange statistics in a terminal UI.

The event log lists failed exchanges and channel re-initializations. Use
--show-all to log every exchange.

Press 'q' to quit.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 2*time.Second, "Time between snapshots")
	monitorCmd.Flags().BoolVar(&monitorShowAll, "show-all", false, "Log every exchange (not just errors)")
}

// programObserver forwards exchange events to the TUI
type programObserver struct {
	p *tea.Program
}

func (o programObserver) ObserveExchange(ev mercury.ExchangeEvent) {
	o.p.Send(exchangeMsg(ev))
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	t, info, err := OpenTransport(ctx, settings)
	if err != nil {
		return &ExitError{Code: 2, Err: fmt.Errorf("connection error: %w", err)}
	}
	defer t.Close()

	statistics := stats.NewStatistics()
	m := newMonitorModel(info, byte(settings.Meter.Address), monitorInterval, monitorShowAll, statistics)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	session, err := NewSession(t, settings, statistics, programObserver{p})
	if err != nil {
		return err
	}

	go monitorLoop(ctx, p, session, monitorInterval)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// monitorLoop reads snapshots and hands them to the TUI until ctx ends
func monitorLoop(ctx context.Context, p *tea.Program, session *mercury.Session, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.Send(pollStartMsg{})
		snapshot, err := session.ReadSnapshot(ctx)
		if ctx.Err() != nil {
			return
		}
		p.Send(snapshotMsg{snapshot: snapshot, err: err})

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
