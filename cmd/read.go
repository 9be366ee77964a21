// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/meterstat/internal/record"
	"github.com/Thermoquad/meterstat/pkg/mercury"
)

var (
	readPeriod string
	readMonth  int
	readTariff int
	readFormat string
)

var readCmd = &cobra.Command{
	Use:   "read <quantity>",
	Short: "Read one quantity from the meter",
	Long: `Open the meter channel, read one quantity and close the channel.

Quantities:
  voltage    Phase voltages (V)
  current    Phase currents (A)
  cosf       Power factor per phase and total
  angle      Angles between phase voltages (degrees)
  frequency  Grid frequency (Hz)
  power      Active power per phase and total (W)
  reactive   Reactive power per phase and total (var)
  energy     Energy registers (kWh, kvarh), see --period and --tariff
  time       Meter clock
  all        Raw dump of the instantaneous values (hex)
  snapshot   Every instantaneous value plus total energy

Energy periods:
  total, year, last-year, month (with --month), current-month, last-month,
  today, yesterday`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: readQuantities,
	RunE:      runRead,
}

var readQuantities = []string{
	"voltage", "current", "cosf", "angle", "frequency", "power", "reactive",
	"energy", "time", "all", "snapshot",
}

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().StringVar(&readPeriod, "period", "total", "Energy period")
	readCmd.Flags().IntVar(&readMonth, "month", 0, "Month 1-12 for --period month")
	readCmd.Flags().IntVar(&readTariff, "tariff", 0, "Tariff 1-4, 0 for the sum")
	readCmd.Flags().StringVarP(&readFormat, "format", "f", "text", "Output format (text, json, cbor)")
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, err := record.ParseFormat(readFormat)
	if err != nil {
		return err
	}
	if readTariff < 0 || readTariff > int(mercury.Tariff4) {
		return fmt.Errorf("tariff %d out of range 0-4", readTariff)
	}

	quantity := strings.ToLower(args[0])
	reader, err := quantityReader(quantity)
	if err != nil {
		return err
	}

	session, t, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer t.Close()

	w := record.NewWriter(cmd.OutOrStdout(), format)
	return withChannel(ctx, session, func() error {
		v, err := reader(ctx, session)
		if err != nil {
			return fmt.Errorf("read %s: %w", quantity, err)
		}
		return w.Write(v)
	})
}

type readFunc func(ctx context.Context, s *mercury.Session) (any, error)

func quantityReader(quantity string) (readFunc, error) {
	switch quantity {
	case "voltage":
		return func(ctx context.Context, s *mercury.Session) (any, error) { return s.Voltage(ctx) }, nil
	case "current":
		return func(ctx context.Context, s *mercury.Session) (any, error) { return s.Current(ctx) }, nil
	case "cosf":
		return func(ctx context.Context, s *mercury.Session) (any, error) { return s.CosF(ctx) }, nil
	case "angle":
		return func(ctx context.Context, s *mercury.Session) (any, error) { return s.Angle(ctx) }, nil
	case "frequency":
		return func(ctx context.Context, s *mercury.Session) (any, error) { return s.Frequency(ctx) }, nil
	case "power":
		return func(ctx context.Context, s *mercury.Session) (any, error) { return s.Power(ctx) }, nil
	case "reactive":
		return func(ctx context.Context, s *mercury.Session) (any, error) { return s.ReactivePower(ctx) }, nil
	case "time":
		return func(ctx context.Context, s *mercury.Session) (any, error) { return s.Time(ctx) }, nil
	case "all":
		return func(ctx context.Context, s *mercury.Session) (any, error) {
			dump, err := s.All(ctx)
			if err != nil {
				return nil, err
			}
			return mercury.FormatFrame(dump), nil
		}, nil
	case "snapshot":
		return func(ctx context.Context, s *mercury.Session) (any, error) { return s.ReadSnapshot(ctx) }, nil
	case "energy":
		period, month, err := parsePeriod(readPeriod, readMonth)
		if err != nil {
			return nil, err
		}
		tariff := mercury.Tariff(readTariff)
		return func(ctx context.Context, s *mercury.Session) (any, error) {
			switch period {
			case periodCurrentMonth:
				return s.CurrentMonthEnergy(ctx, tariff)
			case periodLastMonth:
				return s.LastMonthEnergy(ctx, tariff)
			default:
				return s.Energy(ctx, mercury.Period(period), month, tariff)
			}
		}, nil
	default:
		return nil, fmt.Errorf("unknown quantity %q (use one of %s)", quantity, strings.Join(readQuantities, ", "))
	}
}

// Period choices resolved against the meter clock at read time
const (
	periodCurrentMonth = 0x10 + iota
	periodLastMonth
)

// parsePeriod maps a --period value to a meter period code and month
func parsePeriod(name string, month int) (int, int, error) {
	switch strings.ToLower(name) {
	case "total", "":
		return int(mercury.PeriodSinceReset), 0, nil
	case "year":
		return int(mercury.PeriodYear), 0, nil
	case "last-year":
		return int(mercury.PeriodLastYear), 0, nil
	case "today":
		return int(mercury.PeriodToday), 0, nil
	case "yesterday":
		return int(mercury.PeriodYesterday), 0, nil
	case "month":
		if month < 1 || month > 12 {
			return 0, 0, fmt.Errorf("--period month needs --month 1-12")
		}
		return int(mercury.PeriodMonth), month, nil
	case "current-month":
		return periodCurrentMonth, 0, nil
	case "last-month":
		return periodLastMonth, 0, nil
	default:
		return 0, 0, fmt.Errorf("unknown period %q", name)
	}
}
