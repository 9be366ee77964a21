// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/meterstat/internal/record"
	"github.com/Thermoquad/meterstat/pkg/mercury"
)

var replayFormat string

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Print snapshots from a CBOR recording",
	Long: `Read a CBOR sequence written by 'poll --format cbor' and print each
snapshot. Use '-' to read from stdin.

  meterstat --host 192.168.1.50 poll -f cbor > readings.cbor
  meterstat replay readings.cbor -f json`,
	Args: cobra.ExactArgs(1),
	// No meter connection is needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "Output format (text, json)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	format, err := record.ParseFormat(replayFormat)
	if err != nil {
		return err
	}

	in := cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	d := record.NewDecoder(in)
	w := record.NewWriter(cmd.OutOrStdout(), format)

	for n := 1; ; n++ {
		var s mercury.Snapshot
		err := d.Decode(&s)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}
		if err := w.Write(s); err != nil {
			return err
		}
	}
}
