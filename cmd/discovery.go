// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/meterstat/pkg/mercury"
)

var (
	discoveryFrom int
	discoveryTo   int
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Find meters on the bus by address",
	Long: `Send TEST_CHANNEL to each even address in a range and list the meters
that answer. Addresses are probed one at a time; each silent address costs
one --timeout, so lower it for wide scans.

Examples:
  meterstat --host 192.168.1.50 --timeout 200ms discovery
  meterstat --port /dev/ttyUSB0 discovery --from 100 --to 160

Exit codes:
  0 - Discovery successful (at least one meter found)
  1 - Discovery failed (no meters answered)
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryFrom, "from", 2, "First address to probe")
	discoveryCmd.Flags().IntVar(&discoveryTo, "to", 254, "Last address to probe")
}

// probeResult classifies one address
type probeResult int

const (
	probeSilent probeResult = iota
	probeFound
	probeGarbled
)

func runDiscovery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if discoveryFrom < 1 || discoveryTo > 0xFE || discoveryFrom > discoveryTo {
		return fmt.Errorf("address range %d-%d invalid (use 1-254)", discoveryFrom, discoveryTo)
	}

	session, t, info, err := connect(ctx)
	if err != nil {
		return err
	}
	defer t.Close()

	fmt.Fprintf(out, "Meterstat - Meter Discovery\n")
	fmt.Fprintf(out, "Connection: %s\n", info)
	fmt.Fprintf(out, "Range: %d-%d\n\n", discoveryFrom, discoveryTo)

	found := make([]byte, 0)
	garbled := 0

	for addr := discoveryFrom &^ 1; addr <= discoveryTo; addr += 2 {
		if addr == 0 {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		switch probe(cmd, session, byte(addr)) {
		case probeFound:
			found = append(found, byte(addr))
			fmt.Fprintf(out, "Meter found at address %d\n", addr)
		case probeGarbled:
			garbled++
			fmt.Fprintf(out, "Address %d: garbled response\n", addr)
		}
	}

	fmt.Fprintf(out, "\n--- Discovery summary ---\n")
	fmt.Fprintf(out, "Meters found: %d\n", len(found))
	if garbled > 0 {
		fmt.Fprintf(out, "Garbled responses: %d (check wiring and baud rate)\n", garbled)
	}

	if len(found) == 0 {
		return &ExitError{Code: 1, Err: errors.New("no meters discovered")}
	}
	return nil
}

func probe(cmd *cobra.Command, session *mercury.Session, address byte) probeResult {
	payload, err := session.Exchange(cmd.Context(), address, mercury.CmdTestChannel)
	var transportErr *mercury.TransportError
	switch {
	case err == nil:
		logger.Debug("probe answered", "address", address, "payload", mercury.FormatFrame(payload))
		return probeFound
	case errors.As(err, &transportErr):
		return probeSilent
	case errors.Is(err, mercury.ErrInitProblem):
		// Answered, but would not accept the channel password
		return probeFound
	default:
		logger.Debug("probe failed", "address", address, "error", err)
		return probeGarbled
	}
}
