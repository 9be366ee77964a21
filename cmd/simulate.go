// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/meterstat/internal/simulator"
)

var (
	simulateListen   string
	simulateAddress  int
	simulateOpen     bool
	simulatePassword string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated meter behind a TCP listener",
	Long: `Serve a software Mercury 236 meter over TCP, the way a TCP-to-RS485
converter would expose a real one. Useful for trying the other commands
without hardware:

  meterstat simulate --listen 127.0.0.1:4196 --meter 154 &
  meterstat --host 127.0.0.1 --address 154 read voltage

The channel starts closed so the first request exercises channel setup.`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVarP(&simulateListen, "listen", "l", ":4196", "TCP listen address")
	simulateCmd.Flags().IntVar(&simulateAddress, "meter", 154, "Simulated meter address")
	simulateCmd.Flags().BoolVar(&simulateOpen, "open", false, "Start with the channel already open")
	simulateCmd.Flags().StringVar(&simulatePassword, "meter-password", "111111", "Password the simulated meter accepts")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simulateAddress < 1 || simulateAddress > 0xFE {
		return fmt.Errorf("--meter %d out of range 1-254", simulateAddress)
	}

	opts := []simulator.Option{simulator.WithPassword(simulatePassword)}
	if simulateOpen {
		opts = append(opts, simulator.WithChannelOpen())
	}
	meter := simulator.New(byte(simulateAddress), opts...)

	ln, err := net.Listen("tcp", simulateListen)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Simulated meter %d listening on %s\n", meter.Address(), ln.Addr())
	return meter.Serve(cmd.Context(), ln, logger)
}
