// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/meterstat/pkg/mercury"
)

var (
	rawCommand string
	rawParams  string
	rawOpen    bool
)

var rawCmd = &cobra.Command{
	Use:   "raw",
	Short: "Send an arbitrary command and dump the response",
	Long: `Send one command with optional parameter bytes and print the request and
the validated response payload in hex.

Bytes accept decimal or 0x-prefixed hex, separated by commas or spaces:
  meterstat raw --command 0x08 --params 0x16,0x11

The usual channel recovery applies: if the meter asks for channel setup it is
opened and the command retried once.`,
	Args: cobra.NoArgs,
	RunE: runRaw,
}

func init() {
	rootCmd.AddCommand(rawCmd)
	rawCmd.Flags().StringVar(&rawCommand, "command", "0x00", "Command byte")
	rawCmd.Flags().StringVar(&rawParams, "params", "", "Parameter bytes")
	rawCmd.Flags().BoolVar(&rawOpen, "open", false, "Open the channel before sending")
}

func runRaw(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	command, err := parseByte(rawCommand)
	if err != nil {
		return fmt.Errorf("--command: %w", err)
	}
	params, err := parseByteList(rawParams)
	if err != nil {
		return fmt.Errorf("--params: %w", err)
	}

	session, t, info, err := connect(ctx)
	if err != nil {
		return err
	}
	defer t.Close()

	if rawOpen {
		if ok, err := session.OpenChannel(ctx); err != nil || !ok {
			return fmt.Errorf("open channel: ok=%v err=%v", ok, err)
		}
	}

	request := mercury.BuildFrame(session.Address(), command, params...)
	fmt.Fprintf(out, "Connection: %s\n", info)
	fmt.Fprintf(out, "Request:  %s  %s\n", mercury.FormatFrame(request), mercury.FormatCommand(command, params))

	payload, err := session.Exchange(ctx, session.Address(), command, params...)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Payload:  %s  (%d bytes)\n", mercury.FormatFrame(payload), len(payload))
	return nil
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q", s)
	}
	return byte(v), nil
}

// parseByteList parses "0x16,0x11" or "22 17" into bytes
func parseByteList(s string) ([]byte, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		b, err := parseByte(f)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
