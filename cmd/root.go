// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/meterstat/internal/config"
	"github.com/Thermoquad/meterstat/internal/logging"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// TCP connection flags
	tcpHost string
	tcpPort string

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Meter and framing flags
	meterAddress int
	timeout      time.Duration
	frameGap     time.Duration

	// Ambient flags
	configPath string
	logLevel   string
	logFormat  string

	// Resolved in PersistentPreRunE
	settings config.Config
	logger   = logging.Discard()
)

// ExitError carries a process exit code out of a command
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit code for err: 0 for nil, the carried code for
// an ExitError, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

var rootCmd = &cobra.Command{
	Use:   "meterstat",
	Short: "Mercury 236 Electricity Meter Client",
	Long: `Meterstat - A CLI tool for reading Mercury 236 three-phase electricity meters.

Talks the Mercury request/response protocol over RS485, either directly or
through a TCP or WebSocket converter. The meter channel is opened on demand:
when the meter reports that its channel needs setup, meterstat opens it with
the configured password and retries the request once.

Connection modes:
  TCP:       --host 192.168.1.50 --tcp-port 4196
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]

Settings can also come from a TOML file (--config). Flags override the file.

The meter password is read from the config file or the METERSTAT_METER_PASSWORD
environment variable. For WebSocket authentication, the password is read from
METERSTAT_WS_PASSWORD, or prompted interactively if not set. Password flags
are intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
}

func init() {
	flags := rootCmd.PersistentFlags()

	// Serial connection flags
	flags.StringVarP(&portName, "port", "p", "", "Serial port device")
	flags.IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")

	// TCP connection flags
	flags.StringVar(&tcpHost, "host", "", "TCP converter host")
	flags.StringVar(&tcpPort, "tcp-port", "4196", "TCP converter port")

	// WebSocket connection flags
	flags.StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	flags.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	flags.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Meter and framing flags
	flags.IntVarP(&meterAddress, "address", "a", 0, "Meter address (0 addresses any meter)")
	flags.DurationVar(&timeout, "timeout", time.Second, "Wait for the first response byte")
	flags.DurationVar(&frameGap, "frame-gap", 50*time.Millisecond, "Silence that ends a response")

	// Ambient flags
	flags.StringVarP(&configPath, "config", "c", "", "TOML config file")
	flags.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "console", "Log format (console, json)")
}

// loadSettings merges defaults, the config file, the environment and the
// flags the user set explicitly.
func loadSettings(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		settings, err = config.Load(configPath)
		if err != nil {
			return err
		}
	} else {
		settings = config.Default()
		settings.ApplyEnv()
	}

	flags := cmd.Flags()
	if flags.Changed("address") {
		settings.Meter.Address = meterAddress
	}
	if flags.Changed("timeout") {
		settings.Transport.Timeout = config.Duration(timeout)
	}
	if flags.Changed("frame-gap") {
		settings.Transport.FrameGap = config.Duration(frameGap)
	}
	if flags.Changed("baud") {
		settings.Transport.Baud = baudRate
	}
	if flags.Changed("username") {
		settings.Transport.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		settings.Transport.Insecure = wsNoSSLVerify
	}

	// An explicit endpoint flag picks the transport kind
	switch {
	case wsURL != "":
		settings.Transport.Kind = config.KindWebSocket
		settings.Transport.URL = wsURL
	case portName != "":
		settings.Transport.Kind = config.KindSerial
		settings.Transport.Device = portName
	case tcpHost != "":
		settings.Transport.Kind = config.KindTCP
		settings.Transport.Host = tcpHost
		settings.Transport.Port = tcpPort
	case flags.Changed("tcp-port") && settings.Transport.Kind == config.KindTCP:
		settings.Transport.Port = tcpPort
	}

	if err := settings.Validate(); err != nil {
		return err
	}

	logger, err = logging.New(logging.Options{
		Level:  logLevel,
		Format: logFormat,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	logger.Debug("settings loaded",
		"config", configPath,
		"transport", settings.Transport.Kind,
		"address", settings.Meter.Address)
	return nil
}

// Execute runs the root command. Cancelling ctx aborts the exchange in flight.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
