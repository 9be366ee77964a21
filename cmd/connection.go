// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Thermoquad/meterstat/internal/config"
	"github.com/Thermoquad/meterstat/internal/transport"
	"github.com/Thermoquad/meterstat/pkg/mercury"
)

// GetPassword retrieves the WebSocket password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(config.EnvWSPassword); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenTransport opens the configured link to the meter
func OpenTransport(ctx context.Context, cfg config.Config) (transport.Transport, string, error) {
	opts := transport.Options{
		Timeout:  cfg.Transport.Timeout.Std(),
		FrameGap: cfg.Transport.FrameGap.Std(),
	}

	switch cfg.Transport.Kind {
	case config.KindWebSocket:
		password := ""
		if cfg.Transport.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		ws, err := transport.DialWebSocket(ctx, transport.WebSocketConfig{
			URL:           cfg.Transport.URL,
			Username:      cfg.Transport.Username,
			Password:      password,
			SkipSSLVerify: cfg.Transport.Insecure,
		}, opts)
		if err != nil {
			return nil, "", err
		}
		return ws, ws.String(), nil

	case config.KindSerial:
		port, err := transport.OpenSerial(cfg.Transport.Device, cfg.Transport.Baud, opts)
		if err != nil {
			return nil, "", err
		}
		return port, port.String(), nil

	default:
		if cfg.Transport.Host == "" {
			return nil, "", fmt.Errorf("either --host, --port or --url must be specified")
		}
		tcp := transport.NewTCP(cfg.Transport.TCPAddress(), opts)
		return tcp, tcp.String(), nil
	}
}

// NewSession creates a session for the configured meter
func NewSession(t mercury.Transport, cfg config.Config, observers ...mercury.Observer) (*mercury.Session, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	opts := []mercury.Option{
		mercury.WithAddress(byte(cfg.Meter.Address)),
		mercury.WithPassword(cfg.Meter.Password),
		mercury.WithLogger(logger),
		mercury.WithLocation(loc),
	}
	switch len(observers) {
	case 0:
	case 1:
		opts = append(opts, mercury.WithObserver(observers[0]))
	default:
		opts = append(opts, mercury.WithObserver(mercury.Observers(observers)))
	}

	return mercury.NewSession(t, opts...), nil
}

// connect opens the transport and a session on it. Connection failures
// carry exit code 2.
func connect(ctx context.Context, observers ...mercury.Observer) (*mercury.Session, transport.Transport, string, error) {
	t, info, err := OpenTransport(ctx, settings)
	if err != nil {
		return nil, nil, "", &ExitError{Code: 2, Err: fmt.Errorf("connection error: %w", err)}
	}

	session, err := NewSession(t, settings, observers...)
	if err != nil {
		t.Close()
		return nil, nil, "", err
	}
	return session, t, info, nil
}

// closeChannelTimeout bounds the CLOSE_CHANNEL sent on the way out
const closeChannelTimeout = 2 * time.Second

// withChannel opens the meter channel, runs fn and closes the channel again
func withChannel(ctx context.Context, session *mercury.Session, fn func() error) error {
	ok, err := session.OpenChannel(ctx)
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if !ok {
		return fmt.Errorf("open channel: meter %d rejected the password", session.Address())
	}

	fnErr := fn()

	// Close even when ctx was cancelled during fn
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeChannelTimeout)
	defer cancel()
	if _, err := session.CloseChannel(closeCtx); err != nil {
		logger.Warn("close channel failed", "error", err)
	}
	return fnErr
}
