// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package simulator

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/Thermoquad/meterstat/pkg/mercury"
)

// Serve answers requests arriving on ln until ctx is cancelled. Each read
// from a connection is treated as one request frame, which matches how
// TCP-to-RS485 converters forward whole frames.
func (m *Meter) Serve(ctx context.Context, ln net.Listener, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		logger.Info("client connected", "remote", conn.RemoteAddr().String())
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.serveConn(ctx, conn, logger)
		}()
	}
}

func (m *Meter) serveConn(ctx context.Context, conn net.Conn, logger *slog.Logger) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	buf := make([]byte, mercury.MaxResponseLength)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			logger.Info("client disconnected", "remote", conn.RemoteAddr().String())
			return
		}

		request := append([]byte(nil), buf[:n]...)
		resp, err := m.Handle(request)
		if errors.Is(err, ErrNoResponse) {
			logger.Debug("request ignored", "frame", mercury.FormatFrame(request))
			continue
		}

		logger.Debug("request answered",
			"request", mercury.FormatFrame(request),
			"response", mercury.FormatFrame(resp))

		if _, err := conn.Write(resp); err != nil {
			logger.Warn("write failed", "error", err)
			return
		}
	}
}
