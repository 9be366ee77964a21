// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package transport provides mercury.Transport implementations over TCP,
// serial ports and WebSocket serial bridges.
package transport

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/Thermoquad/meterstat/pkg/mercury"
)

// Defaults for Options
const (
	DefaultTimeout     = 1 * time.Second
	DefaultFrameGap    = 50 * time.Millisecond
	DefaultDialTimeout = 5 * time.Second
)

var (
	// ErrTimeout is returned when no response byte arrives in time
	ErrTimeout = errors.New("response timeout")

	// ErrConnectionClosed is returned when using a closed transport
	ErrConnectionClosed = errors.New("connection closed")
)

// Options tune response framing
type Options struct {
	// Timeout bounds the wait for the first response byte
	Timeout time.Duration
	// FrameGap is the silence after which a response is considered complete
	FrameGap time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.FrameGap <= 0 {
		o.FrameGap = DefaultFrameGap
	}
	return o
}

// Transport is a mercury.Transport that owns a connection
type Transport interface {
	mercury.Transport
	io.Closer
}

// timedReader reads with a bound on the wait. A timeout returns 0, nil.
type timedReader interface {
	readTimeout(p []byte, d time.Duration) (int, error)
}

// readFrame collects one response from a byte stream. The frame ends when
// the line stays quiet for gap after the first byte, or at the maximum frame
// size.
func readFrame(ctx context.Context, r timedReader, opts Options) ([]byte, error) {
	buf := make([]byte, 0, mercury.MaxResponseLength)
	chunk := make([]byte, mercury.MaxResponseLength)
	deadline := time.Now().Add(opts.Timeout)

	for len(buf) < mercury.MaxResponseLength {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		wait := opts.FrameGap
		if len(buf) == 0 {
			wait = time.Until(deadline)
			if wait <= 0 {
				return nil, ErrTimeout
			}
		}

		n, err := r.readTimeout(chunk[:mercury.MaxResponseLength-len(buf)], wait)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if n == 0 {
			if len(buf) > 0 {
				return buf, nil
			}
			continue
		}
		buf = append(buf, chunk[:n]...)
	}

	return buf, nil
}
