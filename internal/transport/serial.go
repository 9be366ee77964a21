// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// maxSerialPoll caps a single port read so cancellation is noticed promptly
const maxSerialPoll = 100 * time.Millisecond

// Serial talks to a meter through a local RS485 adapter
type Serial struct {
	name string
	baud int
	opts Options

	mu     sync.Mutex
	port   serial.Port
	closed bool
}

// OpenSerial opens a serial port at baud, 8N1
func OpenSerial(name string, baud int, opts Options) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}

	return &Serial{
		name: name,
		baud: baud,
		opts: opts.withDefaults(),
		port: port,
	}, nil
}

// Send writes frame and waits for the response
func (s *Serial) Send(ctx context.Context, frame []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrConnectionClosed
	}

	// Stale bytes from an earlier, abandoned exchange would corrupt this one
	if err := s.port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("reset input: %w", err)
	}

	if _, err := s.port.Write(frame); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	return readFrame(ctx, serialReader{ctx: ctx, port: s.port}, s.opts)
}

// Close closes the port
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}

// String describes the transport
func (s *Serial) String() string {
	return fmt.Sprintf("Serial: %s @ %d baud", s.name, s.baud)
}

type serialReader struct {
	ctx  context.Context
	port serial.Port
}

// readTimeout polls in short slices; go.bug.st/serial reports a timeout as
// a zero-length read.
func (r serialReader) readTimeout(p []byte, d time.Duration) (int, error) {
	deadline := time.Now().Add(d)
	for {
		slice := time.Until(deadline)
		if slice <= 0 {
			return 0, nil
		}
		if err := r.ctx.Err(); err != nil {
			return 0, err
		}
		if slice > maxSerialPoll {
			slice = maxSerialPoll
		}
		if err := r.port.SetReadTimeout(slice); err != nil {
			return 0, err
		}
		n, err := r.port.Read(p)
		if err != nil || n > 0 {
			return n, err
		}
	}
}
