// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// TCP talks to a meter behind a TCP-to-RS485 converter. It connects on
// first use and drops the connection after any failure, so the next Send
// dials again.
type TCP struct {
	address string
	opts    Options
	dialer  net.Dialer

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// NewTCP creates a TCP transport for host:port. No connection is made yet.
func NewTCP(address string, opts Options) *TCP {
	return &TCP{
		address: address,
		opts:    opts.withDefaults(),
		dialer:  net.Dialer{Timeout: DefaultDialTimeout},
	}
}

// Send writes frame and waits for the response
func (t *TCP) Send(ctx context.Context, frame []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrConnectionClosed
	}

	conn, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := conn.Write(frame); err != nil {
		t.drop()
		return nil, fmt.Errorf("write: %w", err)
	}

	resp, err := readFrame(ctx, tcpReader{conn}, t.opts)
	if err != nil {
		t.drop()
		return nil, err
	}
	return resp, nil
}

func (t *TCP) connect(ctx context.Context) (net.Conn, error) {
	if t.conn != nil {
		return t.conn, nil
	}
	conn, err := t.dialer.DialContext(ctx, "tcp", t.address)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", t.address, err)
	}
	t.conn = conn
	return conn, nil
}

func (t *TCP) drop() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}

// Close closes the connection; further sends fail
func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.drop()
	return nil
}

// String describes the transport
func (t *TCP) String() string {
	return fmt.Sprintf("TCP: %s", t.address)
}

type tcpReader struct {
	conn net.Conn
}

func (r tcpReader) readTimeout(p []byte, d time.Duration) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		return 0, err
	}
	n, err := r.conn.Read(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}
	return n, err
}
