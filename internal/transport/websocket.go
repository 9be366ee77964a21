// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig describes a WebSocket serial bridge
type WebSocketConfig struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
}

// WebSocket talks to a meter through a WebSocket-to-RS485 bridge. Bytes
// travel as binary messages; a bridge may split a response across several.
type WebSocket struct {
	url  string
	conn *websocket.Conn
	opts Options

	mu       sync.Mutex
	messages chan []byte
	done     chan struct{}
	readErr  error
	pending  []byte
	closeOne sync.Once
}

// DialWebSocket connects to a bridge with optional HTTP Basic auth
func DialWebSocket(ctx context.Context, cfg WebSocketConfig, opts Options) (*WebSocket, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if cfg.Username != "" && cfg.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	w := &WebSocket{
		url:      cfg.URL,
		conn:     conn,
		opts:     opts.withDefaults(),
		messages: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
	go w.readLoop()
	return w, nil
}

// readLoop owns the read side of the connection. gorilla/websocket does not
// survive a read deadline, so timeouts are applied on the channel instead.
func (w *WebSocket) readLoop() {
	defer close(w.done)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.readErr = err
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case w.messages <- data:
		default:
			// Nobody is listening; drop the oldest message
			select {
			case <-w.messages:
			default:
			}
			w.messages <- data
		}
	}
}

// Send writes frame as one binary message and collects the response
func (w *WebSocket) Send(ctx context.Context, frame []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.done:
		return nil, fmt.Errorf("%w: %w", ErrConnectionClosed, w.readErr)
	default:
	}

	w.drain()

	if err := w.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	return readFrame(ctx, &wsReader{w: w, ctx: ctx}, w.opts)
}

func (w *WebSocket) drain() {
	w.pending = nil
	for {
		select {
		case <-w.messages:
		default:
			return
		}
	}
}

// Close closes the connection
func (w *WebSocket) Close() error {
	var err error
	w.closeOne.Do(func() {
		err = w.conn.Close()
	})
	return err
}

// String describes the transport
func (w *WebSocket) String() string {
	return fmt.Sprintf("WebSocket: %s", w.url)
}

type wsReader struct {
	w   *WebSocket
	ctx context.Context
}

func (r *wsReader) readTimeout(p []byte, d time.Duration) (int, error) {
	w := r.w
	if len(w.pending) > 0 {
		n := copy(p, w.pending)
		w.pending = w.pending[n:]
		return n, nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case data := <-w.messages:
		n := copy(p, data)
		w.pending = data[n:]
		return n, nil
	case <-timer.C:
		return 0, nil
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	case <-w.done:
		return 0, fmt.Errorf("%w: %w", ErrConnectionClosed, w.readErr)
	}
}
