// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package mercury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Transport carries one request frame to the meter and returns the next
// complete response frame. Connection handling, timeouts and reconnects are
// the transport's business.
type Transport interface {
	Send(ctx context.Context, frame []byte) ([]byte, error)
}

// State is the position of a Session in its exchange cycle.
type State int32

// Session states
const (
	StateIdle State = iota
	StateSending
	StateAwaitingResponse
	StateValidating
	StateNeedsInit
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSending:
		return "SENDING"
	case StateAwaitingResponse:
		return "AWAITING_RESPONSE"
	case StateValidating:
		return "VALIDATING"
	case StateNeedsInit:
		return "NEEDS_INIT"
	default:
		return "UNKNOWN"
	}
}

// attempt distinguishes the original exchange from the single retry made
// after re-opening the channel.
type attempt int

const (
	firstAttempt attempt = iota
	reinitAttempt
)

// ExchangeEvent describes one request/response round trip.
type ExchangeEvent struct {
	Address      byte
	Command      byte
	Params       []byte
	Retry        bool // sent after a channel re-initialization
	InitRequired bool // meter answered with the init sentinel
	Duration     time.Duration
	Err          error
}

// Observer receives an event for every round trip, internal ones included.
type Observer interface {
	ObserveExchange(ev ExchangeEvent)
}

// Observers fans an event out to several observers.
type Observers []Observer

// ObserveExchange implements Observer
func (o Observers) ObserveExchange(ev ExchangeEvent) {
	for _, obs := range o {
		obs.ObserveExchange(ev)
	}
}

// Session drives the protocol for one meter address over one transport.
//
// The protocol is half-duplex. A Session does not queue: a call made while
// another one is in flight fails with ErrBusy.
type Session struct {
	transport Transport
	address   byte
	password  string
	state     atomic.Int32
	logger    *slog.Logger
	observer  Observer
	clock     func() time.Time
	location  *time.Location
}

// Option configures a Session.
type Option func(*Session)

// WithAddress sets the meter address (the low bit is cleared).
func WithAddress(address byte) Option {
	return func(s *Session) { s.SetAddress(address) }
}

// WithPassword sets the channel password (six ASCII digits).
func WithPassword(password string) Option {
	return func(s *Session) { s.password = password }
}

// WithLogger sets the logger used for frame tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers an exchange observer.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithClock overrides the clock used for relative energy periods.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLocation sets the time zone the meter clock is interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Session) {
		if loc != nil {
			s.location = loc
		}
	}
}

// NewSession creates a session on top of transport.
func NewSession(transport Transport, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		password:  DefaultPassword,
		logger:    slog.New(slog.DiscardHandler),
		clock:     time.Now,
		location:  time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAddress sets the target address. Addresses are even by protocol, so the
// low bit is cleared. Call it only between exchanges.
func (s *Session) SetAddress(address byte) {
	s.address = address & 0xFE
}

// Address returns the target address.
func (s *Session) Address() byte {
	return s.address
}

// State returns the current exchange state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Session) begin() error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateSending)) {
		return ErrBusy
	}
	return nil
}

func (s *Session) end() {
	s.setState(StateIdle)
}

// Exchange sends command with params to address and returns the validated
// payload. If the meter answers that its channel needs setup, the channel is
// opened and the command retried once.
func (s *Session) Exchange(ctx context.Context, address, command byte, params ...byte) ([]byte, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	return s.exchange(ctx, address, command, params, firstAttempt)
}

// request runs a command against the session address and checks the
// payload length when want is not negative.
func (s *Session) request(ctx context.Context, command byte, params []byte, want int) ([]byte, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	payload, err := s.exchange(ctx, s.address, command, params, firstAttempt)
	if err != nil {
		return nil, err
	}
	if want >= 0 {
		if err := checkLength(payload, want); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func (s *Session) exchange(ctx context.Context, address, command byte, params []byte, att attempt) ([]byte, error) {
	payload, err := s.roundTrip(ctx, address, command, params, att)
	if err != nil || !IsInitRequired(payload) {
		return payload, err
	}

	s.setState(StateNeedsInit)
	if att == reinitAttempt {
		return nil, fmt.Errorf("%w: meter %d still requires channel setup", ErrInitProblem, address)
	}

	s.logger.Debug("meter requires channel setup", "address", address, "command", FormatCommand(command, params))

	ok, err := s.openChannel(ctx, address, reinitAttempt)
	switch {
	case errors.Is(err, ErrInitProblem):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrInitProblem, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: meter %d rejected channel setup", ErrInitProblem, address)
	}

	return s.exchange(ctx, address, command, params, reinitAttempt)
}

func (s *Session) roundTrip(ctx context.Context, address, command byte, params []byte, att attempt) ([]byte, error) {
	start := time.Now()

	s.setState(StateSending)
	request := BuildFrame(address, command, params...)
	s.logger.Debug("sent frame",
		"command", FormatCommand(command, params),
		"retry", att == reinitAttempt,
		"frame", FormatFrame(request))

	s.setState(StateAwaitingResponse)
	raw, err := s.transport.Send(ctx, request)
	if err != nil {
		err = &TransportError{Op: "send", Err: err}
		s.observe(address, command, params, att, nil, time.Since(start), err)
		return nil, err
	}
	s.logger.Debug("received frame", "frame", FormatFrame(raw))

	s.setState(StateValidating)
	payload, err := ParseFrame(raw, address)
	s.observe(address, command, params, att, payload, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *Session) observe(address, command byte, params []byte, att attempt, payload []byte, d time.Duration, err error) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveExchange(ExchangeEvent{
		Address:      address,
		Command:      command,
		Params:       params,
		Retry:        att == reinitAttempt,
		InitRequired: err == nil && IsInitRequired(payload),
		Duration:     d,
		Err:          err,
	})
}

// OpenChannel opens the meter channel with the session password. It
// reports whether the meter accepted.
func (s *Session) OpenChannel(ctx context.Context) (bool, error) {
	if err := s.begin(); err != nil {
		return false, err
	}
	defer s.end()

	return s.openChannel(ctx, s.address, firstAttempt)
}

// OpenChannelAt switches the session to address and opens the channel there.
func (s *Session) OpenChannelAt(ctx context.Context, address byte) (bool, error) {
	if err := s.begin(); err != nil {
		return false, err
	}
	defer s.end()

	s.SetAddress(address)
	return s.openChannel(ctx, s.address, firstAttempt)
}

func (s *Session) openChannel(ctx context.Context, address byte, att attempt) (bool, error) {
	params, err := passwordParams(s.password)
	if err != nil {
		return false, err
	}

	payload, err := s.exchange(ctx, address, CmdOpenChannel, params, att)
	if err != nil {
		return false, err
	}
	if err := checkLength(payload, statusLength); err != nil {
		return false, err
	}
	return payload[0] == 0, nil
}

// passwordParams builds [access level, digit, digit, ...]. Digits are sent
// as their numeric values, not as ASCII.
func passwordParams(password string) ([]byte, error) {
	if len(password) != PasswordLength {
		return nil, ErrInvalidPassword
	}
	params := make([]byte, 0, 1+PasswordLength)
	params = append(params, AccessRead)
	for i := 0; i < len(password); i++ {
		c := password[i]
		if c < '0' || c > '9' {
			return nil, ErrInvalidPassword
		}
		params = append(params, c-'0')
	}
	return params, nil
}
