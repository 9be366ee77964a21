// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package mercury

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

const testAddress = 0x9A

type responder func(request []byte) ([]byte, error)

// scriptedTransport answers requests from a fixed script and records them
type scriptedTransport struct {
	script   []responder
	requests [][]byte
}

func (t *scriptedTransport) Send(ctx context.Context, frame []byte) ([]byte, error) {
	t.requests = append(t.requests, append([]byte(nil), frame...))
	if len(t.script) == 0 {
		return nil, errors.New("unexpected request")
	}
	next := t.script[0]
	t.script = t.script[1:]
	return next(frame)
}

func reply(address byte, payload ...byte) responder {
	return func([]byte) ([]byte, error) {
		return EncodeResponse(address, payload...), nil
	}
}

func sentinel(address byte) responder {
	return reply(address, initRequiredStatus)
}

func fail(err error) responder {
	return func([]byte) ([]byte, error) { return nil, err }
}

func newTestSession(script ...responder) (*Session, *scriptedTransport) {
	tr := &scriptedTransport{script: script}
	return NewSession(tr, WithAddress(testAddress)), tr
}

func commandOf(frame []byte) byte {
	return frame[1]
}

func TestSetAddress_MasksLowBit(t *testing.T) {
	s := NewSession(&scriptedTransport{})
	for _, in := range []byte{0, 1, 2, 153, 154, 255} {
		s.SetAddress(in)
		if got, want := s.Address(), in&0xFE; got != want {
			t.Errorf("SetAddress(%d): Address() = %d, want %d", in, got, want)
		}
	}

	s = NewSession(&scriptedTransport{}, WithAddress(155))
	if s.Address() != 154 {
		t.Errorf("WithAddress(155): Address() = %d, want 154", s.Address())
	}
}

func TestOpenChannel(t *testing.T) {
	s, tr := newTestSession(reply(testAddress, 0x00))

	ok, err := s.OpenChannel(context.Background())
	if err != nil {
		t.Fatalf("OpenChannel error: %v", err)
	}
	if !ok {
		t.Error("OpenChannel = false, want true")
	}

	want := BuildFrame(testAddress, CmdOpenChannel, 0x01, 1, 1, 1, 1, 1, 1)
	if !bytes.Equal(tr.requests[0], want) {
		t.Errorf("request = % X, want % X", tr.requests[0], want)
	}
}

func TestOpenChannel_Rejected(t *testing.T) {
	s, _ := newTestSession(reply(testAddress, 0x01))

	ok, err := s.OpenChannel(context.Background())
	if err != nil {
		t.Fatalf("OpenChannel error: %v", err)
	}
	if ok {
		t.Error("OpenChannel = true, want false for status 1")
	}
}

func TestOpenChannelAt_UpdatesAddress(t *testing.T) {
	s, tr := newTestSession(reply(0x42, 0x00))

	if _, err := s.OpenChannelAt(context.Background(), 0x43); err != nil {
		t.Fatalf("OpenChannelAt error: %v", err)
	}
	if s.Address() != 0x42 {
		t.Errorf("Address() = 0x%02X, want 0x42", s.Address())
	}
	if tr.requests[0][0] != 0x42 {
		t.Errorf("request address = 0x%02X, want 0x42", tr.requests[0][0])
	}
}

func TestOpenChannel_CustomPassword(t *testing.T) {
	tr := &scriptedTransport{script: []responder{reply(testAddress, 0x00)}}
	s := NewSession(tr, WithAddress(testAddress), WithPassword("123450"))

	if _, err := s.OpenChannel(context.Background()); err != nil {
		t.Fatalf("OpenChannel error: %v", err)
	}
	want := []byte{0x01, 1, 2, 3, 4, 5, 0}
	if got := tr.requests[0][2:9]; !bytes.Equal(got, want) {
		t.Errorf("params = % X, want % X", got, want)
	}
}

func TestOpenChannel_InvalidPassword(t *testing.T) {
	for _, pw := range []string{"", "12345", "1234567", "12a456"} {
		tr := &scriptedTransport{}
		s := NewSession(tr, WithPassword(pw))
		if _, err := s.OpenChannel(context.Background()); !errors.Is(err, ErrInvalidPassword) {
			t.Errorf("password %q: error = %v, want %v", pw, err, ErrInvalidPassword)
		}
		if len(tr.requests) != 0 {
			t.Errorf("password %q: %d requests sent, want 0", pw, len(tr.requests))
		}
	}
}

func TestStatusCommands(t *testing.T) {
	tests := []struct {
		name    string
		call    func(*Session) (bool, error)
		command byte
	}{
		{"test channel", func(s *Session) (bool, error) { return s.TestChannel(context.Background()) }, CmdTestChannel},
		{"close channel", func(s *Session) (bool, error) { return s.CloseChannel(context.Background()) }, CmdCloseChannel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, tr := newTestSession(reply(testAddress, 0x00))
			ok, err := tt.call(s)
			if err != nil || !ok {
				t.Fatalf("got %v, %v, want true, nil", ok, err)
			}
			if !bytes.Equal(tr.requests[0], BuildFrame(testAddress, tt.command)) {
				t.Errorf("request = % X", tr.requests[0])
			}
		})
	}
}

func TestStatusCommand_WrongLength(t *testing.T) {
	s, _ := newTestSession(reply(testAddress, 0x00, 0x00))
	if _, err := s.TestChannel(context.Background()); !errors.Is(err, ErrWrongLength) {
		t.Errorf("error = %v, want %v", err, ErrWrongLength)
	}
}

func TestExchange_ReinitRetry(t *testing.T) {
	voltage := []byte{0x00, 0xD9, 0x59, 0x00, 0xD9, 0x59, 0x00, 0xD9, 0x59}
	s, tr := newTestSession(
		sentinel(testAddress),
		reply(testAddress, 0x00),
		reply(testAddress, voltage...),
	)

	v, err := s.Voltage(context.Background())
	if err != nil {
		t.Fatalf("Voltage error: %v", err)
	}
	if !almostEqual(v.P1, 230.01) || !almostEqual(v.P3, 230.01) {
		t.Errorf("Voltage = %+v", v)
	}

	if len(tr.requests) != 3 {
		t.Fatalf("transport saw %d exchanges, want 3", len(tr.requests))
	}
	wantCommands := []byte{CmdGetParameter, CmdOpenChannel, CmdGetParameter}
	for i, want := range wantCommands {
		if got := commandOf(tr.requests[i]); got != want {
			t.Errorf("exchange %d command = 0x%02X, want 0x%02X", i, got, want)
		}
	}
	if !bytes.Equal(tr.requests[0], tr.requests[2]) {
		t.Errorf("retry = % X, want original % X", tr.requests[2], tr.requests[0])
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %s, want IDLE", s.State())
	}
}

func TestExchange_PersistentSentinel(t *testing.T) {
	s, tr := newTestSession(
		sentinel(testAddress),
		reply(testAddress, 0x00),
		sentinel(testAddress),
	)

	_, err := s.Voltage(context.Background())
	if !errors.Is(err, ErrInitProblem) {
		t.Fatalf("error = %v, want %v", err, ErrInitProblem)
	}
	if len(tr.requests) != 3 {
		t.Errorf("transport saw %d exchanges, want 3", len(tr.requests))
	}
}

func TestExchange_OpenRejectedDuringReinit(t *testing.T) {
	s, tr := newTestSession(
		sentinel(testAddress),
		reply(testAddress, 0x01),
	)

	_, err := s.Current(context.Background())
	if !errors.Is(err, ErrInitProblem) {
		t.Fatalf("error = %v, want %v", err, ErrInitProblem)
	}
	if len(tr.requests) != 2 {
		t.Errorf("transport saw %d exchanges, want 2", len(tr.requests))
	}
}

func TestExchange_OpenFailsDuringReinit(t *testing.T) {
	ioErr := errors.New("connection reset")
	s, _ := newTestSession(
		sentinel(testAddress),
		fail(ioErr),
	)

	_, err := s.Power(context.Background())
	if !errors.Is(err, ErrInitProblem) {
		t.Errorf("error = %v, want %v", err, ErrInitProblem)
	}
	if !errors.Is(err, ioErr) {
		t.Errorf("error = %v, want it to wrap %v", err, ioErr)
	}
}

func TestExchange_SentinelOnReinitOpen(t *testing.T) {
	s, tr := newTestSession(
		sentinel(testAddress),
		sentinel(testAddress),
	)

	_, err := s.Frequency(context.Background())
	if !errors.Is(err, ErrInitProblem) {
		t.Fatalf("error = %v, want %v", err, ErrInitProblem)
	}
	if n := strings.Count(err.Error(), ErrInitProblem.Error()); n != 1 {
		t.Errorf("error %q mentions %q %d times, want once", err, ErrInitProblem, n)
	}
	if len(tr.requests) != 2 {
		t.Errorf("transport saw %d exchanges, want 2", len(tr.requests))
	}
}

func TestExchange_ExplicitAddress(t *testing.T) {
	s, tr := newTestSession(reply(0x10, 0xAA, 0xBB))

	payload, err := s.Exchange(context.Background(), 0x10, 0x11, 0x01)
	if err != nil {
		t.Fatalf("Exchange error: %v", err)
	}
	if !bytes.Equal(payload, []byte{0xAA, 0xBB}) {
		t.Errorf("payload = % X", payload)
	}
	if !bytes.Equal(tr.requests[0], BuildFrame(0x10, 0x11, 0x01)) {
		t.Errorf("request = % X", tr.requests[0])
	}
}

func TestExchange_TransportError(t *testing.T) {
	ioErr := errors.New("broken pipe")
	s, _ := newTestSession(fail(ioErr))

	_, err := s.TestChannel(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if !errors.Is(err, ioErr) {
		t.Errorf("error does not wrap transport cause")
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %s after failure, want IDLE", s.State())
	}
}

func TestExchange_ValidationErrorsPropagate(t *testing.T) {
	tests := []struct {
		name string
		resp responder
		want error
	}{
		{"wrong address", reply(0x9C, 0x00), ErrWrongAddress},
		{"short", func([]byte) ([]byte, error) { return []byte{0x9A, 0x00}, nil }, ErrWrongLength},
		{"bad crc", func([]byte) ([]byte, error) { return []byte{0x9A, 0x00, 0x00, 0x00}, nil }, ErrWrongCRC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, tr := newTestSession(tt.resp)
			if _, err := s.TestChannel(context.Background()); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if len(tr.requests) != 1 {
				t.Errorf("transport saw %d exchanges, want 1", len(tr.requests))
			}
		})
	}
}

// blockingTransport holds the exchange until released
type blockingTransport struct {
	entered chan struct{}
	release chan struct{}
}

func (t *blockingTransport) Send(ctx context.Context, frame []byte) ([]byte, error) {
	close(t.entered)
	<-t.release
	return EncodeResponse(frame[0], 0x00), nil
}

func TestSession_RejectsConcurrentExchange(t *testing.T) {
	tr := &blockingTransport{entered: make(chan struct{}), release: make(chan struct{})}
	s := NewSession(tr, WithAddress(testAddress))

	done := make(chan error, 1)
	go func() {
		_, err := s.TestChannel(context.Background())
		done <- err
	}()

	<-tr.entered
	if s.State() != StateAwaitingResponse {
		t.Errorf("State() = %s, want AWAITING_RESPONSE", s.State())
	}
	if _, err := s.Voltage(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent call error = %v, want %v", err, ErrBusy)
	}

	close(tr.release)
	if err := <-done; err != nil {
		t.Errorf("first call error = %v", err)
	}
}

type recordingObserver struct {
	events []ExchangeEvent
}

func (o *recordingObserver) ObserveExchange(ev ExchangeEvent) {
	o.events = append(o.events, ev)
}

func TestSession_Observer(t *testing.T) {
	obs := &recordingObserver{}
	tr := &scriptedTransport{script: []responder{
		sentinel(testAddress),
		reply(testAddress, 0x00),
		reply(testAddress, 0x00),
	}}
	s := NewSession(tr, WithAddress(testAddress), WithObserver(obs))

	if _, err := s.TestChannel(context.Background()); err != nil {
		t.Fatalf("TestChannel error: %v", err)
	}
	if len(obs.events) != 3 {
		t.Fatalf("observed %d events, want 3", len(obs.events))
	}
	if !obs.events[0].InitRequired || obs.events[0].Retry {
		t.Errorf("event 0 = %+v, want init required on first attempt", obs.events[0])
	}
	if obs.events[1].Command != CmdOpenChannel || !obs.events[1].Retry {
		t.Errorf("event 1 = %+v, want open channel during re-init", obs.events[1])
	}
	if !obs.events[2].Retry || obs.events[2].InitRequired {
		t.Errorf("event 2 = %+v, want successful retry", obs.events[2])
	}
}

func TestState_String(t *testing.T) {
	if StateNeedsInit.String() != "NEEDS_INIT" {
		t.Errorf("StateNeedsInit.String() = %q", StateNeedsInit.String())
	}
	if State(99).String() != "UNKNOWN" {
		t.Errorf("State(99).String() = %q", State(99).String())
	}
}
