// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package simulator provides a software Mercury 236 meter. It answers the
// documented commands from configurable readings and can be used directly as
// a mercury.Transport or served over TCP.
package simulator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Thermoquad/meterstat/pkg/mercury"
)

// ErrNoResponse is returned for requests a real meter would ignore: frames
// with a bad CRC or for another address.
var ErrNoResponse = errors.New("meter did not respond")

// Status codes in single-byte replies
const (
	statusOK             = 0x00
	statusInvalidCommand = 0x01
	statusNotOpen        = 0x05
)

// Readings are the values the meter reports.
type Readings struct {
	Voltage       mercury.PhaseValues
	Current       mercury.PhaseValues
	Angle         mercury.PhaseValues
	Power         mercury.PhaseSumValues
	ReactivePower mercury.PhaseSumValues
	CosF          mercury.PhaseSumValues
	Frequency     mercury.Frequency
	Energy        mercury.Energy
}

// DefaultReadings returns plausible values for a lightly loaded
// three-phase installation.
func DefaultReadings() Readings {
	return Readings{
		Voltage:       mercury.PhaseValues{P1: 230.12, P2: 229.87, P3: 231.05},
		Current:       mercury.PhaseValues{P1: 4.25, P2: 1.1, P3: 0.37},
		Angle:         mercury.PhaseValues{P1: 0, P2: 120.02, P3: 239.97},
		Power:         mercury.PhaseSumValues{Sum: 1291.5, P1: 950.2, P2: 250.3, P3: 91},
		ReactivePower: mercury.PhaseSumValues{Sum: 210.4, P1: 150.1, P2: 40.3, P3: 20},
		CosF:          mercury.PhaseSumValues{Sum: 0.982, P1: 0.971, P2: 0.99, P3: 0.999},
		Frequency:     mercury.Frequency{F: 49.98},
		Energy:        mercury.Energy{Active: 12873.551, ReverseActive: 0, Reactive: 1404.2, ReverseReactive: 12.003},
	}
}

// Fault alters the next response
type Fault int

// Fault kinds
const (
	FaultNone Fault = iota
	FaultCorruptCRC
	FaultWrongAddress
	FaultSilent
	FaultForgetChannel
)

// Meter is a simulated meter. It is safe for concurrent use.
type Meter struct {
	mu          sync.Mutex
	address     byte
	password    string
	readings    Readings
	dump        []byte
	clock       func() time.Time
	channelOpen bool
	faults      []Fault
	requests    int
}

// Option configures a Meter
type Option func(*Meter)

// WithPassword sets the password the meter accepts
func WithPassword(password string) Option {
	return func(m *Meter) { m.password = password }
}

// WithReadings sets the reported values
func WithReadings(r Readings) Option {
	return func(m *Meter) { m.readings = r }
}

// WithClock sets the meter clock
func WithClock(clock func() time.Time) Option {
	return func(m *Meter) { m.clock = clock }
}

// WithChannelOpen starts the meter with its channel already open
func WithChannelOpen() Option {
	return func(m *Meter) { m.channelOpen = true }
}

// New creates a meter at address.
func New(address byte, opts ...Option) *Meter {
	m := &Meter{
		address:  address & 0xFE,
		password: mercury.DefaultPassword,
		readings: DefaultReadings(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.dump = m.buildDump()
	return m
}

// Address returns the meter address
func (m *Meter) Address() byte {
	return m.address
}

// SetReadings replaces the reported values
func (m *Meter) SetReadings(r Readings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = r
	m.dump = m.buildDump()
}

// ChannelOpen reports whether the channel is open
func (m *Meter) ChannelOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channelOpen
}

// Requests returns the number of well-formed requests addressed to the meter
func (m *Meter) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// InjectFault queues a fault for the next response
func (m *Meter) InjectFault(f Fault) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, f)
}

// Send implements mercury.Transport
func (m *Meter) Send(ctx context.Context, frame []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.Handle(frame)
}

// Handle processes one request frame and returns the response frame
func (m *Meter) Handle(frame []byte) ([]byte, error) {
	address, command, params, err := mercury.ParseRequest(frame)
	if err != nil {
		return nil, ErrNoResponse
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if address != m.address && address != 0 {
		return nil, ErrNoResponse
	}
	m.requests++

	fault := FaultNone
	if len(m.faults) > 0 {
		fault = m.faults[0]
		m.faults = m.faults[1:]
	}

	switch fault {
	case FaultSilent:
		return nil, ErrNoResponse
	case FaultForgetChannel:
		m.channelOpen = false
	}

	payload := m.respond(command, params)

	switch fault {
	case FaultWrongAddress:
		// Valid CRC for the wrong address
		return mercury.EncodeResponse(address^0x02, payload...), nil
	case FaultCorruptCRC:
		resp := mercury.EncodeResponse(address, payload...)
		resp[len(resp)-1] ^= 0xFF
		return resp, nil
	}
	return mercury.EncodeResponse(address, payload...), nil
}

// respond must be called with mu held
func (m *Meter) respond(command byte, params []byte) []byte {
	switch command {
	case mercury.CmdTestChannel:
		return []byte{statusOK}
	case mercury.CmdOpenChannel:
		if !m.checkPassword(params) {
			return []byte{statusInvalidCommand}
		}
		m.channelOpen = true
		return []byte{statusOK}
	case mercury.CmdCloseChannel:
		m.channelOpen = false
		return []byte{statusOK}
	}

	if !m.channelOpen {
		return []byte{statusNotOpen}
	}

	switch command {
	case mercury.CmdGetTime:
		return m.encodeTime()
	case mercury.CmdGetEnergy:
		return encodeEnergy(m.readings.Energy)
	case mercury.CmdGetParameter:
		if len(params) != 2 {
			return []byte{statusInvalidCommand}
		}
		return m.parameter([2]byte{params[0], params[1]})
	default:
		return []byte{statusInvalidCommand}
	}
}

func (m *Meter) checkPassword(params []byte) bool {
	if len(params) != 1+mercury.PasswordLength || len(m.password) != mercury.PasswordLength {
		return false
	}
	if params[0] != mercury.AccessRead && params[0] != mercury.AccessAdmin {
		return false
	}
	for i := 0; i < mercury.PasswordLength; i++ {
		if params[1+i] != m.password[i]-'0' {
			return false
		}
	}
	return true
}

func (m *Meter) parameter(sel [2]byte) []byte {
	r := m.readings
	switch sel {
	case mercury.SelVoltage:
		return encodePhases(r.Voltage, 100)
	case mercury.SelCurrent:
		return encodePhases(r.Current, 100)
	case mercury.SelAngle:
		return encodePhases(r.Angle, 100)
	case mercury.SelCosF:
		return encodePhasesWithSum(r.CosF, 1000)
	case mercury.SelPower:
		return encodePhasesWithSum(r.Power, 100)
	case mercury.SelReactivePower:
		return encodePhasesWithSum(r.ReactivePower, 100)
	case mercury.SelFrequency:
		b := mercury.EncodeThreeBytes(r.Frequency.F, 100)
		return b[:]
	case mercury.SelSnapshot:
		return append([]byte(nil), m.dump...)
	default:
		return []byte{statusInvalidCommand}
	}
}

// buildDump lays out every measurement back to back, the way the full
// parameter dump is presented here.
func (m *Meter) buildDump() []byte {
	r := m.readings
	var out []byte
	out = append(out, encodePhasesWithSum(r.Power, 100)...)
	out = append(out, encodePhasesWithSum(r.ReactivePower, 100)...)
	out = append(out, encodePhases(r.Voltage, 100)...)
	out = append(out, encodePhases(r.Current, 100)...)
	out = append(out, encodePhasesWithSum(r.CosF, 1000)...)
	f := mercury.EncodeThreeBytes(r.Frequency.F, 100)
	out = append(out, f[:]...)
	return append(out, encodePhases(r.Angle, 100)...)
}

func (m *Meter) encodeTime() []byte {
	now := m.clock()
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return []byte{
		mercury.EncodeBCD(now.Second()),
		mercury.EncodeBCD(now.Minute()),
		mercury.EncodeBCD(now.Hour()),
		mercury.EncodeBCD(weekday),
		mercury.EncodeBCD(now.Day()),
		mercury.EncodeBCD(int(now.Month())),
		mercury.EncodeBCD(now.Year() - 2000),
		0x00,
	}
}

func encodePhases(p mercury.PhaseValues, scale float64) []byte {
	out := make([]byte, 0, 9)
	for _, v := range []float64{p.P1, p.P2, p.P3} {
		b := mercury.EncodeThreeBytes(v, scale)
		out = append(out, b[:]...)
	}
	return out
}

func encodePhasesWithSum(p mercury.PhaseSumValues, scale float64) []byte {
	out := make([]byte, 0, 12)
	for _, v := range []float64{p.Sum, p.P1, p.P2, p.P3} {
		b := mercury.EncodeThreeBytes(v, scale)
		out = append(out, b[:]...)
	}
	return out
}

func encodeEnergy(e mercury.Energy) []byte {
	out := make([]byte, 0, 16)
	for _, v := range []float64{e.Active, e.ReverseActive, e.Reactive, e.ReverseReactive} {
		b := mercury.EncodeFourBytes(v, 1000)
		out = append(out, b[:]...)
	}
	return out
}
