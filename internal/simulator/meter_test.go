// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/Thermoquad/meterstat/pkg/mercury"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeter_SessionReadsBackReadings(t *testing.T) {
	meter := New(154)
	s := mercury.NewSession(meter, mercury.WithAddress(154))
	ctx := context.Background()

	ok, err := s.OpenChannel(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	want := DefaultReadings()

	v, err := s.Voltage(ctx)
	require.NoError(t, err)
	assert.InDelta(t, want.Voltage.P1, v.P1, 1e-9)
	assert.InDelta(t, want.Voltage.P3, v.P3, 1e-9)

	p, err := s.Power(ctx)
	require.NoError(t, err)
	assert.InDelta(t, want.Power.Sum, p.Sum, 1e-9)
	assert.InDelta(t, want.Power.P2, p.P2, 1e-9)

	c, err := s.CosF(ctx)
	require.NoError(t, err)
	assert.InDelta(t, want.CosF.Sum, c.Sum, 1e-9)

	f, err := s.Frequency(ctx)
	require.NoError(t, err)
	assert.InDelta(t, want.Frequency.F, f.F, 1e-9)

	e, err := s.TotalEnergy(ctx, mercury.TariffSum)
	require.NoError(t, err)
	assert.InDelta(t, want.Energy.Active, e.Active, 1e-9)
	assert.InDelta(t, want.Energy.ReverseReactive, e.ReverseReactive, 1e-9)

	dump, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, dump, 12+12+9+9+12+3+9)
}

func TestMeter_ReinitializesClosedChannel(t *testing.T) {
	meter := New(154)
	s := mercury.NewSession(meter, mercury.WithAddress(154))

	_, err := s.Voltage(context.Background())
	require.NoError(t, err)
	assert.True(t, meter.ChannelOpen())
	assert.Equal(t, 3, meter.Requests())
}

func TestMeter_WrongPassword(t *testing.T) {
	meter := New(154, WithPassword("222222"))
	s := mercury.NewSession(meter, mercury.WithAddress(154))

	ok, err := s.OpenChannel(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Voltage(context.Background())
	assert.ErrorIs(t, err, mercury.ErrInitProblem)
}

func TestMeter_Time(t *testing.T) {
	now := time.Date(2026, time.October, 18, 14, 5, 9, 0, time.UTC)
	meter := New(154, WithChannelOpen(), WithClock(func() time.Time { return now }))
	s := mercury.NewSession(meter, mercury.WithAddress(154), mercury.WithLocation(time.UTC))

	got, err := s.Time(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Equal(now), "got %v, want %v", got, now)
}

func TestMeter_Faults(t *testing.T) {
	meter := New(154, WithChannelOpen())
	s := mercury.NewSession(meter, mercury.WithAddress(154))
	ctx := context.Background()

	meter.InjectFault(FaultCorruptCRC)
	_, err := s.TestChannel(ctx)
	assert.ErrorIs(t, err, mercury.ErrWrongCRC)

	meter.InjectFault(FaultWrongAddress)
	_, err = s.TestChannel(ctx)
	assert.ErrorIs(t, err, mercury.ErrWrongAddress)

	meter.InjectFault(FaultSilent)
	_, err = s.TestChannel(ctx)
	var te *mercury.TransportError
	assert.ErrorAs(t, err, &te)

	meter.InjectFault(FaultForgetChannel)
	_, err = s.Voltage(ctx)
	require.NoError(t, err, "session should re-open a forgotten channel")
}

func TestMeter_IgnoresOtherAddresses(t *testing.T) {
	meter := New(154)
	_, err := meter.Handle(mercury.BuildFrame(156, mercury.CmdTestChannel))
	assert.ErrorIs(t, err, ErrNoResponse)

	resp, err := meter.Handle(mercury.BuildFrame(0, mercury.CmdTestChannel))
	require.NoError(t, err)
	payload, err := mercury.ParseFrame(resp, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, payload)
}

func TestMeter_CancelledContext(t *testing.T) {
	meter := New(154)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := meter.Send(ctx, mercury.BuildFrame(154, mercury.CmdTestChannel))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, meter.Requests())
}

func TestMeter_SetReadingsBetweenSnapshots(t *testing.T) {
	meter := New(154, WithChannelOpen())
	s := mercury.NewSession(meter, mercury.WithAddress(154))
	ctx := context.Background()

	first, err := s.ReadSnapshot(ctx)
	require.NoError(t, err)

	r := DefaultReadings()
	r.Voltage = mercury.PhaseValues{P1: 210.5, P2: 211.25, P3: 212}
	r.Energy.Active = 20000.125
	meter.SetReadings(r)

	second, err := s.ReadSnapshot(ctx)
	require.NoError(t, err)

	assert.InDelta(t, DefaultReadings().Voltage.P1, first.Voltage.P1, 1e-9)
	assert.InDelta(t, 210.5, second.Voltage.P1, 1e-9)
	assert.InDelta(t, 212, second.Voltage.P3, 1e-9)
	assert.InDelta(t, 20000.125, second.Energy.Active, 1e-9)

	dump, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, mercury.EncodeThreeBytes(210.5, 100), [3]byte{dump[24], dump[25], dump[26]},
		"dump rebuilt with new voltage")
}
