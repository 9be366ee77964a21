// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package mercury

import (
	"context"
	"fmt"
	"time"
)

// TestChannel checks that the meter answers at the session address.
func (s *Session) TestChannel(ctx context.Context) (bool, error) {
	return s.status(ctx, CmdTestChannel)
}

// CloseChannel closes the meter channel.
func (s *Session) CloseChannel(ctx context.Context) (bool, error) {
	return s.status(ctx, CmdCloseChannel)
}

func (s *Session) status(ctx context.Context, command byte) (bool, error) {
	payload, err := s.request(ctx, command, nil, statusLength)
	if err != nil {
		return false, err
	}
	return payload[0] == 0, nil
}

// Time reads the meter clock.
//
// Payload layout (BCD): second, minute, hour, weekday, day, month, year
// since 2000, season flag.
func (s *Session) Time(ctx context.Context) (time.Time, error) {
	payload, err := s.request(ctx, CmdGetTime, []byte{0x00}, timeLength)
	if err != nil {
		return time.Time{}, err
	}

	var fields [7]int
	for i := range fields {
		if fields[i], err = DecodeBCD(payload[i]); err != nil {
			return time.Time{}, fmt.Errorf("time field %d: %w", i, err)
		}
	}

	sec, minute, hour := fields[0], fields[1], fields[2]
	day, month, year := fields[4], fields[5], fields[6]
	return time.Date(2000+year, time.Month(month), day, hour, minute, sec, 0, s.location), nil
}

// Energy reads an energy register. month is only meaningful for PeriodMonth.
func (s *Session) Energy(ctx context.Context, period Period, month int, tariff Tariff) (Energy, error) {
	params := []byte{byte(period)<<4 | byte(month)&0x0F, byte(tariff)}
	payload, err := s.request(ctx, CmdGetEnergy, params, energyLength)
	if err != nil {
		return Energy{}, err
	}
	return decodeEnergy(payload), nil
}

// TotalEnergy reads the energy accumulated since the last reset.
func (s *Session) TotalEnergy(ctx context.Context, tariff Tariff) (Energy, error) {
	return s.Energy(ctx, PeriodSinceReset, 0, tariff)
}

// YearEnergy reads the energy of the current year.
func (s *Session) YearEnergy(ctx context.Context, tariff Tariff) (Energy, error) {
	return s.Energy(ctx, PeriodYear, 0, tariff)
}

// LastYearEnergy reads the energy of the previous year.
func (s *Session) LastYearEnergy(ctx context.Context, tariff Tariff) (Energy, error) {
	return s.Energy(ctx, PeriodLastYear, 0, tariff)
}

// MonthEnergy reads the energy of a calendar month (1-12).
func (s *Session) MonthEnergy(ctx context.Context, month int, tariff Tariff) (Energy, error) {
	return s.Energy(ctx, PeriodMonth, month, tariff)
}

// CurrentMonthEnergy reads the energy of the current month.
func (s *Session) CurrentMonthEnergy(ctx context.Context, tariff Tariff) (Energy, error) {
	return s.MonthEnergy(ctx, int(s.clock().Month()), tariff)
}

// LastMonthEnergy reads the energy of the previous month; in January that
// is December.
func (s *Session) LastMonthEnergy(ctx context.Context, tariff Tariff) (Energy, error) {
	month := int(s.clock().Month()) - 1
	if month == 0 {
		month = 12
	}
	return s.MonthEnergy(ctx, month, tariff)
}

// TodayEnergy reads the energy of the current day.
func (s *Session) TodayEnergy(ctx context.Context, tariff Tariff) (Energy, error) {
	return s.Energy(ctx, PeriodToday, 0, tariff)
}

// YesterdayEnergy reads the energy of the previous day.
func (s *Session) YesterdayEnergy(ctx context.Context, tariff Tariff) (Energy, error) {
	return s.Energy(ctx, PeriodYesterday, 0, tariff)
}

func (s *Session) parameter(ctx context.Context, sel [2]byte, want int) ([]byte, error) {
	return s.request(ctx, CmdGetParameter, sel[:], want)
}

// Voltage reads per-phase voltage in V.
func (s *Session) Voltage(ctx context.Context) (PhaseValues, error) {
	payload, err := s.parameter(ctx, SelVoltage, phaseLength)
	if err != nil {
		return PhaseValues{}, err
	}
	return decodePhases(payload, measurementScale), nil
}

// Current reads per-phase current in A.
func (s *Session) Current(ctx context.Context) (PhaseValues, error) {
	payload, err := s.parameter(ctx, SelCurrent, phaseLength)
	if err != nil {
		return PhaseValues{}, err
	}
	return decodePhases(payload, measurementScale), nil
}

// CosF reads the power factor per phase and overall.
func (s *Session) CosF(ctx context.Context) (PhaseSumValues, error) {
	payload, err := s.parameter(ctx, SelCosF, phaseSumLength)
	if err != nil {
		return PhaseSumValues{}, err
	}
	return decodePhasesWithSum(payload, cosFScale), nil
}

// Angle reads the angles between phase voltages in degrees.
func (s *Session) Angle(ctx context.Context) (PhaseValues, error) {
	payload, err := s.parameter(ctx, SelAngle, phaseLength)
	if err != nil {
		return PhaseValues{}, err
	}
	return decodePhases(payload, measurementScale), nil
}

// Frequency reads the network frequency in Hz.
func (s *Session) Frequency(ctx context.Context) (Frequency, error) {
	payload, err := s.parameter(ctx, SelFrequency, frequencyLength)
	if err != nil {
		return Frequency{}, err
	}
	return Frequency{F: DecodeThreeBytes(payload, 0, measurementScale)}, nil
}

// Power reads active power in W, per phase and summed.
func (s *Session) Power(ctx context.Context) (PhaseSumValues, error) {
	payload, err := s.parameter(ctx, SelPower, phaseSumLength)
	if err != nil {
		return PhaseSumValues{}, err
	}
	return decodePhasesWithSum(payload, measurementScale), nil
}

// ReactivePower reads reactive power in var, per phase and summed.
func (s *Session) ReactivePower(ctx context.Context) (PhaseSumValues, error) {
	payload, err := s.parameter(ctx, SelReactivePower, phaseSumLength)
	if err != nil {
		return PhaseSumValues{}, err
	}
	return decodePhasesWithSum(payload, measurementScale), nil
}

// All returns the meter's full parameter dump undecoded. Its layout is
// device specific.
func (s *Session) All(ctx context.Context) ([]byte, error) {
	return s.parameter(ctx, SelSnapshot, -1)
}

// ReadSnapshot reads every measurement and the total energy in turn. The
// first failure aborts the read.
func (s *Session) ReadSnapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Address: s.address, Timestamp: s.clock()}
	var err error

	if snap.Voltage, err = s.Voltage(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("voltage: %w", err)
	}
	if snap.Current, err = s.Current(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("current: %w", err)
	}
	if snap.Power, err = s.Power(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("power: %w", err)
	}
	if snap.ReactivePower, err = s.ReactivePower(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("reactive power: %w", err)
	}
	if snap.CosF, err = s.CosF(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("cos f: %w", err)
	}
	if snap.Angle, err = s.Angle(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("angle: %w", err)
	}
	if snap.Frequency, err = s.Frequency(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("frequency: %w", err)
	}
	if snap.Energy, err = s.TotalEnergy(ctx, TariffSum); err != nil {
		return Snapshot{}, fmt.Errorf("energy: %w", err)
	}
	return snap, nil
}
