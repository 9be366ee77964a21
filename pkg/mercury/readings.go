// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package mercury

import (
	"fmt"
	"strings"
	"time"
)

// Energy holds the four accumulation registers in kWh / kvarh.
type Energy struct {
	Active          float64 `json:"active" cbor:"1,keyasint"`
	ReverseActive   float64 `json:"reverse_active" cbor:"2,keyasint"`
	Reactive        float64 `json:"reactive" cbor:"3,keyasint"`
	ReverseReactive float64 `json:"reverse_reactive" cbor:"4,keyasint"`
}

// PhaseValues holds one quantity per phase.
type PhaseValues struct {
	P1 float64 `json:"p1" cbor:"1,keyasint"`
	P2 float64 `json:"p2" cbor:"2,keyasint"`
	P3 float64 `json:"p3" cbor:"3,keyasint"`
}

// PhaseSumValues holds one quantity per phase plus the meter's aggregate,
// which the meter sends first.
type PhaseSumValues struct {
	Sum float64 `json:"sum" cbor:"0,keyasint"`
	P1  float64 `json:"p1" cbor:"1,keyasint"`
	P2  float64 `json:"p2" cbor:"2,keyasint"`
	P3  float64 `json:"p3" cbor:"3,keyasint"`
}

// Frequency holds the network frequency in Hz.
type Frequency struct {
	F float64 `json:"f" cbor:"1,keyasint"`
}

// Snapshot is a full set of readings taken one after another.
type Snapshot struct {
	Address       byte           `json:"address" cbor:"1,keyasint"`
	Timestamp     time.Time      `json:"timestamp" cbor:"2,keyasint"`
	Voltage       PhaseValues    `json:"voltage" cbor:"3,keyasint"`
	Current       PhaseValues    `json:"current" cbor:"4,keyasint"`
	Power         PhaseSumValues `json:"power" cbor:"5,keyasint"`
	ReactivePower PhaseSumValues `json:"reactive_power" cbor:"6,keyasint"`
	CosF          PhaseSumValues `json:"cos_f" cbor:"7,keyasint"`
	Angle         PhaseValues    `json:"angle" cbor:"8,keyasint"`
	Frequency     Frequency      `json:"frequency" cbor:"9,keyasint"`
	Energy        Energy         `json:"energy" cbor:"10,keyasint"`
}

func decodePhases(payload []byte, scale float64) PhaseValues {
	return PhaseValues{
		P1: DecodeThreeBytes(payload, 0, scale),
		P2: DecodeThreeBytes(payload, 3, scale),
		P3: DecodeThreeBytes(payload, 6, scale),
	}
}

func decodePhasesWithSum(payload []byte, scale float64) PhaseSumValues {
	return PhaseSumValues{
		Sum: DecodeThreeBytes(payload, 0, scale),
		P1:  DecodeThreeBytes(payload, 3, scale),
		P2:  DecodeThreeBytes(payload, 6, scale),
		P3:  DecodeThreeBytes(payload, 9, scale),
	}
}

func decodeEnergy(payload []byte) Energy {
	return Energy{
		Active:          DecodeFourBytes(payload, 0, energyScale),
		ReverseActive:   DecodeFourBytes(payload, 4, energyScale),
		Reactive:        DecodeFourBytes(payload, 8, energyScale),
		ReverseReactive: DecodeFourBytes(payload, 12, energyScale),
	}
}

func (p PhaseValues) String() string {
	return fmt.Sprintf("L1=%.2f L2=%.2f L3=%.2f", p.P1, p.P2, p.P3)
}

func (p PhaseSumValues) String() string {
	return fmt.Sprintf("L1=%.3f L2=%.3f L3=%.3f sum=%.3f", p.P1, p.P2, p.P3, p.Sum)
}

func (e Energy) String() string {
	return fmt.Sprintf("A+=%.3f kWh A-=%.3f kWh R+=%.3f kvarh R-=%.3f kvarh",
		e.Active, e.ReverseActive, e.Reactive, e.ReverseReactive)
}

// String formats the snapshot as a multi-line human-readable report
func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] meter %d\n", s.Timestamp.Format("15:04:05.000"), s.Address)
	fmt.Fprintf(&b, "  Voltage (V):     %s\n", s.Voltage)
	fmt.Fprintf(&b, "  Current (A):     %s\n", s.Current)
	fmt.Fprintf(&b, "  Power (W):       %s\n", s.Power)
	fmt.Fprintf(&b, "  Reactive (var):  %s\n", s.ReactivePower)
	fmt.Fprintf(&b, "  Cos φ:           %s\n", s.CosF)
	fmt.Fprintf(&b, "  Angle (°):       %s\n", s.Angle)
	fmt.Fprintf(&b, "  Frequency (Hz):  %.2f\n", s.Frequency.F)
	fmt.Fprintf(&b, "  Energy:          %s\n", s.Energy)
	return b.String()
}
