// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package mercury implements the client side of the Mercury 236 meter protocol.
//
// The protocol is a half-duplex request/response exchange over any byte
// stream. A request is [address, command, params..., crc_lo, crc_hi] and the
// meter answers with [address, payload..., crc_lo, crc_hi]. This package
// provides the CRC codec, frame building and validation, the fixed-point
// payload decoders and a Session that drives the channel state machine,
// including the one-shot re-initialization when a meter reports that its
// channel is not open.
//
// Transports (TCP, serial, WebSocket bridges) are supplied by the caller
// through the Transport interface.
package mercury

// Frame size limits
const (
	CRCLength          = 2
	MinResponseLength  = 2 + CRCLength
	MaxResponseLength  = 256 + CRCLength
	MinRequestLength   = 2 + CRCLength
	DefaultPassword    = "111111"
	PasswordLength     = 6
	initRequiredStatus = 0x05
)

// CRC-16 (reflected, Modbus style) configuration
const (
	crcPolynomial = 0xA001
	crcInitial    = 0xFFFF
)

// Command codes
const (
	CmdTestChannel  = 0x00
	CmdOpenChannel  = 0x01
	CmdCloseChannel = 0x02
	CmdGetTime      = 0x04
	CmdGetEnergy    = 0x05
	CmdGetParameter = 0x08
)

// Access levels for CmdOpenChannel
const (
	AccessRead  = 0x01
	AccessAdmin = 0x02
)

// Parameter selectors for CmdGetParameter (two bytes each)
var (
	SelVoltage       = [2]byte{0x16, 0x11}
	SelCurrent       = [2]byte{0x16, 0x21}
	SelCosF          = [2]byte{0x16, 0x30}
	SelAngle         = [2]byte{0x16, 0x51}
	SelFrequency     = [2]byte{0x16, 0x40}
	SelPower         = [2]byte{0x16, 0x00}
	SelReactivePower = [2]byte{0x16, 0x08}
	SelSnapshot      = [2]byte{0x14, 0xA0}
)

// Expected payload lengths (address and CRC stripped)
const (
	statusLength     = 1
	timeLength       = 8
	energyLength     = 16
	phaseLength      = 9
	phaseSumLength   = 12
	frequencyLength  = 3
	energyScale      = 1000
	measurementScale = 100
	cosFScale        = 1000
)

// Period selects an energy accumulation register for CmdGetEnergy.
type Period uint8

// Energy periods
const (
	PeriodSinceReset Period = 0x00
	PeriodYear       Period = 0x01
	PeriodLastYear   Period = 0x02
	PeriodMonth      Period = 0x03
	PeriodToday      Period = 0x04
	PeriodYesterday  Period = 0x05
)

// Tariff selects a tariff register; TariffSum is the sum over all tariffs.
type Tariff uint8

// Tariff values
const (
	TariffSum Tariff = 0x00
	Tariff1   Tariff = 0x01
	Tariff2   Tariff = 0x02
	Tariff3   Tariff = 0x03
	Tariff4   Tariff = 0x04
)
