// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package mercury

import (
	"fmt"
	"strings"
)

// FormatCommand returns the human-readable name for a command and its params
func FormatCommand(command byte, params []byte) string {
	switch command {
	case CmdTestChannel:
		return "TEST_CHANNEL"
	case CmdOpenChannel:
		return "OPEN_CHANNEL"
	case CmdCloseChannel:
		return "CLOSE_CHANNEL"
	case CmdGetTime:
		return "GET_TIME"
	case CmdGetEnergy:
		if len(params) >= 2 {
			return fmt.Sprintf("GET_ENERGY(%s, month=%d, tariff=%d)",
				FormatPeriod(Period(params[0]>>4)), params[0]&0x0F, params[1])
		}
		return "GET_ENERGY"
	case CmdGetParameter:
		return formatParameter(params)
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", command)
	}
}

func formatParameter(params []byte) string {
	if len(params) < 2 {
		return "GET_PARAMETER"
	}
	switch [2]byte{params[0], params[1]} {
	case SelVoltage:
		return "GET_VOLTAGE"
	case SelCurrent:
		return "GET_CURRENT"
	case SelCosF:
		return "GET_COS_F"
	case SelAngle:
		return "GET_ANGLE"
	case SelFrequency:
		return "GET_FREQUENCY"
	case SelPower:
		return "GET_POWER"
	case SelReactivePower:
		return "GET_REACTIVE_POWER"
	case SelSnapshot:
		return "GET_ALL"
	default:
		return fmt.Sprintf("GET_PARAMETER(0x%02X 0x%02X)", params[0], params[1])
	}
}

// FormatPeriod returns the name of an energy period
func FormatPeriod(p Period) string {
	switch p {
	case PeriodSinceReset:
		return "SINCE_RESET"
	case PeriodYear:
		return "YEAR"
	case PeriodLastYear:
		return "LAST_YEAR"
	case PeriodMonth:
		return "MONTH"
	case PeriodToday:
		return "TODAY"
	case PeriodYesterday:
		return "YESTERDAY"
	default:
		return "UNKNOWN"
	}
}

// FormatFrame formats a frame as space separated hex bytes
func FormatFrame(frame []byte) string {
	var b strings.Builder
	for i, v := range frame {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}
