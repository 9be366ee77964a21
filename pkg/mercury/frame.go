// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package mercury

import "fmt"

// BuildFrame assembles a request frame: address, command, params and the CRC
// over those bytes.
func BuildFrame(address, command byte, params ...byte) []byte {
	frame := make([]byte, 0, 2+len(params)+CRCLength)
	frame = append(frame, address, command)
	frame = append(frame, params...)
	crc := CalculateCRC(frame)
	return append(frame, crc[0], crc[1])
}

// EncodeResponse assembles a response frame as a meter would send it.
func EncodeResponse(address byte, payload ...byte) []byte {
	frame := make([]byte, 0, 1+len(payload)+CRCLength)
	frame = append(frame, address)
	frame = append(frame, payload...)
	crc := CalculateCRC(frame)
	return append(frame, crc[0], crc[1])
}

// ParseFrame validates a response frame received for a request sent to
// address and returns its payload with the address and CRC stripped.
// Length is checked first, then the CRC, then the echoed address.
func ParseFrame(raw []byte, address byte) ([]byte, error) {
	if len(raw) < MinResponseLength || len(raw) > MaxResponseLength {
		return nil, fmt.Errorf("%w: frame is %d bytes (valid %d-%d)",
			ErrWrongLength, len(raw), MinResponseLength, MaxResponseLength)
	}

	body := raw[:len(raw)-CRCLength]
	if !MatchCRC(raw[len(body):], CalculateCRC(body)) {
		return nil, fmt.Errorf("%w: received 0x%02X%02X", ErrWrongCRC, raw[len(raw)-1], raw[len(raw)-2])
	}

	if raw[0] != address {
		return nil, fmt.Errorf("%w: sent to %d, answered by %d", ErrWrongAddress, address, raw[0])
	}

	payload := make([]byte, len(body)-1)
	copy(payload, body[1:])
	return payload, nil
}

// ParseRequest validates a request frame as a meter receives it.
func ParseRequest(raw []byte) (address, command byte, params []byte, err error) {
	if len(raw) < MinRequestLength {
		return 0, 0, nil, fmt.Errorf("%w: request is %d bytes (min %d)", ErrWrongLength, len(raw), MinRequestLength)
	}

	body := raw[:len(raw)-CRCLength]
	if !MatchCRC(raw[len(body):], CalculateCRC(body)) {
		return 0, 0, nil, ErrWrongCRC
	}

	params = make([]byte, len(body)-2)
	copy(params, body[2:])
	return body[0], body[1], params, nil
}

// IsInitRequired reports whether a payload is the meter's request to open
// the channel before anything else. The check is on the whole payload; a
// one-byte data payload equal to 5 is indistinguishable from it.
func IsInitRequired(payload []byte) bool {
	return len(payload) == 1 && payload[0] == initRequiredStatus
}

func checkLength(payload []byte, want int) error {
	if len(payload) != want {
		return fmt.Errorf("%w: payload is %d bytes, want %d", ErrWrongLength, len(payload), want)
	}
	return nil
}
