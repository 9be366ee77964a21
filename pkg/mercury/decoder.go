// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package mercury

import (
	"fmt"
	"math"
)

// Reserved flag bits in the most significant byte of packed values
const valueMask = 0x3F

// DecodeThreeBytes decodes a 3-byte packed value at offset and divides it by
// scale. Byte lanes: b[0] holds bits 16-21 (top two bits are flags), b[1]
// bits 0-7 and b[2] bits 8-15.
func DecodeThreeBytes(b []byte, offset int, scale float64) float64 {
	value := uint32(b[offset]&valueMask)<<16 |
		uint32(b[offset+1]) |
		uint32(b[offset+2])<<8
	return float64(value) / scale
}

// DecodeFourBytes decodes a 4-byte packed value at offset and divides it by
// scale. Byte lanes: b[0] holds bits 16-23, b[1] bits 24-29 (top two bits are
// flags), b[2] bits 0-7 and b[3] bits 8-15.
func DecodeFourBytes(b []byte, offset int, scale float64) float64 {
	value := uint32(b[offset])<<16 |
		uint32(b[offset+1]&valueMask)<<24 |
		uint32(b[offset+2]) |
		uint32(b[offset+3])<<8
	return float64(value) / scale
}

// EncodeThreeBytes is the inverse of DecodeThreeBytes for values that fit
// in 22 bits after scaling.
func EncodeThreeBytes(v, scale float64) [3]byte {
	raw := scaled(v, scale)
	return [3]byte{
		byte(raw>>16) & valueMask,
		byte(raw),
		byte(raw >> 8),
	}
}

// EncodeFourBytes is the inverse of DecodeFourBytes for values that fit in
// 30 bits after scaling.
func EncodeFourBytes(v, scale float64) [4]byte {
	raw := scaled(v, scale)
	return [4]byte{
		byte(raw >> 16),
		byte(raw>>24) & valueMask,
		byte(raw),
		byte(raw >> 8),
	}
}

func scaled(v, scale float64) uint32 {
	if v <= 0 {
		return 0
	}
	return uint32(math.Round(v * scale))
}

// DecodeBCD decodes one packed BCD byte (0x59 -> 59).
func DecodeBCD(b byte) (int, error) {
	hi, lo := b>>4, b&0x0F
	if hi > 9 || lo > 9 {
		return 0, fmt.Errorf("%w: 0x%02X", ErrInvalidBCD, b)
	}
	return int(hi)*10 + int(lo), nil
}

// EncodeBCD packs a value in 0..99 as BCD.
func EncodeBCD(v int) byte {
	v %= 100
	return byte(v/10)<<4 | byte(v%10)
}
