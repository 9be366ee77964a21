// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package mercury

import (
	"errors"
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestDecodeThreeBytes(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		offset int
		scale  float64
		want   float64
	}{
		{"one volt", []byte{0x00, 0x64, 0x00}, 0, 100, 1.00},
		{"230.01 V", []byte{0x00, 0xD9, 0x59}, 0, 100, 230.01},
		{"high byte", []byte{0x01, 0x00, 0x00}, 0, 1, 65536},
		{"flag bits masked", []byte{0xC0, 0x64, 0x00}, 0, 100, 1.00},
		{"offset", []byte{0xFF, 0xFF, 0xFF, 0x00, 0xE8, 0x03}, 3, 1000, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeThreeBytes(tt.data, tt.offset, tt.scale)
			if !almostEqual(got, tt.want) {
				t.Errorf("DecodeThreeBytes(% X, %d, %v) = %v, want %v", tt.data, tt.offset, tt.scale, got, tt.want)
			}
		})
	}
}

func TestDecodeFourBytes(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		offset int
		scale  float64
		want   float64
	}{
		{"one kWh", []byte{0x00, 0x00, 0xE8, 0x03}, 0, 1000, 1.0},
		{"byte 0 is bits 16-23", []byte{0x01, 0x00, 0x00, 0x00}, 0, 1, 65536},
		{"byte 1 is bits 24-29", []byte{0x00, 0x01, 0x00, 0x00}, 0, 1, 16777216},
		{"flag bits masked", []byte{0x00, 0xC0, 0xE8, 0x03}, 0, 1000, 1.0},
		{"offset", []byte{0xAA, 0xAA, 0xAA, 0xAA, 0x00, 0x00, 0x10, 0x27}, 4, 1000, 10.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeFourBytes(tt.data, tt.offset, tt.scale)
			if !almostEqual(got, tt.want) {
				t.Errorf("DecodeFourBytes(% X, %d, %v) = %v, want %v", tt.data, tt.offset, tt.scale, got, tt.want)
			}
		})
	}
}

func TestEncodeDecode_Inverse(t *testing.T) {
	for _, v := range []float64{0, 1, 230.01, 49.98, 12345.67, 41943.03} {
		three := EncodeThreeBytes(v, 100)
		if got := DecodeThreeBytes(three[:], 0, 100); !almostEqual(got, v) {
			t.Errorf("three bytes: %v -> % X -> %v", v, three, got)
		}
	}
	for _, v := range []float64{0, 1, 0.001, 123456.789, 1073741.823} {
		four := EncodeFourBytes(v, 1000)
		if got := DecodeFourBytes(four[:], 0, 1000); !almostEqual(got, v) {
			t.Errorf("four bytes: %v -> % X -> %v", v, four, got)
		}
	}
}

func TestDecodeBCD(t *testing.T) {
	tests := []struct {
		in      byte
		want    int
		wantErr bool
	}{
		{0x00, 0, false},
		{0x09, 9, false},
		{0x10, 10, false},
		{0x59, 59, false},
		{0x99, 99, false},
		{0x1A, 0, true},
		{0xA1, 0, true},
	}
	for _, tt := range tests {
		got, err := DecodeBCD(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidBCD) {
				t.Errorf("DecodeBCD(0x%02X) error = %v, want %v", tt.in, err, ErrInvalidBCD)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("DecodeBCD(0x%02X) = %d, %v, want %d", tt.in, got, err, tt.want)
		}
		if EncodeBCD(got) != tt.in {
			t.Errorf("EncodeBCD(%d) = 0x%02X, want 0x%02X", got, EncodeBCD(got), tt.in)
		}
	}
}
