// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package mercury

// CalculateCRC computes the reflected CRC-16 (polynomial 0xA001) of data and
// returns it as [low, high].
func CalculateCRC(data []byte) [CRCLength]byte {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ crcPolynomial
			} else {
				crc >>= 1
			}
		}
	}
	return [CRCLength]byte{byte(crc), byte(crc >> 8)}
}

// MatchCRC reports whether candidate holds exactly the computed checksum,
// low byte first.
func MatchCRC(candidate []byte, computed [CRCLength]byte) bool {
	return len(candidate) == CRCLength &&
		candidate[0] == computed[0] &&
		candidate[1] == computed[1]
}
