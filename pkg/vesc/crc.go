// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import "fmt"

// Checksum selects the CRC-16 variant used to protect frame payloads.
// Both variants use polynomial 0x1021 without reflection and differ only in
// the initial register value.
type Checksum int

// Checksum variants
const (
	// ChecksumCCITTFalse is CRC-16/CCITT-FALSE (init 0xFFFF).
	ChecksumCCITTFalse Checksum = iota
	// ChecksumXModem is CRC-16/XMODEM (init 0x0000), as used by stock VESC firmware.
	ChecksumXModem
)

// ParseChecksum maps a configuration name to a Checksum.
func ParseChecksum(name string) (Checksum, error) {
	switch name {
	case "", "ccitt-false":
		return ChecksumCCITTFalse, nil
	case "xmodem":
		return ChecksumXModem, nil
	}
	return 0, fmt.Errorf("unknown checksum %q (want ccitt-false or xmodem)", name)
}

// String returns the configuration name of the variant.
func (c Checksum) String() string {
	if c == ChecksumXModem {
		return "xmodem"
	}
	return "ccitt-false"
}

// Sum computes the checksum of data.
func (c Checksum) Sum(data []byte) uint16 {
	if c == ChecksumXModem {
		return calculateCRC(crcInitialXModem, data)
	}
	return calculateCRC(crcInitialFalse, data)
}

// CalculateCRC computes CRC-16/CCITT-FALSE checksum for the given data
func CalculateCRC(data []byte) uint16 {
	return calculateCRC(crcInitialFalse, data)
}

func calculateCRC(initial uint16, data []byte) uint16 {
	crc := initial
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
