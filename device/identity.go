// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

// Package device holds the boundary with the device-side firmware: deriving
// the EdgeLock 2GO device id from the UUID fuses and describing the status
// codes returned by the provisioning firmware. The transport used to talk to
// the device is not part of this package; readers are supplied by the caller.
package device

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// IdentityReader reads one 32-bit fuse word.
type IdentityReader interface {
	ReadFuse(addr uint32) (uint32, error)
}

// WordsReader serves fuse words already read from the device, indexed from
// Base.
type WordsReader struct {
	Base  uint32
	Words []uint32
}

func (o WordsReader) ReadFuse(addr uint32) (uint32, error) {
	if addr < o.Base || int(addr-o.Base) >= len(o.Words) {
		return 0, fmt.Errorf("fuse address %#x out of range", addr)
	}
	return o.Words[addr-o.Base], nil
}

// ReadDeviceID reads the fuse words in the inclusive range [start, end] and
// returns the device id as known to EdgeLock 2GO: the words are laid out
// byte-wise in little-endian order and the resulting big-endian number is
// rendered in decimal.
func ReadDeviceID(r IdentityReader, start, end uint32) (string, error) {
	if start > end {
		return "", fmt.Errorf("fuse range [%#x, %#x] is empty", start, end)
	}

	var sb strings.Builder

	for addr := start; ; addr++ {
		w, err := r.ReadFuse(addr)
		if err != nil {
			return "", fmt.Errorf("reading fuse %#x: %w", addr, err)
		}
		sb.WriteString(littleEndianHex(w))

		if addr == end {
			break
		}
	}

	id, ok := new(big.Int).SetString(sb.String(), 16)
	if !ok {
		return "", errors.New("fuse words do not form a number")
	}

	return id.String(), nil
}

func littleEndianHex(w uint32) string {
	return fmt.Sprintf("%02x%02x%02x%02x", w&0xff, (w>>8)&0xff, (w>>16)&0xff, (w>>24)&0xff)
}
