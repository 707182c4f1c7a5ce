// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) ReadFuse(addr uint32) (uint32, error) {
	return 0, errors.New("no response")
}

func TestReadDeviceID(t *testing.T) {
	r := WordsReader{Base: 0x60, Words: []uint32{0x04030201, 0x00000005}}

	id, err := ReadDeviceID(r, 0x60, 0x61)
	require.NoError(t, err)
	// bytes 01 02 03 04 05 00 00 00
	assert.Equal(t, "72623859789987840", id)

	id, err = ReadDeviceID(r, 0x61, 0x61)
	require.NoError(t, err)
	// bytes 05 00 00 00
	assert.Equal(t, "83886080", id)
}

func TestReadDeviceID_errors(t *testing.T) {
	r := WordsReader{Base: 0x60, Words: []uint32{1}}

	_, err := ReadDeviceID(r, 0x61, 0x60)
	assert.EqualError(t, err, "fuse range [0x61, 0x60] is empty")

	_, err = ReadDeviceID(r, 0x60, 0x61)
	assert.EqualError(t, err, "reading fuse 0x61: fuse address 0x61 out of range")

	_, err = ReadDeviceID(failingReader{}, 1, 4)
	assert.EqualError(t, err, "reading fuse 0x1: no response")
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "Success", StatusSuccess.Name())
	assert.Equal(t, "Device has been successfully provisioned.", StatusProvisioned.Description())
	assert.Equal(t, "EL2GO_FW_PASS", StatusProvisioned.Name())

	unknown := StatusCode(4242)
	assert.Equal(t, "Unknown", unknown.Name())
	assert.Equal(t, "Unknown error code (4242)", unknown.Description())
	assert.Equal(t, "4242 (0x1092) Unknown error code (4242)", unknown.String())
}

func TestFormatFirmwareVersion(t *testing.T) {
	v, err := FormatFirmwareVersion(0x10203)
	require.NoError(t, err)
	assert.Equal(t, "v1.02.03", v)

	_, err = FormatFirmwareVersion(0x1)
	assert.EqualError(t, err, "unexpected firmware version word 0x1")
}
