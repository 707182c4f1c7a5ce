// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"strings"
)

// StatusCode is a status returned by the provisioning firmware.
type StatusCode uint32

const (
	StatusSuccess          StatusCode = 0
	StatusFail             StatusCode = 1
	StatusReadOnly         StatusCode = 2
	StatusOutOfRange       StatusCode = 3
	StatusInvalidArgument  StatusCode = 4
	StatusTimeout          StatusCode = 5
	StatusUnknownCommand   StatusCode = 10000
	StatusSecurityViolated StatusCode = 10001
	StatusAbortDataPhase   StatusCode = 10002
	StatusPingError        StatusCode = 10003
	StatusNoResponse       StatusCode = 10004
	StatusUnsupportedCmd   StatusCode = 10006

	// StatusProvisioned is the value the firmware returns once every secure
	// object has been provisioned.
	StatusProvisioned StatusCode = 0x5a5a5a5a
)

type statusInfo struct {
	name string
	desc string
}

var statusTable = map[StatusCode]statusInfo{
	StatusSuccess:          {"Success", "Success"},
	StatusFail:             {"Fail", "Fail"},
	StatusReadOnly:         {"ReadOnly", "Read Only Error"},
	StatusOutOfRange:       {"OutOfRange", "Out Of Range Error"},
	StatusInvalidArgument:  {"InvalidArgument", "Invalid Argument Error"},
	StatusTimeout:          {"Timeout", "Timeout Error"},
	StatusUnknownCommand:   {"UnknownCommand", "Unknown Command"},
	StatusSecurityViolated: {"SecurityViolation", "Security Violation"},
	StatusAbortDataPhase:   {"AbortDataPhase", "Abort Data Phase"},
	StatusPingError:        {"PingError", "Ping Error"},
	StatusNoResponse:       {"NoResponse", "No response packet from target device"},
	StatusUnsupportedCmd:   {"UnsupportedCommand", "Unsupported Command"},
	StatusProvisioned:      {"EL2GO_FW_PASS", "Device has been successfully provisioned."},
}

// Name returns the symbolic name of the code, or "Unknown".
func (o StatusCode) Name() string {
	if s, ok := statusTable[o]; ok {
		return s.name
	}
	return "Unknown"
}

// Description returns the human readable description of the code. Unknown
// codes are described as "Unknown error code (N)".
func (o StatusCode) Description() string {
	if s, ok := statusTable[o]; ok {
		return s.desc
	}
	return fmt.Sprintf("Unknown error code (%d)", uint32(o))
}

func (o StatusCode) String() string {
	return fmt.Sprintf("%d (%#x) %s", uint32(o), uint32(o), o.Description())
}

// FormatFirmwareVersion renders the version word returned by the firmware,
// whose hex digits encode major (1 digit), minor (2) and patch (2), e.g.
// 0x10203 is "v1.02.03".
func FormatFirmwareVersion(word uint32) (string, error) {
	s := fmt.Sprintf("%x", word)
	if len(s) != 5 {
		return "", fmt.Errorf("unexpected firmware version word %#x", word)
	}

	return strings.Join([]string{"v" + s[0:1], s[1:3], s[3:5]}, "."), nil
}
