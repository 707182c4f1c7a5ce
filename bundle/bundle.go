// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/NXP/el2go-tp-app/common"
)

// DeviceProvisioning is one per-device record of the bundle.
type DeviceProvisioning struct {
	RtpProvisionings *[]RtpProvisioning `json:"rtpProvisionings"`
}

// RtpProvisioning is a single secure object entry.
type RtpProvisioning struct {
	Apdus *Apdus `json:"apdus"`
}

type Apdus struct {
	CreateApdu *CreateApdu `json:"createApdu"`
}

type CreateApdu struct {
	// Apdu is the base64 encoded command.
	Apdu *string `json:"apdu"`
}

// DecodeRecords parses raw and returns the decoded APDUs, grouped per record
// and kept in order.
func DecodeRecords(raw []byte) ([][][]byte, error) {
	var list *[]DeviceProvisioning

	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrArtifactDecode, err)
	}

	if list == nil {
		return nil, fmt.Errorf("%w: no provisioning records", common.ErrArtifactDecode)
	}

	records := *list

	out := make([][][]byte, 0, len(records))

	for i, rec := range records {
		if rec.RtpProvisionings == nil {
			return nil, fmt.Errorf("%w: record %d: missing rtpProvisionings", common.ErrArtifactDecode, i)
		}

		apdus := make([][]byte, 0, len(*rec.RtpProvisionings))

		for j, p := range *rec.RtpProvisionings {
			if p.Apdus == nil || p.Apdus.CreateApdu == nil || p.Apdus.CreateApdu.Apdu == nil {
				return nil, fmt.Errorf("%w: record %d entry %d: missing apdus.createApdu.apdu", common.ErrArtifactDecode, i, j)
			}

			b, err := base64.StdEncoding.DecodeString(*p.Apdus.CreateApdu.Apdu)
			if err != nil {
				return nil, fmt.Errorf("%w: record %d entry %d: %v", common.ErrArtifactDecode, i, j, err)
			}

			apdus = append(apdus, b)
		}

		out = append(out, apdus)
	}

	return out, nil
}

// Decode parses raw and returns the concatenation of every APDU in
// record/entry order.
func Decode(raw []byte) ([]byte, error) {
	records, err := DecodeRecords(raw)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for _, rec := range records {
		for _, apdu := range rec {
			buf.Write(apdu)
		}
	}

	return buf.Bytes(), nil
}

// Encode is the inverse of DecodeRecords.
func Encode(records [][][]byte) ([]byte, error) {
	out := make([]DeviceProvisioning, 0, len(records))

	for _, rec := range records {
		entries := make([]RtpProvisioning, 0, len(rec))
		for _, apdu := range rec {
			s := base64.StdEncoding.EncodeToString(apdu)
			entries = append(entries, RtpProvisioning{
				Apdus: &Apdus{CreateApdu: &CreateApdu{Apdu: &s}},
			})
		}
		out = append(out, DeviceProvisioning{RtpProvisionings: &entries})
	}

	return json.Marshal(out)
}
