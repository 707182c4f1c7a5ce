// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package provisioning

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is an EdgeLock 2GO identifier. The backend sends some ids as JSON
// numbers and others as strings; both decode to the same textual form.
type ID string

func (o *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither a string nor a number: %s", data)
	}
	*o = ID(n.String())

	return nil
}

// DeviceIDs is the request body of the assign and unclaim endpoints.
type DeviceIDs struct {
	DeviceIDs []string `json:"deviceIds"`
}

// DownloadRequest is the request body of the download-provisionings
// endpoint.
type DownloadRequest struct {
	ProductHardwareFamilyType string   `json:"productHardwareFamilyType"`
	DeviceIDs                 []string `json:"deviceIds"`
}

type deviceGroupsPage struct {
	Content []struct {
		ID ID `json:"id"`
	} `json:"content"`
}

type groupDevicesPage struct {
	Content []struct {
		Device struct {
			ID ID `json:"id"`
		} `json:"device"`
	} `json:"content"`
}

// A nil Content means the response carried no content at all.
type secureObjectProvisioningsPage struct {
	Content *[]struct {
		ProvisioningState string `json:"provisioningState"`
	} `json:"content"`
}
