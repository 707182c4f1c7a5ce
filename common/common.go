// Copyright 2021 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Provisioning states reported by the backend.
const (
	StateGenerationTriggered = "GENERATION_TRIGGERED"
	StateGenerationCompleted = "GENERATION_COMPLETED"
)

const (
	DefaultWarmUp       = 2 * time.Second
	DefaultArtifactPath = "Secure_Objects.bin"
)

// ParseBaseURI parses the backend base URI, which must be absolute.
func ParseBaseURI(uri string) (*url.URL, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("malformed URI: %w", err)
	}

	if !u.IsAbs() {
		return nil, fmt.Errorf("URI is not absolute: %q", uri)
	}

	return u, nil
}

func DecodeJSONBody(res *http.Response, j interface{}) error {
	defer res.Body.Close()

	return json.NewDecoder(res.Body).Decode(j)
}

// ReadBody drains and closes the response body.
func ReadBody(res *http.Response) ([]byte, error) {
	defer res.Body.Close()

	return io.ReadAll(res.Body)
}
