// Copyright 2021 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

const (
	JSONMediaType = "application/json"
)

// Client holds configuration data associated with the HTTP(s) session
type Client struct {
	HTTPClient http.Client
}

// NewClient instantiates a new Client
func NewClient() *Client {
	return &Client{
		HTTPClient: http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewTLSClient instantiates a new Client using the supplied transport, e.g.
// one returned by auth.NewTLSTransport.
func NewTLSClient(transport *http.Transport) *Client {
	c := NewClient()
	c.HTTPClient.Transport = transport
	return c
}

// GetResource issues a GET on uri with the supplied headers.
func (c Client) GetResource(header http.Header, uri string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("GET %q, request creation failed: %w", uri, err)
	}

	return c.do(req, header)
}

// PostResource issues a POST on uri with the supplied headers. A nil body
// sends an empty request; otherwise body is sent as application/json.
func (c Client) PostResource(header http.Header, body []byte, uri string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("POST %q, request creation failed: %w", uri, err)
	}

	if body != nil {
		req.Header.Set("Content-Type", JSONMediaType)
	}

	return c.do(req, header)
}

func (c Client) do(req *http.Request, header http.Header) (*http.Response, error) {
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	hc := &c.HTTPClient

	res, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %v", ErrBackendUnavailable, req.Method, req.URL, err)
	}

	return res, nil
}
