// Copyright 2021 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
)

// NewTestingHTTPClient creates an HTTP test server (with a configurable request
// handler), an API Client and connects them together.  The API client and the
// server's shutdown switch are returned.
func NewTestingHTTPClient(handler http.Handler) (cli *Client, closerFn func()) {
	srv := httptest.NewServer(handler)

	cli = &Client{
		HTTPClient: http.Client{
			Transport: &http.Transport{
				DialContext: func(_ context.Context, network, _ string) (net.Conn, error) {
					return net.Dial(network, srv.Listener.Addr().String())
				},
			},
		},
	}

	closerFn = srv.Close

	return
}

// RecordedRequest is a request seen by a RecordingHandler.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// RecordingHandler wraps a handler and keeps every request it served, in
// order. The body is buffered before the wrapped handler sees it and is made
// available again through r.Body.
type RecordingHandler struct {
	Next http.Handler

	mu       sync.Mutex
	requests []RecordedRequest
}

func (o *RecordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body.Close()

	o.mu.Lock()
	o.requests = append(o.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	o.mu.Unlock()

	r.Body = io.NopCloser(bytes.NewReader(body))
	o.Next.ServeHTTP(w, r)
}

// Requests returns a copy of the recorded requests.
func (o *RecordingHandler) Requests() []RecordedRequest {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]RecordedRequest(nil), o.requests...)
}

// Paths returns "METHOD path" for every recorded request.
func (o *RecordingHandler) Paths() []string {
	var out []string
	for _, r := range o.Requests() {
		out = append(out, r.Method+" "+r.Path)
	}
	return out
}
