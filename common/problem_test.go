// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/moogar0880/problems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResponse(status int, ct, body string) *http.Response {
	u, _ := url.Parse("http://el2go.example/api/v1/products/1/device-groups/2/devices")

	h := http.Header{}
	if ct != "" {
		h.Set("Content-Type", ct)
	}

	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    &http.Request{Method: http.MethodPost, URL: u},
	}
}

func TestCheckResponse_success(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusNoContent, 299} {
		res := testResponse(status, JSONMediaType, `{"ok":true}`)
		assert.NoError(t, CheckResponse(res, nil))

		// body left for the caller
		b, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		assert.Equal(t, `{"ok":true}`, string(b))
	}
}

func TestCheckResponse_conflict(t *testing.T) {
	res := testResponse(http.StatusUnprocessableEntity, JSONMediaType,
		`{"details":"1 of 1 devices are already registered."}`)

	err := CheckResponse(res, []byte(`{"deviceIds":["42"]}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAssignmentConflict))
	assert.False(t, errors.Is(err, ErrBackendRejected))

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.True(t, be.IsConflict())
	assert.Equal(t, `{"deviceIds":["42"]}`, string(be.RequestBody))
	assert.EqualError(t, err,
		`API call POST http://el2go.example/api/v1/products/1/device-groups/2/devices failed with 422, {"details":"1 of 1 devices are already registered."}`)
}

func TestCheckResponse_rejected(t *testing.T) {
	for _, status := range []int{http.StatusMultipleChoices, http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusInternalServerError} {
		res := testResponse(status, "text/plain", `nope`)

		err := CheckResponse(res, nil)
		assert.ErrorIs(t, err, ErrBackendRejected)
		assert.False(t, errors.Is(err, ErrAssignmentConflict))
	}
}

func TestCheckResponse_problem(t *testing.T) {
	res := testResponse(http.StatusUnprocessableEntity, problems.ProblemMediaType,
		`{"type":"about:blank","title":"Unprocessable Entity","status":422,"detail":"2 of 2 devices are already registered."}`)

	err := CheckResponse(res, nil)
	assert.ErrorIs(t, err, ErrAssignmentConflict)

	var be *BackendError
	require.ErrorAs(t, err, &be)
	require.NotNil(t, be.Problem)
	assert.Equal(t, "Unprocessable Entity", be.Problem.Title)
	assert.Equal(t, "2 of 2 devices are already registered.", be.Details)
}

func TestParseBaseURI(t *testing.T) {
	_, err := ParseBaseURI("api/v1")
	assert.EqualError(t, err, `URI is not absolute: "api/v1"`)

	_, err = ParseBaseURI(string([]byte{0x7f}))
	assert.ErrorContains(t, err, "malformed URI")

	u, err := ParseBaseURI("https://api.edgelock2go.com/api/v1")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/products/1", u.JoinPath("products", "1").Path)
}
