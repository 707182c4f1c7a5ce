// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/moogar0880/problems"
)

var (
	// ErrConfigInvalid is returned when the configuration is missing a
	// required field, holds an out-of-range value, or cannot be read.
	ErrConfigInvalid = errors.New("invalid configuration")
	// ErrBackendUnavailable is returned when the backend could not be
	// reached at all.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrBackendRejected is returned for any non-2xx, non-conflict response.
	ErrBackendRejected = errors.New("backend rejected request")
	// ErrAssignmentConflict signals that the device is already registered in
	// another device-group. It is recoverable.
	ErrAssignmentConflict = errors.New("device already registered in another device-group")
	// ErrAssignmentConflictUnresolved is returned when a conflict was reported
	// but could not be remediated.
	ErrAssignmentConflictUnresolved = errors.New("device-group assignment conflict unresolved")
	// ErrGenerationTimedOut is returned when secure objects generation did not
	// complete within the configured timeout.
	ErrGenerationTimedOut = errors.New("generation timed out")
	// ErrGenerationFailed is returned when the backend reports a terminal
	// non-success provisioning state.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrArtifactDecode is returned when the downloaded bundle is malformed.
	ErrArtifactDecode = errors.New("malformed secure objects bundle")
)

// ConflictDetails is the message the backend puts in the "details" field of
// a 422 response when the device is claimed by another device-group.
const ConflictDetails = "devices are already registered"

// BackendError describes a failed backend call with everything needed to
// reproduce it.
type BackendError struct {
	Method       string
	URL          string
	RequestBody  []byte
	StatusCode   int
	ResponseBody []byte
	// Details is the backend's "details" (or RFC 7807 "detail") message, if
	// any.
	Details string
	// Problem is set when the response was application/problem+json.
	Problem *problems.DefaultProblem
}

func (o *BackendError) Error() string {
	s := fmt.Sprintf("API call %s %s failed with %d", o.Method, o.URL, o.StatusCode)
	if len(o.ResponseBody) > 0 {
		s += ", " + string(o.ResponseBody)
	}
	return s
}

// IsConflict reports whether the response is the recoverable "already
// registered" conflict.
func (o *BackendError) IsConflict() bool {
	return o.StatusCode == http.StatusUnprocessableEntity &&
		strings.Contains(o.Details, ConflictDetails)
}

// Is makes BackendError match ErrAssignmentConflict or ErrBackendRejected.
func (o *BackendError) Is(target error) bool {
	switch target {
	case ErrAssignmentConflict:
		return o.IsConflict()
	case ErrBackendRejected:
		return !o.IsConflict()
	}
	return false
}
