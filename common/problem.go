// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/moogar0880/problems"
)

// CheckResponse classifies res by status code. Any 2xx is a success and the
// body is left untouched for the caller. Otherwise the body is drained and a
// *BackendError is returned; errors.Is on it matches ErrAssignmentConflict
// for the recoverable 422 conflict and ErrBackendRejected for everything else.
func CheckResponse(res *http.Response, requestBody []byte) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: reading %d response body: %v", ErrBackendUnavailable, res.StatusCode, err)
	}

	be := &BackendError{
		StatusCode:   res.StatusCode,
		RequestBody:  requestBody,
		ResponseBody: body,
	}
	if res.Request != nil {
		be.Method = res.Request.Method
		be.URL = res.Request.URL.String()
	}

	if strings.HasPrefix(res.Header.Get("Content-Type"), problems.ProblemMediaType) {
		var prob problems.DefaultProblem
		if err := json.Unmarshal(body, &prob); err == nil {
			be.Problem = &prob
			be.Details = prob.Detail
		}
	} else {
		var j struct {
			Details string `json:"details"`
		}
		if err := json.Unmarshal(body, &j); err == nil {
			be.Details = j.Details
		}
	}

	return be
}
