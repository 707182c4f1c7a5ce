// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package provisioning

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/NXP/el2go-tp-app/common"
	"github.com/NXP/el2go-tp-app/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testBaseURI   = "http://el2go.example/api/v1"
	testAPIKey    = "s3cr3t"
	testProduct   = "935386983598"
	testGroup     = "10"
	testDevice    = "4242"
	testHwFamily  = "RW61x"
	conflictReply = `{"details":"1 of 1 devices are already registered."}`

	assignPath   = "POST /api/v1/products/935386983598/device-groups/10/devices"
	groupsPath   = "GET /api/v1/products/935386983598/device-groups"
	statusPath   = "GET /api/v1/rtp/devices/4242/secure-object-provisionings"
	downloadPath = "POST /api/v1/rtp/device-groups/10/devices/download-provisionings"
)

func membersPath(group string) string {
	return fmt.Sprintf("GET /api/v1/products/935386983598/device-groups/%s/devices", group)
}

func unclaimPath(group string) string {
	return fmt.Sprintf("POST /api/v1/products/935386983598/device-groups/%s/unclaim", group)
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Backend: config.Backend{
			Hostname: "el2go.example",
			APIKey:   testAPIKey,
			APIURL:   testBaseURI,
		},
		DeviceGroupID:      testGroup,
		DeviceID:           testDevice,
		ProductID:          testProduct,
		HardwareFamilyType: testHwFamily,
		FirstFuseAddress:   0x60,
		LastFuseAddress:    0x63,
		Delay:              time.Second,
		Timeout:            10 * time.Second,
		Output:             filepath.Join(t.TempDir(), common.DefaultArtifactPath),
	}
}

// routes maps "METHOD /path" to a handler; anything else is a 404.
type routes map[string]http.HandlerFunc

func (o routes) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h, ok := o[r.Method+" "+r.URL.Path]; ok {
		h(w, r)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func reply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

// sequence replies with the given bodies in turn, repeating the last one.
func sequence(bodies ...string) http.HandlerFunc {
	i := 0
	return func(w http.ResponseWriter, r *http.Request) {
		body := bodies[i]
		if i < len(bodies)-1 {
			i++
		}
		reply(http.StatusOK, body)(w, r)
	}
}

func statusPage(states ...string) string {
	s := `{"content":[`
	for i, st := range states {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf(`{"provisioningState":%q}`, st)
	}
	return s + `]}`
}

func newTestService(t *testing.T, h http.Handler) (*Service, *common.RecordingHandler, *observer.ObservedLogs) {
	rec := &common.RecordingHandler{Next: h}

	client, teardown := common.NewTestingHTTPClient(rec)
	t.Cleanup(teardown)

	core, logs := observer.New(zapcore.DebugLevel)

	return NewService(client, zap.New(core).Sugar()), rec, logs
}

func TestService_SetClient(t *testing.T) {
	svc := NewService(nil, nil)
	assert.NotNil(t, svc.Client)

	err := svc.SetClient(nil)
	assert.EqualError(t, err, "no client supplied")

	err = svc.SetClient(common.NewClient())
	assert.NoError(t, err)
}

func TestService_AssignDeviceToGroup_ok(t *testing.T) {
	svc, rec, _ := newTestService(t, routes{assignPath: reply(http.StatusCreated, `{}`)})

	err := svc.AssignDeviceToGroup(testConfig(t))
	require.NoError(t, err)

	reqs := rec.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "application/json", reqs[0].Header.Get("Accept"))
	assert.Equal(t, testAPIKey, reqs[0].Header.Get("EL2G-API-Key"))
	assert.Equal(t, "application/json", reqs[0].Header.Get("Content-Type"))
	assert.JSONEq(t, `{"deviceIds":["4242"]}`, string(reqs[0].Body))
}

func TestService_AssignDeviceToGroup_conflict(t *testing.T) {
	svc, _, logs := newTestService(t, routes{assignPath: reply(http.StatusUnprocessableEntity, conflictReply)})

	err := svc.AssignDeviceToGroup(testConfig(t))
	assert.ErrorIs(t, err, common.ErrAssignmentConflict)
	assert.False(t, errors.Is(err, common.ErrBackendRejected))

	assert.Equal(t, 1, logs.FilterMessage("device is already assigned in another device-group").Len())
}

func TestService_AssignDeviceToGroup_422_other_details(t *testing.T) {
	svc, _, _ := newTestService(t, routes{assignPath: reply(http.StatusUnprocessableEntity, `{"details":"device group is full"}`)})

	err := svc.AssignDeviceToGroup(testConfig(t))
	assert.ErrorIs(t, err, common.ErrBackendRejected)
	assert.False(t, errors.Is(err, common.ErrAssignmentConflict))
}

func TestService_AssignDeviceToGroup_rejected(t *testing.T) {
	svc, _, logs := newTestService(t, routes{assignPath: reply(http.StatusInternalServerError, `{"details":"boom"}`)})

	err := svc.AssignDeviceToGroup(testConfig(t))
	require.ErrorIs(t, err, common.ErrBackendRejected)

	var be *common.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.MethodPost, be.Method)
	assert.Equal(t, http.StatusInternalServerError, be.StatusCode)
	assert.Equal(t, "boom", be.Details)
	assert.JSONEq(t, `{"deviceIds":["4242"]}`, string(be.RequestBody))
	assert.Contains(t, be.URL, "/api/v1/products/935386983598/device-groups/10/devices")

	entries := logs.FilterMessage("API call failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusInternalServerError), fields["status"])
	assert.Equal(t, `{"details":"boom"}`, fields["response"])
	assert.Equal(t, `{"deviceIds":["4242"]}`, fields["request"])
	assert.Contains(t, fields["url"], "/device-groups/10/devices")
}

func TestService_invalid_config_makes_no_call(t *testing.T) {
	svc, rec, _ := newTestService(t, routes{})

	cfg := testConfig(t)
	cfg.DeviceID = ""

	err := svc.AssignDeviceToGroup(cfg)
	assert.ErrorIs(t, err, common.ErrConfigInvalid)

	_, err = svc.QueryGenerationStatus(cfg)
	assert.ErrorIs(t, err, common.ErrConfigInvalid)

	cfg = testConfig(t)
	cfg.ProductID = ""

	_, err = svc.ListDeviceGroups(cfg)
	assert.ErrorIs(t, err, common.ErrConfigInvalid)

	assert.Empty(t, rec.Requests())
}

func TestService_unreachable_backend(t *testing.T) {
	client, teardown := common.NewTestingHTTPClient(routes{})
	teardown()

	svc := NewService(client, nil)

	err := svc.AssignDeviceToGroup(testConfig(t))
	assert.ErrorIs(t, err, common.ErrBackendUnavailable)
}

func TestService_ListDeviceGroups(t *testing.T) {
	svc, _, _ := newTestService(t, routes{
		groupsPath: reply(http.StatusOK, `{"content":[{"id":1},{"id":"2"},{"id":30000000000}]}`),
	})

	groups, err := svc.ListDeviceGroups(testConfig(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "30000000000"}, groups)
}

func TestService_ListDeviceGroups_bad_body(t *testing.T) {
	svc, _, _ := newTestService(t, routes{groupsPath: reply(http.StatusOK, `not json`)})

	_, err := svc.ListDeviceGroups(testConfig(t))
	assert.ErrorIs(t, err, common.ErrBackendRejected)
}

func TestService_ListGroupMembers(t *testing.T) {
	svc, _, _ := newTestService(t, routes{
		membersPath("7"): reply(http.StatusOK, `{"content":[{"device":{"id":"111"}},{"device":{"id":4242}}]}`),
	})

	members, err := svc.ListGroupMembers(testConfig(t), "7")
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "4242"}, members)
}

func TestService_UnclaimDevice(t *testing.T) {
	svc, rec, _ := newTestService(t, routes{unclaimPath("7"): reply(http.StatusOK, `{}`)})

	err := svc.UnclaimDevice(testConfig(t), "7")
	require.NoError(t, err)

	reqs := rec.Requests()
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"deviceIds":["4242"]}`, string(reqs[0].Body))
}

func TestService_QueryGenerationStatus(t *testing.T) {
	for name, tc := range map[string]struct {
		body     string
		expected string
	}{
		"all completed": {
			statusPage(common.StateGenerationCompleted, common.StateGenerationCompleted),
			common.StateGenerationCompleted,
		},
		"no provisionings": {
			statusPage(),
			common.StateGenerationCompleted,
		},
		"first non completed wins": {
			statusPage(common.StateGenerationCompleted, common.StateGenerationTriggered, "GENERATION_FAILED"),
			common.StateGenerationTriggered,
		},
	} {
		t.Run(name, func(t *testing.T) {
			svc, rec, _ := newTestService(t, routes{statusPath: reply(http.StatusOK, tc.body)})

			status, err := svc.QueryGenerationStatus(testConfig(t))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, status)

			reqs := rec.Requests()
			require.Len(t, reqs, 1)
			assert.Equal(t, "hardware-family-type=RW61x", reqs[0].Query)
		})
	}
}

func TestService_QueryGenerationStatus_missing_content(t *testing.T) {
	for name, body := range map[string]string{
		"no content key": `{"error":"x"}`,
		"null content":   `{"content":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			svc, _, _ := newTestService(t, routes{statusPath: reply(http.StatusOK, body)})

			_, err := svc.QueryGenerationStatus(testConfig(t))
			assert.ErrorIs(t, err, common.ErrBackendRejected)
			assert.ErrorContains(t, err, "response has no content")
		})
	}
}

func TestService_DownloadBundle(t *testing.T) {
	payload := `[{"rtpProvisionings":[{"apdus":{"createApdu":{"apdu":"QUI="}}}]}]`

	svc, rec, _ := newTestService(t, routes{downloadPath: reply(http.StatusOK, payload)})

	raw, err := svc.DownloadBundle(testConfig(t))
	require.NoError(t, err)
	assert.Equal(t, payload, string(raw))

	reqs := rec.Requests()
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"productHardwareFamilyType":"RW61x","deviceIds":["4242"]}`, string(reqs[0].Body))
}

func TestService_DownloadBundle_rejected(t *testing.T) {
	svc, _, _ := newTestService(t, routes{downloadPath: reply(http.StatusForbidden, `{"details":"nope"}`)})

	_, err := svc.DownloadBundle(testConfig(t))
	assert.ErrorIs(t, err, common.ErrBackendRejected)
}
