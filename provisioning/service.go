// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package provisioning

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/NXP/el2go-tp-app/auth"
	"github.com/NXP/el2go-tp-app/common"
	"github.com/NXP/el2go-tp-app/config"
	"go.uber.org/zap"
)

// Service is the client side of the EdgeLock 2GO provisioning API. It keeps
// no state between calls: every operation takes the run configuration and
// builds its URL and headers from it.
type Service struct {
	// Client is the underlying client used for HTTP requests.
	Client *common.Client
	Log    *zap.SugaredLogger
}

// NewService creates a new Service using the supplied client, or the
// default one when client is nil.
func NewService(client *common.Client, log *zap.SugaredLogger) *Service {
	if client == nil {
		client = common.NewClient()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Service{Client: client, Log: log}
}

// SetClient sets the HTTP(s) client connection configuration
func (o *Service) SetClient(client *common.Client) error {
	if client == nil {
		return errors.New("no client supplied")
	}

	o.Client = client

	return nil
}

// AssignDeviceToGroup adds the configured device to the configured
// device-group. If the device is registered in another group the returned
// error matches common.ErrAssignmentConflict.
func (o *Service) AssignDeviceToGroup(cfg *config.Config) error {
	ep, err := o.groupEndpoint(cfg, cfg.DeviceGroupID, "devices")
	if err != nil {
		return err
	}

	body, err := json.Marshal(DeviceIDs{DeviceIDs: []string{cfg.DeviceID}})
	if err != nil {
		return err
	}

	res, err := o.post(cfg, ep, body)
	if err != nil {
		return err
	}

	defer res.Body.Close()

	return nil
}

// ListDeviceGroups returns the ids of every device-group of the configured
// product, in the order the backend lists them.
func (o *Service) ListDeviceGroups(cfg *config.Config) ([]string, error) {
	ep, err := o.productEndpoint(cfg, "device-groups")
	if err != nil {
		return nil, err
	}

	var page deviceGroupsPage
	if err := o.getJSON(cfg, ep, &page); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(page.Content))
	for _, g := range page.Content {
		ids = append(ids, string(g.ID))
	}

	return ids, nil
}

// ListGroupMembers returns the ids of the devices in groupID.
func (o *Service) ListGroupMembers(cfg *config.Config, groupID string) ([]string, error) {
	ep, err := o.groupEndpoint(cfg, groupID, "devices")
	if err != nil {
		return nil, err
	}

	var page groupDevicesPage
	if err := o.getJSON(cfg, ep, &page); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(page.Content))
	for _, d := range page.Content {
		ids = append(ids, string(d.Device.ID))
	}

	return ids, nil
}

// UnclaimDevice removes the configured device from groupID.
func (o *Service) UnclaimDevice(cfg *config.Config, groupID string) error {
	ep, err := o.groupEndpoint(cfg, groupID, "unclaim")
	if err != nil {
		return err
	}

	body, err := json.Marshal(DeviceIDs{DeviceIDs: []string{cfg.DeviceID}})
	if err != nil {
		return err
	}

	res, err := o.post(cfg, ep, body)
	if err != nil {
		return err
	}

	defer res.Body.Close()

	return nil
}

// QueryGenerationStatus returns the first provisioning state that is not
// GENERATION_COMPLETED among the device's secure object provisionings, or
// GENERATION_COMPLETED when all of them are (including when there are none).
func (o *Service) QueryGenerationStatus(cfg *config.Config) (string, error) {
	ep, err := o.endpoint(cfg, "rtp", "devices", cfg.DeviceID, "secure-object-provisionings")
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("hardware-family-type", cfg.HardwareFamilyType)
	ep.RawQuery = q.Encode()

	var page secureObjectProvisioningsPage
	if err := o.getJSON(cfg, ep, &page); err != nil {
		return "", err
	}

	if page.Content == nil {
		return "", fmt.Errorf("%w: GET %s: response has no content", common.ErrBackendRejected, ep)
	}

	for _, p := range *page.Content {
		if p.ProvisioningState != common.StateGenerationCompleted {
			return p.ProvisioningState, nil
		}
	}

	return common.StateGenerationCompleted, nil
}

// DownloadBundle fetches the secure objects generated for the configured
// device and returns the raw response body.
func (o *Service) DownloadBundle(cfg *config.Config) ([]byte, error) {
	ep, err := o.endpoint(cfg, "rtp", "device-groups", cfg.DeviceGroupID, "devices", "download-provisionings")
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(DownloadRequest{
		ProductHardwareFamilyType: cfg.HardwareFamilyType,
		DeviceIDs:                 []string{cfg.DeviceID},
	})
	if err != nil {
		return nil, err
	}

	res, err := o.post(cfg, ep, body)
	if err != nil {
		return nil, err
	}

	raw, err := common.ReadBody(res)
	if err != nil {
		return nil, fmt.Errorf("%w: reading download response: %v", common.ErrBackendUnavailable, err)
	}

	return raw, nil
}

// endpoint validates cfg and returns the API base URL joined with segments.
func (o *Service) endpoint(cfg *config.Config, segments ...string) (*url.URL, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base, err := common.ParseBaseURI(cfg.Backend.APIURL)
	if err != nil {
		return nil, fmt.Errorf("%w: edgelock2goApiUrl: %v", common.ErrConfigInvalid, err)
	}

	return base.JoinPath(segments...), nil
}

func (o *Service) productEndpoint(cfg *config.Config, segments ...string) (*url.URL, error) {
	if cfg.ProductID == "" {
		return nil, fmt.Errorf("%w: nc12 is required for device-group operations", common.ErrConfigInvalid)
	}

	return o.endpoint(cfg, append([]string{"products", cfg.ProductID}, segments...)...)
}

func (o *Service) groupEndpoint(cfg *config.Config, groupID string, segments ...string) (*url.URL, error) {
	return o.productEndpoint(cfg, append([]string{"device-groups", groupID}, segments...)...)
}

func headers(cfg *config.Config) (http.Header, error) {
	a := &auth.APIKeyAuthenticator{}
	if err := a.Configure(map[string]interface{}{"api_key": cfg.Backend.APIKey}); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigInvalid, err)
	}

	h, err := auth.Headers(a)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigInvalid, err)
	}

	return h, nil
}

func (o *Service) post(cfg *config.Config, ep *url.URL, body []byte) (*http.Response, error) {
	h, err := headers(cfg)
	if err != nil {
		return nil, err
	}

	o.log().Debugw("backend request", "method", http.MethodPost, "url", ep.String(), "request", string(body))

	res, err := o.Client.PostResource(h, body, ep.String())
	if err != nil {
		return nil, err
	}

	if err := o.check(res, body); err != nil {
		return nil, err
	}

	return res, nil
}

func (o *Service) getJSON(cfg *config.Config, ep *url.URL, j interface{}) error {
	h, err := headers(cfg)
	if err != nil {
		return err
	}

	o.log().Debugw("backend request", "method", http.MethodGet, "url", ep.String())

	res, err := o.Client.GetResource(h, ep.String())
	if err != nil {
		return err
	}

	if err := o.check(res, nil); err != nil {
		return err
	}

	if err := common.DecodeJSONBody(res, j); err != nil {
		return fmt.Errorf("%w: GET %s: failure decoding response: %v", common.ErrBackendRejected, ep, err)
	}

	return nil
}

// check classifies res and logs the failing exchange. The recoverable
// conflict is logged at info level since the caller is expected to handle it.
func (o *Service) check(res *http.Response, body []byte) error {
	err := common.CheckResponse(res, body)
	if err == nil {
		return nil
	}

	var be *common.BackendError
	if !errors.As(err, &be) {
		return err
	}

	kv := []interface{}{
		"url", be.URL,
		"status", be.StatusCode,
		"response", string(be.ResponseBody),
	}
	if len(body) > 0 {
		kv = append(kv, "request", string(body))
	}

	if be.IsConflict() {
		o.log().Infow("device is already assigned in another device-group", kv...)
	} else {
		o.log().Errorw("API call failed", kv...)
	}

	return err
}

var nopLog = zap.NewNop().Sugar()

func (o *Service) log() *zap.SugaredLogger {
	if o.Log == nil {
		return nopLog
	}
	return o.Log
}
