// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// APIKeyHeader is the header EdgeLock 2GO expects the API key in.
const APIKeyHeader = "EL2G-API-Key"

// APIKeyAuthenticator sends a static API key in a request header.
type APIKeyAuthenticator struct {
	Key string
	// Header defaults to APIKeyHeader.
	Header string
}

func (o *APIKeyAuthenticator) Configure(cfg map[string]interface{}) error {
	decoded := struct {
		Key    string                 `mapstructure:"api_key"`
		Header string                 `mapstructure:"header"`
		Rest   map[string]interface{} `mapstructure:",remain"`
	}{}

	if err := mapstructure.Decode(cfg, &decoded); err != nil {
		return err
	}

	o.Key = decoded.Key
	o.Header = decoded.Header

	if err := o.validate(); err != nil {
		return err
	}

	if len(decoded.Rest) > 0 {
		var unexpected []string
		for k := range decoded.Rest {
			unexpected = append(unexpected, k)
		}
		sort.Strings(unexpected)

		return fmt.Errorf("unexpected fields in config: %s",
			strings.Join(unexpected, ", "))
	}

	return nil
}

func (o *APIKeyAuthenticator) EncodeHeader() (string, string, error) {
	if err := o.validate(); err != nil {
		return "", "", err
	}

	name := o.Header
	if name == "" {
		name = APIKeyHeader
	}

	return name, o.Key, nil
}

// Headers returns the fixed header set sent with every backend request. It
// is built fresh on each call.
func Headers(a IAuthenticator) (http.Header, error) {
	name, value, err := a.EncodeHeader()
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set(name, value)

	return h, nil
}

func (o *APIKeyAuthenticator) validate() error {
	if o.Key == "" {
		return errors.New("missing api_key")
	}

	return nil
}
