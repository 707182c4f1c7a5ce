// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/NXP/el2go-tp-app/common"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// source mirrors the configuration file. Numeric fields are pointers so that
// a missing entry can be told apart from a zero value.
type source struct {
	DeviceGroupID      string `mapstructure:"deviceGroupId"`
	DeviceID           string `mapstructure:"deviceId"`
	ProductID          string `mapstructure:"nc12"`
	HardwareFamilyType string `mapstructure:"hardwareFamilyType"`

	FirstFuseAddress *int `mapstructure:"firstFuseAddress"`
	LastFuseAddress  *int `mapstructure:"lastFuseAddress"`
	Delay            *int `mapstructure:"delay"`
	Timeout          *int `mapstructure:"timeout"`

	Reassign bool   `mapstructure:"reassign"`
	Output   string `mapstructure:"output"`

	Settings struct {
		Hostname string                 `mapstructure:"edgelock2goHostname"`
		APIKey   string                 `mapstructure:"edgelock2goApiKey"`
		APIURL   string                 `mapstructure:"edgelock2goApiUrl"`
		CACerts  []string               `mapstructure:"caCerts"`
		Rest     map[string]interface{} `mapstructure:",remain"`
	} `mapstructure:"el2goSettings"`

	Rest map[string]interface{} `mapstructure:",remain"`
}

var numericKeys = []string{"firstFuseAddress", "lastFuseAddress", "delay", "timeout"}

// maxSeconds is the largest delay or timeout that fits a time.Duration.
const maxSeconds = int64(math.MaxInt64 / time.Second)

// Option alters the raw configuration before it is decoded and validated.
type Option func(m map[string]interface{})

// Override sets the value at a dot-separated key path, e.g.
// "el2goSettings.edgelock2goApiKey". Empty strings and nil values are
// ignored so that unset command line flags leave the file value alone.
func Override(path string, value interface{}) Option {
	return func(m map[string]interface{}) {
		if value == nil {
			return
		}
		if s, ok := value.(string); ok && s == "" {
			return
		}

		keys := strings.Split(path, ".")
		for _, k := range keys[:len(keys)-1] {
			next, ok := m[k].(map[string]interface{})
			if !ok {
				next = map[string]interface{}{}
				m[k] = next
			}
			m = next
		}
		m[keys[len(keys)-1]] = value
	}
}

// Load reads the configuration file at path, applies opts and validates the
// result. The format is chosen by extension: .xml, .yaml or .yml. The device
// id is not required at this stage.
func Load(path string, opts ...Option) (*Config, error) {
	raw, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Decode(raw, opts...)
}

// ReadFile reads a configuration file into its generic map form.
func ReadFile(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: config file path %s not found: %v", common.ErrConfigInvalid, path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xml":
		m, err := parseXML(data)
		if err != nil {
			return nil, fmt.Errorf("%w: could not parse %s as a .xml file: %v", common.ErrConfigInvalid, path, err)
		}
		return m, nil
	case ".yaml", ".yml":
		m := map[string]interface{}{}
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: could not parse %s as a .yaml file: %v", common.ErrConfigInvalid, path, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unsupported config file extension %q", common.ErrConfigInvalid, ext)
	}
}

// Decode turns the generic map form into a validated Config.
func Decode(raw map[string]interface{}, opts ...Option) (*Config, error) {
	if raw == nil {
		raw = map[string]interface{}{}
	}

	for _, opt := range opts {
		opt(raw)
	}

	// Empty elements such as <timeout/> leave the setting unset; weak typing
	// would otherwise read them as 0.
	for _, k := range numericKeys {
		if v, ok := raw[k].(string); ok && strings.TrimSpace(v) == "" {
			delete(raw, k)
		}
	}

	var src source

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &src,
	})
	if err != nil {
		return nil, err
	}

	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigInvalid, err)
	}

	if unexpected := unexpectedKeys(src.Rest, src.Settings.Rest); unexpected != "" {
		return nil, fmt.Errorf("%w: unexpected fields in config: %s", common.ErrConfigInvalid, unexpected)
	}

	var problems []string
	for _, f := range []struct {
		name string
		v    *int
	}{
		{"firstFuseAddress", src.FirstFuseAddress},
		{"lastFuseAddress", src.LastFuseAddress},
		{"delay", src.Delay},
		{"timeout", src.Timeout},
	} {
		if f.v == nil {
			problems = append(problems, f.name+" cannot be empty")
		}
	}
	for _, f := range []struct {
		name string
		v    *int
	}{
		{"delay", src.Delay},
		{"timeout", src.Timeout},
	} {
		if f.v != nil && int64(*f.v) > maxSeconds {
			problems = append(problems, fmt.Sprintf("%s must not exceed %d seconds", f.name, maxSeconds))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", common.ErrConfigInvalid, strings.Join(problems, "; "))
	}

	cfg := &Config{
		Backend: Backend{
			Hostname: src.Settings.Hostname,
			APIKey:   src.Settings.APIKey,
			APIURL:   src.Settings.APIURL,
			CACerts:  src.Settings.CACerts,
		},
		DeviceGroupID:      src.DeviceGroupID,
		DeviceID:           src.DeviceID,
		ProductID:          src.ProductID,
		HardwareFamilyType: src.HardwareFamilyType,
		FirstFuseAddress:   *src.FirstFuseAddress,
		LastFuseAddress:    *src.LastFuseAddress,
		Delay:              time.Duration(*src.Delay) * time.Second,
		Timeout:            time.Duration(*src.Timeout) * time.Second,
		Reassign:           src.Reassign,
		Output:             src.Output,
	}

	if cfg.Output == "" {
		cfg.Output = common.DefaultArtifactPath
	}

	if err := cfg.validateSource(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func unexpectedKeys(sets ...map[string]interface{}) string {
	var unexpected []string
	for _, rest := range sets {
		for k := range rest {
			unexpected = append(unexpected, k)
		}
	}
	sort.Strings(unexpected)

	return strings.Join(unexpected, ", ")
}

// parseXML converts the children of the document's root element into a
// map. Elements without child elements become their trimmed text; repeated
// elements become a list.
func parseXML(data []byte) (map[string]interface{}, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("no root element")
			}
			return nil, err
		}

		if _, ok := tok.(xml.StartElement); ok {
			v, err := parseXMLElement(dec)
			if err != nil {
				return nil, err
			}
			m, ok := v.(map[string]interface{})
			if !ok {
				return map[string]interface{}{}, nil
			}
			return m, nil
		}
	}
}

func parseXMLElement(dec *xml.Decoder) (interface{}, error) {
	var (
		text     strings.Builder
		children map[string]interface{}
	)

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			v, err := parseXMLElement(dec)
			if err != nil {
				return nil, err
			}
			if children == nil {
				children = map[string]interface{}{}
			}
			name := t.Name.Local
			switch prev := children[name].(type) {
			case nil:
				children[name] = v
			case []interface{}:
				children[name] = append(prev, v)
			default:
				children[name] = []interface{}{prev, v}
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if children != nil {
				return children, nil
			}
			return strings.TrimSpace(text.String()), nil
		}
	}
}
