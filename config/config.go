// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/NXP/el2go-tp-app/common"
	"github.com/go-playground/validator/v10"
)

// Backend holds the EdgeLock 2GO connection settings.
type Backend struct {
	Hostname string   `validate:"required" name:"edgelock2goHostname"`
	APIKey   string   `validate:"required" name:"edgelock2goApiKey"`
	APIURL   string   `validate:"required,url" name:"edgelock2goApiUrl"`
	CACerts  []string `name:"caCerts"`
}

// Config is the validated set of parameters for one provisioning run. Only
// DeviceID is expected to change after loading, once the device identity has
// been read.
type Config struct {
	Backend Backend `name:"el2goSettings"`

	DeviceGroupID string `validate:"required" name:"deviceGroupId"`
	DeviceID      string `validate:"required" name:"deviceId"`
	// ProductID (12NC) is absent for some hardware families; device-group
	// operations require it.
	ProductID          string `name:"nc12"`
	HardwareFamilyType string `validate:"required" name:"hardwareFamilyType"`

	FirstFuseAddress int `validate:"gt=0" name:"firstFuseAddress"`
	LastFuseAddress  int `validate:"gt=0,gtefield=FirstFuseAddress" name:"lastFuseAddress"`

	Delay   time.Duration `validate:"gte=0" name:"delay"`
	Timeout time.Duration `validate:"gte=0" name:"timeout"`

	// Reassign re-issues the device-group assignment once after the device
	// has been unclaimed from a conflicting group.
	Reassign bool `name:"reassign"`
	// Output is the path the secure objects bundle is written to.
	Output string `validate:"required" name:"output"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if n := f.Tag.Get("name"); n != "" {
			return n
		}
		return f.Name
	})
	return v
}

// Validate checks every invariant, including the presence of DeviceID. It
// must pass before any backend call is made.
func (o *Config) Validate() error {
	return wrapValidation(validate.Struct(o))
}

// validateSource checks everything a configuration source can supply, i.e.
// all but the device id.
func (o *Config) validateSource() error {
	return wrapValidation(validate.StructExcept(o, "DeviceID"))
}

// FuseWordCount is the number of fuse words in the inclusive address range.
func (o *Config) FuseWordCount() int {
	return o.LastFuseAddress - o.FirstFuseAddress + 1
}

// Redacted returns a copy of the configuration safe to log.
func (o Config) Redacted() Config {
	if o.Backend.APIKey != "" {
		o.Backend.APIKey = "<redacted>"
	}
	return o
}

func wrapValidation(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", common.ErrConfigInvalid, err)
	}

	var msgs []string
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}

	return fmt.Errorf("%w: %s", common.ErrConfigInvalid, strings.Join(msgs, "; "))
}

// configName returns the configuration key of the Config field called
// field.
func configName(field string) string {
	if f, ok := reflect.TypeOf(Config{}).FieldByName(field); ok {
		if n := f.Tag.Get("name"); n != "" {
			return n
		}
	}
	return field
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s cannot be empty", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s cannot be negative", fe.Field())
	case "gtefield":
		return fmt.Sprintf("%s must not be lower than %s", fe.Field(), configName(fe.Param()))
	case "url":
		return fmt.Sprintf("%s is not a valid URL", fe.Field())
	}
	return fmt.Sprintf("%s failed on %q", fe.Field(), fe.Tag())
}
