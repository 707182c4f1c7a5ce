// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package auth

// IAuthenticator produces the credential header attached to every backend
// request.
type IAuthenticator interface {
	Configure(cfg map[string]interface{}) error
	EncodeHeader() (name string, value string, err error)
}
