// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

/*
Package bundle decodes the secure objects bundle returned by the EdgeLock 2GO
download-provisionings endpoint and writes it out as the binary APDU stream
consumed by the provisioning firmware.

The payload is a JSON list of per-device records:

	[
	  {
	    "rtpProvisionings": [
	      { "apdus": { "createApdu": { "apdu": "<base64>" } } },
	      ...
	    ]
	  },
	  ...
	]

Decode concatenates every decoded APDU, records first and entries within a
record second, preserving the order received. Persist writes the result
through a temporary file that is renamed into place only once fully synced.
*/
package bundle
