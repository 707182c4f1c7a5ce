// Copyright 2021 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

/*
Package provisioning drives the EdgeLock 2GO secure objects provisioning
workflow for a single device.

Service

Service wraps the REST API. It is stateless: each call takes the validated
run configuration, from which the URL and the header set (accept and API key)
are rebuilt.

	svc := provisioning.NewService(nil, logger)

	if err := svc.AssignDeviceToGroup(cfg); errors.Is(err, common.ErrAssignmentConflict) {
		...
	}

Failed calls return a *common.BackendError carrying the URL, request body,
status and response body.

Group assignment

EnsureAssigned assigns the device and, when the backend replies that the
device is already registered in another group, finds that group and unclaims
the device from it. The assignment is re-issued afterwards only if
cfg.Reassign is set.

Generation

A Poller waits for the secure objects to be generated, bounded by
cfg.Timeout, and writes the decoded bundle to cfg.Output:

	p := provisioning.NewPoller(svc, logger)

	out, err := p.Run(cfg)
	if err != nil { ... }

	if err := out.Err(); err != nil { ... } // timed out or failed
*/
package provisioning
