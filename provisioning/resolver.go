// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package provisioning

import (
	"errors"
	"fmt"

	"github.com/NXP/el2go-tp-app/common"
	"github.com/NXP/el2go-tp-app/config"
)

// Resolution tells how EnsureAssigned left the device.
type Resolution int

const (
	// ResolutionAssigned: the device is a member of the target group.
	ResolutionAssigned Resolution = iota
	// ResolutionUnclaimed: the device was removed from a conflicting group
	// and the assignment was not re-issued. The device is in no group.
	ResolutionUnclaimed
	// ResolutionReassigned: the device was removed from a conflicting group
	// and then assigned to the target group.
	ResolutionReassigned
)

func (o Resolution) String() string {
	switch o {
	case ResolutionAssigned:
		return "assigned"
	case ResolutionUnclaimed:
		return "unclaimed"
	case ResolutionReassigned:
		return "reassigned"
	}
	return fmt.Sprintf("Resolution(%d)", int(o))
}

// Assignment is the result of EnsureAssigned.
type Assignment struct {
	Resolution Resolution
	// ConflictingGroup is the group the device was unclaimed from, if any.
	ConflictingGroup string
}

// EnsureAssigned makes the configured device a member of the configured
// device-group.
//
// When the backend reports that the device is registered elsewhere, every
// group of the product is scanned, in the order listed by the backend, for
// the device; the first group holding it is the conflicting group and the
// device is unclaimed from it. Unless cfg.Reassign is set the assignment is
// not re-issued afterwards and the device is left in no group. With
// cfg.Reassign the assignment is retried exactly once.
func (o *Service) EnsureAssigned(cfg *config.Config) (*Assignment, error) {
	err := o.AssignDeviceToGroup(cfg)
	if err == nil {
		return &Assignment{Resolution: ResolutionAssigned}, nil
	}

	if !errors.Is(err, common.ErrAssignmentConflict) {
		return nil, err
	}

	o.log().Infow("looking up the device-group the device is assigned to",
		"device", cfg.DeviceID, "product", cfg.ProductID)

	group, found, err := o.FindDeviceGroup(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolving assignment conflict: %w", err)
	}

	if !found {
		return nil, fmt.Errorf(
			"%w: device %s is reported as registered but is in no device-group of product %s",
			common.ErrAssignmentConflictUnresolved, cfg.DeviceID, cfg.ProductID,
		)
	}

	o.log().Infow("unassigning device from device-group", "device", cfg.DeviceID, "group", group)

	if err := o.UnclaimDevice(cfg, group); err != nil {
		return nil, fmt.Errorf("unclaiming device from device-group %s: %w", group, err)
	}

	if !cfg.Reassign {
		o.log().Warnw("device unclaimed, assignment not re-issued",
			"device", cfg.DeviceID, "from", group, "target", cfg.DeviceGroupID)

		return &Assignment{Resolution: ResolutionUnclaimed, ConflictingGroup: group}, nil
	}

	o.log().Infow("trying to assign device to device-group again", "device", cfg.DeviceID, "group", cfg.DeviceGroupID)

	err = o.AssignDeviceToGroup(cfg)
	if errors.Is(err, common.ErrAssignmentConflict) {
		return nil, fmt.Errorf("%w: device %s still registered after unclaiming it from %s: %v",
			common.ErrAssignmentConflictUnresolved, cfg.DeviceID, group, err)
	}
	if err != nil {
		return nil, err
	}

	return &Assignment{Resolution: ResolutionReassigned, ConflictingGroup: group}, nil
}

// FindDeviceGroup scans the groups of the configured product for the
// configured device and returns the first one holding it.
func (o *Service) FindDeviceGroup(cfg *config.Config) (string, bool, error) {
	groups, err := o.ListDeviceGroups(cfg)
	if err != nil {
		return "", false, err
	}

	for _, g := range groups {
		members, err := o.ListGroupMembers(cfg, g)
		if err != nil {
			return "", false, err
		}

		for _, m := range members {
			if m == cfg.DeviceID {
				return g, true, nil
			}
		}
	}

	return "", false, nil
}
