// Copyright 2021 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package provisioning

import (
	"fmt"
	"time"

	"github.com/NXP/el2go-tp-app/bundle"
	"github.com/NXP/el2go-tp-app/common"
	"github.com/NXP/el2go-tp-app/config"
	"go.uber.org/zap"
)

// State is the terminal state of a generation wait.
type State int

const (
	StateCompleted State = iota
	StateTimedOut
	StateErrored
	// StateNotAssigned: the device was unclaimed from a conflicting group
	// and polling was skipped.
	StateNotAssigned
)

func (o State) String() string {
	switch o {
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed out"
	case StateErrored:
		return "errored"
	case StateNotAssigned:
		return "not assigned"
	}
	return fmt.Sprintf("State(%d)", int(o))
}

// Outcome describes how a provisioning run ended.
type Outcome struct {
	State State
	// LastStatus is the last provisioning state reported by the backend.
	LastStatus string
	// Checks is the number of status queries issued.
	Checks int
	// ArtifactPath and ArtifactSize are set once the bundle is written.
	ArtifactPath string
	ArtifactSize int
	Assignment   *Assignment
}

// Err maps timed out and errored outcomes to common.ErrGenerationTimedOut and
// common.ErrGenerationFailed.
func (o *Outcome) Err() error {
	switch o.State {
	case StateTimedOut:
		return fmt.Errorf("%w after %d checks, last status %q", common.ErrGenerationTimedOut, o.Checks, o.LastStatus)
	case StateErrored:
		return fmt.Errorf("%w: some objects have state %s", common.ErrGenerationFailed, o.LastStatus)
	}
	return nil
}

// Poller waits for the secure objects of a device to be generated and
// stores them once they are.
type Poller struct {
	Service *Service
	Log     *zap.SugaredLogger

	// WarmUp is slept before the first status query, giving the backend time
	// to register the assignment that triggers generation.
	WarmUp time.Duration

	// Sleep and Now default to time.Sleep and time.Now.
	Sleep func(time.Duration)
	Now   func() time.Time
}

// NewPoller returns a Poller using the default warm-up delay.
func NewPoller(svc *Service, log *zap.SugaredLogger) *Poller {
	if log == nil {
		log = nopLog
	}

	return &Poller{
		Service: svc,
		Log:     log,
		WarmUp:  common.DefaultWarmUp,
	}
}

// Await polls the generation status while less than cfg.Timeout has elapsed
// since the first query, sleeping cfg.Delay between queries. On
// GENERATION_COMPLETED the bundle is downloaded, decoded and written to
// cfg.Output. GENERATION_TRIGGERED keeps polling; any other state ends the
// wait without downloading. With a zero cfg.Delay at most one query is made.
func (o *Poller) Await(cfg *config.Config) (*Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sleep, now := o.clock()
	log := o.log()

	sleep(o.WarmUp)

	out := &Outcome{State: StateTimedOut}

	for start := now(); now().Sub(start) < cfg.Timeout; {
		status, err := o.Service.QueryGenerationStatus(cfg)
		if err != nil {
			return nil, err
		}

		out.Checks++
		out.LastStatus = status

		switch status {
		case common.StateGenerationCompleted:
			if err := o.store(cfg, out); err != nil {
				return nil, err
			}
			out.State = StateCompleted
			return out, nil
		case common.StateGenerationTriggered:
			log.Infow("secure objects generation is triggered, will try again till timeout",
				"device", cfg.DeviceID, "check", out.Checks)
		default:
			log.Errorw("error in secure objects generation", "device", cfg.DeviceID, "state", status)
			out.State = StateErrored
			return out, nil
		}

		if cfg.Delay == 0 {
			break
		}

		sleep(cfg.Delay)
	}

	log.Warnw("secure objects generation timed out",
		"device", cfg.DeviceID, "timeout", cfg.Timeout, "last", out.LastStatus)

	return out, nil
}

func (o *Poller) store(cfg *config.Config, out *Outcome) error {
	raw, err := o.Service.DownloadBundle(cfg)
	if err != nil {
		return err
	}

	data, err := bundle.Decode(raw)
	if err != nil {
		return err
	}

	if err := bundle.Persist(data, cfg.Output); err != nil {
		return fmt.Errorf("storing secure objects: %w", err)
	}

	out.ArtifactPath = cfg.Output
	out.ArtifactSize = len(data)

	o.log().Infow("secure objects stored", "path", cfg.Output, "bytes", len(data))

	return nil
}

func (o *Poller) clock() (func(time.Duration), func() time.Time) {
	sleep, now := o.Sleep, o.Now
	if sleep == nil {
		sleep = time.Sleep
	}
	if now == nil {
		now = time.Now
	}
	return sleep, now
}

func (o *Poller) log() *zap.SugaredLogger {
	if o.Log == nil {
		return nopLog
	}
	return o.Log
}

// Run validates cfg, makes sure the device is a member of the configured
// device-group and waits for its secure objects. When the device had to be
// unclaimed from another group and cfg.Reassign is not set, polling is
// skipped and the outcome is StateNotAssigned.
func (o *Poller) Run(cfg *config.Config) (*Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a, err := o.Service.EnsureAssigned(cfg)
	if err != nil {
		return nil, err
	}

	if a.Resolution == ResolutionUnclaimed {
		return &Outcome{State: StateNotAssigned, Assignment: a}, nil
	}

	out, err := o.Await(cfg)
	if err != nil {
		return nil, err
	}

	out.Assignment = a

	return out, nil
}
