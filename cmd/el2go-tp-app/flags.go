// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var flagConfig = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Value:   "config.xml",
	Usage:   "path to the provisioning configuration (.xml, .yaml or .yml)",
}

var flagAPIKey = &cli.StringFlag{
	Name:    "api-key",
	EnvVars: []string{"EL2GO_API_KEY"},
	Usage:   "EdgeLock 2GO API key, overrides edgelock2goApiKey",
}

var flagDeviceID = &cli.StringFlag{
	Name:     "device-id",
	Required: true,
	Usage:    "EdgeLock 2GO device id, as read from the device UUID fuses",
}

var flagOutput = &cli.StringFlag{
	Name:    "output",
	Aliases: []string{"o"},
	Usage:   "path of the secure objects binary, overrides output (default Secure_Objects.bin)",
}

var flagReassign = &cli.BoolFlag{
	Name:  "reassign",
	Usage: "after unclaiming the device from a conflicting device-group, assign it to the configured group again",
}

var flagDelay = &cli.IntFlag{
	Name:  "delay",
	Usage: "seconds between status checks, overrides delay",
}

var flagTimeout = &cli.IntFlag{
	Name:  "timeout",
	Usage: "seconds to wait for secure objects generation, overrides timeout",
}

var flagWord = &cli.StringSliceFlag{
	Name:     "word",
	Aliases:  []string{"w"},
	Required: true,
	Usage:    "fuse word read from the device, in address order (e.g. 0x04030201); repeat for each address",
}

var flagLogJSON = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}

var flagLogDebug = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}

var flagLogUID = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var commonFlags = []cli.Flag{
	flagConfig,
	flagAPIKey,
	flagLogJSON,
	flagLogDebug,
	flagLogUID,
}

var backendFlags = []cli.Flag{
	flagDeviceID,
	flagOutput,
	flagReassign,
	flagDelay,
	flagTimeout,
}

func setupLogger(cCtx *cli.Context) (*zap.SugaredLogger, error) {
	zc := zap.NewDevelopmentConfig()
	if cCtx.Bool(flagLogJSON.Name) {
		zc = zap.NewProductionConfig()
	}

	zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cCtx.Bool(flagLogDebug.Name) {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}

	log := logger.Sugar()

	if cCtx.Bool(flagLogUID.Name) {
		id := uuid.Must(uuid.NewRandom())
		log = log.With("uid", id.String())
	}

	return log, nil
}
