// Copyright 2023 Contributors to the Veraison project.
// SPDX-License-Identifier: Apache-2.0

// Command el2go-tp-app provisions a device with the secure objects generated
// for it by EdgeLock 2GO.
package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/NXP/el2go-tp-app/auth"
	"github.com/NXP/el2go-tp-app/bundle"
	"github.com/NXP/el2go-tp-app/common"
	"github.com/NXP/el2go-tp-app/config"
	"github.com/NXP/el2go-tp-app/device"
	"github.com/NXP/el2go-tp-app/provisioning"
	"github.com/kr/pretty"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	exitFailure         = 1
	exitConfigInvalid   = 2
	exitTimedOut        = 3
	exitGenerationError = 4
	exitDecodeError     = 5
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailure)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "el2go-tp-app",
		Usage: "use the EdgeLock 2GO service to provision a device",
		Flags: commonFlags,
		Commands: []*cli.Command{
			{
				Name:   "provision",
				Usage:  "assign the device to the device-group, wait for its secure objects and store them",
				Flags:  backendFlags,
				Action: withBackend(provision),
			},
			{
				Name:   "assign",
				Usage:  "assign the device to the configured device-group",
				Flags:  backendFlags,
				Action: withBackend(assign),
			},
			{
				Name:   "status",
				Usage:  "print the secure objects generation status of the device",
				Flags:  backendFlags,
				Action: withBackend(status),
			},
			{
				Name:   "download",
				Usage:  "download and store the secure objects of the device without waiting",
				Flags:  backendFlags,
				Action: withBackend(download),
			},
			{
				Name:   "device-id",
				Usage:  "derive the device id from the UUID fuse words",
				Flags:  []cli.Flag{flagWord},
				Action: deviceID,
			},
			{
				Name:      "describe-status",
				Usage:     "describe a provisioning firmware status code",
				ArgsUsage: "<code>",
				Action:    describeStatus,
			},
			{
				Name:      "firmware-version",
				Usage:     "format the version word returned by the provisioning firmware",
				ArgsUsage: "<word>",
				Action:    firmwareVersion,
			},
		},
	}
}

// backend is what the backend commands share.
type backend struct {
	cfg    *config.Config
	log    *zap.SugaredLogger
	svc    *provisioning.Service
	poller *provisioning.Poller
}

func withBackend(fn func(*cli.Context, *backend) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		b, err := newBackend(cCtx)
		if err != nil {
			return exitError(err)
		}
		defer func() { _ = b.log.Sync() }()

		return exitError(fn(cCtx, b))
	}
}

func loadConfig(cCtx *cli.Context, extra ...config.Option) (*config.Config, error) {
	opts := append([]config.Option{
		config.Override("el2goSettings.edgelock2goApiKey", cCtx.String(flagAPIKey.Name)),
	}, extra...)

	return config.Load(cCtx.String(flagConfig.Name), opts...)
}

func newBackend(cCtx *cli.Context) (*backend, error) {
	log, err := setupLogger(cCtx)
	if err != nil {
		return nil, err
	}

	opts := []config.Option{
		config.Override("deviceId", cCtx.String(flagDeviceID.Name)),
		config.Override("output", cCtx.String(flagOutput.Name)),
	}
	if cCtx.IsSet(flagReassign.Name) {
		opts = append(opts, config.Override("reassign", cCtx.Bool(flagReassign.Name)))
	}
	if cCtx.IsSet(flagDelay.Name) {
		opts = append(opts, config.Override("delay", cCtx.Int(flagDelay.Name)))
	}
	if cCtx.IsSet(flagTimeout.Name) {
		opts = append(opts, config.Override("timeout", cCtx.Int(flagTimeout.Name)))
	}

	cfg, err := loadConfig(cCtx, opts...)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debugf("configuration:\n%s", pretty.Sprint(cfg.Redacted()))

	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	svc := provisioning.NewService(nil, log)
	if err := svc.SetClient(client); err != nil {
		return nil, err
	}

	return &backend{
		cfg:    cfg,
		log:    log,
		svc:    svc,
		poller: provisioning.NewPoller(svc, log),
	}, nil
}

func newClient(cfg *config.Config) (*common.Client, error) {
	u, err := url.Parse(cfg.Backend.APIURL)
	if err != nil {
		return nil, fmt.Errorf("%w: edgelock2goApiUrl: %v", common.ErrConfigInvalid, err)
	}

	if u.Scheme != "https" {
		return common.NewClient(), nil
	}

	transport, err := auth.NewTLSTransport(cfg.Backend.CACerts, cfg.Backend.Hostname)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigInvalid, err)
	}

	return common.NewTLSClient(transport), nil
}

func provision(cCtx *cli.Context, b *backend) error {
	out, err := b.poller.Run(b.cfg)
	if err != nil {
		return err
	}

	return report(cCtx, b, out)
}

func assign(cCtx *cli.Context, b *backend) error {
	a, err := b.svc.EnsureAssigned(b.cfg)
	if err != nil {
		return err
	}

	switch a.Resolution {
	case provisioning.ResolutionUnclaimed:
		fmt.Fprintf(cCtx.App.Writer,
			"Device %s was unassigned from device-group %s; run again (or pass --reassign) to assign it to %s\n",
			b.cfg.DeviceID, a.ConflictingGroup, b.cfg.DeviceGroupID)
	default:
		fmt.Fprintf(cCtx.App.Writer, "Device %s is assigned to device-group %s (%s)\n",
			b.cfg.DeviceID, b.cfg.DeviceGroupID, a.Resolution)
	}

	return nil
}

func status(cCtx *cli.Context, b *backend) error {
	s, err := b.svc.QueryGenerationStatus(b.cfg)
	if err != nil {
		return err
	}

	fmt.Fprintln(cCtx.App.Writer, s)

	return nil
}

func download(cCtx *cli.Context, b *backend) error {
	raw, err := b.svc.DownloadBundle(b.cfg)
	if err != nil {
		return err
	}

	data, err := bundle.Decode(raw)
	if err != nil {
		return err
	}

	if err := bundle.Persist(data, b.cfg.Output); err != nil {
		return fmt.Errorf("storing secure objects: %w", err)
	}

	return report(cCtx, b, &provisioning.Outcome{
		State:        provisioning.StateCompleted,
		ArtifactPath: b.cfg.Output,
		ArtifactSize: len(data),
	})
}

func report(cCtx *cli.Context, b *backend, out *provisioning.Outcome) error {
	switch out.State {
	case provisioning.StateCompleted:
		fmt.Fprintf(cCtx.App.Writer, "Secure objects stored in %s (%d bytes)\n", out.ArtifactPath, out.ArtifactSize)
	case provisioning.StateNotAssigned:
		fmt.Fprintf(cCtx.App.Writer,
			"Device %s was unassigned from device-group %s and is in no device-group; run again (or pass --reassign) to assign it to %s\n",
			b.cfg.DeviceID, out.Assignment.ConflictingGroup, b.cfg.DeviceGroupID)
	}

	return out.Err()
}

func deviceID(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return exitError(err)
	}

	var words []uint32
	for _, s := range cCtx.StringSlice(flagWord.Name) {
		w, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid fuse word %q: %v", s, err), exitFailure)
		}
		words = append(words, uint32(w))
	}

	if len(words) != cfg.FuseWordCount() {
		return cli.Exit(fmt.Sprintf("%d fuse words supplied, fuse range [%#x, %#x] needs %d",
			len(words), cfg.FirstFuseAddress, cfg.LastFuseAddress, cfg.FuseWordCount()), exitFailure)
	}

	first, last := uint32(cfg.FirstFuseAddress), uint32(cfg.LastFuseAddress)

	id, err := device.ReadDeviceID(device.WordsReader{Base: first, Words: words}, first, last)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	fmt.Fprintln(cCtx.App.Writer, id)

	return nil
}

func describeStatus(cCtx *cli.Context) error {
	code, err := parseWord(cCtx)
	if err != nil {
		return err
	}

	sc := device.StatusCode(code)
	fmt.Fprintf(cCtx.App.Writer, "Response status = %s [%s]\n", sc, sc.Name())

	return nil
}

func firmwareVersion(cCtx *cli.Context) error {
	word, err := parseWord(cCtx)
	if err != nil {
		return err
	}

	v, err := device.FormatFirmwareVersion(word)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	fmt.Fprintf(cCtx.App.Writer, "Firmware version: %s\n", v)

	return nil
}

func parseWord(cCtx *cli.Context) (uint32, error) {
	if cCtx.NArg() != 1 {
		return 0, cli.Exit("exactly one argument expected", exitFailure)
	}

	v, err := strconv.ParseUint(cCtx.Args().First(), 0, 32)
	if err != nil {
		return 0, cli.Exit(fmt.Sprintf("invalid value %q: %v", cCtx.Args().First(), err), exitFailure)
	}

	return uint32(v), nil
}

// exitError maps err to the exit code of its kind.
func exitError(err error) error {
	if err == nil {
		return nil
	}

	code := exitFailure
	switch {
	case errors.Is(err, common.ErrConfigInvalid):
		code = exitConfigInvalid
	case errors.Is(err, common.ErrGenerationTimedOut):
		code = exitTimedOut
	case errors.Is(err, common.ErrGenerationFailed):
		code = exitGenerationError
	case errors.Is(err, common.ErrArtifactDecode):
		code = exitDecodeError
	}

	return cli.Exit("ERROR: "+err.Error(), code)
}
