// pkg/nvidia/engine/engine.go
//
// Wires a loaded configuration onto a machine and turns a finished run into
// the CLI's exit status.

package engine

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nv_err"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/config"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/diagnose"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/display"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/host"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/probe"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/remediate"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/verify"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// ErrRunOutcome marks errors that stand for a finished run whose report has
// already been rendered.
var ErrRunOutcome = cerr.New("run did not end healthy")

// RunOptions are the CLI inputs of one run.
type RunOptions struct {
	Config config.Options
	JSON   bool
	Out    io.Writer
}

// FlagOptions reads the persistent root flags.
func FlagOptions(flags *pflag.FlagSet, out io.Writer) RunOptions {
	configFile, _ := flags.GetString("config")
	asJSON, _ := flags.GetBool("json")
	return RunOptions{
		Config: config.Options{ConfigFile: configFile, Flags: flags},
		JSON:   asJSON,
		Out:    out,
	}
}

// RunLocal loads the configuration, runs one pass against this host in the
// given mode, renders the report and returns its result.
func RunLocal(ctx context.Context, mode nvidia.Mode, opts RunOptions) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.LogLevel)

	if err := RequireRoot(ctx, mode); err != nil {
		return err
	}

	p, err := Local(ctx, cfg)
	if err != nil {
		return nv_err.ClassifyError(err, "prepare host tools")
	}
	r := p.Run(ctx, mode)
	otelzap.Ctx(ctx).Info("Run finished",
		zap.String("run_id", r.ID),
		zap.String("mode", string(mode)),
		zap.String("outcome", string(r.Outcome())),
		zap.Int("fixes_applied", r.FixCount()))

	if err := Render(opts.Out, r, opts.JSON); err != nil {
		return cerr.Wrap(err, "render report")
	}
	return Result(r)
}

// Build assembles a pipeline for m from cfg.
func Build(cfg *config.Config, m *host.Machine, family host.Family, opts ...diagnose.Option) (*diagnose.Pipeline, error) {
	driverPackage := cfg.DriverPackageFor(family)

	pr := probe.New(m, probe.Settings{
		VendorID:        cfg.VendorID,
		CompetingDriver: cfg.CompetingDriver,
		DriverPackage:   driverPackage,
		DisplayServices: cfg.DisplayServices,
	})
	actions := remediate.New(m, remediate.Settings{
		TargetModule:    cfg.TargetModule,
		ModuleSet:       cfg.ModuleSet,
		CompetingDriver: cfg.CompetingDriver,
		DriverPackage:   driverPackage,
	})

	return diagnose.New(pr, actions, verify.New(m.Capability), diagnose.Policy{
		VendorID:          cfg.VendorID,
		CapabilityCommand: cfg.CapabilityCommand,
		TargetModule:      cfg.TargetModule,
		CompetingDriver:   cfg.CompetingDriver,
		DriverPackage:     driverPackage,
		MinDriverVersion:  cfg.MinDriverVersion,
		SettleInterval:    cfg.SettleInterval,
		BundledPass:       diagnose.BundledPass(cfg.BundledPass),
	}, opts...)
}

// Local builds a pipeline against this host.
func Local(ctx context.Context, cfg *config.Config) (*diagnose.Pipeline, error) {
	family, err := cfg.Family()
	if err != nil {
		return nil, err
	}
	otelzap.Ctx(ctx).Debug("Distribution family resolved",
		zap.String("family", string(family)),
		zap.String("package_manager", cfg.PackageManager))

	m, err := host.Local(host.LocalOptions{
		Family:            family,
		CapabilityCommand: cfg.CapabilityCommand,
		BlacklistPath:     cfg.BlacklistPath,
	})
	if err != nil {
		return nil, err
	}
	return Build(cfg, m, family)
}

// geteuid is replaced in tests.
var geteuid = os.Geteuid

// RequireRoot refuses fix mode for unprivileged users. Diagnose mode only
// reads and is always allowed.
func RequireRoot(ctx context.Context, mode nvidia.Mode) error {
	if mode != nvidia.ModeFix || geteuid() == 0 {
		return nil
	}
	otelzap.Ctx(ctx).Info("Root privileges required", zap.Int("current_uid", geteuid()))
	return nv_err.NewPermissionError("host driver state", "repair",
		"Re-run with sudo: sudo nvdoctor fix",
		"Or run nvdoctor diagnose to inspect without changes")
}

// Render writes the report as text or JSON.
func Render(w io.Writer, r *nvidia.RunReport, asJSON bool) error {
	if asJSON {
		return display.JSON(w, r)
	}
	return display.Text(w, r)
}

// Result converts a finalized report into the command's error. Healthy and
// repaired runs return nil; everything else carries the report's guidance
// as remediation steps.
func Result(r *nvidia.RunReport) error {
	if !r.Finalized() {
		return cerr.AssertionFailedf("run %s was not finalized", r.ID)
	}
	o := r.Outcome()
	if o.Success() {
		return nil
	}
	msg := fmt.Sprintf("%s run %s ended %s", r.Mode, r.ID, o)
	var err error
	switch o {
	case nvidia.OutcomeInterrupted:
		err = nv_err.NewUserCancelledError(string(r.Mode))
	case nvidia.OutcomeUnrecoverablePrecondition:
		err = nv_err.NewPreconditionError(msg, r.Guidance()...)
	default:
		err = nv_err.NewSystemError(msg, nil, r.Guidance()...)
	}
	return cerr.Mark(err, ErrRunOutcome)
}
