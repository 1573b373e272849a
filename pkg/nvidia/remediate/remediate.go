// pkg/nvidia/remediate/remediate.go
//
// Idempotent corrective actions. Every action returns a RemediationOutcome
// and never an error: a failed action is recorded and the run goes on.
// Actions never retry.

package remediate

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/host"
	"github.com/hashicorp/go-multierror"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Settings names the modules and packages the actions work on.
type Settings struct {
	TargetModule    string
	ModuleSet       []string
	CompetingDriver string
	DriverPackage   string
}

// Actions applies remediations to a machine.
type Actions struct {
	m *host.Machine
	s Settings
}

// New returns Actions for m.
func New(m *host.Machine, s Settings) *Actions {
	return &Actions{m: m, s: s}
}

func outcome(ctx context.Context, action nvidia.ActionID, target string, err error) nvidia.RemediationOutcome {
	logger := otelzap.Ctx(ctx)
	o := nvidia.RemediationOutcome{Action: action, Target: target, Applied: err == nil}
	if err != nil {
		o.Error = err.Error()
		logger.Warn("Remediation failed",
			zap.String("action", string(action)),
			zap.String("target", target),
			zap.Error(err))
		return o
	}
	logger.Info("Remediation applied",
		zap.String("action", string(action)),
		zap.String("target", target))
	return o
}

// LoadModule loads the target module. Loading an already-loaded module is a
// no-op in modprobe.
func (a *Actions) LoadModule(ctx context.Context) nvidia.RemediationOutcome {
	err := a.m.Modules.Load(ctx, a.s.TargetModule)
	return outcome(ctx, nvidia.ActionLoadModule, a.s.TargetModule, err)
}

// UnloadModule unloads name; unloading an absent module succeeds.
func (a *Actions) UnloadModule(ctx context.Context, name string) nvidia.RemediationOutcome {
	var err error
	if loaded, lerr := a.m.Modules.ListLoaded(ctx); lerr != nil || loaded.Has(name) {
		err = a.m.Modules.Unload(ctx, name)
	}
	return outcome(ctx, nvidia.ActionUnloadModule, name, err)
}

// BlacklistCompetingDriver rewrites the blacklist directive file.
func (a *Actions) BlacklistCompetingDriver(ctx context.Context) nvidia.RemediationOutcome {
	_, err := a.m.Directives.WriteBlacklist(ctx, a.s.CompetingDriver)
	return outcome(ctx, nvidia.ActionBlacklistCompeting, a.s.CompetingDriver, err)
}

// InstallHeaders installs the headers package for release.
func (a *Actions) InstallHeaders(ctx context.Context, release string) nvidia.RemediationOutcome {
	pkg := a.m.Packages.HeadersPackage(release)
	err := a.m.Packages.Install(ctx, pkg)
	return outcome(ctx, nvidia.ActionInstallHeaders, pkg, err)
}

// InstallDriverPackage installs the configured driver package.
func (a *Actions) InstallDriverPackage(ctx context.Context) nvidia.RemediationOutcome {
	err := a.m.Packages.Install(ctx, a.s.DriverPackage)
	return outcome(ctx, nvidia.ActionInstallDriver, a.s.DriverPackage, err)
}

// RebuildBootImage regenerates the boot image for release.
func (a *Actions) RebuildBootImage(ctx context.Context, release string) nvidia.RemediationOutcome {
	err := a.m.BootImage.Rebuild(ctx, release)
	return outcome(ctx, nvidia.ActionRebuildBootImage, release, err)
}

// RestartService restarts unit.
func (a *Actions) RestartService(ctx context.Context, unit string) nvidia.RemediationOutcome {
	err := a.m.Services.Restart(ctx, unit)
	return outcome(ctx, nvidia.ActionRestartService, unit, err)
}

// RefreshModuleDependencies regenerates module dependency metadata.
func (a *Actions) RefreshModuleDependencies(ctx context.Context) nvidia.RemediationOutcome {
	err := a.m.Modules.RefreshDependencies(ctx)
	return outcome(ctx, nvidia.ActionRefreshModuleDeps, "", err)
}

// ReloadModuleSet loads every module of the driver's module set. Modules
// that are already loaded are left alone; each failure is collected and the
// rest are still attempted.
func (a *Actions) ReloadModuleSet(ctx context.Context) nvidia.RemediationOutcome {
	var result *multierror.Error
	for _, name := range a.s.ModuleSet {
		if ctx.Err() != nil {
			result = multierror.Append(result, ctx.Err())
			break
		}
		if err := a.m.Modules.Load(ctx, name); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return outcome(ctx, nvidia.ActionReloadModuleSet, a.s.TargetModule, result.ErrorOrNil())
}
