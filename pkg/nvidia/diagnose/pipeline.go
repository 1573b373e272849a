// pkg/nvidia/diagnose/pipeline.go
//
// The diagnostic pipeline runs the fixed check sequence, applies each
// check's remediation straight after its verdict, handles the competing
// driver in two phases and ends with the verification gate.

package diagnose

import (
	"context"
	"time"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/probe"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/remediate"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/verify"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/telemetry"
	cerr "github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-version"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// BundledPass selects when the bundled remediation pass runs.
type BundledPass string

const (
	// BundledOnFailure runs the pass only after a failed verification.
	BundledOnFailure BundledPass = "on-failure"
	// BundledAlways also runs it before the first verification.
	BundledAlways BundledPass = "always"
)

// Policy is the run configuration the pipeline needs.
type Policy struct {
	VendorID          string
	CapabilityCommand string
	TargetModule      string
	CompetingDriver   string
	DriverPackage     string
	MinDriverVersion  string
	SettleInterval    time.Duration
	BundledPass       BundledPass
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep waits on a timer and ctx.Done, whichever comes first.
func ContextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pipeline is one configured diagnostic engine. It holds no per-run state;
// everything a run observes lives on its RunReport.
type Pipeline struct {
	probe      probe.Probe
	actions    *remediate.Actions
	gate       *verify.Gate
	policy     Policy
	sleep      Sleeper
	minVersion *version.Version
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithSleeper replaces the settle wait.
func WithSleeper(s Sleeper) Option {
	return func(p *Pipeline) { p.sleep = s }
}

// New builds a pipeline. An unparseable MinDriverVersion is a configuration
// error.
func New(pr probe.Probe, actions *remediate.Actions, gate *verify.Gate, policy Policy, opts ...Option) (*Pipeline, error) {
	if policy.BundledPass == "" {
		policy.BundledPass = BundledOnFailure
	}
	p := &Pipeline{
		probe:   pr,
		actions: actions,
		gate:    gate,
		policy:  policy,
		sleep:   ContextSleep,
	}
	if policy.MinDriverVersion != "" {
		v, err := version.NewVersion(policy.MinDriverVersion)
		if err != nil {
			return nil, cerr.WithHint(
				cerr.Wrapf(err, "parse min_driver_version %q", policy.MinDriverVersion),
				"Use a dotted version such as 535.104")
		}
		p.minVersion = v
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// errInterrupted marks a run cut short by context cancellation.
var errInterrupted = cerr.New("run interrupted")

// run carries what one pipeline run has learned so far.
type run struct {
	report             *nvidia.RunReport
	mode               nvidia.Mode
	release            string
	recentInstall      string
	conflictUnresolved bool
}

type checkFunc func(context.Context, *run) nvidia.CheckResult

// checkFuncs binds each check to its implementation. nvidia.CheckOrder
// decides the order they run in.
func (p *Pipeline) checkFuncs() map[nvidia.CheckID]checkFunc {
	return map[nvidia.CheckID]checkFunc{
		nvidia.CheckHardware:            p.checkHardware,
		nvidia.CheckCapabilityInterface: p.checkCapability,
		nvidia.CheckModuleLoaded:        p.checkModuleLoaded,
		nvidia.CheckCompetingDriver:     p.checkCompetingDriver,
		nvidia.CheckSecureBoot:          p.checkSecureBoot,
		nvidia.CheckKernelHeaders:       p.checkKernelHeaders,
		nvidia.CheckDriverPackage:       p.checkDriverPackage,
		nvidia.CheckBootImage:           p.checkBootImage,
	}
}

// Run executes one full pipeline pass and returns the finalized report.
// Cancelling ctx ends the run with OutcomeInterrupted; remediations already
// applied stay applied.
func (p *Pipeline) Run(ctx context.Context, mode nvidia.Mode) *nvidia.RunReport {
	ctx, span := telemetry.Start(ctx, "diagnose.Pipeline.Run", attribute.String("mode", string(mode)))
	defer span.End()
	logger := otelzap.Ctx(ctx)

	st := &run{report: nvidia.NewRunReport(mode), mode: mode}
	if rel, found := p.probe.KernelRelease(ctx); found {
		st.release = rel
		st.report.Kernel = rel
	}

	logger.Info("Starting GPU driver diagnostics",
		zap.String("run_id", st.report.ID),
		zap.String("mode", string(mode)),
		zap.String("kernel", st.release))

	outcome := p.execute(ctx, st)
	st.report.Finalize(outcome)

	span.SetAttributes(
		attribute.String("outcome", string(outcome)),
		attribute.Int("fixes_applied", st.report.FixCount()),
	)
	logger.Info("GPU driver diagnostics finished",
		zap.String("run_id", st.report.ID),
		zap.String("outcome", string(outcome)),
		zap.Int("issues", st.report.Issues()),
		zap.String("fixes", st.report.Ledger().Summary()))
	return st.report
}

func (p *Pipeline) execute(ctx context.Context, st *run) nvidia.Outcome {
	checks := p.checkFuncs()
	for _, id := range nvidia.CheckOrder {
		if ctx.Err() != nil {
			return p.interrupted(st)
		}

		res := checks[id](ctx, st)
		st.report.AddCheck(res)
		otelzap.Ctx(ctx).Info("Check complete",
			zap.String("check", string(res.ID)),
			zap.String("verdict", string(res.Verdict)),
			zap.String("detail", res.Detail))

		if !res.OK() && aborts(res.ID) {
			return p.abort(st, res)
		}
		if st.mode != nvidia.ModeFix || res.OK() || !res.Remediable {
			continue
		}
		if err := p.remediate(ctx, st, res); err != nil {
			return p.interrupted(st)
		}
	}

	if ctx.Err() != nil {
		return p.interrupted(st)
	}
	if st.mode == nvidia.ModeDiagnose {
		return p.verifyReadOnly(ctx, st)
	}
	return p.verifyAndEscalate(ctx, st)
}

// aborts reports whether a failing check ends the run: without hardware or
// the capability command there is nothing further to diagnose.
func aborts(id nvidia.CheckID) bool {
	return id == nvidia.CheckHardware || id == nvidia.CheckCapabilityInterface
}

func (p *Pipeline) abort(st *run, res nvidia.CheckResult) nvidia.Outcome {
	reason := guidanceNoHardware
	if res.ID == nvidia.CheckCapabilityInterface {
		reason = guidanceNoCapability(p.policy.CapabilityCommand, p.policy.DriverPackage)
	}
	st.report.AddGuidance(reason)
	st.report.AddGuidance(manualSteps(p.policy.DriverPackage, p.policy.CompetingDriver)...)
	st.report.SetVerification(nvidia.VerificationResult{
		Skipped: true,
		Output:  "verification skipped: " + res.Detail,
	})
	return nvidia.OutcomeUnrecoverablePrecondition
}

func (p *Pipeline) interrupted(st *run) nvidia.Outcome {
	st.report.SetVerification(nvidia.VerificationResult{
		Skipped: true,
		Output:  "verification skipped: run interrupted",
	})
	return nvidia.OutcomeInterrupted
}

func (p *Pipeline) remediate(ctx context.Context, st *run, res nvidia.CheckResult) error {
	switch res.ID {
	case nvidia.CheckModuleLoaded:
		st.report.Record(p.actions.LoadModule(ctx))
	case nvidia.CheckCompetingDriver:
		return p.resolveConflict(ctx, st)
	case nvidia.CheckKernelHeaders:
		st.report.Record(p.actions.InstallHeaders(ctx, st.release))
	case nvidia.CheckBootImage:
		st.report.Record(p.actions.RebuildBootImage(ctx, st.release))
	}
	if ctx.Err() != nil {
		return errInterrupted
	}
	return nil
}

// resolveConflict is the two-phase competing-driver branch. Phase 1 always
// rewrites the blacklist directive. Phase 2 only runs when a display service
// holds the competing driver: rebuild the boot image, restart the service,
// wait the settle interval and run a nested capability test. Without an
// active service the competing module is unloaded directly and no nested
// test runs. An unresolved branch never stops the pipeline.
func (p *Pipeline) resolveConflict(ctx context.Context, st *run) error {
	logger := otelzap.Ctx(ctx)
	branch := nvidia.ConflictBranch{Driver: p.policy.CompetingDriver}
	defer func() {
		st.conflictUnresolved = !branch.Resolved
		if !branch.Resolved && ctx.Err() == nil {
			st.report.AddGuidance(guidanceReboot)
		}
		st.report.SetConflict(branch)
	}()

	blacklist := st.report.Record(p.actions.BlacklistCompetingDriver(ctx))
	branch.Phase1 = blacklist.Applied
	if ctx.Err() != nil {
		return errInterrupted
	}

	service, active := p.probe.ActiveDisplayService(ctx)
	if !active {
		logger.Info("No display service holds the competing driver, unloading it directly",
			zap.String("driver", p.policy.CompetingDriver))
		unload := st.report.Record(p.actions.UnloadModule(ctx, p.policy.CompetingDriver))
		branch.Resolved = unload.Applied && blacklist.Applied
		if ctx.Err() != nil {
			return errInterrupted
		}
		return nil
	}

	branch.Phase2 = true
	branch.Service = service
	branch.Settle = p.policy.SettleInterval
	logger.Info("Display service holds the competing driver",
		zap.String("service", service),
		zap.Duration("settle", p.policy.SettleInterval))

	if st.release != "" {
		st.report.Record(p.actions.RebuildBootImage(ctx, st.release))
	}
	st.report.Record(p.actions.RestartService(ctx, service))
	if ctx.Err() != nil {
		return errInterrupted
	}

	if err := p.sleep(ctx, p.policy.SettleInterval); err != nil {
		return errInterrupted
	}

	nested := p.gate.Run(ctx)
	if ctx.Err() != nil {
		return errInterrupted
	}
	branch.Nested = &nested
	branch.Resolved = nested.Passed
	if !nested.Passed {
		logger.Warn("Competing driver still active after service restart",
			zap.String("service", service))
	}
	return nil
}

func (p *Pipeline) verifyReadOnly(ctx context.Context, st *run) nvidia.Outcome {
	result := p.gate.Run(ctx)
	if ctx.Err() != nil {
		return p.interrupted(st)
	}
	st.report.SetVerification(result)
	switch {
	case !result.Passed:
		p.addFailureGuidance(st)
		return nvidia.OutcomeVerificationFailed
	case st.report.Issues() > 0:
		return nvidia.OutcomeIssuesFound
	default:
		return nvidia.OutcomeHealthy
	}
}

func (p *Pipeline) verifyAndEscalate(ctx context.Context, st *run) nvidia.Outcome {
	logger := otelzap.Ctx(ctx)

	if p.policy.BundledPass == BundledAlways {
		if err := p.bundledPass(ctx, st); err != nil {
			return p.interrupted(st)
		}
	}

	result := p.gate.Run(ctx)
	if ctx.Err() != nil {
		return p.interrupted(st)
	}

	if !result.Passed {
		logger.Warn("Verification failed, escalating to bundled remediation")
		if err := p.installMissing(ctx, st); err != nil {
			return p.interrupted(st)
		}
		if err := p.bundledPass(ctx, st); err != nil {
			return p.interrupted(st)
		}
		result = p.gate.Run(ctx)
		if ctx.Err() != nil {
			return p.interrupted(st)
		}
	}
	st.report.SetVerification(result)

	// an unresolved conflict branch outranks the final gate
	switch {
	case st.conflictUnresolved:
		if !result.Passed {
			p.addFailureGuidance(st)
		}
		return nvidia.OutcomeConflictUnresolved
	case result.Passed && st.report.FixCount() > 0:
		return nvidia.OutcomeRepaired
	case result.Passed:
		return nvidia.OutcomeHealthy
	default:
		p.addFailureGuidance(st)
		return nvidia.OutcomeVerificationFailed
	}
}

// installMissing installs kernel headers and the driver package when a
// fresh probe still finds them missing. Both must be in place before the
// capability test can pass.
func (p *Pipeline) installMissing(ctx context.Context, st *run) error {
	if st.release != "" && !p.probe.KernelHeaders(ctx, st.release) {
		st.report.Record(p.actions.InstallHeaders(ctx, st.release))
	}
	if ctx.Err() != nil {
		return errInterrupted
	}
	if _, installed := p.probe.DriverPackage(ctx); !installed {
		st.report.Record(p.actions.InstallDriverPackage(ctx))
	}
	if ctx.Err() != nil {
		return errInterrupted
	}
	return nil
}

// bundledPass reloads the module set, refreshes module dependency metadata
// and, when the target module ended up loaded, rebuilds the boot image.
func (p *Pipeline) bundledPass(ctx context.Context, st *run) error {
	var failures *multierror.Error
	record := func(o nvidia.RemediationOutcome) {
		st.report.Record(o)
		if !o.Applied {
			failures = multierror.Append(failures, cerr.Newf("%s: %s", o.Action, o.Error))
		}
	}

	record(p.actions.ReloadModuleSet(ctx))
	if ctx.Err() != nil {
		return errInterrupted
	}
	record(p.actions.RefreshModuleDependencies(ctx))
	if ctx.Err() != nil {
		return errInterrupted
	}
	if st.release != "" && p.probe.LoadedModules(ctx).Has(p.policy.TargetModule) {
		record(p.actions.RebuildBootImage(ctx, st.release))
		if ctx.Err() != nil {
			return errInterrupted
		}
	}

	if err := failures.ErrorOrNil(); err != nil {
		otelzap.Ctx(ctx).Warn("Bundled remediation pass incomplete", zap.Error(err))
	}
	return nil
}

func (p *Pipeline) addFailureGuidance(st *run) {
	if st.recentInstall != "" {
		st.report.AddGuidance(guidanceRecentInstall(st.recentInstall))
	}
	st.report.AddGuidance(manualSteps(p.policy.DriverPackage, p.policy.CompetingDriver)...)
}
