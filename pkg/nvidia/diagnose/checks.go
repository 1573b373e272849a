// pkg/nvidia/diagnose/checks.go

package diagnose

import (
	"context"
	"fmt"
	"strings"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/probe"
	"github.com/hashicorp/go-version"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func ok(id nvidia.CheckID, detail string) nvidia.CheckResult {
	return nvidia.CheckResult{ID: id, Verdict: nvidia.VerdictOK, Detail: detail}
}

func (p *Pipeline) checkHardware(ctx context.Context, _ *run) nvidia.CheckResult {
	devices := p.probe.Hardware(ctx)
	if len(devices) == 0 {
		return nvidia.CheckResult{
			ID:      nvidia.CheckHardware,
			Verdict: nvidia.VerdictFailure,
			Detail:  fmt.Sprintf("no PCI device with vendor id %s", p.policy.VendorID),
		}
	}
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, fmt.Sprintf("%s [%s:%s]", d.Slot, d.Vendor, d.Device))
	}
	return ok(nvidia.CheckHardware, strings.Join(names, ", "))
}

func (p *Pipeline) checkCapability(ctx context.Context, _ *run) nvidia.CheckResult {
	path, found := p.probe.CapabilityInterface(ctx)
	if !found {
		return nvidia.CheckResult{
			ID:      nvidia.CheckCapabilityInterface,
			Verdict: nvidia.VerdictFailure,
			Detail:  p.policy.CapabilityCommand + " not found on PATH",
		}
	}
	return ok(nvidia.CheckCapabilityInterface, path)
}

func (p *Pipeline) checkModuleLoaded(ctx context.Context, _ *run) nvidia.CheckResult {
	if p.probe.LoadedModules(ctx).Has(p.policy.TargetModule) {
		return ok(nvidia.CheckModuleLoaded, p.policy.TargetModule+" is loaded")
	}
	return nvidia.CheckResult{
		ID:         nvidia.CheckModuleLoaded,
		Verdict:    nvidia.VerdictWarning,
		Detail:     p.policy.TargetModule + " is not loaded",
		Remediable: true,
	}
}

func (p *Pipeline) checkCompetingDriver(ctx context.Context, _ *run) nvidia.CheckResult {
	if !p.probe.CompetingDriverLoaded(ctx) {
		return ok(nvidia.CheckCompetingDriver, p.policy.CompetingDriver+" is not loaded")
	}
	return nvidia.CheckResult{
		ID:         nvidia.CheckCompetingDriver,
		Verdict:    nvidia.VerdictConflict,
		Detail:     p.policy.CompetingDriver + " is loaded and holds the GPU",
		Remediable: true,
	}
}

func (p *Pipeline) checkSecureBoot(ctx context.Context, st *run) nvidia.CheckResult {
	switch p.probe.SecureBoot(ctx) {
	case probe.SecureBootEnabled:
		st.report.AddGuidance(guidanceSecureBoot)
		return nvidia.CheckResult{
			ID:      nvidia.CheckSecureBoot,
			Verdict: nvidia.VerdictWarning,
			Detail:  "enabled; unsigned modules are rejected",
		}
	case probe.SecureBootDisabled:
		return ok(nvidia.CheckSecureBoot, "disabled")
	default:
		return ok(nvidia.CheckSecureBoot, "unknown (state could not be read)")
	}
}

func (p *Pipeline) checkKernelHeaders(ctx context.Context, st *run) nvidia.CheckResult {
	if st.release == "" {
		return nvidia.CheckResult{
			ID:      nvidia.CheckKernelHeaders,
			Verdict: nvidia.VerdictWarning,
			Detail:  "running kernel release unknown",
		}
	}
	if p.probe.KernelHeaders(ctx, st.release) {
		return ok(nvidia.CheckKernelHeaders, "present for "+st.release)
	}
	return nvidia.CheckResult{
		ID:         nvidia.CheckKernelHeaders,
		Verdict:    nvidia.VerdictWarning,
		Detail:     "missing for " + st.release,
		Remediable: true,
	}
}

func (p *Pipeline) checkDriverPackage(ctx context.Context, st *run) nvidia.CheckResult {
	if entry, found := p.probe.RecentInstall(ctx); found {
		st.recentInstall = entry
	}
	withLog := func(detail string) string {
		if st.recentInstall == "" {
			return detail
		}
		return detail + "; last install: " + st.recentInstall
	}

	installed, found := p.probe.DriverPackage(ctx)
	if !found {
		return nvidia.CheckResult{
			ID:      nvidia.CheckDriverPackage,
			Verdict: nvidia.VerdictFailure,
			Detail:  withLog(p.policy.DriverPackage + " is not installed"),
		}
	}

	if tooOld, floor := p.belowFloor(ctx, installed); tooOld {
		return nvidia.CheckResult{
			ID:      nvidia.CheckDriverPackage,
			Verdict: nvidia.VerdictWarning,
			Detail:  withLog(fmt.Sprintf("%s %s is older than the required %s", p.policy.DriverPackage, installed, floor)),
		}
	}

	if !p.probe.CapabilityResponds(ctx) {
		return nvidia.CheckResult{
			ID:      nvidia.CheckDriverPackage,
			Verdict: nvidia.VerdictWarning,
			Detail:  withLog(fmt.Sprintf("%s %s is installed but %s fails", p.policy.DriverPackage, installed, p.policy.CapabilityCommand)),
		}
	}
	return ok(nvidia.CheckDriverPackage, fmt.Sprintf("%s %s", p.policy.DriverPackage, installed))
}

// belowFloor compares the installed version against the configured minimum.
// Distribution suffixes such as "-0ubuntu1" are stripped first; versions
// that still do not parse are never reported as too old.
func (p *Pipeline) belowFloor(ctx context.Context, installed string) (bool, string) {
	if p.minVersion == nil {
		return false, ""
	}
	v, err := version.NewVersion(UpstreamVersion(installed))
	if err != nil {
		otelzap.Ctx(ctx).Debug("Unparseable driver version", zap.String("version", installed), zap.Error(err))
		return false, ""
	}
	return v.LessThan(p.minVersion), p.minVersion.Original()
}

// UpstreamVersion strips the epoch and distribution revision from a package
// version: "1:535.183.01-0ubuntu1" becomes "535.183.01".
func UpstreamVersion(v string) string {
	if _, rest, found := strings.Cut(v, ":"); found {
		v = rest
	}
	if i := strings.IndexByte(v, '-'); i > 0 {
		v = v[:i]
	}
	return v
}

func (p *Pipeline) checkBootImage(ctx context.Context, st *run) nvidia.CheckResult {
	if st.release == "" {
		return nvidia.CheckResult{
			ID:      nvidia.CheckBootImage,
			Verdict: nvidia.VerdictWarning,
			Detail:  "running kernel release unknown",
		}
	}
	image, readable := p.probe.BootImageModules(ctx, st.release)
	if image.Has(p.policy.TargetModule) {
		return ok(nvidia.CheckBootImage, p.policy.TargetModule+" is in the boot image for "+st.release)
	}
	detail := p.policy.TargetModule + " is missing from the boot image for " + st.release
	if !readable {
		detail = "boot image for " + st.release + " could not be inspected"
	}
	return nvidia.CheckResult{
		ID:         nvidia.CheckBootImage,
		Verdict:    nvidia.VerdictWarning,
		Detail:     detail,
		Remediable: true,
	}
}
