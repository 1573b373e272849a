// pkg/nvidia/probe/probe.go
//
// Typed, side-effect-free reads of the machine state. Collaborator errors
// never escape a probe: they are logged and folded into an absent or
// unknown fact.

package probe

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/host"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// SecureBootState is tri-state; unknown is a fact, not a failure.
type SecureBootState string

const (
	SecureBootEnabled  SecureBootState = "enabled"
	SecureBootDisabled SecureBootState = "disabled"
	SecureBootUnknown  SecureBootState = "unknown"
)

// Probe is the set of facts the diagnostic pipeline consumes.
type Probe interface {
	Hardware(ctx context.Context) []host.PCIDevice
	CapabilityInterface(ctx context.Context) (path string, ok bool)
	LoadedModules(ctx context.Context) host.ModuleSet
	CompetingDriverLoaded(ctx context.Context) bool
	SecureBoot(ctx context.Context) SecureBootState
	KernelRelease(ctx context.Context) (string, bool)
	KernelHeaders(ctx context.Context, release string) bool
	DriverPackage(ctx context.Context) (version string, ok bool)
	CapabilityResponds(ctx context.Context) bool
	BootImageModules(ctx context.Context, release string) (host.ModuleSet, bool)
	RecentInstall(ctx context.Context) (string, bool)
	ActiveDisplayService(ctx context.Context) (string, bool)
}

// Settings names what the probe looks for.
type Settings struct {
	VendorID        string
	CompetingDriver string
	DriverPackage   string
	DisplayServices []string
}

// System reads facts from a host.Machine.
type System struct {
	m *host.Machine
	s Settings
}

// New returns a System probe.
func New(m *host.Machine, s Settings) *System {
	return &System{m: m, s: s}
}

var _ Probe = (*System)(nil)

func debugFold(ctx context.Context, fact string, err error) {
	otelzap.Ctx(ctx).Debug("Probe could not read fact",
		zap.String("fact", fact),
		zap.Error(err))
}

// Hardware lists PCI devices from the configured vendor.
func (p *System) Hardware(ctx context.Context) []host.PCIDevice {
	devices, err := p.m.Hardware.Devices(ctx, p.s.VendorID)
	if err != nil {
		debugFold(ctx, "hardware", err)
		return nil
	}
	return devices
}

// CapabilityInterface resolves the capability command.
func (p *System) CapabilityInterface(ctx context.Context) (string, bool) {
	path, err := p.m.Capability.LookPath()
	if err != nil {
		debugFold(ctx, "capability-interface", err)
		return "", false
	}
	return path, true
}

// LoadedModules returns the loaded module set; empty when unreadable.
func (p *System) LoadedModules(ctx context.Context) host.ModuleSet {
	set, err := p.m.Modules.ListLoaded(ctx)
	if err != nil {
		debugFold(ctx, "loaded-modules", err)
		return host.NewModuleSet()
	}
	return set
}

// CompetingDriverLoaded reports whether the competing module is loaded.
func (p *System) CompetingDriverLoaded(ctx context.Context) bool {
	return p.LoadedModules(ctx).Has(p.s.CompetingDriver)
}

// SecureBoot reads the firmware state.
func (p *System) SecureBoot(ctx context.Context) SecureBootState {
	if p.m.SecureBoot == nil {
		return SecureBootUnknown
	}
	enabled, known, err := p.m.SecureBoot.SecureBoot(ctx)
	if err != nil {
		debugFold(ctx, "secure-boot", err)
		return SecureBootUnknown
	}
	switch {
	case !known:
		return SecureBootUnknown
	case enabled:
		return SecureBootEnabled
	default:
		return SecureBootDisabled
	}
}

// KernelRelease returns the running kernel release.
func (p *System) KernelRelease(ctx context.Context) (string, bool) {
	rel, err := p.m.Kernel.Release()
	if err != nil || rel == "" {
		debugFold(ctx, "kernel-release", err)
		return "", false
	}
	return rel, true
}

// KernelHeaders reports whether headers for release are installed.
func (p *System) KernelHeaders(_ context.Context, release string) bool {
	return release != "" && p.m.Kernel.HeadersInstalled(release)
}

// DriverPackage returns the installed driver package version.
func (p *System) DriverPackage(ctx context.Context) (string, bool) {
	version, ok, err := p.m.Packages.QueryInstalled(ctx, p.s.DriverPackage)
	if err != nil {
		debugFold(ctx, "driver-package", err)
		return "", false
	}
	return version, ok
}

// CapabilityResponds runs the capability command and reports exit status
// only.
func (p *System) CapabilityResponds(ctx context.Context) bool {
	if _, err := p.m.Capability.Run(ctx); err != nil {
		debugFold(ctx, "capability-responds", err)
		return false
	}
	return true
}

// BootImageModules lists modules in the boot image for release. ok is false
// when the image could not be inspected.
func (p *System) BootImageModules(ctx context.Context, release string) (host.ModuleSet, bool) {
	if release == "" {
		return host.NewModuleSet(), false
	}
	set, err := p.m.BootImage.ListContents(ctx, p.m.BootImage.ImagePath(release))
	if err != nil {
		debugFold(ctx, "boot-image", err)
		return host.NewModuleSet(), false
	}
	return set, true
}

// RecentInstall returns the latest install-log entry for the driver package.
func (p *System) RecentInstall(ctx context.Context) (string, bool) {
	if p.m.InstallLog == nil {
		return "", false
	}
	entry, ok, err := p.m.InstallLog.LastEntry(ctx, p.s.DriverPackage)
	if err != nil {
		debugFold(ctx, "install-log", err)
		return "", false
	}
	return entry, ok
}

// ActiveDisplayService returns the first active display manager.
func (p *System) ActiveDisplayService(ctx context.Context) (string, bool) {
	for _, unit := range p.s.DisplayServices {
		active, err := p.m.Services.IsActive(ctx, unit)
		if err != nil {
			debugFold(ctx, "display-service", err)
			continue
		}
		if active {
			return unit, true
		}
	}
	return "", false
}
