// pkg/nvidia/host/host.go
//
// Narrow contracts for the machine-level collaborators the diagnostic engine
// calls into. Real implementations shell out through pkg/execute; every bit of
// tool-output parsing lives in this package.

package host

import (
	"context"
	"sort"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/execute"
)

// Runner executes an external command. Tests replace it; production code
// uses execute.Run.
type Runner func(ctx context.Context, opts execute.Options) (string, error)

func runnerOrDefault(r Runner) Runner {
	if r == nil {
		return execute.Run
	}
	return r
}

// PackageInstaller installs and queries distribution packages.
type PackageInstaller interface {
	Install(ctx context.Context, ids ...string) error
	// QueryInstalled returns the installed version; ok is false when the
	// package is not installed.
	QueryInstalled(ctx context.Context, id string) (version string, ok bool, err error)
	// HeadersPackage names the kernel headers package for a release.
	HeadersPackage(release string) string
}

// InstallLog reads the package manager's history.
type InstallLog interface {
	// LastEntry returns the most recent log line mentioning pkg.
	LastEntry(ctx context.Context, pkg string) (string, bool, error)
}

// ServiceController queries and restarts system services.
type ServiceController interface {
	IsActive(ctx context.Context, unit string) (bool, error)
	Restart(ctx context.Context, unit string) error
}

// ModuleController manages loaded kernel modules.
type ModuleController interface {
	ListLoaded(ctx context.Context) (ModuleSet, error)
	Load(ctx context.Context, name string) error
	Unload(ctx context.Context, name string) error
	RefreshDependencies(ctx context.Context) error
}

// BootImageBuilder rebuilds and inspects the initramfs.
type BootImageBuilder interface {
	Rebuild(ctx context.Context, kernel string) error
	ListContents(ctx context.Context, image string) (ModuleSet, error)
	ImagePath(kernel string) string
}

// HardwareInventory lists PCI devices.
type HardwareInventory interface {
	Devices(ctx context.Context, vendor string) ([]PCIDevice, error)
}

// CapabilityRunner resolves and runs the driver's capability command.
type CapabilityRunner interface {
	LookPath() (string, error)
	Run(ctx context.Context) (string, error)
}

// PCIDevice is one device on the PCI bus.
type PCIDevice struct {
	Slot   string `json:"slot"`
	Vendor string `json:"vendor"`
	Device string `json:"device"`
	Class  string `json:"class"`
}

// ModuleSet is a set of kernel module names. Names are normalised so that
// "nvidia-drm" and "nvidia_drm" compare equal.
type ModuleSet map[string]struct{}

// NewModuleSet builds a set from names.
func NewModuleSet(names ...string) ModuleSet {
	s := make(ModuleSet, len(names))
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Add inserts a module name.
func (s ModuleSet) Add(name string) {
	s[NormalizeModule(name)] = struct{}{}
}

// Remove deletes a module name.
func (s ModuleSet) Remove(name string) {
	delete(s, NormalizeModule(name))
}

// Has reports whether the set contains name.
func (s ModuleSet) Has(name string) bool {
	_, ok := s[NormalizeModule(name)]
	return ok
}

// Clone returns a copy of the set.
func (s ModuleSet) Clone() ModuleSet {
	out := make(ModuleSet, len(s))
	for n := range s {
		out[n] = struct{}{}
	}
	return out
}

// Without returns a copy of the set minus names.
func (s ModuleSet) Without(names ...string) ModuleSet {
	out := s.Clone()
	for _, n := range names {
		out.Remove(n)
	}
	return out
}

// Names returns the sorted module names.
func (s ModuleSet) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NormalizeModule maps dashes to underscores, the way the kernel does.
func NormalizeModule(name string) string {
	b := []byte(name)
	for i, c := range b {
		if c == '-' {
			b[i] = '_'
		}
	}
	return string(b)
}
