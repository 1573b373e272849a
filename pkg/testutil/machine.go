package testutil

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"time"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/host"
	cerr "github.com/cockroachdb/errors"
)

// FakeMachine is an in-memory host that implements every collaborator
// interface in pkg/nvidia/host. State changes follow a simplified model of
// the real system:
//
//   - the target module only loads when the competing driver is not loaded
//   - the capability command works when the target module is loaded and the
//     competing driver is not
//   - a boot image rebuild packs every available module except blacklisted
//     ones
//
// Every mutating call and capability run is appended to Calls.
type FakeMachine struct {
	PCI            []host.PCIDevice
	SMIPath        string
	Loaded         host.ModuleSet
	Available      host.ModuleSet
	Installed      map[string]string
	Kernel         string
	Headers        map[string]bool
	BootImages     map[string]host.ModuleSet
	ActiveServices map[string]bool
	SecureBootOn   bool
	SecureBootSet  bool
	LogEntry       string
	Blacklist      string

	TargetModule    string
	CompetingDriver string
	DriverPackage   string

	FailLoad    map[string]error
	FailUnload  map[string]error
	FailInstall error
	FailRebuild error
	FailRestart error

	// OnRestart runs after a successful service restart.
	OnRestart func(f *FakeMachine, unit string)

	// CapabilityOK overrides the default capability model.
	CapabilityOK func(f *FakeMachine) bool

	Calls []string
}

// NewHealthyMachine returns a machine on which every check passes.
func NewHealthyMachine() *FakeMachine {
	release := "6.8.0-45-generic"
	return &FakeMachine{
		PCI: []host.PCIDevice{{
			Slot: "0000:01:00.0", Vendor: "10de", Device: "2206", Class: "030000",
		}},
		SMIPath:   "/usr/bin/nvidia-smi",
		Loaded:    host.NewModuleSet("nvidia", "nvidia_uvm", "nvidia_drm", "nvidia_modeset"),
		Available: host.NewModuleSet("nvidia", "nvidia_uvm", "nvidia_drm", "nvidia_modeset", "nouveau"),
		Installed: map[string]string{"nvidia-driver-535": "535.183.01-0ubuntu1"},
		Kernel:    release,
		Headers:   map[string]bool{release: true},
		BootImages: map[string]host.ModuleSet{
			release: host.NewModuleSet("nvidia", "nvidia_uvm", "nvidia_drm", "nvidia_modeset"),
		},
		ActiveServices:  map[string]bool{},
		SecureBootSet:   true,
		TargetModule:    "nvidia",
		CompetingDriver: "nouveau",
		DriverPackage:   "nvidia-driver-535",
		FailLoad:        map[string]error{},
		FailUnload:      map[string]error{},
	}
}

// Machine exposes f through a host.Machine.
func (f *FakeMachine) Machine() *host.Machine {
	return &host.Machine{
		Hardware:   f,
		Capability: f,
		Modules:    f,
		Services:   f,
		Packages:   f,
		InstallLog: f,
		BootImage:  f,
		SecureBoot: f,
		Kernel:     f,
		Directives: f,
	}
}

// Snapshot renders the observable machine state for idempotence checks.
func (f *FakeMachine) Snapshot() string {
	var pkgs []string
	for name, v := range f.Installed {
		pkgs = append(pkgs, name+"="+v)
	}
	sort.Strings(pkgs)
	var images []string
	for rel, set := range f.BootImages {
		images = append(images, fmt.Sprintf("%s:%v", rel, set.Names()))
	}
	sort.Strings(images)
	return fmt.Sprintf("loaded=%v pkgs=%v headers=%v images=%v blacklist=%q",
		f.Loaded.Names(), pkgs, f.Headers[f.Kernel], images, f.Blacklist)
}

// CallCount counts calls equal to call.
func (f *FakeMachine) CallCount(call string) int {
	n := 0
	for _, c := range f.Calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *FakeMachine) record(format string, args ...any) {
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

// Sleep is a diagnose.Sleeper that records the wait instead of blocking.
func (f *FakeMachine) Sleep(ctx context.Context, d time.Duration) error {
	f.record("sleep %s", d)
	return ctx.Err()
}

// Devices implements host.HardwareInventory.
func (f *FakeMachine) Devices(_ context.Context, vendor string) ([]host.PCIDevice, error) {
	var out []host.PCIDevice
	for _, d := range f.PCI {
		if d.Vendor == host.NormalizeHexID(vendor) {
			out = append(out, d)
		}
	}
	return out, nil
}

// LookPath implements host.CapabilityRunner.
func (f *FakeMachine) LookPath() (string, error) {
	if f.SMIPath == "" {
		return "", &exec.Error{Name: "nvidia-smi", Err: exec.ErrNotFound}
	}
	return f.SMIPath, nil
}

// Run implements host.CapabilityRunner.
func (f *FakeMachine) Run(ctx context.Context) (string, error) {
	f.record("capability-run")
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.SMIPath == "" {
		return "", &exec.Error{Name: "nvidia-smi", Err: exec.ErrNotFound}
	}
	ok := f.Loaded.Has(f.TargetModule) && !f.Loaded.Has(f.CompetingDriver)
	if f.CapabilityOK != nil {
		ok = f.CapabilityOK(f)
	}
	if !ok {
		return "NVIDIA-SMI has failed because it couldn't communicate with the NVIDIA driver.",
			cerr.New("nvidia-smi: exit status 9")
	}
	return "GPU 0: NVIDIA GeForce RTX 3080 (UUID: GPU-5a1b2c3d)", nil
}

// ListLoaded implements host.ModuleController.
func (f *FakeMachine) ListLoaded(_ context.Context) (host.ModuleSet, error) {
	return f.Loaded.Clone(), nil
}

// Load implements host.ModuleController.
func (f *FakeMachine) Load(ctx context.Context, name string) error {
	f.record("load %s", name)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.FailLoad[name]; err != nil {
		return err
	}
	if !f.Available.Has(name) {
		return cerr.Newf("modprobe: FATAL: Module %s not found", name)
	}
	if name != f.CompetingDriver && f.Loaded.Has(f.CompetingDriver) {
		return cerr.Newf("modprobe: ERROR: could not insert '%s': No such device", name)
	}
	f.Loaded.Add(name)
	return nil
}

// Unload implements host.ModuleController.
func (f *FakeMachine) Unload(ctx context.Context, name string) error {
	f.record("unload %s", name)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.FailUnload[name]; err != nil {
		return err
	}
	f.Loaded.Remove(name)
	return nil
}

// RefreshDependencies implements host.ModuleController.
func (f *FakeMachine) RefreshDependencies(ctx context.Context) error {
	f.record("depmod")
	return ctx.Err()
}

// IsActive implements host.ServiceController.
func (f *FakeMachine) IsActive(_ context.Context, unit string) (bool, error) {
	return f.ActiveServices[unit], nil
}

// Restart implements host.ServiceController.
func (f *FakeMachine) Restart(ctx context.Context, unit string) error {
	f.record("restart %s", unit)
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.FailRestart != nil {
		return f.FailRestart
	}
	f.ActiveServices[unit] = true
	if f.OnRestart != nil {
		f.OnRestart(f, unit)
	}
	return nil
}

// Install implements host.PackageInstaller.
func (f *FakeMachine) Install(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		f.record("install %s", id)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.FailInstall != nil {
		return f.FailInstall
	}
	for _, id := range ids {
		switch id {
		case f.HeadersPackage(f.Kernel):
			f.Headers[f.Kernel] = true
			f.Installed[id] = f.Kernel
		case f.DriverPackage:
			f.Installed[id] = "535.183.01-0ubuntu1"
			f.SMIPath = "/usr/bin/nvidia-smi"
			for _, m := range []string{"nvidia", "nvidia_uvm", "nvidia_drm", "nvidia_modeset"} {
				f.Available.Add(m)
			}
		default:
			f.Installed[id] = "1.0"
		}
	}
	return nil
}

// QueryInstalled implements host.PackageInstaller.
func (f *FakeMachine) QueryInstalled(_ context.Context, id string) (string, bool, error) {
	v, ok := f.Installed[id]
	return v, ok, nil
}

// HeadersPackage implements host.PackageInstaller.
func (f *FakeMachine) HeadersPackage(release string) string {
	return "linux-headers-" + release
}

// LastEntry implements host.InstallLog.
func (f *FakeMachine) LastEntry(_ context.Context, _ string) (string, bool, error) {
	return f.LogEntry, f.LogEntry != "", nil
}

// Rebuild implements host.BootImageBuilder.
func (f *FakeMachine) Rebuild(ctx context.Context, kernel string) error {
	f.record("rebuild %s", kernel)
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.FailRebuild != nil {
		return f.FailRebuild
	}
	image := host.NewModuleSet()
	for name := range f.Available {
		if f.Blacklist != "" && name == f.CompetingDriver {
			continue
		}
		image.Add(name)
	}
	f.BootImages[kernel] = image
	return nil
}

// ListContents implements host.BootImageBuilder.
func (f *FakeMachine) ListContents(_ context.Context, image string) (host.ModuleSet, error) {
	for rel, set := range f.BootImages {
		if f.ImagePath(rel) == image {
			return set.Clone(), nil
		}
	}
	return nil, cerr.Newf("lsinitramfs: %s: No such file or directory", image)
}

// ImagePath implements host.BootImageBuilder.
func (f *FakeMachine) ImagePath(kernel string) string {
	return "/boot/initrd.img-" + kernel
}

// SecureBoot implements host.SecureBootReader.
func (f *FakeMachine) SecureBoot(_ context.Context) (bool, bool, error) {
	return f.SecureBootOn, f.SecureBootSet, nil
}

// Release implements host.KernelInfo.
func (f *FakeMachine) Release() (string, error) {
	if f.Kernel == "" {
		return "", cerr.New("uname failed")
	}
	return f.Kernel, nil
}

// HeadersInstalled implements host.KernelInfo.
func (f *FakeMachine) HeadersInstalled(release string) bool {
	return f.Headers[release]
}

// WriteBlacklist implements host.DirectiveWriter.
func (f *FakeMachine) WriteBlacklist(ctx context.Context, driver string) (bool, error) {
	f.record("write-blacklist %s", driver)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	content := string(host.BlacklistContent(driver))
	changed := f.Blacklist != content
	f.Blacklist = content
	return changed, nil
}
