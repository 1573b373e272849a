// pkg/nvidia/host/machine.go

package host

// Machine bundles every collaborator the engine talks to. Probes read
// through it, remediations act through it.
type Machine struct {
	Hardware   HardwareInventory
	Capability CapabilityRunner
	Modules    ModuleController
	Services   ServiceController
	Packages   PackageInstaller
	InstallLog InstallLog
	BootImage  BootImageBuilder
	SecureBoot SecureBootReader
	Kernel     KernelInfo
	Directives DirectiveWriter
}

// LocalOptions locates the local machine's files and tools.
type LocalOptions struct {
	Family            Family
	CapabilityCommand string
	BlacklistPath     string
	Run               Runner
}

// Local wires the real implementations for this host.
func Local(opts LocalOptions) (*Machine, error) {
	tools, err := NewToolset(opts.Family, opts.Run)
	if err != nil {
		return nil, err
	}
	return &Machine{
		Hardware:   &SysfsPCI{},
		Capability: NewSMI(opts.CapabilityCommand, opts.Run),
		Modules:    &Kmod{Run: opts.Run},
		Services:   &Systemctl{Run: opts.Run},
		Packages:   tools.Installer,
		InstallLog: tools.Log,
		BootImage:  tools.BootImage,
		SecureBoot: &Mokutil{Run: opts.Run},
		Kernel:     &Kernel{},
		Directives: &BlacklistFile{Path: opts.BlacklistPath},
	}, nil
}
