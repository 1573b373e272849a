// pkg/nvidia/host/distro.go

package host

import (
	"strings"

	cerr "github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

const DefaultOSRelease = "/etc/os-release"

// Family is a distribution family; it decides which package and boot-image
// tools are used.
type Family string

const (
	FamilyDebian  Family = "debian"
	FamilyRHEL    Family = "rhel"
	FamilyUnknown Family = "unknown"
)

// DetectFamily reads os-release. The file is shell-style KEY="value" pairs,
// which godotenv parses without touching the process environment.
func DetectFamily(path string) (Family, error) {
	if path == "" {
		path = DefaultOSRelease
	}
	fields, err := godotenv.Read(path)
	if err != nil {
		return FamilyUnknown, cerr.Wrapf(err, "read %s", path)
	}
	return FamilyFromOSRelease(fields), nil
}

// FamilyFromOSRelease classifies parsed os-release fields by ID then
// ID_LIKE.
func FamilyFromOSRelease(fields map[string]string) Family {
	ids := append([]string{fields["ID"]}, strings.Fields(fields["ID_LIKE"])...)
	for _, id := range ids {
		switch strings.ToLower(id) {
		case "debian", "ubuntu", "pop", "linuxmint":
			return FamilyDebian
		case "rhel", "fedora", "centos", "rocky", "almalinux":
			return FamilyRHEL
		}
	}
	return FamilyUnknown
}

// ParseFamily maps a package manager name from configuration.
func ParseFamily(manager string) (Family, bool) {
	switch strings.ToLower(manager) {
	case "apt", "debian":
		return FamilyDebian, true
	case "dnf", "yum", "rhel":
		return FamilyRHEL, true
	}
	return FamilyUnknown, false
}

// Toolset is the family-specific collaborators.
type Toolset struct {
	Family    Family
	Installer PackageInstaller
	Log       InstallLog
	BootImage BootImageBuilder
}

// NewToolset returns the tools for family.
func NewToolset(family Family, run Runner) (Toolset, error) {
	switch family {
	case FamilyDebian:
		return Toolset{
			Family:    family,
			Installer: &Apt{Run: run},
			Log:       &AptHistory{},
			BootImage: &InitramfsTools{Run: run},
		}, nil
	case FamilyRHEL:
		return Toolset{
			Family:    family,
			Installer: &Dnf{Run: run},
			Log:       &DnfLog{},
			BootImage: &Dracut{Run: run},
		}, nil
	default:
		return Toolset{}, cerr.WithHint(
			cerr.Newf("unsupported distribution family %q", family),
			"Set package_manager to apt or dnf in the nvdoctor config")
	}
}
