// pkg/nvidia/host/packages.go

package host

import (
	"context"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/execute"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const installTimeout = 20 * time.Minute

// Apt drives apt-get and dpkg on Debian-family systems.
type Apt struct {
	Run Runner
}

// Install installs packages non-interactively.
func (a *Apt) Install(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	otelzap.Ctx(ctx).Info("Installing packages", zap.Strings("packages", ids), zap.String("manager", "apt"))
	_, err := runnerOrDefault(a.Run)(ctx, execute.Options{
		Command: "apt-get",
		Args:    append([]string{"install", "-y"}, ids...),
		Env:     []string{"DEBIAN_FRONTEND=noninteractive"},
		Timeout: installTimeout,
	})
	if err != nil {
		return cerr.Wrapf(err, "apt-get install %s", strings.Join(ids, " "))
	}
	return nil
}

// QueryInstalled asks dpkg for the package status and version.
func (a *Apt) QueryInstalled(ctx context.Context, id string) (string, bool, error) {
	out, err := runnerOrDefault(a.Run)(ctx, execute.Options{
		Command: "dpkg-query",
		Args:    []string{"-W", "-f=${Status}\t${Version}", id},
		Capture: true,
	})
	if err != nil {
		// dpkg-query exits 1 for unknown packages
		if code, ok := execute.ExitCode(err); ok && code == 1 {
			return "", false, nil
		}
		return "", false, cerr.Wrapf(err, "query %s", id)
	}
	version, ok := ParseDpkgStatus(out)
	return version, ok, nil
}

// HeadersPackage returns linux-headers-<release>.
func (a *Apt) HeadersPackage(release string) string {
	return "linux-headers-" + release
}

// ParseDpkgStatus parses "${Status}\t${Version}" output. Only the
// "install ok installed" state counts; removed packages with leftover
// config report "deinstall ok config-files".
func ParseDpkgStatus(out string) (string, bool) {
	line := strings.TrimSpace(out)
	status, version, found := strings.Cut(line, "\t")
	if !found {
		return "", false
	}
	if strings.TrimSpace(status) != "install ok installed" {
		return "", false
	}
	version = strings.TrimSpace(version)
	return version, version != ""
}

// Dnf drives dnf and rpm on RHEL-family systems.
type Dnf struct {
	Run Runner
}

// Install installs packages non-interactively.
func (d *Dnf) Install(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	otelzap.Ctx(ctx).Info("Installing packages", zap.Strings("packages", ids), zap.String("manager", "dnf"))
	_, err := runnerOrDefault(d.Run)(ctx, execute.Options{
		Command: "dnf",
		Args:    append([]string{"install", "-y"}, ids...),
		Timeout: installTimeout,
	})
	if err != nil {
		return cerr.Wrapf(err, "dnf install %s", strings.Join(ids, " "))
	}
	return nil
}

// QueryInstalled asks rpm for the installed version.
func (d *Dnf) QueryInstalled(ctx context.Context, id string) (string, bool, error) {
	out, err := runnerOrDefault(d.Run)(ctx, execute.Options{
		Command: "rpm",
		Args:    []string{"-q", "--qf", "%{VERSION}-%{RELEASE}\n", id},
		Capture: true,
	})
	if err != nil {
		if strings.Contains(out, "is not installed") {
			return "", false, nil
		}
		return "", false, cerr.Wrapf(err, "query %s", id)
	}
	version, ok := ParseRPMQuery(out)
	return version, ok, nil
}

// HeadersPackage returns kernel-devel-<release>.
func (d *Dnf) HeadersPackage(release string) string {
	return "kernel-devel-" + release
}

// ParseRPMQuery returns the first version line of rpm -q output.
func ParseRPMQuery(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "not installed") {
			continue
		}
		return line, true
	}
	return "", false
}
