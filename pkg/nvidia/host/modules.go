// pkg/nvidia/host/modules.go

package host

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/execute"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const DefaultProcModules = "/proc/modules"

// Kmod is a ModuleController using /proc/modules, modprobe and depmod.
type Kmod struct {
	ProcModules string
	Run         Runner
}

// ListLoaded parses the loaded module table.
func (k *Kmod) ListLoaded(_ context.Context) (ModuleSet, error) {
	path := k.ProcModules
	if path == "" {
		path = DefaultProcModules
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerr.Wrapf(err, "read %s", path)
	}
	return ParseProcModules(string(data)), nil
}

// ParseProcModules takes the first field of every /proc/modules line.
func ParseProcModules(data string) ModuleSet {
	set := NewModuleSet()
	sc := bufio.NewScanner(strings.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) > 0 {
			set.Add(fields[0])
		}
	}
	return set
}

// Load runs modprobe name.
func (k *Kmod) Load(ctx context.Context, name string) error {
	otelzap.Ctx(ctx).Info("Loading kernel module", zap.String("module", name))
	if _, err := runnerOrDefault(k.Run)(ctx, execute.Options{
		Command: "modprobe",
		Args:    []string{name},
	}); err != nil {
		return cerr.Wrapf(err, "load module %s", name)
	}
	return nil
}

// Unload runs modprobe -r name.
func (k *Kmod) Unload(ctx context.Context, name string) error {
	otelzap.Ctx(ctx).Info("Unloading kernel module", zap.String("module", name))
	if _, err := runnerOrDefault(k.Run)(ctx, execute.Options{
		Command: "modprobe",
		Args:    []string{"-r", name},
	}); err != nil {
		return cerr.Wrapf(err, "unload module %s", name)
	}
	return nil
}

// RefreshDependencies runs depmod -a.
func (k *Kmod) RefreshDependencies(ctx context.Context) error {
	otelzap.Ctx(ctx).Info("Refreshing module dependency metadata")
	if _, err := runnerOrDefault(k.Run)(ctx, execute.Options{
		Command: "depmod",
		Args:    []string{"-a"},
	}); err != nil {
		return cerr.Wrap(err, "depmod")
	}
	return nil
}
