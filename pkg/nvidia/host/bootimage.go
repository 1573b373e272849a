// pkg/nvidia/host/bootimage.go

package host

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/execute"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const rebuildTimeout = 10 * time.Minute

// InitramfsTools rebuilds Debian-family boot images.
type InitramfsTools struct {
	BootDir string
	Run     Runner
}

// Rebuild runs update-initramfs -u -k <kernel>.
func (b *InitramfsTools) Rebuild(ctx context.Context, kernel string) error {
	otelzap.Ctx(ctx).Info("Rebuilding boot image", zap.String("kernel", kernel), zap.String("tool", "update-initramfs"))
	if _, err := runnerOrDefault(b.Run)(ctx, execute.Options{
		Command: "update-initramfs",
		Args:    []string{"-u", "-k", kernel},
		Timeout: rebuildTimeout,
	}); err != nil {
		return cerr.Wrapf(err, "rebuild boot image for %s", kernel)
	}
	return nil
}

// ListContents lists modules packed into image.
func (b *InitramfsTools) ListContents(ctx context.Context, image string) (ModuleSet, error) {
	out, err := runnerOrDefault(b.Run)(ctx, execute.Options{
		Command: "lsinitramfs",
		Args:    []string{image},
		Capture: true,
		Timeout: 2 * time.Minute,
	})
	if err != nil {
		return nil, cerr.Wrapf(err, "list %s", image)
	}
	return ParseImageListing(out), nil
}

// ImagePath returns /boot/initrd.img-<kernel>.
func (b *InitramfsTools) ImagePath(kernel string) string {
	return path.Join(bootDir(b.BootDir), "initrd.img-"+kernel)
}

// Dracut rebuilds RHEL-family boot images.
type Dracut struct {
	BootDir string
	Run     Runner
}

// Rebuild runs dracut -f --kver <kernel>.
func (b *Dracut) Rebuild(ctx context.Context, kernel string) error {
	otelzap.Ctx(ctx).Info("Rebuilding boot image", zap.String("kernel", kernel), zap.String("tool", "dracut"))
	if _, err := runnerOrDefault(b.Run)(ctx, execute.Options{
		Command: "dracut",
		Args:    []string{"-f", "--kver", kernel},
		Timeout: rebuildTimeout,
	}); err != nil {
		return cerr.Wrapf(err, "rebuild boot image for %s", kernel)
	}
	return nil
}

// ListContents lists modules packed into image.
func (b *Dracut) ListContents(ctx context.Context, image string) (ModuleSet, error) {
	out, err := runnerOrDefault(b.Run)(ctx, execute.Options{
		Command: "lsinitrd",
		Args:    []string{image},
		Capture: true,
		Timeout: 2 * time.Minute,
	})
	if err != nil {
		return nil, cerr.Wrapf(err, "list %s", image)
	}
	return ParseImageListing(out), nil
}

// ImagePath returns /boot/initramfs-<kernel>.img.
func (b *Dracut) ImagePath(kernel string) string {
	return path.Join(bootDir(b.BootDir), "initramfs-"+kernel+".img")
}

var moduleSuffixes = []string{".ko.zst", ".ko.xz", ".ko.gz", ".ko"}

// ParseImageListing extracts module names from lsinitramfs or lsinitrd
// output. lsinitrd prints ls -l style rows, so only the last field of each
// line is considered.
func ParseImageListing(out string) ModuleSet {
	set := NewModuleSet()
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		base := path.Base(fields[len(fields)-1])
		for _, suffix := range moduleSuffixes {
			if strings.HasSuffix(base, suffix) {
				set.Add(strings.TrimSuffix(base, suffix))
				break
			}
		}
	}
	return set
}

func bootDir(dir string) string {
	if dir == "" {
		return "/boot"
	}
	return dir
}
