// pkg/nvidia/host/blacklist.go

package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const DefaultBlacklistPath = "/etc/modprobe.d/blacklist-nouveau.conf"

// DirectiveWriter persists modprobe directives.
type DirectiveWriter interface {
	// WriteBlacklist replaces the directive file with a blacklist for
	// driver. changed is false when the file already held that content.
	WriteBlacklist(ctx context.Context, driver string) (changed bool, err error)
}

// BlacklistFile writes a modprobe.d blacklist file.
type BlacklistFile struct {
	Path string
}

// BlacklistContent is the full file body written for driver.
func BlacklistContent(driver string) []byte {
	return []byte(fmt.Sprintf("blacklist %s\noptions %s modeset=0\n", driver, driver))
}

// WriteBlacklist rewrites the whole file. It never appends, so repeated
// runs leave identical content.
func (b *BlacklistFile) WriteBlacklist(ctx context.Context, driver string) (bool, error) {
	path := b.Path
	if path == "" {
		path = DefaultBlacklistPath
	}
	want := BlacklistContent(driver)

	current, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, cerr.Wrapf(err, "read %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, cerr.Wrapf(err, "create %s", filepath.Dir(path))
	}

	// atomic replace
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, want, 0o644); err != nil {
		return false, cerr.Wrapf(err, "write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return false, cerr.Wrapf(err, "replace %s", path)
	}

	changed := !bytes.Equal(current, want)
	otelzap.Ctx(ctx).Info("Wrote blacklist directive",
		zap.String("path", path),
		zap.String("driver", driver),
		zap.Bool("changed", changed))
	return changed, nil
}
