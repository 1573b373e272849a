// pkg/nvidia/host/kernel.go

package host

import (
	"os"
	"path/filepath"

	cerr "github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

const DefaultModulesRoot = "/lib/modules"

// KernelInfo answers questions about the running kernel.
type KernelInfo interface {
	Release() (string, error)
	HeadersInstalled(release string) bool
}

// Kernel is the KernelInfo of the local machine.
type Kernel struct {
	ModulesRoot string

	uname func(*unix.Utsname) error
}

// Release returns the running kernel release, as uname -r prints it.
func (k *Kernel) Release() (string, error) {
	uname := k.uname
	if uname == nil {
		uname = unix.Uname
	}
	var u unix.Utsname
	if err := uname(&u); err != nil {
		return "", cerr.Wrap(err, "uname")
	}
	return unix.ByteSliceToString(u.Release[:]), nil
}

// HeadersInstalled reports whether the build tree for release exists.
func (k *Kernel) HeadersInstalled(release string) bool {
	root := k.ModulesRoot
	if root == "" {
		root = DefaultModulesRoot
	}
	info, err := os.Stat(filepath.Join(root, release, "build"))
	return err == nil && info.IsDir()
}
