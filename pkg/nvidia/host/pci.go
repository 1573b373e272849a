// pkg/nvidia/host/pci.go

package host

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	cerr "github.com/cockroachdb/errors"
)

const DefaultPCIRoot = "/sys/bus/pci/devices"

// SysfsPCI reads the PCI bus from sysfs.
type SysfsPCI struct {
	Root string
}

// Devices returns devices whose vendor id matches vendor ("10de" or
// "0x10de").
func (p *SysfsPCI) Devices(_ context.Context, vendor string) ([]PCIDevice, error) {
	root := p.Root
	if root == "" {
		root = DefaultPCIRoot
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, cerr.Wrapf(err, "list %s", root)
	}

	want := NormalizeHexID(vendor)
	var devices []PCIDevice
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		v := readID(filepath.Join(dir, "vendor"))
		if v == "" || v != want {
			continue
		}
		devices = append(devices, PCIDevice{
			Slot:   e.Name(),
			Vendor: v,
			Device: readID(filepath.Join(dir, "device")),
			Class:  readID(filepath.Join(dir, "class")),
		})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Slot < devices[j].Slot })
	return devices, nil
}

// NormalizeHexID lowercases an id and strips a 0x prefix.
func NormalizeHexID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.TrimPrefix(id, "0x")
}

func readID(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return NormalizeHexID(string(data))
}
