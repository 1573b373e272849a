package host

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/execute"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type recordedCall struct {
	Command string
	Args    []string
}

// scriptedRunner records every invocation and replies from a table keyed
// by command name.
type scriptedRunner struct {
	calls   []recordedCall
	outputs map[string]string
	errs    map[string]error
}

func (s *scriptedRunner) run(_ context.Context, opts execute.Options) (string, error) {
	s.calls = append(s.calls, recordedCall{Command: opts.Command, Args: opts.Args})
	return s.outputs[opts.Command], s.errs[opts.Command]
}

func exitError(t *testing.T, code int) error {
	t.Helper()
	err := exec.Command("sh", "-c", "exit "+strconv.Itoa(code)).Run()
	require.Error(t, err)
	return err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestModuleSetNormalizes(t *testing.T) {
	s := NewModuleSet("nvidia-drm", "nvidia")
	assert.True(t, s.Has("nvidia_drm"))
	assert.True(t, s.Has("nvidia-drm"))
	s.Remove("nvidia_drm")
	assert.Equal(t, []string{"nvidia"}, s.Names())
}

func TestParseProcModules(t *testing.T) {
	data := `nvidia_uvm 1515520 0 - Live 0x0000000000000000 (POE)
nvidia_drm 77824 4 - Live 0x0000000000000000 (POE)
nvidia 56807424 93 nvidia_uvm,nvidia_modeset, Live 0x0000000000000000 (POE)
snd_hda_intel 57344 3 - Live 0x0000000000000000
`
	set := ParseProcModules(data)
	assert.Equal(t, []string{"nvidia", "nvidia_drm", "nvidia_uvm", "snd_hda_intel"}, set.Names())
}

func TestKmodListLoadedReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules")
	writeFile(t, path, "nouveau 2797568 2 - Live 0x0\n")

	k := &Kmod{ProcModules: path}
	set, err := k.ListLoaded(context.Background())
	require.NoError(t, err)
	assert.True(t, set.Has("nouveau"))
}

func TestKmodCommands(t *testing.T) {
	r := &scriptedRunner{}
	k := &Kmod{Run: r.run}
	ctx := context.Background()

	require.NoError(t, k.Load(ctx, "nvidia"))
	require.NoError(t, k.Unload(ctx, "nouveau"))
	require.NoError(t, k.RefreshDependencies(ctx))

	want := []recordedCall{
		{Command: "modprobe", Args: []string{"nvidia"}},
		{Command: "modprobe", Args: []string{"-r", "nouveau"}},
		{Command: "depmod", Args: []string{"-a"}},
	}
	if diff := cmp.Diff(want, r.calls); diff != "" {
		t.Errorf("kmod calls mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDpkgStatus(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		version string
		ok      bool
	}{
		{"installed", "install ok installed\t535.183.01-0ubuntu1", "535.183.01-0ubuntu1", true},
		{"config files only", "deinstall ok config-files\t535.183.01-0ubuntu1", "", false},
		{"empty", "", "", false},
		{"no version", "install ok installed\t", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, ok := ParseDpkgStatus(tt.out)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestParseRPMQuery(t *testing.T) {
	v, ok := ParseRPMQuery("550.90.07-1.fc40\n")
	assert.True(t, ok)
	assert.Equal(t, "550.90.07-1.fc40", v)

	_, ok = ParseRPMQuery("package akmod-nvidia is not installed\n")
	assert.False(t, ok)
}

func TestAptInstallAndHeaders(t *testing.T) {
	r := &scriptedRunner{}
	a := &Apt{Run: r.run}

	require.NoError(t, a.Install(context.Background(), "linux-headers-6.8.0-45-generic"))
	require.Len(t, r.calls, 1)
	assert.Equal(t, "apt-get", r.calls[0].Command)
	assert.Equal(t, []string{"install", "-y", "linux-headers-6.8.0-45-generic"}, r.calls[0].Args)
	assert.Equal(t, "linux-headers-6.8.0-45-generic", a.HeadersPackage("6.8.0-45-generic"))

	require.NoError(t, a.Install(context.Background()))
	assert.Len(t, r.calls, 1, "empty install must not invoke apt")
}

func TestAptQueryInstalledMissingPackage(t *testing.T) {
	r := &scriptedRunner{errs: map[string]error{"dpkg-query": exitError(t, 1)}}
	a := &Apt{Run: r.run}

	_, ok, err := a.QueryInstalled(context.Background(), "nvidia-driver-535")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDnfHeadersPackage(t *testing.T) {
	assert.Equal(t, "kernel-devel-6.9.7-200.fc40.x86_64", (&Dnf{}).HeadersPackage("6.9.7-200.fc40.x86_64"))
}

func TestParseAptHistory(t *testing.T) {
	data := `Start-Date: 2024-05-01  10:00:00
Commandline: apt-get install -y nvidia-driver-535
Install: nvidia-driver-535:amd64 (535.171.04-0ubuntu1), libnvidia-gl-535:amd64 (535.171.04-0ubuntu1)
End-Date: 2024-05-01  10:02:00

Start-Date: 2024-06-11  09:30:00
Commandline: apt-get upgrade
Upgrade: nvidia-driver-535:amd64 (535.171.04-0ubuntu1, 535.183.01-0ubuntu1)
End-Date: 2024-06-11  09:33:00

Start-Date: 2024-06-12  08:00:00
Install: htop:amd64 (3.3.0-4)
End-Date: 2024-06-12  08:00:10
`
	entry, ok := ParseAptHistory(data, "nvidia-driver-535")
	require.True(t, ok)
	assert.Equal(t, "2024-06-11  09:30:00 Upgrade: nvidia-driver-535:amd64 (535.171.04-0ubuntu1, 535.183.01-0ubuntu1)", entry)

	_, ok = ParseAptHistory(data, "akmod-nvidia")
	assert.False(t, ok)
}

func TestParseDnfLog(t *testing.T) {
	data := `2024-07-01T10:00:00+0000 DEBUG Installed: akmod-nvidia-3:550.90.07-1.fc40.x86_64
2024-07-01T10:00:01+0000 DEBUG some unrelated akmod-nvidia chatter
2024-07-02T10:00:00+0000 DEBUG Upgraded: akmod-nvidia-3:550.100-1.fc40.x86_64
`
	entry, ok := ParseDnfLog(data, "akmod-nvidia")
	require.True(t, ok)
	assert.Contains(t, entry, "Upgraded: akmod-nvidia-3:550.100")
}

func TestParseAptHistoryIgnoresLongerPackageNames(t *testing.T) {
	data := `Start-Date: 2024-05-01  10:00:00
Install: nvidia-driver-535:amd64 (535.171.04-0ubuntu1)
End-Date: 2024-05-01  10:02:00

Start-Date: 2024-08-01  10:00:00
Install: nvidia-driver-535-server:amd64 (535.183.06-0ubuntu1), lib32-nvidia-driver-535:i386 (535.183.06-0ubuntu1)
End-Date: 2024-08-01  10:02:00

Start-Date: 2024-09-01  10:00:00
Remove: nvidia-driver-535-open (535.183.06-0ubuntu1)
End-Date: 2024-09-01  10:01:00
`
	entry, ok := ParseAptHistory(data, "nvidia-driver-535")
	require.True(t, ok)
	assert.Equal(t, "2024-05-01  10:00:00 Install: nvidia-driver-535:amd64 (535.171.04-0ubuntu1)", entry)

	entry, ok = ParseAptHistory(data, "nvidia-driver-535-open")
	require.True(t, ok)
	assert.Equal(t, "2024-09-01  10:00:00 Remove: nvidia-driver-535-open (535.183.06-0ubuntu1)", entry)
}

func TestParseDnfLogIgnoresLongerPackageNames(t *testing.T) {
	data := `2024-07-01T10:00:00+0000 DEBUG Installed: akmod-nvidia-3:550.90.07-1.fc40.x86_64
2024-07-03T10:00:00+0000 DEBUG Installed: akmod-nvidia-open-3:560.35.03-1.fc40.x86_64
2024-07-04T10:00:00+0000 DEBUG Installed: kmod-akmod-nvidia-1.0-1.fc40.x86_64
`
	entry, ok := ParseDnfLog(data, "akmod-nvidia")
	require.True(t, ok)
	assert.Contains(t, entry, "2024-07-01T10:00:00")
}

func TestInstallLogEntryTruncatedOnRuneBoundary(t *testing.T) {
	value := "nvidia-driver-535:amd64 (535.171.04-0ubuntu1) " + strings.Repeat("é", 200)
	data := "Start-Date: 2024-05-01  10:00:00\nInstall: " + value + "\n"

	entry, ok := ParseAptHistory(data, "nvidia-driver-535")
	require.True(t, ok)
	assert.True(t, utf8.ValidString(entry), "entry must stay valid UTF-8")
	assert.True(t, strings.HasSuffix(entry, "é..."))
	assert.LessOrEqual(t, len(entry), maxEntryLen+len("..."))

	short := "Install: nvidia-driver-535:amd64 (535.171.04-0ubuntu1)"
	assert.Equal(t, short, truncate(short))
}

func TestInstallLogMissingFile(t *testing.T) {
	h := &AptHistory{Path: filepath.Join(t.TempDir(), "absent.log")}
	_, ok, err := h.LastEntry(context.Background(), "nvidia-driver-535")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSystemctlIsActive(t *testing.T) {
	ctx := context.Background()

	active := &Systemctl{Run: (&scriptedRunner{}).run}
	ok, err := active.IsActive(ctx, "gdm3")
	require.NoError(t, err)
	assert.True(t, ok)

	inactive := &Systemctl{Run: (&scriptedRunner{errs: map[string]error{"systemctl": exitError(t, ExitInactive)}}).run}
	ok, err = inactive.IsActive(ctx, "gdm3")
	require.NoError(t, err)
	assert.False(t, ok)

	broken := &Systemctl{Run: (&scriptedRunner{errs: map[string]error{"systemctl": errors.New("no dbus")}}).run}
	_, err = broken.IsActive(ctx, "gdm3")
	assert.Error(t, err)
}

func TestInterpretSystemctlExitCode(t *testing.T) {
	assert.Equal(t, "active", InterpretSystemctlExitCode(CmdIsActive, 0))
	assert.Equal(t, "inactive", InterpretSystemctlExitCode(CmdIsActive, 3))
	assert.Equal(t, "not loaded", InterpretSystemctlExitCode(CmdIsActive, 5))
	assert.Equal(t, "operation failed", InterpretSystemctlExitCode(CmdRestart, 3))
	assert.Equal(t, "unknown exit code 9", InterpretSystemctlExitCode(CmdRestart, 9))
}

func TestParseImageListing(t *testing.T) {
	lsinitramfs := `usr/lib/modules/6.8.0-45-generic/kernel/drivers/video/nvidia.ko
usr/lib/modules/6.8.0-45-generic/kernel/drivers/video/nvidia-drm.ko.zst
usr/lib/modules/6.8.0-45-generic/modules.dep
`
	set := ParseImageListing(lsinitramfs)
	assert.Equal(t, []string{"nvidia", "nvidia_drm"}, set.Names())

	lsinitrd := `-rw-r--r--   1 root     root      1234 Jul  1 10:00 usr/lib/modules/6.9.7/extra/nvidia.ko.xz
drwxr-xr-x   2 root     root         0 Jul  1 10:00 usr/lib/modules/6.9.7/extra
`
	assert.True(t, ParseImageListing(lsinitrd).Has("nvidia"))
}

func TestImagePaths(t *testing.T) {
	assert.Equal(t, "/boot/initrd.img-6.8.0-45-generic", (&InitramfsTools{}).ImagePath("6.8.0-45-generic"))
	assert.Equal(t, "/boot/initramfs-6.9.7.img", (&Dracut{}).ImagePath("6.9.7"))
}

func TestSysfsPCIDevices(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "0000:01:00.0", "vendor"), "0x10de\n")
	writeFile(t, filepath.Join(root, "0000:01:00.0", "device"), "0x2206\n")
	writeFile(t, filepath.Join(root, "0000:01:00.0", "class"), "0x030000\n")
	writeFile(t, filepath.Join(root, "0000:00:02.0", "vendor"), "0x8086\n")

	p := &SysfsPCI{Root: root}
	devices, err := p.Devices(context.Background(), "10DE")
	require.NoError(t, err)
	want := []PCIDevice{{Slot: "0000:01:00.0", Vendor: "10de", Device: "2206", Class: "030000"}}
	if diff := cmp.Diff(want, devices); diff != "" {
		t.Errorf("devices mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSBState(t *testing.T) {
	enabled, known := ParseSBState("SecureBoot enabled\n")
	assert.True(t, enabled)
	assert.True(t, known)

	enabled, known = ParseSBState("SecureBoot disabled\n")
	assert.False(t, enabled)
	assert.True(t, known)

	_, known = ParseSBState("garbage")
	assert.False(t, known)
}

func TestMokutilMissingIsUnknown(t *testing.T) {
	r := &scriptedRunner{errs: map[string]error{"mokutil": &exec.Error{Name: "mokutil", Err: exec.ErrNotFound}}}
	enabled, known, err := (&Mokutil{Run: r.run}).SecureBoot(context.Background())
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.False(t, known)
}

func TestKernelRelease(t *testing.T) {
	k := &Kernel{uname: func(u *unix.Utsname) error {
		copy(u.Release[:], "6.8.0-45-generic")
		return nil
	}}
	rel, err := k.Release()
	require.NoError(t, err)
	assert.Equal(t, "6.8.0-45-generic", rel)
}

func TestKernelHeadersInstalled(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "6.8.0-45-generic", "build"), 0o755))

	k := &Kernel{ModulesRoot: root}
	assert.True(t, k.HeadersInstalled("6.8.0-45-generic"))
	assert.False(t, k.HeadersInstalled("6.8.0-40-generic"))
}

func TestBlacklistFileRewritesWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modprobe.d", "blacklist-nouveau.conf")
	writeFile(t, path, "blacklist nouveau\nblacklist nouveau\nstale line\n")

	b := &BlacklistFile{Path: path}
	changed, err := b.WriteBlacklist(context.Background(), "nouveau")
	require.NoError(t, err)
	assert.True(t, changed)

	first, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "blacklist nouveau\noptions nouveau modeset=0\n", string(first))

	changed, err = b.WriteBlacklist(context.Background(), "nouveau")
	require.NoError(t, err)
	assert.False(t, changed)

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFamilyFromOSRelease(t *testing.T) {
	assert.Equal(t, FamilyDebian, FamilyFromOSRelease(map[string]string{"ID": "ubuntu", "ID_LIKE": "debian"}))
	assert.Equal(t, FamilyRHEL, FamilyFromOSRelease(map[string]string{"ID": "nobara", "ID_LIKE": "fedora"}))
	assert.Equal(t, FamilyUnknown, FamilyFromOSRelease(map[string]string{"ID": "arch"}))
}

func TestDetectFamilyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "os-release")
	writeFile(t, path, "NAME=\"Rocky Linux\"\nID=\"rocky\"\nID_LIKE=\"rhel centos fedora\"\n")

	family, err := DetectFamily(path)
	require.NoError(t, err)
	assert.Equal(t, FamilyRHEL, family)
}

func TestNewToolset(t *testing.T) {
	ts, err := NewToolset(FamilyDebian, nil)
	require.NoError(t, err)
	assert.IsType(t, &Apt{}, ts.Installer)
	assert.IsType(t, &InitramfsTools{}, ts.BootImage)

	_, err = NewToolset(FamilyUnknown, nil)
	assert.Error(t, err)
}

func TestSMIUsesConfiguredCommand(t *testing.T) {
	r := &scriptedRunner{outputs: map[string]string{"nvidia-smi": "GPU 0: NVIDIA GeForce RTX 3080"}}
	s := NewSMI("", r.run)
	s.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }

	path, err := s.LookPath()
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/nvidia-smi", path)

	out, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "RTX 3080")
}
