package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nv_err"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/host"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/testutil"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every default lookup at an empty temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func TestDefaultsAreValid(t *testing.T) {
	d := Defaults()
	require.NoError(t, d.Validate())
}

func TestLoadWithoutConfigFileUsesDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(Options{EnvFile: filepath.Join(dir, "absent.env")})
	require.NoError(t, err)
	assert.Equal(t, "10de", cfg.VendorID)
	assert.Equal(t, 5*time.Second, cfg.SettleInterval)
	assert.Equal(t, "on-failure", cfg.BundledPass)
	assert.Equal(t, []string{"gdm3", "gdm", "lightdm", "sddm", "xdm"}, cfg.DisplayServices)
}

func TestLoadLayering(t *testing.T) {
	dir := isolate(t)
	path := testutil.CreateTestFile(t, dir, "config.yaml", `settle_interval: 12s
competing_driver: nouveau
display_services: [gdm3]
bundled_pass: always
driver_package: nvidia-driver-550
`, 0o644)

	t.Setenv("NVDOCTOR_TARGET_MODULE", "nvidia")
	t.Setenv("NVDOCTOR_BUNDLED_PASS", "on-failure")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Duration("settle", 0, "")
	flags.String("bundled-pass", "", "")
	require.NoError(t, flags.Parse([]string{"--settle=30s"}))

	cfg, err := Load(Options{ConfigFile: path, EnvFile: filepath.Join(dir, "absent.env"), Flags: flags})
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.SettleInterval, "flag beats file")
	assert.Equal(t, "on-failure", cfg.BundledPass, "env beats file")
	assert.Equal(t, []string{"gdm3"}, cfg.DisplayServices)
	assert.Equal(t, "nvidia-driver-550", cfg.DriverPackageFor(host.FamilyDebian))
}

func TestLoadEnvFile(t *testing.T) {
	dir := isolate(t)
	env := testutil.CreateTestFile(t, dir, "nvdoctor.env", "NVDOCTOR_MIN_DRIVER_VERSION=535.104\n", 0o600)

	// register cleanup for the variable godotenv is about to set
	t.Setenv("NVDOCTOR_MIN_DRIVER_VERSION", "")
	require.NoError(t, os.Unsetenv("NVDOCTOR_MIN_DRIVER_VERSION"))

	cfg, err := Load(Options{EnvFile: env})
	require.NoError(t, err)
	assert.Equal(t, "535.104", cfg.MinDriverVersion)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	dir := isolate(t)
	_, err := Load(Options{ConfigFile: filepath.Join(dir, "nope.yaml"), EnvFile: filepath.Join(dir, "absent.env")})
	require.Error(t, err)
	assert.Equal(t, 2, nv_err.GetExitCode(err))
}

func TestValidateReportsEveryField(t *testing.T) {
	c := Defaults()
	c.VendorID = "nvidia"
	c.BundledPass = "sometimes"
	c.CompetingDriver = "nvidia"
	c.BlacklistPath = "relative.conf"
	c.SettleInterval = time.Hour

	err := c.Validate()
	require.Error(t, err)

	var classified *nv_err.ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, nv_err.CategoryValidation, classified.Category)
	assert.Contains(t, classified.Remediation, "vendor_id must be a 4-digit hex PCI vendor id")
	assert.Contains(t, classified.Remediation, "bundled_pass must be one of: on-failure always")
	assert.Contains(t, classified.Remediation, "competing_driver must differ from target_module")
	assert.Contains(t, classified.Remediation, "blacklist_path must be an absolute path")
	assert.Len(t, classified.Remediation, 5)
}

func TestDriverPackageFor(t *testing.T) {
	c := Defaults()
	assert.Equal(t, DefaultDebianDriver, c.DriverPackageFor(host.FamilyDebian))
	assert.Equal(t, DefaultRHELDriver, c.DriverPackageFor(host.FamilyRHEL))
}

func TestFamilyFromSetting(t *testing.T) {
	c := Defaults()
	c.PackageManager = "dnf"
	f, err := c.Family()
	require.NoError(t, err)
	assert.Equal(t, host.FamilyRHEL, f)
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nvdoctor", "config.yaml")

	require.NoError(t, WriteDefault(path, false))
	assert.Error(t, WriteDefault(path, false), "existing file is kept without force")
	require.NoError(t, WriteDefault(path, true))

	cfg, err := Load(Options{ConfigFile: path, EnvFile: filepath.Join(dir, "absent.env")})
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}
