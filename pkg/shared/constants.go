// pkg/shared/constants.go

package shared

const (
	NvID          = "nvdoctor"
	NvLogDir      = "/var/log/nvdoctor/"
	NvLogs        = NvLogDir + "nvdoctor.log"
	NvLogsPWD     = "./nvdoctor.log"
	NvConfigDir   = "/etc/nvdoctor/"
	NvConfigFile  = NvConfigDir + "config.yaml"
	NvEnvFile     = NvConfigDir + "nvdoctor.env"
	NvEnvPrefix   = "NVDOCTOR"
	NvTelemetryOn = "telemetry_on"
)

const (
	// Permission modes (in octal)
	DirPermStandard        = 0755
	FilePermOwnerRWX       = 0700
	FilePermStandard       = 0644
	FilePermOwnerReadWrite = 0600
)

// Version is stamped at build time with -ldflags.
var Version = "dev"
