// pkg/nvidia/config/config.go
//
// Configuration is layered: built-in defaults, then the YAML config file,
// then the env file, then NVDOCTOR_* environment variables, then flags.

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nv_err"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/nvidia/host"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/nvdoctor/pkg/xdg"
	cerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full nvdoctor configuration.
type Config struct {
	VendorID          string        `mapstructure:"vendor_id" yaml:"vendor_id" validate:"required,hexadecimal,len=4"`
	CapabilityCommand string        `mapstructure:"capability_command" yaml:"capability_command" validate:"required"`
	TargetModule      string        `mapstructure:"target_module" yaml:"target_module" validate:"required"`
	ModuleSet         []string      `mapstructure:"module_set" yaml:"module_set" validate:"required,min=1,dive,required"`
	CompetingDriver   string        `mapstructure:"competing_driver" yaml:"competing_driver" validate:"required,nefield=TargetModule"`
	BlacklistPath     string        `mapstructure:"blacklist_path" yaml:"blacklist_path" validate:"required,startswith=/"`
	DisplayServices   []string      `mapstructure:"display_services" yaml:"display_services" validate:"dive,required"`
	SettleInterval    time.Duration `mapstructure:"settle_interval" yaml:"settle_interval" validate:"gte=0s,lte=10m"`
	PackageManager    string        `mapstructure:"package_manager" yaml:"package_manager" validate:"oneof=auto apt dnf"`
	DriverPackage     string        `mapstructure:"driver_package" yaml:"driver_package,omitempty"`
	MinDriverVersion  string        `mapstructure:"min_driver_version" yaml:"min_driver_version,omitempty"`
	BundledPass       string        `mapstructure:"bundled_pass" yaml:"bundled_pass" validate:"oneof=on-failure always"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Default driver packages per distribution family.
const (
	DefaultDebianDriver = "nvidia-driver-535"
	DefaultRHELDriver   = "akmod-nvidia"
)

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		VendorID:          "10de",
		CapabilityCommand: "nvidia-smi",
		TargetModule:      "nvidia",
		ModuleSet:         []string{"nvidia", "nvidia_uvm", "nvidia_drm", "nvidia_modeset"},
		CompetingDriver:   "nouveau",
		BlacklistPath:     host.DefaultBlacklistPath,
		DisplayServices:   []string{"gdm3", "gdm", "lightdm", "sddm", "xdm"},
		SettleInterval:    5 * time.Second,
		PackageManager:    "auto",
		BundledPass:       "on-failure",
		LogLevel:          "info",
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("vendor_id", d.VendorID)
	v.SetDefault("capability_command", d.CapabilityCommand)
	v.SetDefault("target_module", d.TargetModule)
	v.SetDefault("module_set", d.ModuleSet)
	v.SetDefault("competing_driver", d.CompetingDriver)
	v.SetDefault("blacklist_path", d.BlacklistPath)
	v.SetDefault("display_services", d.DisplayServices)
	v.SetDefault("settle_interval", d.SettleInterval)
	v.SetDefault("package_manager", d.PackageManager)
	v.SetDefault("driver_package", "")
	v.SetDefault("min_driver_version", "")
	v.SetDefault("bundled_pass", d.BundledPass)
	v.SetDefault("log_level", d.LogLevel)
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"settle":       "settle_interval",
	"bundled-pass": "bundled_pass",
	"log-level":    "log_level",
}

// Options controls where Load looks.
type Options struct {
	// ConfigFile is an explicit path; it must exist when set.
	ConfigFile string
	// EnvFile defaults to /etc/nvdoctor/nvdoctor.env.
	EnvFile string
	// Flags are bound over every other source when set.
	Flags *pflag.FlagSet
}

// Load resolves the configuration from every source and validates it.
func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(shared.NvEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(shared.NvConfigDir)
		v.AddConfigPath(filepath.Dir(xdg.XDGConfigPath(shared.NvID, "config.yaml")))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, nv_err.NewValidationError(
				"cannot read config: "+err.Error(),
				"Check the file is valid YAML: nvdoctor init-config writes a fresh default")
		}
	}

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nv_err.NewValidationError("cannot decode config: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var result error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			result = multierror.Append(result, cerr.Wrapf(err, "bind flag --%s", f.Name))
		}
	})
	return result
}

func loadEnvFile(path string) error {
	if path == "" {
		path = shared.NvEnvFile
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	// existing environment variables win over the file
	if err := godotenv.Load(path); err != nil {
		return nv_err.NewValidationError("cannot parse env file "+path+": "+err.Error(),
			"Use KEY=value lines, e.g. NVDOCTOR_SETTLE_INTERVAL=10s")
	}
	return nil
}

var validate = newValidator()

// newValidator reports fields by their config key rather than Go name.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nv_err.NewValidationError("invalid config: " + err.Error())
	}
	steps := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		steps = append(steps, describe(fe))
	}
	return nv_err.NewValidationError("invalid nvdoctor configuration", steps...)
}

func describe(fe validator.FieldError) string {
	key := fe.Field()
	switch fe.Tag() {
	case "required":
		return key + " must be set"
	case "oneof":
		return key + " must be one of: " + fe.Param()
	case "hexadecimal", "len":
		return key + " must be a 4-digit hex PCI vendor id"
	case "startswith":
		return key + " must be an absolute path"
	case "nefield":
		return key + " must differ from target_module"
	default:
		return key + " failed " + fe.Tag() + " " + fe.Param()
	}
}

// Family resolves the package_manager setting; auto reads os-release.
func (c *Config) Family() (host.Family, error) {
	if f, ok := host.ParseFamily(c.PackageManager); ok {
		return f, nil
	}
	return host.DetectFamily(host.DefaultOSRelease)
}

// DriverPackageFor returns the configured driver package or the family
// default.
func (c *Config) DriverPackageFor(f host.Family) string {
	if c.DriverPackage != "" {
		return c.DriverPackage
	}
	if f == host.FamilyRHEL {
		return DefaultRHELDriver
	}
	return DefaultDebianDriver
}

// WriteDefault writes the default config as YAML. An existing file is only
// replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return nv_err.NewValidationError(path+" already exists", "Pass --force to overwrite it")
		}
	}
	d := Defaults()
	data, err := yaml.Marshal(&d)
	if err != nil {
		return cerr.Wrap(err, "marshal default config")
	}
	if err := os.MkdirAll(filepath.Dir(path), shared.DirPermStandard); err != nil {
		return cerr.Wrapf(err, "create %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, data, shared.FilePermStandard); err != nil {
		return cerr.Wrapf(err, "write %s", path)
	}
	return nil
}
