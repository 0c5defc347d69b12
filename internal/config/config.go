package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/fancurved/fancurved/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the name of the configuration file inside the
	// configuration directory. The same file is read by companion tools.
	ConfigFileName = "config.json"

	// EnvPrefix is the prefix for environment variable overrides
	EnvPrefix = "FANCURVED"

	configDirName = "fancurved"

	DefaultInterval          = 1
	DefaultLogLevel          = "warning"
	DefaultTelemetryDB       = "/var/lib/fancurved/telemetry.db"
	DefaultVendorMinFanSpeed = 26
	DefaultMaxSpeedStep      = 10
)

// ResolveDir determines the configuration directory. The override takes
// precedence, then the FANCURVED_CONFIG_DIR environment variable, then the
// working directory when it already holds a config file, and finally
// ~/.config/fancurved, which is created if missing.
func ResolveDir(override string) (string, error) {
	errFactory := errors.New()

	if override != "" {
		return checkDir(override)
	}

	if dir := os.Getenv(EnvPrefix + "_CONFIG_DIR"); dir != "" {
		return checkDir(dir)
	}

	if cwd, err := os.Getwd(); err == nil {
		if _, err := os.Stat(filepath.Join(cwd, ConfigFileName)); err == nil {
			return cwd, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errFactory.Wrap(errors.ErrMissingConfig, err)
	}

	dir := filepath.Join(home, ".config", configDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errFactory.Wrap(errors.ErrMissingConfig, err)
	}

	return dir, nil
}

func checkDir(dir string) (string, error) {
	errFactory := errors.New()

	info, err := os.Stat(dir)
	if err != nil {
		return "", errFactory.Wrap(errors.ErrMissingConfig, err)
	}
	if !info.IsDir() {
		return "", errFactory.WithData(errors.ErrMissingConfig, dir)
	}

	return dir, nil
}

// Load reads the configuration file from dir and merges environment
// variables and any flags that were set on the command line. Flags take
// precedence over environment variables, which take precedence over the
// configuration file.
func Load(dir string, flags *pflag.FlagSet) (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("monitor", false)
	v.SetDefault("telemetry", false)
	v.SetDefault("telemetry_db", DefaultTelemetryDB)
	v.SetDefault("hardware.vendor_min_fan_speed", DefaultVendorMinFanSpeed)
	v.SetDefault("hardware.max_speed_step", DefaultMaxSpeedStep)

	v.SetConfigFile(filepath.Join(dir, ConfigFileName))
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Only flags that were explicitly set may override the config file
	if flags != nil {
		flags.Visit(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if key == "config_dir" {
				return
			}
			v.Set(key, f.Value.String())
		})
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}
	config.Dir = dir

	if err := decodeDocumentMaps(filepath.Join(dir, ConfigFileName), config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// decodeDocumentMaps re-reads the structural maps with encoding/json. viper
// folds every map key to lower case, which would corrupt user-chosen curve
// names and device paths; the shared document is case-sensitive.
func decodeDocumentMaps(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var document struct {
		Curves  map[string]CurveConfig `json:"curves"`
		Fans    map[string]string      `json:"fans"`
		Aliases map[string]string      `json:"aliases"`
	}
	if err := json.Unmarshal(data, &document); err != nil {
		return err
	}

	config.Curves = document.Curves
	config.Fans = document.Fans
	config.Aliases = document.Aliases

	return nil
}

func validate(config *Config) error {
	errFactory := errors.New()

	if config.Interval < 1 {
		return errFactory.WithData(errors.ErrInvalidInterval, config.Interval)
	}

	if !LogLevel(config.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, config.LogLevel)
	}

	// A zero step would freeze every fan at its first commanded speed and a
	// negative one inverts the smoother's bounds
	if config.Hardware.MaxSpeedStep <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig,
			fmt.Sprintf("hardware.max_speed_step must be positive, got %v", config.Hardware.MaxSpeedStep))
	}

	for name, curve := range config.Curves {
		if curve.Sensor == "" {
			return errFactory.WithData(errors.ErrInvalidConfig,
				fmt.Sprintf("curve %q has no sensor", name))
		}
		if len(curve.Points) == 0 {
			return errFactory.WithData(errors.ErrInvalidConfig,
				fmt.Sprintf("curve %q has no points", name))
		}
		for _, point := range curve.Points {
			if len(point) != 2 {
				return errFactory.WithData(errors.ErrInvalidConfig,
					fmt.Sprintf("curve %q has a malformed point", name))
			}
		}
	}

	return nil
}
