package config

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}

// CurveConfig binds a named curve to a sensor and its interpolation points.
// Each point is a [temperature, speed] pair in Celsius and percent.
type CurveConfig struct {
	Sensor string      `mapstructure:"sensor" json:"sensor"`
	Points [][]float64 `mapstructure:"points" json:"points"`
}

// HardwareConfig holds device-level tuning knobs
type HardwareConfig struct {
	VendorMinFanSpeed int     `mapstructure:"vendor_min_fan_speed"`
	MaxSpeedStep      float64 `mapstructure:"max_speed_step"`
}

// Config is the daemon configuration loaded from config.json, environment
// variables and command line flags. HiddenSensors and HiddenFans are owned by
// companion tools sharing the file; the daemon parses them but never acts on
// them.
type Config struct {
	Interval      int                    `mapstructure:"interval"`
	LogLevel      string                 `mapstructure:"log_level"`
	Monitor       bool                   `mapstructure:"monitor"`
	Telemetry     bool                   `mapstructure:"telemetry"`
	TelemetryDB   string                 `mapstructure:"telemetry_db"`
	Curves        map[string]CurveConfig `mapstructure:"curves"`
	Fans          map[string]string      `mapstructure:"fans"`
	Aliases       map[string]string      `mapstructure:"aliases"`
	HiddenSensors []string               `mapstructure:"hidden_sensors"`
	HiddenFans    []string               `mapstructure:"hidden_fans"`
	Hardware      HardwareConfig         `mapstructure:"hardware"`
	Dir           string                 `mapstructure:"-"`
}

// DisplayName returns the configured alias for a device ID, or the ID itself
func (c *Config) DisplayName(id string) string {
	if name, ok := c.Aliases[id]; ok && name != "" {
		return name
	}

	return id
}
