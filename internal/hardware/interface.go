package hardware

import "context"

// Sensor reads the temperature of a single device
type Sensor interface {
	// ID returns the stable identifier used in configuration, status
	// reports and telemetry. For hwmon devices this is the sysfs path.
	ID() string

	// Read returns the current temperature in Celsius
	Read(ctx context.Context) (float64, error)
}

// Fan applies speeds to a single fan device
type Fan interface {
	// ID returns the stable identifier used in configuration, status
	// reports and telemetry. For hwmon devices this is the sysfs path.
	ID() string

	// SetSpeed applies a fan speed as a percentage of the device's range
	SetSpeed(ctx context.Context, percent float64) error
}
