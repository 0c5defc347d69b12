package hardware

import "codeberg.org/fancurved/fancurved/internal/errors"

const (
	// Sensor errors
	ErrSensorReadFailed  = errors.ErrorCode("hardware_sensor_read_failed")
	ErrSensorParseFailed = errors.ErrorCode("hardware_sensor_parse_failed")

	// Fan errors
	ErrFanWriteFailed = errors.ErrorCode("hardware_fan_write_failed")

	// Vendor tool errors
	ErrVendorToolFailed = errors.ErrorCode("hardware_vendor_tool_failed")
)
