package hardware

import (
	"context"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"codeberg.org/fancurved/fancurved/internal/errors"
	"codeberg.org/fancurved/fancurved/internal/logger"
)

const (
	// Sysfs exposes temperatures in millidegrees Celsius
	milliDegreesPerDegree = 1000

	// defaultMaxPWM is assumed when a fan has no readable pwmN_max file
	defaultMaxPWM = 255
)

// HwmonSensor reads a hwmon tempN_input file
type HwmonSensor struct {
	path string
}

func NewHwmonSensor(path string) *HwmonSensor {
	return &HwmonSensor{path: path}
}

func (s *HwmonSensor) ID() string {
	return s.path
}

func (s *HwmonSensor) Read(_ context.Context) (float64, error) {
	errFactory := errors.New()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return 0, errFactory.Wrap(ErrSensorReadFailed, err)
	}

	value, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, errFactory.Wrap(ErrSensorParseFailed, err)
	}

	return float64(value) / milliDegreesPerDegree, nil
}

// HwmonFan drives a hwmon pwmN file. On first use it switches the channel to
// manual control through pwmN_enable and caches the device's raw PWM ceiling
// from pwmN_max.
type HwmonFan struct {
	path       string
	enableOnce sync.Once
	maxOnce    sync.Once
	maxPWM     int
}

func NewHwmonFan(path string) *HwmonFan {
	return &HwmonFan{path: path}
}

func (f *HwmonFan) ID() string {
	return f.path
}

func (f *HwmonFan) SetSpeed(_ context.Context, percent float64) error {
	errFactory := errors.New()

	f.enableOnce.Do(f.enableManualControl)
	f.maxOnce.Do(f.loadMaxPWM)

	raw := int(math.Round(percent / 100 * float64(f.maxPWM)))
	if raw < 0 {
		raw = 0
	}
	if raw > f.maxPWM {
		raw = f.maxPWM
	}

	if err := os.WriteFile(f.path, []byte(strconv.Itoa(raw)), 0o644); err != nil {
		return errFactory.Wrap(ErrFanWriteFailed, err)
	}

	return nil
}

// enableManualControl writes 1 to pwmN_enable, taking the channel out of
// automatic mode. Devices without an enable file are already manual.
func (f *HwmonFan) enableManualControl() {
	enablePath := f.path + "_enable"
	if _, err := os.Stat(enablePath); err != nil {
		return
	}

	if err := os.WriteFile(enablePath, []byte("1"), 0o644); err != nil {
		logger.Warn().Str("fan", f.path).Err(err).Msg("Failed to enable manual fan control")
		return
	}

	logger.Info().Str("fan", f.path).Msg("Enabled manual fan control")
}

func (f *HwmonFan) loadMaxPWM() {
	f.maxPWM = defaultMaxPWM

	raw, err := os.ReadFile(f.path + "_max")
	if err != nil {
		return
	}

	if value, err := strconv.Atoi(strings.TrimSpace(string(raw))); err == nil && value > 0 {
		f.maxPWM = value
	}
}
