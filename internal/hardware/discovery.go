package hardware

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/fancurved/fancurved/internal/logger"
)

// DefaultHwmonRoot is where the kernel exposes hwmon devices
const DefaultHwmonRoot = "/sys/class/hwmon"

// DiscoverOptions configures hardware discovery
type DiscoverOptions struct {
	// HwmonRoot overrides the hwmon sysfs root, mainly for tests
	HwmonRoot string

	// VendorMinFanSpeed is the floor applied to the vendor GPU fan
	VendorMinFanSpeed int
}

// Discovery enumerates the machine's temperature sensors and fans
type Discovery struct {
	opts DiscoverOptions
	cmd  runner
}

func NewDiscovery(opts DiscoverOptions) *Discovery {
	if opts.HwmonRoot == "" {
		opts.HwmonRoot = DefaultHwmonRoot
	}

	return &Discovery{opts: opts, cmd: newExecRunner()}
}

// Discover scans the hwmon tree for temperature and PWM channels and probes
// for a controllable vendor GPU. Devices are keyed by their IDs.
func (d *Discovery) Discover(ctx context.Context) (map[string]Sensor, map[string]Fan) {
	sensors := make(map[string]Sensor)
	fans := make(map[string]Fan)

	tempPaths, _ := filepath.Glob(filepath.Join(d.opts.HwmonRoot, "hwmon*", "temp*_input"))
	for _, path := range tempPaths {
		sensors[path] = NewHwmonSensor(path)
	}

	pwmPaths, _ := filepath.Glob(filepath.Join(d.opts.HwmonRoot, "hwmon*", "pwm[0-9]*"))
	for _, path := range pwmPaths {
		// Skip pwmN_enable, pwmN_max and other auxiliary files
		if strings.Contains(filepath.Base(path), "_") {
			continue
		}
		fans[path] = NewHwmonFan(path)
	}

	if d.vendorGPUPresent(ctx) {
		sensors[VendorGPUID] = &GPUSensor{cmd: d.cmd}
		fans[VendorGPUID] = &GPUFan{
			cmd:        d.cmd,
			minSpeed:   d.opts.VendorMinFanSpeed,
			privileged: os.Geteuid() == 0,
		}
		logger.Info().Str("device", VendorGPUID).Msg("Vendor GPU detected")
	}

	logger.Info().
		Int("sensors", len(sensors)).
		Int("fans", len(fans)).
		Msg("Hardware discovery complete")

	return sensors, fans
}

// vendorGPUPresent probes for the vendor query tool. A runnable tool means a
// usable GPU.
func (d *Discovery) vendorGPUPresent(ctx context.Context) bool {
	return d.cmd.run(ctx, vendorQueryTool) == nil
}
