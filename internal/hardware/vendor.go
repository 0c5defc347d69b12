package hardware

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"codeberg.org/fancurved/fancurved/internal/errors"
)

const (
	// VendorGPUID identifies the vendor GPU in configuration, status
	// reports and telemetry. The same ID names both its sensor and its fan.
	VendorGPUID = "vendor-gpu"

	vendorQueryTool   = "nvidia-smi"
	vendorControlTool = "nvidia-settings"
)

// GPUSensor reads the GPU temperature through the vendor's query tool
type GPUSensor struct {
	cmd runner
}

func NewGPUSensor() *GPUSensor {
	return &GPUSensor{cmd: newExecRunner()}
}

func (s *GPUSensor) ID() string {
	return VendorGPUID
}

func (s *GPUSensor) Read(ctx context.Context) (float64, error) {
	errFactory := errors.New()

	out, err := s.cmd.output(ctx, vendorQueryTool,
		"--query-gpu=temperature.gpu", "--format=csv,noheader,nounits")
	if err != nil {
		return 0, errFactory.Wrap(ErrVendorToolFailed, err)
	}

	// Multi-GPU machines report one line per device; use the first
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	value, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, errFactory.Wrap(ErrSensorParseFailed, err)
	}

	return float64(value), nil
}

// GPUFan drives the vendor GPU fan through the vendor's settings tool. The
// tool rejects speeds below the vendor floor, so requests are clamped to
// [minSpeed, 100].
type GPUFan struct {
	cmd        runner
	minSpeed   int
	privileged bool
}

func NewGPUFan(minSpeed int) *GPUFan {
	return &GPUFan{
		cmd:        newExecRunner(),
		minSpeed:   minSpeed,
		privileged: os.Geteuid() == 0,
	}
}

func (f *GPUFan) ID() string {
	return VendorGPUID
}

func (f *GPUFan) SetSpeed(ctx context.Context, percent float64) error {
	errFactory := errors.New()

	speed := int(percent)
	if speed < f.minSpeed {
		speed = f.minSpeed
	}
	if speed > 100 {
		speed = 100
	}

	name, args := vendorFanCommand(speed, f.privileged)
	if err := f.cmd.run(ctx, name, args...); err != nil {
		return errFactory.Wrap(ErrFanWriteFailed, err)
	}

	return nil
}

// vendorFanCommand builds the settings tool invocation. Manual control state
// and the target speed are applied in a single call. Unprivileged processes
// go through sudo.
func vendorFanCommand(percent int, privileged bool) (string, []string) {
	args := []string{
		"-a", "[gpu:0]/GPUFanControlState=1",
		"-a", fmt.Sprintf("[fan:0]/GPUTargetFanSpeed=%d", percent),
	}

	if privileged {
		return vendorControlTool, args
	}

	return "sudo", append([]string{vendorControlTool}, args...)
}
