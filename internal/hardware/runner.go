package hardware

import (
	"context"
	"os/exec"
	"time"
)

// vendorToolTimeout bounds every external tool invocation so a hung vendor
// binary cannot stall the control loop.
const vendorToolTimeout = 5 * time.Second

// runner abstracts external command execution
type runner interface {
	output(ctx context.Context, name string, args ...string) ([]byte, error)
	run(ctx context.Context, name string, args ...string) error
}

type execRunner struct {
	timeout time.Duration
}

func newExecRunner() execRunner {
	return execRunner{timeout: vendorToolTimeout}
}

func (r execRunner) output(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return exec.CommandContext(ctx, name, args...).Output()
}

func (r execRunner) run(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return exec.CommandContext(ctx, name, args...).Run()
}
