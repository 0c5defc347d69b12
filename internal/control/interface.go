package control

import (
	"context"

	"codeberg.org/fancurved/fancurved/internal/hardware"
	"codeberg.org/fancurved/fancurved/internal/status"
)

// StatusPublisher makes the controller's state visible to external readers
type StatusPublisher interface {
	Publish(snapshot *status.Snapshot) error
	Clear() error
}

// Discoverer enumerates the hardware the controller drives
type Discoverer interface {
	Discover(ctx context.Context) (map[string]hardware.Sensor, map[string]hardware.Fan)
}
