package telemetry

import (
	"context"
	"time"
)

// Collector records control cycle samples for later analysis
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Snapshot captures one control cycle: every sensor reading and every
// applied fan speed, keyed by device ID. A nil temperature marks a failed
// sensor read.
type Snapshot struct {
	Timestamp    time.Time
	Temperatures map[string]*float64
	FanSpeeds    map[string]float64
}
