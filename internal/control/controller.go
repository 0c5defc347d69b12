package control

import (
	"context"
	"time"

	"codeberg.org/fancurved/fancurved/internal/config"
	"codeberg.org/fancurved/fancurved/internal/curve"
	"codeberg.org/fancurved/fancurved/internal/errors"
	"codeberg.org/fancurved/fancurved/internal/hardware"
	"codeberg.org/fancurved/fancurved/internal/logger"
	"codeberg.org/fancurved/fancurved/internal/status"
	"codeberg.org/fancurved/fancurved/internal/telemetry"
)

// binding ties a configured curve to its sensor and interpolation points
type binding struct {
	sensor string
	points []curve.Point
}

// Controller runs the closed control loop: read sensors, evaluate curves,
// smooth and apply fan speeds, publish status and record telemetry.
type Controller struct {
	cfg        *config.Config
	publisher  StatusPublisher
	collector  telemetry.Collector
	discoverer Discoverer

	sensors  map[string]hardware.Sensor
	fans     map[string]hardware.Fan
	curves   map[string]binding
	smoother *Smoother
	snapshot *status.Snapshot
	warned   map[string]bool

	interval time.Duration
	step     float64
	monitor  bool
}

// Option configures optional controller dependencies
type Option func(*Controller)

// WithDiscoverer replaces hardware discovery, mainly for tests
func WithDiscoverer(discoverer Discoverer) Option {
	return func(c *Controller) { c.discoverer = discoverer }
}

// WithCollector attaches a telemetry collector
func WithCollector(collector telemetry.Collector) Option {
	return func(c *Controller) { c.collector = collector }
}

func New(cfg *config.Config, publisher StatusPublisher, opts ...Option) *Controller {
	curves := make(map[string]binding, len(cfg.Curves))
	for name, curveConfig := range cfg.Curves {
		curves[name] = binding{
			sensor: curveConfig.Sensor,
			points: curve.FromPairs(curveConfig.Points),
		}
	}

	c := &Controller{
		cfg:       cfg,
		publisher: publisher,
		discoverer: hardware.NewDiscovery(hardware.DiscoverOptions{
			VendorMinFanSpeed: cfg.Hardware.VendorMinFanSpeed,
		}),
		curves:   curves,
		smoother: NewSmoother(),
		snapshot: status.NewSnapshot(),
		warned:   make(map[string]bool),
		interval: time.Duration(cfg.Interval) * time.Second,
		step:     cfg.Hardware.MaxSpeedStep,
		monitor:  cfg.Monitor,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run drives the control loop until the context is canceled or publishing
// status becomes impossible. The caller clears the status file on exit.
func (c *Controller) Run(ctx context.Context) error {
	errFactory := errors.New()

	if err := c.publisher.Publish(c.snapshot); err != nil {
		return errFactory.Wrap(ErrStatusPublish, err)
	}

	c.sensors, c.fans = c.discoverer.Discover(ctx)

	c.snapshot.Status = status.StateRunning
	if err := c.publisher.Publish(c.snapshot); err != nil {
		return errFactory.Wrap(ErrStatusPublish, err)
	}

	if c.monitor {
		logger.Info().Msg("Monitor mode activated, fan speeds will not be changed")
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// The first cycle runs immediately; the ticker paces the ones after it
	for {
		if err := c.cycle(ctx); err != nil {
			c.snapshot.Status = status.StateError
			c.snapshot.ErrorMessage = err.Error()
			if publishErr := c.publisher.Publish(c.snapshot); publishErr != nil {
				logger.Error().Err(publishErr).Msg("Failed to publish error status")
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// cycle performs one pass over every sensor and fan
func (c *Controller) cycle(ctx context.Context) error {
	errFactory := errors.New()

	c.readSensors(ctx)
	c.driveFans(ctx)

	if err := c.publisher.Publish(c.snapshot); err != nil {
		return errFactory.Wrap(ErrStatusPublish, err)
	}

	c.recordTelemetry(ctx)

	return nil
}

func (c *Controller) readSensors(ctx context.Context) {
	for id, sensor := range c.sensors {
		value, err := sensor.Read(ctx)
		if err != nil {
			logger.Warn().Str("sensor", c.cfg.DisplayName(id)).Err(err).Msg("Sensor read failed")
			c.snapshot.Sensors[id] = nil
			continue
		}

		reading := value
		c.snapshot.Sensors[id] = &reading
	}
}

func (c *Controller) driveFans(ctx context.Context) {
	for id, fan := range c.fans {
		curveName, bound := c.cfg.Fans[id]
		if !bound || curveName == "" {
			c.warnOnce(id, "Fan has no curve assigned")
			continue
		}

		assigned, known := c.curves[curveName]
		if !known {
			c.warnOnce(id, "Fan references an unknown curve")
			continue
		}

		reading := c.snapshot.Sensors[assigned.sensor]
		if reading == nil {
			// Leave the fan at its last speed until the sensor recovers
			continue
		}

		target := curve.Evaluate(*reading, assigned.points)
		applied := c.smoother.Smooth(id, target, c.step)

		if c.monitor {
			logger.Info().
				Str("fan", c.cfg.DisplayName(id)).
				Float64("temperature", *reading).
				Float64("speed", applied).
				Msg("Monitoring")
			continue
		}

		if err := fan.SetSpeed(ctx, applied); err != nil {
			logger.Warn().Str("fan", c.cfg.DisplayName(id)).Err(err).Msg("Failed to set fan speed")
			continue
		}

		c.snapshot.Fans[id] = applied

		logger.Debug().
			Str("fan", c.cfg.DisplayName(id)).
			Float64("temperature", *reading).
			Float64("target", target).
			Float64("speed", applied).
			Msg("Fan speed applied")
	}
}

// warnOnce logs a configuration problem the first time it is seen for a fan
// so a bad binding does not flood the log every cycle.
func (c *Controller) warnOnce(fanID, message string) {
	if c.warned[fanID] {
		return
	}
	c.warned[fanID] = true
	logger.Warn().Str("fan", c.cfg.DisplayName(fanID)).Msg(message)
}

func (c *Controller) recordTelemetry(ctx context.Context) {
	if c.collector == nil {
		return
	}

	sample := &telemetry.Snapshot{
		Timestamp:    time.Now(),
		Temperatures: make(map[string]*float64, len(c.snapshot.Sensors)),
		FanSpeeds:    make(map[string]float64, len(c.snapshot.Fans)),
	}
	for id, value := range c.snapshot.Sensors {
		sample.Temperatures[id] = value
	}
	for id, speed := range c.snapshot.Fans {
		sample.FanSpeeds[id] = speed
	}

	if err := c.collector.Record(ctx, sample); err != nil {
		logger.Warn().Err(err).Msg("Failed to record telemetry")
	}
}
