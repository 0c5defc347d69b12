package control

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/fancurved/fancurved/internal/config"
	"codeberg.org/fancurved/fancurved/internal/hardware"
	"codeberg.org/fancurved/fancurved/internal/logger"
	"codeberg.org/fancurved/fancurved/internal/status"
	"codeberg.org/fancurved/fancurved/internal/telemetry"
)

func TestMain(m *testing.M) {
	logger.Init("error", true)
	os.Exit(m.Run())
}

type fakeSensor struct {
	id    string
	value float64
	err   error
}

func (s *fakeSensor) ID() string { return s.id }

func (s *fakeSensor) Read(_ context.Context) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.value, nil
}

type fakeFan struct {
	id      string
	err     error
	applied []float64
}

func (f *fakeFan) ID() string { return f.id }

func (f *fakeFan) SetSpeed(_ context.Context, percent float64) error {
	f.applied = append(f.applied, percent)
	return f.err
}

type fakeDiscoverer struct {
	sensors map[string]hardware.Sensor
	fans    map[string]hardware.Fan
	calls   int
}

func (d *fakeDiscoverer) Discover(_ context.Context) (map[string]hardware.Sensor, map[string]hardware.Fan) {
	d.calls++
	return d.sensors, d.fans
}

type fakeCollector struct {
	samples []*telemetry.Snapshot
	err     error
}

func (c *fakeCollector) Record(_ context.Context, sample *telemetry.Snapshot) error {
	if c.err != nil {
		return c.err
	}
	c.samples = append(c.samples, sample)
	return nil
}

func (c *fakeCollector) Close() error { return nil }

// spyPublisher records deep copies of every published snapshot. failOn maps a
// 1-based Publish call number to the error that call should return.
type spyPublisher struct {
	mu        sync.Mutex
	snapshots []status.Snapshot
	failOn    map[int]error
	calls     int
	cleared   int
}

func (p *spyPublisher) Publish(snapshot *status.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if err := p.failOn[p.calls]; err != nil {
		return err
	}

	copied := status.Snapshot{
		PID:          snapshot.PID,
		Status:       snapshot.Status,
		Sensors:      make(map[string]*float64, len(snapshot.Sensors)),
		Fans:         make(map[string]float64, len(snapshot.Fans)),
		ErrorMessage: snapshot.ErrorMessage,
	}
	for id, value := range snapshot.Sensors {
		if value == nil {
			copied.Sensors[id] = nil
			continue
		}
		reading := *value
		copied.Sensors[id] = &reading
	}
	for id, speed := range snapshot.Fans {
		copied.Fans[id] = speed
	}
	p.snapshots = append(p.snapshots, copied)

	return nil
}

func (p *spyPublisher) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared++
	return nil
}

func (p *spyPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshots)
}

func (p *spyPublisher) all() []status.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]status.Snapshot(nil), p.snapshots...)
}

func testConfig() *config.Config {
	return &config.Config{
		Interval: 1,
		LogLevel: "error",
		Curves: map[string]config.CurveConfig{
			"cpu": {
				Sensor: "sensor-a",
				Points: [][]float64{{20, 0}, {40, 50}, {60, 100}},
			},
		},
		Fans: map[string]string{"fan-a": "cpu"},
		Hardware: config.HardwareConfig{
			VendorMinFanSpeed: 26,
			MaxSpeedStep:      10,
		},
	}
}

func TestCycleAppliesCurveSpeed(t *testing.T) {
	publisher := &spyPublisher{}
	sensor := &fakeSensor{id: "sensor-a", value: 30}
	fan := &fakeFan{id: "fan-a"}

	c := New(testConfig(), publisher)
	c.sensors = map[string]hardware.Sensor{"sensor-a": sensor}
	c.fans = map[string]hardware.Fan{"fan-a": fan}

	require.NoError(t, c.cycle(context.Background()))

	assert.Equal(t, []float64{25}, fan.applied)
	require.NotNil(t, c.snapshot.Sensors["sensor-a"])
	assert.InDelta(t, 30, *c.snapshot.Sensors["sensor-a"], 0.001)
	assert.InDelta(t, 25, c.snapshot.Fans["fan-a"], 0.001)
	assert.Equal(t, 1, publisher.count())
}

func TestCycleSmoothsSpeedChanges(t *testing.T) {
	publisher := &spyPublisher{}
	sensor := &fakeSensor{id: "sensor-a", value: 40}
	fan := &fakeFan{id: "fan-a"}

	c := New(testConfig(), publisher)
	c.sensors = map[string]hardware.Sensor{"sensor-a": sensor}
	c.fans = map[string]hardware.Fan{"fan-a": fan}

	for _, temperature := range []float64{40, 52, 40} {
		sensor.value = temperature
		require.NoError(t, c.cycle(context.Background()))
	}

	assert.Equal(t, []float64{50, 60, 50}, fan.applied)
}

func TestCycleContainsFanFailure(t *testing.T) {
	publisher := &spyPublisher{}
	sensor := &fakeSensor{id: "sensor-a", value: 40}
	healthy := &fakeFan{id: "fan-a"}
	broken := &fakeFan{id: "fan-b", err: fmt.Errorf("device detached")}

	cfg := testConfig()
	cfg.Fans["fan-b"] = "cpu"

	c := New(cfg, publisher)
	c.sensors = map[string]hardware.Sensor{"sensor-a": sensor}
	c.fans = map[string]hardware.Fan{"fan-a": healthy, "fan-b": broken}

	require.NoError(t, c.cycle(context.Background()))
	sensor.value = 52
	require.NoError(t, c.cycle(context.Background()))

	assert.Equal(t, []float64{50, 60}, healthy.applied)
	assert.InDelta(t, 60, c.snapshot.Fans["fan-a"], 0.001)

	// The broken fan keeps being driven and its smoothing state keeps
	// advancing, but no speed is ever reported for it.
	assert.Equal(t, []float64{50, 60}, broken.applied)
	assert.NotContains(t, c.snapshot.Fans, "fan-b")
}

func TestCycleSkipsFanWithoutReading(t *testing.T) {
	publisher := &spyPublisher{}
	sensor := &fakeSensor{id: "sensor-a", value: 40}
	fan := &fakeFan{id: "fan-a"}

	c := New(testConfig(), publisher)
	c.sensors = map[string]hardware.Sensor{"sensor-a": sensor}
	c.fans = map[string]hardware.Fan{"fan-a": fan}

	require.NoError(t, c.cycle(context.Background()))
	assert.Equal(t, []float64{50}, fan.applied)

	sensor.err = fmt.Errorf("sensor vanished")
	require.NoError(t, c.cycle(context.Background()))

	require.Contains(t, c.snapshot.Sensors, "sensor-a")
	assert.Nil(t, c.snapshot.Sensors["sensor-a"])
	assert.Equal(t, []float64{50}, fan.applied)
	assert.InDelta(t, 50, c.snapshot.Fans["fan-a"], 0.001)

	sensor.err = nil
	sensor.value = 60
	require.NoError(t, c.cycle(context.Background()))

	assert.Equal(t, []float64{50, 60}, fan.applied)
}

func TestCycleWarnsOnceForUnboundFan(t *testing.T) {
	publisher := &spyPublisher{}
	sensor := &fakeSensor{id: "sensor-a", value: 40}
	bound := &fakeFan{id: "fan-a"}
	unbound := &fakeFan{id: "fan-b"}

	c := New(testConfig(), publisher)
	c.sensors = map[string]hardware.Sensor{"sensor-a": sensor}
	c.fans = map[string]hardware.Fan{"fan-a": bound, "fan-b": unbound}

	require.NoError(t, c.cycle(context.Background()))
	require.NoError(t, c.cycle(context.Background()))

	assert.Empty(t, unbound.applied)
	assert.Equal(t, []float64{50, 50}, bound.applied)
	assert.True(t, c.warned["fan-b"])
	assert.Len(t, c.warned, 1)
}

func TestCycleResolvesMixedCaseCurveName(t *testing.T) {
	publisher := &spyPublisher{}
	sensor := &fakeSensor{id: "sensor-a", value: 40}
	fan := &fakeFan{id: "fan-a"}

	cfg := testConfig()
	cfg.Curves["CPU Curve"] = cfg.Curves["cpu"]
	delete(cfg.Curves, "cpu")
	cfg.Fans["fan-a"] = "CPU Curve"

	c := New(cfg, publisher)
	c.sensors = map[string]hardware.Sensor{"sensor-a": sensor}
	c.fans = map[string]hardware.Fan{"fan-a": fan}

	require.NoError(t, c.cycle(context.Background()))

	assert.Equal(t, []float64{50}, fan.applied)
	assert.Empty(t, c.warned, "Expected no unknown-curve warning for an existing curve")
}

func TestCycleWarnsOnceForUnknownCurve(t *testing.T) {
	publisher := &spyPublisher{}
	sensor := &fakeSensor{id: "sensor-a", value: 40}
	fan := &fakeFan{id: "fan-a"}

	cfg := testConfig()
	cfg.Fans["fan-a"] = "missing"

	c := New(cfg, publisher)
	c.sensors = map[string]hardware.Sensor{"sensor-a": sensor}
	c.fans = map[string]hardware.Fan{"fan-a": fan}

	require.NoError(t, c.cycle(context.Background()))
	require.NoError(t, c.cycle(context.Background()))

	assert.Empty(t, fan.applied)
	assert.Empty(t, c.snapshot.Fans)
	assert.True(t, c.warned["fan-a"])
}

func TestCycleReturnsPublishError(t *testing.T) {
	publisher := &spyPublisher{failOn: map[int]error{1: fmt.Errorf("disk full")}}
	sensor := &fakeSensor{id: "sensor-a", value: 40}
	fan := &fakeFan{id: "fan-a"}

	c := New(testConfig(), publisher)
	c.sensors = map[string]hardware.Sensor{"sensor-a": sensor}
	c.fans = map[string]hardware.Fan{"fan-a": fan}

	err := c.cycle(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "control_status_publish_failed")
	assert.ErrorContains(t, err, "disk full")
}

func TestCycleRecordsTelemetry(t *testing.T) {
	publisher := &spyPublisher{}
	collector := &fakeCollector{}
	working := &fakeSensor{id: "sensor-a", value: 40}
	broken := &fakeSensor{id: "sensor-b", err: fmt.Errorf("read failed")}
	fan := &fakeFan{id: "fan-a"}

	c := New(testConfig(), publisher, WithCollector(collector))
	c.sensors = map[string]hardware.Sensor{"sensor-a": working, "sensor-b": broken}
	c.fans = map[string]hardware.Fan{"fan-a": fan}

	require.NoError(t, c.cycle(context.Background()))

	require.Len(t, collector.samples, 1)
	sample := collector.samples[0]
	assert.False(t, sample.Timestamp.IsZero())
	require.NotNil(t, sample.Temperatures["sensor-a"])
	assert.InDelta(t, 40, *sample.Temperatures["sensor-a"], 0.001)
	require.Contains(t, sample.Temperatures, "sensor-b")
	assert.Nil(t, sample.Temperatures["sensor-b"])
	assert.InDelta(t, 50, sample.FanSpeeds["fan-a"], 0.001)

	// A failing collector must not break the control loop.
	collector.err = fmt.Errorf("database locked")
	require.NoError(t, c.cycle(context.Background()))
}

func TestMonitorModeComputesWithoutActuating(t *testing.T) {
	publisher := &spyPublisher{}
	sensor := &fakeSensor{id: "sensor-a", value: 40}
	fan := &fakeFan{id: "fan-a"}

	cfg := testConfig()
	cfg.Monitor = true

	c := New(cfg, publisher)
	c.sensors = map[string]hardware.Sensor{"sensor-a": sensor}
	c.fans = map[string]hardware.Fan{"fan-a": fan}

	require.NoError(t, c.cycle(context.Background()))

	assert.Empty(t, fan.applied)
	assert.Empty(t, c.snapshot.Fans)
	require.NotNil(t, c.snapshot.Sensors["sensor-a"])
	assert.InDelta(t, 40, *c.snapshot.Sensors["sensor-a"], 0.001)
	assert.Equal(t, 1, publisher.count())
}

func TestRunLifecycle(t *testing.T) {
	publisher := &spyPublisher{}
	discoverer := &fakeDiscoverer{
		sensors: map[string]hardware.Sensor{"sensor-a": &fakeSensor{id: "sensor-a", value: 40}},
		fans:    map[string]hardware.Fan{"fan-a": &fakeFan{id: "fan-a"}},
	}

	c := New(testConfig(), publisher, WithDiscoverer(discoverer))
	c.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return publisher.count() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop after cancelation")
	}

	snapshots := publisher.all()
	assert.Equal(t, status.StateStarting, snapshots[0].Status)
	assert.Equal(t, os.Getpid(), snapshots[0].PID)
	assert.Empty(t, snapshots[0].Sensors)

	assert.Equal(t, status.StateRunning, snapshots[1].Status)

	third := snapshots[2]
	assert.Equal(t, status.StateRunning, third.Status)
	require.NotNil(t, third.Sensors["sensor-a"])
	assert.InDelta(t, 40, *third.Sensors["sensor-a"], 0.001)
	assert.InDelta(t, 50, third.Fans["fan-a"], 0.001)
}

func TestRunCyclesBeforeFirstTick(t *testing.T) {
	publisher := &spyPublisher{}
	discoverer := &fakeDiscoverer{
		sensors: map[string]hardware.Sensor{"sensor-a": &fakeSensor{id: "sensor-a", value: 40}},
		fans:    map[string]hardware.Fan{"fan-a": &fakeFan{id: "fan-a"}},
	}

	c := New(testConfig(), publisher, WithDiscoverer(discoverer))
	c.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// The first cycle must not wait for the interval to elapse
	require.Eventually(t, func() bool { return publisher.count() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop after cancelation")
	}

	third := publisher.all()[2]
	assert.Equal(t, status.StateRunning, third.Status)
	require.NotNil(t, third.Sensors["sensor-a"])
	assert.InDelta(t, 50, third.Fans["fan-a"], 0.001)
}

func TestRunPublishesErrorStatusBeforeExit(t *testing.T) {
	publisher := &spyPublisher{failOn: map[int]error{3: fmt.Errorf("disk full")}}
	discoverer := &fakeDiscoverer{
		sensors: map[string]hardware.Sensor{"sensor-a": &fakeSensor{id: "sensor-a", value: 40}},
		fans:    map[string]hardware.Fan{"fan-a": &fakeFan{id: "fan-a"}},
	}

	c := New(testConfig(), publisher, WithDiscoverer(discoverer))
	c.interval = 5 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	var err error
	select {
	case err = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop after publish failure")
	}

	require.Error(t, err)
	assert.ErrorContains(t, err, "control_status_publish_failed")
	assert.ErrorContains(t, err, "disk full")

	snapshots := publisher.all()
	last := snapshots[len(snapshots)-1]
	assert.Equal(t, status.StateError, last.Status)
	assert.Contains(t, last.ErrorMessage, "disk full")
}

func TestRunFailsWhenInitialPublishFails(t *testing.T) {
	publisher := &spyPublisher{failOn: map[int]error{1: fmt.Errorf("permission denied")}}
	discoverer := &fakeDiscoverer{}

	c := New(testConfig(), publisher, WithDiscoverer(discoverer))

	err := c.Run(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "control_status_publish_failed")
	assert.Zero(t, discoverer.calls)
}

func TestNewBuildsCurveBindings(t *testing.T) {
	c := New(testConfig(), &spyPublisher{})

	require.NotNil(t, c.discoverer)
	require.Contains(t, c.curves, "cpu")
	assert.Equal(t, "sensor-a", c.curves["cpu"].sensor)
	assert.Len(t, c.curves["cpu"].points, 3)
	assert.Equal(t, time.Second, c.interval)
	assert.InDelta(t, 10, c.step, 0.001)
}
