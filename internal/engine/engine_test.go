package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dimctl/internal/config"
	"dimctl/internal/ddc"
	"dimctl/internal/errors"
	"dimctl/internal/sensor"
	"dimctl/internal/telemetry"
)

type fakeTransport struct {
	mu         sync.Mutex
	displays   []ddc.Display
	brightness map[string]int
	failSet    bool
	setCalls   int
}

func newFakeTransport(ids ...string) *fakeTransport {
	f := &fakeTransport{brightness: make(map[string]int)}
	for _, id := range ids {
		f.displays = append(f.displays, ddc.Display{ID: id, Name: id, Capability: ddc.CapabilityDDC})
		f.brightness[id] = 80
	}

	return f
}

func (f *fakeTransport) Detect(context.Context) ([]ddc.Display, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]ddc.Display, len(f.displays))
	copy(out, f.displays)

	return out, nil
}

func (f *fakeTransport) GetBrightness(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.brightness[id], nil
}

func (f *fakeTransport) SetBrightness(_ context.Context, id string, percent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	if f.failSet {
		return errors.New().New(errors.ErrOperationFailed)
	}
	f.brightness[id] = percent

	return nil
}

func (f *fakeTransport) brightnessOf(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.brightness[id]
}

type fakeIdle struct {
	mu      sync.Mutex
	seconds float64
}

func (f *fakeIdle) IdleSeconds(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.seconds, nil
}

func (f *fakeIdle) set(seconds float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seconds = seconds
}

func testConfig() *config.Config {
	return &config.Config{
		PollInterval: 1,
		LogLevel:     "info",
		Defaults: config.MonitorSettings{
			NormalBrightness: 80,
			DimBrightness:    20,
			IdleTimeout:      300,
			MediaGrace:       600,
		},
	}
}

func startEngine(t *testing.T, transport ddc.Transport, idle sensor.IdleSource, driverCfg ddc.Config) *Engine {
	t.Helper()

	collector, err := telemetry.NewService(telemetry.Config{Enabled: false})
	require.NoError(t, err)

	eng := New(testConfig(), ddc.NewDriver(transport, driverCfg), sensor.NewPoller(idle), collector)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		return len(eng.Statuses()) > 0
	}, 3*time.Second, 20*time.Millisecond, "engine never attached monitors")

	return eng
}

func fastDriver() ddc.Config {
	return ddc.Config{MaxAttempts: 3, BackoffBase: 5 * time.Millisecond, MinWriteGap: 0}
}

func TestEngineDimsAfterIdleTimeout(t *testing.T) {
	transport := newFakeTransport("DP-1")
	idle := &fakeIdle{seconds: 400}
	eng := startEngine(t, transport, idle, fastDriver())

	require.Eventually(t, func() bool {
		statuses := eng.Statuses()

		return len(statuses) == 1 && statuses[0].State == "dimmed"
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, 20, transport.brightnessOf("DP-1"))
}

func TestEngineRestoresOnInput(t *testing.T) {
	transport := newFakeTransport("DP-1")
	idle := &fakeIdle{seconds: 400}
	eng := startEngine(t, transport, idle, fastDriver())

	require.Eventually(t, func() bool {
		return transport.brightnessOf("DP-1") == 20
	}, 5*time.Second, 50*time.Millisecond)

	// Idle dropping means new input arrived.
	idle.set(0)
	require.Eventually(t, func() bool {
		statuses := eng.Statuses()

		return transport.brightnessOf("DP-1") == 80 && statuses[0].State == "active"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestEngineOverride(t *testing.T) {
	transport := newFakeTransport("DP-1")
	eng := startEngine(t, transport, &fakeIdle{}, fastDriver())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, eng.SetBrightness(ctx, "DP-1", 55))

	require.Eventually(t, func() bool {
		statuses := eng.Statuses()

		return transport.brightnessOf("DP-1") == 55 && statuses[0].State == "manual_override"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestEngineOverrideUnknownMonitor(t *testing.T) {
	eng := startEngine(t, newFakeTransport("DP-1"), &fakeIdle{}, fastDriver())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := eng.SetBrightness(ctx, "HDMI-9", 55)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown monitor")
}

func TestEngineMarksDegradedAfterExhaustedRetries(t *testing.T) {
	transport := newFakeTransport("DP-1")
	eng := startEngine(t, transport, &fakeIdle{}, fastDriver())

	transport.mu.Lock()
	transport.failSet = true
	transport.setCalls = 0
	transport.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, eng.SetBrightness(ctx, "DP-1", 55))

	require.Eventually(t, func() bool {
		statuses := eng.Statuses()

		return len(statuses) == 1 && statuses[0].Degraded
	}, 5*time.Second, 50*time.Millisecond)

	transport.mu.Lock()
	calls := transport.setCalls
	transport.mu.Unlock()
	assert.GreaterOrEqual(t, calls, 3)
}

func TestEngineRescanClearsDegraded(t *testing.T) {
	transport := newFakeTransport("DP-1")
	eng := startEngine(t, transport, &fakeIdle{}, fastDriver())

	transport.mu.Lock()
	transport.failSet = true
	transport.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, eng.SetBrightness(ctx, "DP-1", 55))
	require.Eventually(t, func() bool {
		return eng.Statuses()[0].Degraded
	}, 5*time.Second, 50*time.Millisecond)

	transport.mu.Lock()
	transport.failSet = false
	transport.mu.Unlock()

	require.NoError(t, eng.Rescan(ctx))
	assert.False(t, eng.Statuses()[0].Degraded)
}

func TestEngineRescanTracksDisplays(t *testing.T) {
	transport := newFakeTransport("DP-1")
	eng := startEngine(t, transport, &fakeIdle{}, fastDriver())

	transport.mu.Lock()
	transport.displays = append(transport.displays, ddc.Display{ID: "HDMI-1", Name: "HDMI-1", Capability: ddc.CapabilityDDC})
	transport.brightness["HDMI-1"] = 70
	transport.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, eng.Rescan(ctx))
	require.Len(t, eng.Statuses(), 2)

	transport.mu.Lock()
	transport.displays = transport.displays[:1]
	transport.mu.Unlock()

	require.NoError(t, eng.Rescan(ctx))
	statuses := eng.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "DP-1", statuses[0].ID)
}

func TestEngineSubscribePublishesChanges(t *testing.T) {
	transport := newFakeTransport("DP-1")
	idle := &fakeIdle{}
	eng := startEngine(t, transport, idle, fastDriver())

	updates, cancelSub := eng.Subscribe()
	defer cancelSub()

	idle.set(400)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case statuses := <-updates:
			if len(statuses) == 1 && statuses[0].State == "dimmed" {
				return
			}
		case <-deadline:
			t.Fatal("no dimmed snapshot published")
		}
	}
}
