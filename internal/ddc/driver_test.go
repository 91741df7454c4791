package ddc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dimctl/internal/errors"
)

// fakeTransport scripts per-call failures and records writes.
type fakeTransport struct {
	mu       sync.Mutex
	displays []Display
	failures int // number of SetBrightness calls that fail before success
	writes   []int
	times    []time.Time
}

func (f *fakeTransport) Detect(context.Context) ([]Display, error) {
	return f.displays, nil
}

func (f *fakeTransport) GetBrightness(context.Context, string) (int, error) {
	return 80, nil
}

func (f *fakeTransport) SetBrightness(_ context.Context, _ string, percent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures > 0 {
		f.failures--
		return errors.New().New(ErrTransient)
	}
	f.writes = append(f.writes, percent)
	f.times = append(f.times, time.Now())

	return nil
}

func testConfig() Config {
	return Config{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		MinWriteGap: 20 * time.Millisecond,
	}
}

func TestApplyRetriesTransientFailures(t *testing.T) {
	ft := &fakeTransport{failures: 2}
	d := NewDriver(ft, testConfig())

	err := d.Apply(context.Background(), "DP-1", 20)
	require.NoError(t, err)
	assert.Equal(t, []int{20}, ft.writes)
}

func TestApplyExhaustionIsPermanent(t *testing.T) {
	ft := &fakeTransport{failures: 3}
	d := NewDriver(ft, testConfig())

	err := d.Apply(context.Background(), "DP-1", 20)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Empty(t, ft.writes)
}

func TestApplyClampsTarget(t *testing.T) {
	ft := &fakeTransport{}
	d := NewDriver(ft, testConfig())

	require.NoError(t, d.Apply(context.Background(), "DP-1", 250))
	require.NoError(t, d.Apply(context.Background(), "DP-1", -10))
	assert.Equal(t, []int{100, 0}, ft.writes)
}

func TestApplyEnforcesWriteGap(t *testing.T) {
	ft := &fakeTransport{}
	d := NewDriver(ft, testConfig())

	require.NoError(t, d.Apply(context.Background(), "DP-1", 50))
	require.NoError(t, d.Apply(context.Background(), "DP-1", 60))

	require.Len(t, ft.times, 2)
	gap := ft.times[1].Sub(ft.times[0])
	assert.GreaterOrEqual(t, gap, 20*time.Millisecond, "writes to one monitor must be spaced")
}

func TestApplyAbandonedOnCancel(t *testing.T) {
	ft := &fakeTransport{failures: 100}
	cfg := testConfig()
	cfg.BackoffBase = time.Hour
	d := NewDriver(ft, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Apply(ctx, "DP-1", 20)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Apply did not abandon its backoff on cancellation")
	}
}

func TestMultiTransportRoutesByOwner(t *testing.T) {
	ddcT := &fakeTransport{displays: []Display{{ID: "SAM:S24F350", Capability: CapabilityDDC}}}
	blT := &fakeTransport{displays: []Display{{ID: "backlight:intel", Capability: CapabilityBacklight}}}

	m := NewMultiTransport(ddcT, blT)
	displays, err := m.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, displays, 2)

	require.NoError(t, m.SetBrightness(context.Background(), "backlight:intel", 30))
	assert.Empty(t, ddcT.writes)
	assert.Equal(t, []int{30}, blT.writes)

	err = m.SetBrightness(context.Background(), "ghost", 10)
	require.Error(t, err)
	assert.Equal(t, ErrUnknownDisplay, errors.CodeOf(err))
}

func TestParseDetect(t *testing.T) {
	out := `Display 1
   I2C bus:  /dev/i2c-4
   Monitor:  SAM:S24F350:H4ZN500119

Display 2
   I2C bus:  /dev/i2c-5
   Monitor:  DEL:U2720Q:ABCD1234

Invalid display
   I2C bus:  /dev/i2c-6
`
	displays := parseDetect(out)
	require.Len(t, displays, 2)
	assert.Equal(t, "SAM:S24F350:H4ZN500119", displays[0].ID)
	assert.Equal(t, "DEL:U2720Q:ABCD1234", displays[1].ID)
	assert.Equal(t, CapabilityDDC, displays[0].Capability)
}

func TestParseVCP(t *testing.T) {
	current, maximum, err := parseVCP("VCP 10 C 50 100\n")
	require.NoError(t, err)
	assert.Equal(t, 50, current)
	assert.Equal(t, 100, maximum)

	_, _, err = parseVCP("garbage")
	require.Error(t, err)
}
