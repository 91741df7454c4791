package ipc

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dimctl/internal/monitor"
)

type fakeController struct {
	mu        sync.Mutex
	overrides map[string]int
	rescans   int
	statuses  []monitor.Status
	updates   chan []monitor.Status
}

func newFakeController() *fakeController {
	return &fakeController{
		overrides: make(map[string]int),
		statuses: []monitor.Status{
			{ID: "DP-1", Name: "Dell U2720Q", State: "active", Brightness: 80, Capability: "ddc"},
			{ID: "eDP-1", Name: "Built-in", State: "dimmed", Brightness: 20, Capability: "backlight"},
		},
		updates: make(chan []monitor.Status, 1),
	}
}

func (f *fakeController) SetBrightness(_ context.Context, monitorID string, percent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[monitorID] = percent

	return nil
}

func (f *fakeController) Rescan(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescans++

	return nil
}

func (f *fakeController) Statuses() []monitor.Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.statuses
}

func (f *fakeController) Subscribe() (<-chan []monitor.Status, func()) {
	return f.updates, func() {}
}

func startServer(t *testing.T) (*fakeController, *Client) {
	t.Helper()

	ctrl := newFakeController()
	socket := filepath.Join(t.TempDir(), "dimctl.sock")
	server := NewServer(socket, ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	client := NewClient(socket)
	require.Eventually(t, func() bool {
		_, err := client.Status("")

		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "server never came up")

	return ctrl, client
}

func TestStatusRoundTrip(t *testing.T) {
	_, client := startServer(t)

	statuses, err := client.Status("")
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "DP-1", statuses[0].ID)
	assert.Equal(t, 80, statuses[0].Brightness)
}

func TestStatusSingleMonitor(t *testing.T) {
	_, client := startServer(t)

	statuses, err := client.Status("eDP-1")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "dimmed", statuses[0].State)
}

func TestStatusUnknownMonitor(t *testing.T) {
	_, client := startServer(t)

	_, err := client.Status("HDMI-9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown monitor")
}

func TestSetBrightnessReachesController(t *testing.T) {
	ctrl, client := startServer(t)

	require.NoError(t, client.SetBrightness("DP-1", 55))

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	assert.Equal(t, 55, ctrl.overrides["DP-1"])
}

func TestRescanReachesController(t *testing.T) {
	ctrl, client := startServer(t)

	require.NoError(t, client.Rescan())

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	assert.Equal(t, 1, ctrl.rescans)
}

func TestSubscribeDeliversEvents(t *testing.T) {
	ctrl, client := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got := make(chan []monitor.Status, 1)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- client.Watch(ctx, func(statuses []monitor.Status) {
			select {
			case got <- statuses:
			default:
			}
		})
	}()

	// Give the subscription a moment to register, then push a change.
	time.Sleep(100 * time.Millisecond)
	ctrl.updates <- []monitor.Status{{ID: "DP-1", State: "manual_override", Brightness: 55}}

	select {
	case statuses := <-got:
		require.Len(t, statuses, 1)
		assert.Equal(t, "manual_override", statuses[0].State)
	case <-ctx.Done():
		t.Fatal("no event received")
	}

	cancel()
	require.ErrorIs(t, <-watchErr, context.Canceled)
}

func TestUnknownRequestType(t *testing.T) {
	_, client := startServer(t)

	_, err := client.do(Request{Type: "reboot"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown request type")
}
