package telemetry_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dimctl/internal/telemetry"
)

func TestDisabledCollectorIsNoop(t *testing.T) {
	c, err := telemetry.NewService(telemetry.Config{Enabled: false})
	require.NoError(t, err)

	err = c.Record(context.Background(), &telemetry.Transition{MonitorID: "DP-1"})
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestEnabledWithoutPathFails(t *testing.T) {
	_, err := telemetry.NewService(telemetry.Config{Enabled: true})
	require.Error(t, err)
}

func TestRecordPersistsTransition(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "telemetry.db")
	c, err := telemetry.NewService(telemetry.Config{Enabled: true, DBPath: dbPath})
	require.NoError(t, err)

	tr := &telemetry.Transition{
		Timestamp:   time.Now(),
		MonitorID:   "DP-1",
		State:       "dimmed",
		Brightness:  20,
		IdleSeconds: 301,
		MediaActive: false,
		Reason:      "idle_timeout",
	}
	require.NoError(t, c.Record(context.Background(), tr))
	require.NoError(t, c.Close())

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	var state string
	var brightness int
	err = db.QueryRow(`SELECT COUNT(*), state, brightness FROM transitions WHERE monitor_id = ?`, "DP-1").
		Scan(&count, &state, &brightness)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, "dimmed", state)
	assert.Equal(t, 20, brightness)
}

func TestRecordNilTransition(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "telemetry.db")
	c, err := telemetry.NewService(telemetry.Config{Enabled: true, DBPath: dbPath})
	require.NoError(t, err)
	defer c.Close()

	err = c.Record(context.Background(), nil)
	require.Error(t, err)
}
