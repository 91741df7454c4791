package telemetry

import (
	"context"
	"time"
)

// Collector records brightness transitions for later inspection.
type Collector interface {
	Record(ctx context.Context, transition *Transition) error
	Close() error
}

// Transition is one applied brightness change.
type Transition struct {
	Timestamp   time.Time
	MonitorID   string
	State       string
	Brightness  int
	IdleSeconds float64
	MediaActive bool
	Reason      string
}
