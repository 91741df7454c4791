package ddc

import (
	"context"
	"sync"
	"time"

	"dimctl/internal/errors"
	"dimctl/internal/logger"
)

// Config tunes the driver's retry and rate-limit behavior.
type Config struct {
	// MaxAttempts is the total number of write attempts before the
	// failure is classified permanent.
	MaxAttempts int
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration
	// MinWriteGap is the minimum spacing between writes to one monitor.
	MinWriteGap time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BackoffBase: 250 * time.Millisecond,
		MinWriteGap: 500 * time.Millisecond,
	}
}

// Driver applies brightness targets to physical monitors. It clamps
// targets, rate-limits writes per monitor so the DDC bus is not flooded,
// and retries transient failures with bounded exponential backoff.
// It holds no policy state; it only executes the writes it is told to.
type Driver struct {
	transport Transport
	cfg       Config

	mu        sync.Mutex
	lastWrite map[string]time.Time
}

func NewDriver(transport Transport, cfg Config) *Driver {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}

	return &Driver{
		transport: transport,
		cfg:       cfg,
		lastWrite: make(map[string]time.Time),
	}
}

// Detect enumerates displays via the underlying transport.
func (d *Driver) Detect(ctx context.Context) ([]Display, error) {
	return d.transport.Detect(ctx)
}

// GetBrightness reads a monitor's current brightness percent.
func (d *Driver) GetBrightness(ctx context.Context, id string) (int, error) {
	return d.transport.GetBrightness(ctx, id)
}

// Apply writes a brightness target to a monitor. A context cancellation
// (monitor disconnected, shutdown) aborts any in-flight backoff and
// returns ctx.Err(); retry exhaustion returns an ErrExhausted error.
func (d *Driver) Apply(ctx context.Context, id string, percent int) error {
	errFactory := errors.New()
	percent = clampPercent(percent)

	if err := d.waitWriteGap(ctx, id); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, d.cfg.BackoffBase<<(attempt-1)); err != nil {
				return err
			}
		}

		err := d.transport.SetBrightness(ctx, id, percent)
		if err == nil {
			d.recordWrite(id)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.CodeOf(err) == ErrUnknownDisplay {
			return err
		}

		lastErr = err
		logger.Warn().
			Str("monitor", id).
			Int("attempt", attempt+1).
			Err(err).
			Msg("brightness write failed")
	}

	return errFactory.Wrap(ErrExhausted, lastErr)
}

func (d *Driver) waitWriteGap(ctx context.Context, id string) error {
	d.mu.Lock()
	last, ok := d.lastWrite[id]
	d.mu.Unlock()

	if !ok {
		return nil
	}

	wait := d.cfg.MinWriteGap - time.Since(last)
	if wait <= 0 {
		return nil
	}

	return sleepCtx(ctx, wait)
}

func (d *Driver) recordWrite(id string) {
	d.mu.Lock()
	d.lastWrite[id] = time.Now()
	d.mu.Unlock()
}

func sleepCtx(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}

	return v
}
