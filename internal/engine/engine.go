package engine

import (
	"context"
	"slices"
	"sync"
	"time"

	"dimctl/internal/config"
	"dimctl/internal/ddc"
	"dimctl/internal/dim"
	"dimctl/internal/errors"
	"dimctl/internal/logger"
	"dimctl/internal/monitor"
	"dimctl/internal/sensor"
	"dimctl/internal/telemetry"
)

type commandKind int

const (
	cmdOverride commandKind = iota
	cmdRescan
	cmdReconfigure
)

type command struct {
	kind    commandKind
	monitor string
	percent int
	cfg     *config.Config
	reply   chan error
}

type writeJob struct {
	decision dim.Decision
	idle     float64
	media    bool
}

type writeResult struct {
	monitorID string
	job       writeJob
	err       error
}

// Engine runs the control loop: one sensor snapshot per tick, every
// controller evaluated against it, decisions dispatched to per-monitor
// write workers. Controllers and the registry are only ever touched
// from the loop goroutine; external callers talk to it through the
// command channel or the published status snapshot.
type Engine struct {
	interval   time.Duration
	driver     *ddc.Driver
	registry   *monitor.Registry
	poller     *sensor.Poller
	collector  telemetry.Collector
	errFactory errors.Factory

	commands chan command
	results  chan writeResult
	workers  map[string]*worker

	lastSnap sensor.Snapshot

	mu          sync.RWMutex
	statuses    []monitor.Status
	subscribers map[uint64]chan []monitor.Status
	nextSub     uint64
}

// Policy adapts file configuration into the per-monitor dimming policy.
func Policy(cfg *config.Config) monitor.SettingsFunc {
	return func(id string) dim.Settings {
		s := cfg.SettingsFor(id)

		return dim.Settings{
			IdleTimeout: time.Duration(s.IdleTimeout) * time.Second,
			MediaGrace:  time.Duration(s.MediaGrace) * time.Second,
			Normal:      s.NormalBrightness,
			Dim:         s.DimBrightness,
		}
	}
}

func New(cfg *config.Config, driver *ddc.Driver, poller *sensor.Poller, collector telemetry.Collector) *Engine {
	return &Engine{
		interval:    time.Duration(cfg.PollInterval) * time.Second,
		driver:      driver,
		registry:    monitor.NewRegistry(driver, Policy(cfg)),
		poller:      poller,
		collector:   collector,
		errFactory:  errors.New(),
		commands:    make(chan command, 16),
		results:     make(chan writeResult, 16),
		workers:     make(map[string]*worker),
		subscribers: make(map[uint64]chan []monitor.Status),
	}
}

// Run blocks until ctx is cancelled. The initial display scan happens
// before the first tick so the daemon starts with a populated registry.
func (e *Engine) Run(ctx context.Context) error {
	if _, err := e.registry.Rescan(ctx); err != nil {
		return e.errFactory.Wrap(errors.ErrInitFailed, err)
	}
	e.syncWorkers(ctx, nil)
	e.publish()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()

			return nil
		case cmd := <-e.commands:
			e.handleCommand(ctx, cmd)
		case res := <-e.results:
			e.handleResult(ctx, res)
		case now := <-ticker.C:
			e.tick(ctx, now)
		}
	}
}

func (e *Engine) tick(ctx context.Context, now time.Time) {
	snap := e.poller.Take(ctx)
	e.lastSnap = snap
	idle := time.Duration(snap.IdleSeconds * float64(time.Second))

	for _, m := range e.registry.List() {
		if m.Degraded {
			continue
		}
		decision, apply := m.Controller.Tick(idle, snap.MediaActive, now)
		if !apply {
			continue
		}
		e.enqueue(m.ID, writeJob{decision: decision, idle: snap.IdleSeconds, media: snap.MediaActive})
	}
}

func (e *Engine) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdOverride:
		m, ok := e.registry.Get(cmd.monitor)
		if !ok {
			cmd.reply <- e.errFactory.WithMessage(errors.ErrInvalidArgument, "unknown monitor "+cmd.monitor)

			return
		}
		decision := m.Controller.Override(cmd.percent, time.Now())
		e.enqueue(m.ID, writeJob{decision: decision, idle: e.lastSnap.IdleSeconds, media: e.lastSnap.MediaActive})
		cmd.reply <- nil
	case cmdRescan:
		removed, err := e.registry.Rescan(ctx)
		if err == nil {
			e.syncWorkers(ctx, removed)
			e.publish()
		}
		cmd.reply <- err
	case cmdReconfigure:
		e.registry.Reconfigure(Policy(cmd.cfg))
		e.poller.SetIgnoredPlayers(cmd.cfg.IgnoredMediaPlayers)
		if next := time.Duration(cmd.cfg.PollInterval) * time.Second; next != e.interval {
			logger.Info().Msg("poll interval change takes effect on restart")
		}
		logger.Info().Msg("configuration reloaded")
	}
}

func (e *Engine) handleResult(ctx context.Context, res writeResult) {
	m, ok := e.registry.Get(res.monitorID)
	if !ok {
		return
	}

	if res.err != nil {
		if ddc.IsPermanent(res.err) {
			e.registry.MarkDegraded(res.monitorID)
			e.publish()
		} else {
			logger.Warn().Str("monitor", res.monitorID).Err(res.err).Msg("brightness write failed")
		}

		return
	}

	m.Controller.Confirm(res.job.decision.Target)
	e.record(ctx, res)
	e.publish()
}

func (e *Engine) record(ctx context.Context, res writeResult) {
	err := e.collector.Record(ctx, &telemetry.Transition{
		Timestamp:   time.Now(),
		MonitorID:   res.monitorID,
		State:       res.job.decision.State.String(),
		Brightness:  res.job.decision.Target,
		IdleSeconds: res.job.idle,
		MediaActive: res.job.media,
		Reason:      res.job.decision.Reason,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry record failed")
	}
}

// SetBrightness forwards a manual override into the control loop.
func (e *Engine) SetBrightness(ctx context.Context, monitorID string, percent int) error {
	return e.send(ctx, command{kind: cmdOverride, monitor: monitorID, percent: percent, reply: make(chan error, 1)})
}

// Rescan forwards a display re-enumeration request into the control loop.
func (e *Engine) Rescan(ctx context.Context) error {
	return e.send(ctx, command{kind: cmdRescan, reply: make(chan error, 1)})
}

// Reconfigure applies a reloaded configuration on the next loop pass.
func (e *Engine) Reconfigure(cfg *config.Config) {
	select {
	case e.commands <- command{kind: cmdReconfigure, cfg: cfg}:
	default:
		logger.Warn().Msg("command queue full, dropping reconfigure")
	}
}

func (e *Engine) send(ctx context.Context, cmd command) error {
	select {
	case e.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Statuses returns the last published view of all monitors.
func (e *Engine) Statuses() []monitor.Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return slices.Clone(e.statuses)
}

// Subscribe registers for status snapshots on every state change. Slow
// subscribers miss intermediate snapshots rather than stall the engine.
func (e *Engine) Subscribe() (<-chan []monitor.Status, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan []monitor.Status, 8)
	e.subscribers[id] = ch

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if sub, ok := e.subscribers[id]; ok {
			delete(e.subscribers, id)
			close(sub)
		}
	}

	return ch, cancel
}

func (e *Engine) publish() {
	statuses := e.registry.Statuses()

	e.mu.Lock()
	defer e.mu.Unlock()
	if slices.Equal(statuses, e.statuses) {
		return
	}
	e.statuses = statuses

	for _, ch := range e.subscribers {
		select {
		case ch <- statuses:
		default:
		}
	}
}

func (e *Engine) shutdown() {
	for id, w := range e.workers {
		w.stop()
		delete(e.workers, id)
	}
}
