package monitor

import (
	"context"
	"sort"

	"dimctl/internal/ddc"
	"dimctl/internal/dim"
	"dimctl/internal/logger"
)

// Monitor is one connected display under automatic control.
type Monitor struct {
	ID         string
	Name       string
	Capability ddc.Capability
	Controller *dim.Controller
	// Degraded is set when driver writes for this monitor permanently
	// failed. A degraded monitor gets no automatic writes until a
	// rescan re-establishes it.
	Degraded bool
}

// Status is the externally visible view of a monitor.
type Status struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	State      string `json:"state"`
	Brightness int    `json:"brightness"`
	Degraded   bool   `json:"degraded"`
	Capability string `json:"capability"`
}

// SettingsFunc resolves the dimming policy for a monitor id.
type SettingsFunc func(id string) dim.Settings

// Registry enumerates displays and owns one controller per monitor.
// Controllers are fully independent; a failure on one never touches
// another. The registry is confined to the engine goroutine and needs
// no locking of its own.
type Registry struct {
	driver      *ddc.Driver
	settingsFor SettingsFunc
	monitors    map[string]*Monitor
}

func NewRegistry(driver *ddc.Driver, settingsFor SettingsFunc) *Registry {
	return &Registry{
		driver:      driver,
		settingsFor: settingsFor,
		monitors:    make(map[string]*Monitor),
	}
}

// Rescan re-enumerates connected displays. New monitors get a fresh
// controller seeded from a brightness read-back; surviving monitors
// keep their controller and have any degraded flag cleared; vanished
// monitors are destroyed. Returns the ids of removed monitors so their
// in-flight writes can be cancelled.
func (r *Registry) Rescan(ctx context.Context) (removed []string, err error) {
	displays, err := r.driver.Detect(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(displays))
	for _, d := range displays {
		seen[d.ID] = true

		if m, ok := r.monitors[d.ID]; ok {
			if m.Degraded {
				logger.Info().Str("monitor", d.ID).Msg("monitor re-established after rescan")
				m.Degraded = false
			}
			continue
		}

		settings := r.settingsFor(d.ID)
		current, err := r.driver.GetBrightness(ctx, d.ID)
		if err != nil {
			logger.Warn().Str("monitor", d.ID).Err(err).Msg("brightness read-back failed, assuming normal")
			current = settings.Normal
		}

		r.monitors[d.ID] = &Monitor{
			ID:         d.ID,
			Name:       d.Name,
			Capability: d.Capability,
			Controller: dim.NewController(settings, current),
		}
		logger.Info().
			Str("monitor", d.ID).
			Str("capability", string(d.Capability)).
			Int("brightness", current).
			Msg("monitor attached")
	}

	for id := range r.monitors {
		if !seen[id] {
			delete(r.monitors, id)
			removed = append(removed, id)
			logger.Info().Str("monitor", id).Msg("monitor disconnected")
		}
	}

	return removed, nil
}

// Get returns a monitor by id.
func (r *Registry) Get(id string) (*Monitor, bool) {
	m, ok := r.monitors[id]
	return m, ok
}

// List returns all monitors ordered by id.
func (r *Registry) List() []*Monitor {
	out := make([]*Monitor, 0, len(r.monitors))
	for _, m := range r.monitors {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// MarkDegraded excludes a monitor from automatic writes until rescan.
func (r *Registry) MarkDegraded(id string) {
	if m, ok := r.monitors[id]; ok && !m.Degraded {
		m.Degraded = true
		logger.Error().Str("monitor", id).Msg("monitor degraded, automatic control suspended")
	}
}

// Reconfigure re-applies per-monitor policy, typically after a config
// file reload.
func (r *Registry) Reconfigure(settingsFor SettingsFunc) {
	r.settingsFor = settingsFor
	for id, m := range r.monitors {
		m.Controller.Reconfigure(settingsFor(id))
	}
}

// Statuses snapshots the visible state of every monitor.
func (r *Registry) Statuses() []Status {
	monitors := r.List()
	out := make([]Status, 0, len(monitors))
	for _, m := range monitors {
		out = append(out, Status{
			ID:         m.ID,
			Name:       m.Name,
			State:      m.Controller.State().String(),
			Brightness: m.Controller.Current(),
			Degraded:   m.Degraded,
			Capability: string(m.Capability),
		})
	}

	return out
}
