package sensor

import (
	"context"
	"strings"
	"time"

	"dimctl/internal/logger"
)

// Snapshot is the fused sensor reading for one tick. It is immutable:
// every controller evaluates the same snapshot, nobody mutates it.
type Snapshot struct {
	IdleSeconds float64
	MediaActive bool
	Taken       time.Time
}

// IdleSource reports seconds since the last user input event.
type IdleSource interface {
	IdleSeconds(ctx context.Context) (float64, error)
}

// MediaSource reports whether any playback session is actively rendering.
type MediaSource interface {
	Name() string
	Active(ctx context.Context) (bool, error)
}

// Poller queries all sources once per tick and fuses them into a
// Snapshot. A failing source degrades toward not dimming: idle reads as
// zero (assume active input), media reads as inactive. Failures are
// logged once per streak and are never fatal.
type Poller struct {
	idle  IdleSource
	media []MediaSource

	idleFailing  bool
	mediaFailing map[string]bool
}

func NewPoller(idle IdleSource, media ...MediaSource) *Poller {
	return &Poller{
		idle:         idle,
		media:        media,
		mediaFailing: make(map[string]bool),
	}
}

// Take produces the snapshot for the current tick.
func (p *Poller) Take(ctx context.Context) Snapshot {
	snap := Snapshot{Taken: time.Now()}

	idle, err := p.idle.IdleSeconds(ctx)
	if err != nil {
		if !p.idleFailing {
			logger.Warn().Err(err).Msg("idle sensor unavailable, assuming active input")
			p.idleFailing = true
		}
		idle = 0
	} else {
		p.idleFailing = false
	}
	snap.IdleSeconds = idle

	for _, src := range p.media {
		active, err := src.Active(ctx)
		if err != nil {
			if !p.mediaFailing[src.Name()] {
				logger.Warn().Str("source", src.Name()).Err(err).Msg("media sensor unavailable, assuming no media")
				p.mediaFailing[src.Name()] = true
			}
			continue
		}
		p.mediaFailing[src.Name()] = false
		if active {
			snap.MediaActive = true
		}
	}

	return snap
}

// AlwaysActiveIdle is the fallback when no idle sensor is reachable.
// It reports zero idle, so monitors never dim spuriously.
type AlwaysActiveIdle struct{}

func (AlwaysActiveIdle) IdleSeconds(context.Context) (float64, error) {
	return 0, nil
}

type ignoreConfigurable interface {
	setIgnored(ignored []string)
}

// SetIgnoredPlayers swaps the ignore list on every media source that
// carries one. Must be called from the goroutine that calls Take.
func (p *Poller) SetIgnoredPlayers(ignored []string) {
	for _, src := range p.media {
		if c, ok := src.(ignoreConfigurable); ok {
			c.setIgnored(ignored)
		}
	}
}

// ignoredMatch reports whether a player or stream name is on the ignore
// list. Matching is case-insensitive substring, both directions, so
// "spotify" matches "Spotify" and "spotify.exe" alike.
func ignoredMatch(ignored []string, name string) bool {
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	for _, ig := range ignored {
		ig = strings.ToLower(strings.TrimSpace(ig))
		if ig == "" {
			continue
		}
		if strings.Contains(lower, ig) || strings.Contains(ig, lower) {
			return true
		}
	}

	return false
}
