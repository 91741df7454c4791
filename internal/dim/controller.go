package dim

import "time"

// Controller is the dimming state machine for one monitor. It is pure:
// Tick and Override only compute transitions, all hardware I/O happens
// elsewhere. The controller owns the authoritative belief about its
// monitor's brightness; Confirm advances that belief after a write
// succeeds, so a failed write is re-issued on the next tick.
//
// Not safe for concurrent use. The engine evaluates every controller
// from the tick goroutine only.
type Controller struct {
	settings Settings

	state   State
	current int // last confirmed brightness

	lastIdle   time.Duration
	graceStart time.Time

	overrideTarget  int
	overrideLatched bool
	overrideArmed   bool

	prevMedia bool
	mediaSeen bool
}

// NewController creates a controller in the Active state. current is the
// brightness read back from the monitor at enumeration time. Attaching
// takes ownership: if the read-back differs from the configured normal
// brightness, the first tick converges the monitor to it.
func NewController(settings Settings, current int) *Controller {
	return &Controller{
		settings: settings,
		state:    Active,
		current:  current,
	}
}

// State returns the current dimming state.
func (c *Controller) State() State {
	return c.state
}

// Current returns the believed monitor brightness.
func (c *Controller) Current() int {
	return c.current
}

// Settings returns the active policy.
func (c *Controller) Settings() Settings {
	return c.settings
}

// Reconfigure applies new policy settings. The state is kept; the new
// targets take effect on the next tick.
func (c *Controller) Reconfigure(settings Settings) {
	c.settings = settings
}

// Confirm records a successful hardware write.
func (c *Controller) Confirm(brightness int) {
	c.current = brightness
}

// overrideSettleTime is how long idle must accumulate after an override
// before new input can supersede it. The tray interaction that issues
// the override resets the system idle counter itself; without a settle
// window the override would cancel on the very next tick.
const overrideSettleTime = 5 * time.Second

// Override moves the controller into ManualOverride at the requested
// brightness. It wins over any automatic transition in the same tick.
func (c *Controller) Override(percent int, now time.Time) Decision {
	c.state = ManualOverride
	c.overrideTarget = clampPercent(percent)
	c.overrideLatched = true
	c.overrideArmed = false
	c.lastIdle = 0

	return Decision{Target: c.overrideTarget, State: ManualOverride, Reason: ReasonOverride}
}

// Tick evaluates one sensor snapshot. The returned bool reports whether
// a brightness write is needed; the decision's target always differs
// from the believed current brightness when it is emitted.
func (c *Controller) Tick(idle time.Duration, mediaActive bool, now time.Time) (Decision, bool) {
	inputDetected := idle < c.lastIdle
	mediaResumed := c.mediaSeen && mediaActive && !c.prevMedia
	c.lastIdle = idle
	c.prevMedia = mediaActive
	c.mediaSeen = true

	// An override received this tick suppresses automatic evaluation.
	if c.overrideLatched {
		c.overrideLatched = false
		return c.emit(c.overrideTarget, ReasonOverride)
	}

	switch c.state {
	case Active:
		if idle >= c.settings.IdleTimeout {
			if mediaActive {
				c.state = PendingDim
				c.graceStart = now
				break
			}
			c.state = Dimmed
			return c.emit(c.settings.Dim, ReasonIdleTimeout)
		}

	case PendingDim:
		if inputDetected {
			c.state = Active
			return c.emit(c.settings.Normal, ReasonInput)
		}
		if !mediaActive && idle >= c.settings.IdleTimeout {
			c.state = Dimmed
			return c.emit(c.settings.Dim, ReasonMediaStopped)
		}
		if now.Sub(c.graceStart) >= c.settings.MediaGrace {
			// Media is overridden once the grace period runs out, so a
			// long silent playback cannot keep the monitor bright forever.
			c.state = Dimmed
			return c.emit(c.settings.Dim, ReasonGraceExpired)
		}

	case Dimmed:
		if inputDetected {
			c.state = Active
			return c.emit(c.settings.Normal, ReasonInput)
		}
		if mediaResumed {
			c.state = Active
			return c.emit(c.settings.Normal, ReasonMediaResumed)
		}

	case ManualOverride:
		if !c.overrideArmed {
			if idle >= overrideSettleTime {
				c.overrideArmed = true
			}
		} else if inputDetected {
			c.state = Active
			return c.emit(c.settings.Normal, ReasonInput)
		}
		if idle >= c.settings.IdleTimeout {
			// Re-enter automatic policy using the current media state.
			if mediaActive {
				c.state = PendingDim
				c.graceStart = now
				break
			}
			c.state = Dimmed
			return c.emit(c.settings.Dim, ReasonIdleTimeout)
		}
		return c.emit(c.overrideTarget, ReasonOverride)
	}

	// No transition fired; re-issue the state's target if an earlier
	// write never got confirmed.
	return c.emit(c.target(), ReasonRetry)
}

// target returns the brightness the current state calls for.
// PendingDim holds whatever the monitor is at, the grace timer only
// postpones the dim.
func (c *Controller) target() int {
	switch c.state {
	case Dimmed:
		return c.settings.Dim
	case ManualOverride:
		return c.overrideTarget
	case PendingDim:
		return c.current
	default:
		return c.settings.Normal
	}
}

// emit suppresses writes whose target the monitor is already at.
func (c *Controller) emit(target int, reason string) (Decision, bool) {
	if target == c.current {
		return Decision{}, false
	}

	return Decision{Target: target, State: c.state, Reason: reason}, true
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
