package dim

import "time"

// State is the dimming state of a single monitor. A controller is in
// exactly one state at any time.
type State int

const (
	// Active: user is present, monitor at normal brightness.
	Active State = iota
	// PendingDim: idle timeout reached but media is playing; the grace
	// timer is running.
	PendingDim
	// Dimmed: monitor at dim brightness.
	Dimmed
	// ManualOverride: user set an explicit brightness; automatic policy
	// is suspended until new input or the idle timeout fires again.
	ManualOverride
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case PendingDim:
		return "pending_dim"
	case Dimmed:
		return "dimmed"
	case ManualOverride:
		return "manual_override"
	default:
		return "unknown"
	}
}

// Settings is the per-monitor dimming policy.
type Settings struct {
	IdleTimeout time.Duration
	MediaGrace  time.Duration
	Normal      int
	Dim         int
}

// Decision is a brightness change requested by a controller.
type Decision struct {
	Target int
	State  State
	Reason string
}

// Decision reasons
const (
	ReasonIdleTimeout  = "idle_timeout"
	ReasonGraceExpired = "grace_expired"
	ReasonMediaStopped = "media_stopped"
	ReasonInput        = "input"
	ReasonMediaResumed = "media_resumed"
	ReasonOverride     = "override"
	ReasonRetry        = "retry"
)
