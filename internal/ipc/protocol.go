package ipc

import "dimctl/internal/monitor"

// Request types understood by the daemon.
const (
	TypeSetBrightness = "set_brightness"
	TypeRescan        = "rescan"
	TypeStatus        = "status"
	TypeSubscribe     = "subscribe"
)

// Request is one line-delimited JSON message from a client. The id is
// echoed back in the matching response so clients can multiplex.
type Request struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Monitor string `json:"monitor,omitempty"`
	Percent int    `json:"percent,omitempty"`
}

// Response is the reply to a single request.
type Response struct {
	ID       string           `json:"id,omitempty"`
	Status   string           `json:"status"`
	Error    string           `json:"error,omitempty"`
	Monitors []monitor.Status `json:"monitors,omitempty"`
}

// Event is pushed to subscribed clients whenever monitor state changes.
type Event struct {
	Event    string           `json:"event"`
	Monitors []monitor.Status `json:"monitors"`
}

const (
	statusOK    = "ok"
	statusError = "error"

	EventState = "state"
)
