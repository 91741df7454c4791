package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/google/uuid"

	"dimctl/internal/errors"
	"dimctl/internal/monitor"
)

// Client talks to a running daemon over its control socket. Each call
// opens a fresh connection; the CLI is short-lived anyway.
type Client struct {
	socketPath string
	errFactory errors.Factory
}

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, errFactory: errors.New()}
}

func (c *Client) do(req Request) (*Response, error) {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return nil, c.errFactory.Wrap(ErrDialFailed, err)
	}
	defer conn.Close()

	req.ID = uuid.NewString()
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, c.errFactory.Wrap(ErrBadResponse, err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", payload); err != nil {
		return nil, c.errFactory.Wrap(ErrDialFailed, err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, c.errFactory.Wrap(ErrBadResponse, err)
	}
	if resp.ID != req.ID {
		return nil, c.errFactory.WithMessage(ErrBadResponse, "response id mismatch")
	}
	if resp.Status != statusOK {
		return nil, c.errFactory.WithMessage(ErrDaemon, resp.Error)
	}

	return &resp, nil
}

// SetBrightness requests a manual brightness override for one monitor.
func (c *Client) SetBrightness(monitorID string, percent int) error {
	_, err := c.do(Request{Type: TypeSetBrightness, Monitor: monitorID, Percent: percent})

	return err
}

// Rescan asks the daemon to re-enumerate connected displays.
func (c *Client) Rescan() error {
	_, err := c.do(Request{Type: TypeRescan})

	return err
}

// Status returns the daemon's view of connected monitors. An empty
// monitorID returns all of them.
func (c *Client) Status(monitorID string) ([]monitor.Status, error) {
	resp, err := c.do(Request{Type: TypeStatus, Monitor: monitorID})
	if err != nil {
		return nil, err
	}

	return resp.Monitors, nil
}

// Watch subscribes to state-change events and invokes handler for each
// until ctx is cancelled or the connection drops.
func (c *Client) Watch(ctx context.Context, handler func([]monitor.Status)) error {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return c.errFactory.Wrap(ErrDialFailed, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	req := Request{ID: uuid.NewString(), Type: TypeSubscribe}
	payload, _ := json.Marshal(req)
	if _, err := fmt.Fprintf(conn, "%s\n", payload); err != nil {
		return c.errFactory.Wrap(ErrDialFailed, err)
	}

	scanner := bufio.NewScanner(conn)
	acked := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if !acked {
			var resp Response
			if err := json.Unmarshal(line, &resp); err == nil && resp.ID == req.ID {
				if resp.Status != statusOK {
					return c.errFactory.WithMessage(ErrDaemon, resp.Error)
				}
				acked = true

				continue
			}
		}

		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if ev.Event == EventState {
			handler(ev.Monitors)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	return scanner.Err()
}
