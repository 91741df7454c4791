package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"

	"dimctl/internal/errors"
	"dimctl/internal/logger"
	"dimctl/internal/monitor"
)

// Controller is the daemon surface the IPC server drives. Commands are
// forwarded into the engine; reads come from its published snapshot.
type Controller interface {
	SetBrightness(ctx context.Context, monitorID string, percent int) error
	Rescan(ctx context.Context) error
	Statuses() []monitor.Status
	// Subscribe registers for state-change notifications. The returned
	// cancel must be called when the subscriber goes away.
	Subscribe() (<-chan []monitor.Status, func())
}

// Server accepts control connections on a Unix domain socket and speaks
// line-delimited JSON: one Request per line in, one Response per request
// out, plus asynchronous Events for subscribed connections.
type Server struct {
	socketPath string
	ctrl       Controller
	errFactory errors.Factory
}

func NewServer(socketPath string, ctrl Controller) *Server {
	return &Server{
		socketPath: socketPath,
		ctrl:       ctrl,
		errFactory: errors.New(),
	}
}

// Serve listens until ctx is cancelled. The socket file is removed on
// shutdown.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return s.errFactory.Wrap(ErrListenFailed, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return s.errFactory.Wrap(ErrListenFailed, err)
	}
	logger.Info().Str("socket", s.socketPath).Msg("control socket listening")

	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	defer os.Remove(s.socketPath)

	var wg sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			logger.Warn().Err(err).Msg("control socket accept failed")

			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
	wg.Wait()

	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Unblock a reader stuck in Scan when the daemon shuts down.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// Subscribed connections receive pushes concurrently with request
	// responses; writes to the shared encoder are serialized.
	var writeMu sync.Mutex
	enc := json.NewEncoder(conn)
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()

		return enc.Encode(v)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			_ = send(Response{Status: statusError, Error: fmt.Sprintf("parse request: %v", err)})

			continue
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}

		resp := s.dispatch(ctx, &req, send)
		if err := send(resp); err != nil {
			logger.Debug().Err(err).Msg("control response write failed")

			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req *Request, send func(any) error) Response {
	switch req.Type {
	case TypeSetBrightness:
		if req.Monitor == "" {
			return fail(req.ID, "set_brightness requires a monitor id")
		}
		if err := s.ctrl.SetBrightness(ctx, req.Monitor, req.Percent); err != nil {
			return fail(req.ID, err.Error())
		}

		return ok(req.ID)
	case TypeRescan:
		if err := s.ctrl.Rescan(ctx); err != nil {
			return fail(req.ID, err.Error())
		}

		return ok(req.ID)
	case TypeStatus:
		statuses := s.ctrl.Statuses()
		if req.Monitor != "" {
			statuses = filterStatuses(statuses, req.Monitor)
			if len(statuses) == 0 {
				return fail(req.ID, fmt.Sprintf("unknown monitor %q", req.Monitor))
			}
		}
		resp := ok(req.ID)
		resp.Monitors = statuses

		return resp
	case TypeSubscribe:
		updates, cancel := s.ctrl.Subscribe()
		go func() {
			defer cancel()
			for statuses := range updates {
				if err := send(Event{Event: EventState, Monitors: statuses}); err != nil {
					return
				}
			}
		}()

		return ok(req.ID)
	default:
		return fail(req.ID, fmt.Sprintf("unknown request type %q", req.Type))
	}
}

func filterStatuses(statuses []monitor.Status, id string) []monitor.Status {
	for _, st := range statuses {
		if st.ID == id {
			return []monitor.Status{st}
		}
	}

	return nil
}

func ok(id string) Response {
	return Response{ID: id, Status: statusOK}
}

func fail(id, msg string) Response {
	return Response{ID: id, Status: statusError, Error: msg}
}
