package engine

import (
	"context"
)

// worker serializes hardware writes for one monitor. A slow or hung
// display stalls only its own queue, never the tick loop or other
// monitors.
type worker struct {
	jobs   chan writeJob
	cancel context.CancelFunc
	done   chan struct{}
}

func (e *Engine) startWorker(ctx context.Context, monitorID string) *worker {
	ctx, cancel := context.WithCancel(ctx)
	w := &worker{
		jobs:   make(chan writeJob, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-w.jobs:
				err := e.driver.Apply(ctx, monitorID, job.decision.Target)
				if ctx.Err() != nil {
					return
				}
				select {
				case e.results <- writeResult{monitorID: monitorID, job: job, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return w
}

func (w *worker) stop() {
	w.cancel()
	<-w.done
}

// enqueue hands a decision to the monitor's worker. A queued job that
// was never picked up is superseded; the controller re-emits until a
// write is confirmed, so dropping stale targets is safe.
func (e *Engine) enqueue(monitorID string, job writeJob) {
	w, ok := e.workers[monitorID]
	if !ok {
		return
	}

	select {
	case <-w.jobs:
	default:
	}
	select {
	case w.jobs <- job:
	default:
	}
}

// syncWorkers reconciles workers with the registry after a rescan.
// Workers for removed monitors are cancelled so in-flight writes are
// abandoned.
func (e *Engine) syncWorkers(ctx context.Context, removed []string) {
	for _, id := range removed {
		if w, ok := e.workers[id]; ok {
			w.stop()
			delete(e.workers, id)
		}
	}

	for _, m := range e.registry.List() {
		if _, ok := e.workers[m.ID]; !ok {
			e.workers[m.ID] = e.startWorker(ctx, m.ID)
		}
	}
}
