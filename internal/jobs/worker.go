package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/catstealer/pkg/models"
)

// Handler executes one work item. Implementations report their own
// outcome into the registry; an error return is a last resort.
type Handler func(ctx context.Context, item Item) error

// Worker is the single consumer of the work queue. Jobs run one at a
// time in submission order, which bounds load on the upstream catalog
// and local disk to one job's worth.
type Worker struct {
	queue    *Queue
	registry *Registry
	handlers map[Kind]Handler
}

func NewWorker(queue *Queue, registry *Registry) *Worker {
	return &Worker{
		queue:    queue,
		registry: registry,
		handlers: make(map[Kind]Handler),
	}
}

// Register binds a handler to an item kind. Not safe to call once Run
// has started.
func (w *Worker) Register(kind Kind, h Handler) {
	w.handlers[kind] = h
}

// Run consumes items until ctx is cancelled. A cancelled dequeue wait
// ends the loop; any other dequeue error is transient and the loop
// continues. Item failures never terminate the loop.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("worker stopping", "reason", err)
				return
			}
			slog.Warn("dequeue failed", "error", err)
			continue
		}
		w.execute(ctx, item)
	}
}

// execute dispatches one item. Each item gets its own derived context so
// one job's deadline or values cannot leak into the next, and whatever
// escapes the handler is contained here: the job is failed, the loop is
// not.
func (w *Worker) execute(ctx context.Context, item Item) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("work item panicked", "job_id", item.JobID, "kind", item.Kind, "panic", p)
		}
		// Safety net: whatever happened above, the job must not be left
		// observable as pending or running.
		if job := w.registry.Get(item.JobID); !job.Terminal() && job.Status != models.JobStatusNotFound {
			w.registry.MarkFailed(item.JobID, "internal error")
		}
	}()

	h, ok := w.handlers[item.Kind]
	if !ok {
		slog.Error("no handler for work item kind", "job_id", item.JobID, "kind", item.Kind)
		w.registry.MarkFailed(item.JobID, fmt.Sprintf("unknown job kind %q", item.Kind))
		return
	}

	itemCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := h(itemCtx, item); err != nil {
		slog.Error("work item failed", "job_id", item.JobID, "kind", item.Kind, "error", err)
	}
}
