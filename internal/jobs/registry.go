package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/catstealer/pkg/models"
)

const sweepInterval = 10 * time.Minute

// Registry is the in-memory job store. Lookups are lock-free via sync.Map;
// a record's writes happen on the single worker goroutine, so per-record
// contention is reads racing one writer, which the copy-on-write updates
// below tolerate.
type Registry struct {
	jobs      sync.Map // job id -> *models.Job
	retention time.Duration
}

// NewRegistry creates a registry. Terminal records older than retention
// are evicted by Sweep; retention <= 0 disables eviction.
func NewRegistry(retention time.Duration) *Registry {
	return &Registry{retention: retention}
}

// Create allocates a fresh pending job and returns its id.
func (r *Registry) Create() string {
	id := uuid.NewString()
	r.jobs.Store(id, &models.Job{
		ID:        id,
		Status:    models.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	})
	return id
}

// Get returns a snapshot of the job, or a not_found sentinel record for
// unknown ids. It never fails.
func (r *Registry) Get(id string) models.Job {
	v, ok := r.jobs.Load(id)
	if !ok {
		return models.Job{ID: id, Status: models.JobStatusNotFound}
	}
	return *v.(*models.Job)
}

// MarkRunning transitions a pending job to running. No-op for unknown
// ids or jobs already terminal.
func (r *Registry) MarkRunning(id string) {
	r.update(id, func(j models.Job) models.Job {
		now := time.Now().UTC()
		j.Status = models.JobStatusRunning
		j.StartedAt = &now
		return j
	})
}

// MarkSucceeded finishes a job with its result. No-op for unknown ids or
// jobs already terminal.
func (r *Registry) MarkSucceeded(id string, result models.JobResult) {
	r.update(id, func(j models.Job) models.Job {
		now := time.Now().UTC()
		j.Status = models.JobStatusSucceeded
		j.FinishedAt = &now
		j.Result = &result
		return j
	})
}

// MarkFailed finishes a job with an error message. No-op for unknown ids
// or jobs already terminal.
func (r *Registry) MarkFailed(id, message string) {
	r.update(id, func(j models.Job) models.Job {
		now := time.Now().UTC()
		j.Status = models.JobStatusFailed
		j.FinishedAt = &now
		j.ErrorMessage = &message
		return j
	})
}

// update replaces the stored record with a mutated copy. Terminal records
// never change again.
func (r *Registry) update(id string, fn func(models.Job) models.Job) {
	v, ok := r.jobs.Load(id)
	if !ok {
		return
	}
	cur := v.(*models.Job)
	if cur.Terminal() {
		return
	}
	next := fn(*cur)
	r.jobs.Store(id, &next)
}

// Sweep evicts terminal records that finished more than the retention
// window before now. Returns the number of records removed.
func (r *Registry) Sweep(now time.Time) int {
	if r.retention <= 0 {
		return 0
	}
	cutoff := now.Add(-r.retention)
	removed := 0
	r.jobs.Range(func(key, value any) bool {
		j := value.(*models.Job)
		if j.Terminal() && j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			r.jobs.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// Janitor periodically sweeps expired records until ctx is cancelled.
func (r *Registry) Janitor(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now); n > 0 {
				slog.Info("evicted expired job records", "count", n)
			}
		}
	}
}
