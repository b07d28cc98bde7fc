package jobs

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/catstealer/pkg/models"
)

// ErrInvalidCount rejects submissions before any job state is touched.
var ErrInvalidCount = errors.New("count must be positive")

// Service is the submission facade the HTTP layer talks to. Submit
// returns as soon as the work item is buffered; completion is observed
// by polling Status.
type Service struct {
	registry *Registry
	queue    *Queue
}

func NewService(registry *Registry, queue *Queue) *Service {
	return &Service{registry: registry, queue: queue}
}

// Submit validates the request, creates a pending job, and enqueues a
// fetch work item bound to it. Blocks only while the queue is at
// capacity (admission control), never for the fetch itself.
func (s *Service) Submit(count int) (string, error) {
	if count <= 0 {
		return "", ErrInvalidCount
	}

	id := s.registry.Create()
	if err := s.queue.Enqueue(Item{JobID: id, Kind: KindFetchCats, Count: count}); err != nil {
		s.registry.MarkFailed(id, "server is shutting down")
		return "", fmt.Errorf("enqueue fetch job: %w", err)
	}
	return id, nil
}

// Status looks up a job record. Unknown ids yield the not_found sentinel.
func (s *Service) Status(id string) models.Job {
	return s.registry.Get(id)
}
