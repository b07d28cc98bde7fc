package jobs

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Enqueue after the queue has been shut down.
var ErrQueueClosed = errors.New("work queue is closed")

// Kind identifies the operation a work item asks the worker to perform.
// Keeping the payload a closed command value (rather than a captured
// closure) keeps the worker's dispatch set fixed.
type Kind string

const KindFetchCats Kind = "fetch_cats"

// Item is one deferred unit of work bound to a job record.
type Item struct {
	JobID string
	Kind  Kind
	Count int
}

// Queue is a bounded FIFO work queue. Producers block when the queue is
// at capacity; there is exactly one consumer (the worker loop).
type Queue struct {
	items chan Item
	done  chan struct{}
	once  sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewQueue creates a queue with the given capacity. Capacities below 1
// are clamped to 1.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		items: make(chan Item, capacity),
		done:  make(chan struct{}),
	}
}

// Enqueue adds an item, blocking until buffer space is available.
// Returns ErrQueueClosed once Close has been called, including for
// producers already blocked waiting for space. The read lock is held
// across the send so that Close cannot complete while an item is still
// being buffered.
func (q *Queue) Enqueue(item Item) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.items <- item:
		return nil
	case <-q.done:
		return ErrQueueClosed
	}
}

// Dequeue removes the oldest item, blocking until one is available or
// ctx is cancelled.
func (q *Queue) Dequeue(ctx context.Context) (Item, error) {
	select {
	case item := <-q.items:
		return item, nil
	case <-ctx.Done():
		return Item{}, ctx.Err()
	}
}

// Close shuts the queue down. Idempotent. Items already buffered remain
// readable by the consumer; new Enqueue calls fail. Closing done first
// wakes producers blocked on a full buffer so they release the read
// lock; Close then returns only once every in-flight Enqueue has
// finished, so a caller that observes Close may Drain what remains
// without racing a late send.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.done)
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
	})
}

// Drain empties the buffer and returns the leftover items in FIFO
// order. Only valid after Close, once the consumer has stopped.
func (q *Queue) Drain() []Item {
	var items []Item
	for {
		select {
		case item := <-q.items:
			items = append(items, item)
		default:
			return items
		}
	}
}

// Len reports the number of buffered items.
func (q *Queue) Len() int {
	return len(q.items)
}
