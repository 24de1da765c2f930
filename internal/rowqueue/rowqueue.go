// Package rowqueue implements the bounded single-producer/single-consumer
// hand-off between the packet transformer and the async database writer
// (spec.md S4.5/S5, component F): one mutex, one condition variable, a
// high/low water mark, and a nil-sentinel graceful shutdown.
package rowqueue

import (
	"sync"
	"time"

	"github.com/m-lab/pdmlsql"
	"github.com/m-lab/pdmlsql/internal/pdml"
	"github.com/m-lab/pdmlsql/metrics"
)

// Queue is a bounded FIFO of *pdml.DataRow. The producer blocks when depth
// reaches cap; it resumes once depth falls to cap/2. The consumer blocks
// when the queue is empty, waking at most every pollInterval so it can
// notice a shutdown even without new work arriving.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	cap          int
	pollInterval time.Duration

	items  []*pdml.DataRow
	closed bool // flush() called: no further Push is allowed
	done   bool // sentinel has been dequeued: consumer should stop
}

// New returns an empty Queue with the given capacity (spec.md's backlog cap
// N) and consumer poll interval.
func New(capacity int, pollInterval time.Duration) *Queue {
	q := &Queue{cap: capacity, pollInterval: pollInterval}
	q.cond = sync.NewCond(&q.mu)
	go q.pollLoop()
	return q
}

// pollLoop wakes the consumer every pollInterval even without a Push or
// Flush, so Pop can periodically re-check shutdown state without a
// platform-specific timed-wait primitive (spec.md S5, S9). It exits once
// the sentinel has been dequeued.
func (q *Queue) pollLoop() {
	t := time.NewTicker(q.pollInterval)
	defer t.Stop()
	for range t.C {
		q.mu.Lock()
		done := q.done
		q.cond.Broadcast()
		q.mu.Unlock()
		if done {
			return
		}
	}
}

// NewDefault returns a Queue using the package-wide defaults (spec.md
// BacklogCap / ConsumerPollInterval_ms).
func NewDefault() *Queue {
	return New(pdmlsql.BacklogCap, time.Duration(pdmlsql.ConsumerPollInterval_ms)*time.Millisecond)
}

// Push enqueues one row, blocking while the queue is at capacity. It panics
// if called after Flush — the producer and the single flush() caller must
// not race (spec.md S5: "exactly one producer").
func (q *Queue) Push(row *pdml.DataRow) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		panic("rowqueue: Push called after Flush")
	}
	if len(q.items) >= q.cap {
		for len(q.items) > q.cap/2 {
			q.cond.Wait()
		}
	}
	q.items = append(q.items, row)
	metrics.QueueDepth.Set(float64(len(q.items)))
	q.cond.Signal()
}

// Flush enqueues the nil sentinel and returns immediately; it does not wait
// for the consumer to drain (that is the caller's job via Pop's nil
// return/Done).
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = append(q.items, nil)
	q.cond.Signal()
}

// Pop removes and returns the next row, waiting up to pollInterval at a
// time when the queue is empty. ok is false only once the sentinel has
// been consumed; after that every subsequent call returns ok=false
// immediately.
func (q *Queue) Pop() (row *pdml.DataRow, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.done {
		return nil, false
	}
	for len(q.items) == 0 {
		q.cond.Wait()
	}
	row = q.items[0]
	q.items = q.items[1:]
	metrics.QueueDepth.Set(float64(len(q.items)))

	if len(q.items) <= q.cap/2 {
		q.cond.Broadcast()
	}
	if row == nil {
		q.done = true
		return nil, false
	}
	return row, true
}

// Depth returns the current queue depth, for diagnostics.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
