package task

import (
	"sync"
)

// AdmissionQueue is the bounded FIFO of pending task IDs between the API
// handlers and the worker. It owns the pending order exclusively: position
// reporting, admission and dispatch all observe the same lock, so no
// position can ever disagree with the actual order.
type AdmissionQueue struct {
	mu       sync.Mutex
	nonEmpty *sync.Cond
	ids      []string
	max      int
	closed   bool
}

func NewAdmissionQueue(maxSize int) *AdmissionQueue {
	if maxSize < 1 {
		maxSize = 1
	}
	q := &AdmissionQueue{
		ids: make([]string, 0, maxSize),
		max: maxSize,
	}
	q.nonEmpty = sync.NewCond(&q.mu)
	return q
}

// TryEnqueue appends the ID to the tail if there is room. It returns false,
// mutating nothing, when the queue is at capacity or closed; callers map
// that to a queue-full rejection.
func (q *AdmissionQueue) TryEnqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.ids) >= q.max {
		return false
	}
	q.ids = append(q.ids, id)
	q.nonEmpty.Signal()
	return true
}

// Dequeue removes and returns the head without blocking. ok is false when
// the queue is empty.
func (q *AdmissionQueue) Dequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// DequeueWait blocks until an ID is available or the queue is closed.
// This is the worker's suspension point; it never spins.
func (q *AdmissionQueue) DequeueWait() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.ids) == 0 && !q.closed {
		q.nonEmpty.Wait()
	}
	return q.popLocked()
}

func (q *AdmissionQueue) popLocked() (string, bool) {
	if len(q.ids) == 0 {
		return "", false
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, true
}

// PositionOf returns the 0-based position of the ID counting from the
// head, or ok=false if the ID is not currently queued (already dispatched
// or never admitted).
func (q *AdmissionQueue) PositionOf(id string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, queued := range q.ids {
		if queued == id {
			return i, true
		}
	}
	return 0, false
}

// Len returns the current pending count.
func (q *AdmissionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

// MaxSize returns the admission bound.
func (q *AdmissionQueue) MaxSize() int {
	return q.max
}

// Close rejects further admissions and wakes blocked consumers. Already
// queued IDs can still be drained with Dequeue.
func (q *AdmissionQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.nonEmpty.Broadcast()
}
