package manager

import (
	"sync"
)

// pendingQueue is an unbounded FIFO of run IDs waiting for a worker.
// Enqueue never blocks, so submission stays fast no matter how deep the
// backlog gets.
type pendingQueue struct {
	mu     sync.Mutex
	ids    []string
	notify chan struct{}
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{
		notify: make(chan struct{}, 1),
	}
}

// Enqueue appends a run ID and wakes one idle worker.
func (q *pendingQueue) Enqueue(id string) {
	q.mu.Lock()
	q.ids = append(q.ids, id)
	q.mu.Unlock()
	q.signal()
}

// Pop removes and returns the oldest queued ID. When more IDs remain it
// re-signals so idle workers keep draining even if wakeups were coalesced.
func (q *pendingQueue) Pop() (string, bool) {
	q.mu.Lock()
	if len(q.ids) == 0 {
		q.mu.Unlock()
		return "", false
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	remaining := len(q.ids)
	q.mu.Unlock()

	if remaining > 0 {
		q.signal()
	}
	return id, true
}

// Len returns the number of queued IDs.
func (q *pendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

// Wait returns the channel workers block on while the queue is empty.
func (q *pendingQueue) Wait() <-chan struct{} {
	return q.notify
}

func (q *pendingQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
