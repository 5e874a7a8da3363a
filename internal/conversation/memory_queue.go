package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue. Received messages stay in flight for
// the visibility timeout and are delivered again unless deleted.
type MemoryQueue struct {
	mu         sync.Mutex
	ready      []QueuedMessage
	inflight   map[string]inflight
	capacity   int
	visibility time.Duration
	signal     chan struct{}
}

type inflight struct {
	msg      QueuedMessage
	deadline time.Time
}

// NewMemoryQueue creates a queue holding at most capacity ready messages.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 128
	}
	return &MemoryQueue{
		inflight:   make(map[string]inflight),
		capacity:   capacity,
		visibility: 30 * time.Second,
		signal:     make(chan struct{}, 1),
	}
}

// WithVisibilityTimeout sets how long a received message stays hidden.
func (q *MemoryQueue) WithVisibilityTimeout(d time.Duration) *MemoryQueue {
	if d > 0 {
		q.visibility = d
	}
	return q
}

// Send enqueues a body, waiting for room while the queue is full.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	for {
		q.mu.Lock()
		if len(q.ready) < q.capacity {
			q.ready = append(q.ready, QueuedMessage{ID: uuid.NewString(), Body: body})
			q.mu.Unlock()
			q.wake()
			return nil
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Receive returns up to maxMessages, waiting at most waitSeconds for the
// first one. A zero wait blocks until a message or ctx is done.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueuedMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}
	for {
		if msgs := q.take(maxMessages); len(msgs) > 0 {
			return msgs, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, nil
		case <-q.signal:
		case <-time.After(q.nextRedelivery()):
		}
	}
}

// Delete acknowledges a received message.
func (q *MemoryQueue) Delete(_ context.Context, receipt string) error {
	q.mu.Lock()
	delete(q.inflight, receipt)
	q.mu.Unlock()
	return nil
}

// Len reports ready plus in-flight messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.inflight)
}

func (q *MemoryQueue) take(max int) []QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	for receipt, f := range q.inflight {
		if now.After(f.deadline) {
			delete(q.inflight, receipt)
			q.ready = append(q.ready, f.msg)
		}
	}
	n := min(max, len(q.ready))
	if n == 0 {
		return nil
	}
	out := make([]QueuedMessage, 0, n)
	for _, msg := range q.ready[:n] {
		msg.Attempt++
		msg.Receipt = uuid.NewString()
		q.inflight[msg.Receipt] = inflight{msg: msg, deadline: now.Add(q.visibility)}
		out = append(out, msg)
	}
	q.ready = append(q.ready[:0], q.ready[n:]...)
	return out
}

func (q *MemoryQueue) nextRedelivery() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	wait := q.visibility
	now := time.Now()
	for _, f := range q.inflight {
		if d := f.deadline.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

func (q *MemoryQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
