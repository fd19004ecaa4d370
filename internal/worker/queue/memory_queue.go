package queue

import (
	"context"
	"sync"
	"time"

	"clipforge/internal/ports"
)

// MemoryQueue is an in-process queue for single-binary mode. Tasks do not
// survive a restart; jobs left behind are picked up by recovery.
type MemoryQueue struct {
	mu       sync.Mutex
	items    []ports.Task
	inflight int
	ready    chan struct{}
}

var _ Queue = (*MemoryQueue)(nil)

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{ready: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Push(ctx context.Context, t ports.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *MemoryQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) Pop(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			t := q.items[0]
			q.items = q.items[1:]
			q.inflight++
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return &Delivery{Task: t}, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-q.ready:
		}
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	q.inflight--
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Nack(ctx context.Context, d *Delivery) error {
	q.mu.Lock()
	q.inflight--
	q.items = append(q.items, d.Task)
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *MemoryQueue) Recover(ctx context.Context) (int, error) { return 0, nil }

// Len reports queued and in-flight counts.
func (q *MemoryQueue) Len(ctx context.Context) (queued, inflight int64, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), int64(q.inflight), nil
}
