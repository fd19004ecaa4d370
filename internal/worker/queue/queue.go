// Package queue delivers render tasks to workers at least once.
package queue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"clipforge/internal/ports"
)

// Delivery is a popped task. It stays in flight until acked or nacked.
type Delivery struct {
	Task ports.Task
	raw  string
}

// Queue is a work queue with explicit acknowledgement.
type Queue interface {
	ports.Scheduler

	// Pop waits up to timeout for a task. It returns (nil, nil) on timeout.
	Pop(ctx context.Context, timeout time.Duration) (*Delivery, error)
	// Ack removes a finished delivery.
	Ack(ctx context.Context, d *Delivery) error
	// Nack puts a delivery back at the tail of the queue.
	Nack(ctx context.Context, d *Delivery) error
	// Recover returns deliveries orphaned by a dead consumer to the queue.
	Recover(ctx context.Context) (int, error)
}

// Leased is implemented by queues whose in-flight deliveries are claimed by
// a lease that must be kept alive while the consumer runs.
type Leased interface {
	KeepAlive(ctx context.Context) error
}

func encodeTask(t ports.Task) (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeTask accepts the JSON task envelope and bare job IDs pushed by older
// producers.
func decodeTask(raw string) (ports.Task, error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "{") {
		return ports.Task{JobID: s}, nil
	}
	var t ports.Task
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return ports.Task{}, err
	}
	return t, nil
}
