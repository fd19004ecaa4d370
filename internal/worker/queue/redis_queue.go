package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"clipforge/internal/pkg/ids"
	"clipforge/internal/ports"
)

// DefaultLeaseTTL is how long a consumer's in-flight list stays claimed
// without a heartbeat.
const DefaultLeaseTTL = 30 * time.Second

// RedisQueue is a reliable list queue: producers LPUSH onto the main list,
// consumers BLMOVE the tail into their own processing list and LREM it on ack.
//
// Each RedisQueue value is one consumer. Its processing list is claimed by a
// lease key refreshed by KeepAlive; Recover only reclaims lists whose lease
// has expired, so a starting worker never takes tasks a live worker holds.
type RedisQueue struct {
	rdb        *redis.Client
	queueName  string
	consumerID string
	processing string
	consumers  string
	leaseTTL   time.Duration
}

var (
	_ Queue  = (*RedisQueue)(nil)
	_ Leased = (*RedisQueue)(nil)
)

func NewRedisQueue(rdb *redis.Client, queueName string) *RedisQueue {
	return NewRedisConsumer(rdb, queueName, ids.NewID("wkr"), DefaultLeaseTTL)
}

// NewRedisConsumer is NewRedisQueue with an explicit consumer ID and lease.
func NewRedisConsumer(rdb *redis.Client, queueName, consumerID string, leaseTTL time.Duration) *RedisQueue {
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}
	return &RedisQueue{
		rdb:        rdb,
		queueName:  queueName,
		consumerID: consumerID,
		processing: processingKey(queueName, consumerID),
		consumers:  queueName + ":consumers",
		leaseTTL:   leaseTTL,
	}
}

func processingKey(queueName, consumerID string) string {
	return queueName + ":processing:" + consumerID
}

func leaseKey(queueName, consumerID string) string {
	return queueName + ":lease:" + consumerID
}

// ConsumerID identifies this consumer's processing list.
func (q *RedisQueue) ConsumerID() string { return q.consumerID }

func (q *RedisQueue) Push(ctx context.Context, t ports.Task) error {
	raw, err := encodeTask(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	return q.rdb.LPush(ctx, q.queueName, raw).Err()
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	raw, err := q.rdb.BLMove(ctx, q.queueName, q.processing, "RIGHT", "LEFT", timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t, err := decodeTask(raw)
	if err != nil {
		// Unparseable payloads would be redelivered forever.
		_ = q.rdb.LRem(ctx, q.processing, 1, raw).Err()
		return nil, fmt.Errorf("decode task %q: %w", raw, err)
	}
	return &Delivery{Task: t, raw: raw}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	return q.rdb.LRem(ctx, q.processing, 1, d.raw).Err()
}

func (q *RedisQueue) Nack(ctx context.Context, d *Delivery) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, d.raw)
		pipe.LPush(ctx, q.queueName, d.raw)
		return nil
	})
	return err
}

// register claims this consumer's lease and lists it as a consumer.
func (q *RedisQueue) register(ctx context.Context) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, q.consumers, q.consumerID)
		pipe.Set(ctx, leaseKey(q.queueName, q.consumerID), time.Now().UTC().Format(time.RFC3339), q.leaseTTL)
		return nil
	})
	return err
}

// Recover registers this consumer, then moves the processing lists of
// consumers whose lease has expired back onto the queue. Lists held by live
// consumers are left alone. Call it once at worker start.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	if err := q.register(ctx); err != nil {
		return 0, fmt.Errorf("register consumer: %w", err)
	}

	members, err := q.rdb.SMembers(ctx, q.consumers).Result()
	if err != nil {
		return 0, err
	}

	n := 0
	for _, id := range members {
		if id == q.consumerID {
			continue
		}
		alive, err := q.rdb.Exists(ctx, leaseKey(q.queueName, id)).Result()
		if err != nil {
			return n, err
		}
		if alive > 0 {
			continue
		}
		moved, err := q.drain(ctx, processingKey(q.queueName, id))
		n += moved
		if err != nil {
			return n, err
		}
		if err := q.rdb.SRem(ctx, q.consumers, id).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// drain moves every entry of list back onto the queue. LMOVE is atomic per
// element, so two recovering consumers never duplicate a task.
func (q *RedisQueue) drain(ctx context.Context, list string) (int, error) {
	n := 0
	for {
		err := q.rdb.LMove(ctx, list, q.queueName, "RIGHT", "RIGHT").Err()
		if err == redis.Nil {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// KeepAlive refreshes the lease every third of its TTL until ctx ends.
// Refresh errors are retried on the next tick; a lease lost for a whole TTL
// lets another worker reclaim this consumer's in-flight tasks.
func (q *RedisQueue) KeepAlive(ctx context.Context) error {
	ticker := time.NewTicker(q.leaseTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = q.register(ctx)
		}
	}
}

// Len reports queued tasks and in-flight tasks across all consumers.
func (q *RedisQueue) Len(ctx context.Context) (queued, inflight int64, err error) {
	if queued, err = q.rdb.LLen(ctx, q.queueName).Result(); err != nil {
		return 0, 0, err
	}
	members, err := q.rdb.SMembers(ctx, q.consumers).Result()
	if err != nil {
		return 0, 0, err
	}
	for _, id := range members {
		n, err := q.rdb.LLen(ctx, processingKey(q.queueName, id)).Result()
		if err != nil {
			return 0, 0, err
		}
		inflight += n
	}
	return queued, inflight, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
