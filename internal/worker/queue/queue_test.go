package queue

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipforge/internal/ports"
)

func TestDecodeTask(t *testing.T) {
	task, err := decodeTask(`{"job_id":"job_1","kind":"video"}`)
	require.NoError(t, err)
	assert.Equal(t, ports.Task{JobID: "job_1", Kind: "video"}, task)

	task, err = decodeTask("job_legacy")
	require.NoError(t, err)
	assert.Equal(t, ports.Task{JobID: "job_legacy"}, task)

	_, err = decodeTask("{not json")
	assert.Error(t, err)
}

// exerciseQueue runs the behavior every Queue implementation shares.
func exerciseQueue(t *testing.T, q Queue) {
	ctx := context.Background()

	d, err := q.Pop(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, d, "empty queue times out with no delivery")

	require.NoError(t, q.Push(ctx, ports.Task{JobID: "job_1", Kind: "video"}))
	require.NoError(t, q.Push(ctx, ports.Task{JobID: "job_2", Kind: "video"}))

	d1, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, d1)
	assert.Equal(t, "job_1", d1.Task.JobID)

	require.NoError(t, q.Nack(ctx, d1))

	d2, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, d2)
	assert.Equal(t, "job_2", d2.Task.JobID)
	require.NoError(t, q.Ack(ctx, d2))

	again, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "job_1", again.Task.JobID, "nacked task is redelivered")
	require.NoError(t, q.Ack(ctx, again))
}

func TestMemoryQueue(t *testing.T) {
	exerciseQueue(t, NewMemoryQueue())
}

func TestMemoryQueueWakesBlockedConsumers(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	var wg sync.WaitGroup
	got := make(chan string, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := q.Pop(ctx, 2*time.Second)
			if err == nil && d != nil {
				got <- d.Task.JobID
				_ = q.Ack(ctx, d)
			}
		}()
	}
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(ctx, ports.Task{JobID: id}))
	}
	wg.Wait()
	close(got)

	var ids []string
	for id := range got {
		ids = append(ids, id)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)

	queued, inflight, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, queued)
	assert.Zero(t, inflight)
}

func TestMemoryQueuePopHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryQueue().Pop(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func testRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("CLIPFORGE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CLIPFORGE_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

// newTestConsumer returns a consumer on a per-test queue name, clearing the
// queue's keys first.
func newTestConsumer(t *testing.T, rdb *redis.Client, id string) *RedisQueue {
	t.Helper()
	ctx := context.Background()
	q := NewRedisConsumer(rdb, "clipforge:test:"+t.Name(), id, time.Minute)
	keys, err := rdb.Keys(ctx, q.queueName+"*").Result()
	require.NoError(t, err)
	if len(keys) > 0 {
		require.NoError(t, rdb.Del(ctx, keys...).Err())
	}
	return q
}

func TestRedisQueue(t *testing.T) {
	rdb := testRedisClient(t)
	q := newTestConsumer(t, rdb, "a")
	_, err := q.Recover(context.Background())
	require.NoError(t, err)
	exerciseQueue(t, q)
}

func TestRedisQueueRecoversInflight(t *testing.T) {
	rdb := testRedisClient(t)
	ctx := context.Background()

	a := newTestConsumer(t, rdb, "a")
	_, err := a.Recover(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Push(ctx, ports.Task{JobID: "job_live", Kind: "video"}))
	d, err := a.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, d)

	queued, inflight, err := a.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), queued)
	assert.Equal(t, int64(1), inflight)

	// A second consumer starting while a is alive leaves a's task alone.
	b := NewRedisConsumer(rdb, a.queueName, "b", time.Minute)
	n, err := b.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	none, err := b.Pop(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, none, "task held by a live consumer is not redelivered")

	// Once a's lease lapses, the next consumer to start reclaims its list.
	require.NoError(t, rdb.Del(ctx, leaseKey(a.queueName, "a")).Err())
	c := NewRedisConsumer(rdb, a.queueName, "c", time.Minute)
	n, err = c.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	d, err = c.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "job_live", d.Task.JobID)
	require.NoError(t, c.Ack(ctx, d))

	members, err := rdb.SMembers(ctx, a.consumers).Result()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, members)
}

func TestRedisQueueKeepAliveRefreshesLease(t *testing.T) {
	rdb := testRedisClient(t)
	q := newTestConsumer(t, rdb, "a")
	q.leaseTTL = 300 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := q.Recover(ctx)
	require.NoError(t, err)
	go func() { _ = q.KeepAlive(ctx) }()

	time.Sleep(time.Second)
	alive, err := rdb.Exists(context.Background(), leaseKey(q.queueName, "a")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), alive)
}
