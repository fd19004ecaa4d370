package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipforge/internal/pkg/logger"
	"clipforge/internal/ports"
	"clipforge/internal/worker/queue"
)

type recordingHandler struct {
	mu      sync.Mutex
	seen    []ports.Task
	failFor map[string]int
	done    chan string
}

func (h *recordingHandler) Process(ctx context.Context, t ports.Task) error {
	h.mu.Lock()
	h.seen = append(h.seen, t)
	if h.failFor[t.JobID] > 0 {
		h.failFor[t.JobID]--
		h.mu.Unlock()
		return fmt.Errorf("database unavailable")
	}
	h.mu.Unlock()
	h.done <- t.JobID
	return nil
}

func runWorker(t *testing.T, q queue.Queue, reg Registry) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- Run(ctx, Deps{
			Queue:       q,
			Handlers:    reg,
			DefaultKind: "video",
			Concurrency: 2,
			PopTimeout:  50 * time.Millisecond,
			RetryDelay:  time.Millisecond,
			Log:         logger.Discard(),
		})
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errc:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("worker did not stop")
		}
	})
	return cancel
}

func waitFor(t *testing.T, ch <-chan string, n int) []string {
	t.Helper()
	var got []string
	for len(got) < n {
		select {
		case id := <-ch:
			got = append(got, id)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d of %d tasks", len(got), n)
		}
	}
	return got
}

func TestRunRoutesByKind(t *testing.T) {
	q := queue.NewMemoryQueue()
	video := &recordingHandler{done: make(chan string, 10)}
	gif := &recordingHandler{done: make(chan string, 10)}
	runWorker(t, q, Registry{"video": video, "gif": gif})

	ctx := context.Background()
	require.NoError(t, q.Push(ctx, ports.Task{JobID: "job_v", Kind: "video"}))
	require.NoError(t, q.Push(ctx, ports.Task{JobID: "job_g", Kind: "gif"}))
	require.NoError(t, q.Push(ctx, ports.Task{JobID: "job_legacy"}))

	assert.ElementsMatch(t, []string{"job_v", "job_legacy"}, waitFor(t, video.done, 2))
	assert.Equal(t, []string{"job_g"}, waitFor(t, gif.done, 1))
}

func TestRunRequeuesFailedDeliveries(t *testing.T) {
	q := queue.NewMemoryQueue()
	h := &recordingHandler{done: make(chan string, 10), failFor: map[string]int{"job_flaky": 2}}
	runWorker(t, q, Registry{"video": h})

	require.NoError(t, q.Push(context.Background(), ports.Task{JobID: "job_flaky", Kind: "video"}))
	assert.Equal(t, []string{"job_flaky"}, waitFor(t, h.done, 1))

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Len(t, h.seen, 3)
}

func TestRunDropsUnknownKinds(t *testing.T) {
	q := queue.NewMemoryQueue()
	h := &recordingHandler{done: make(chan string, 10)}
	runWorker(t, q, Registry{"video": h})

	ctx := context.Background()
	require.NoError(t, q.Push(ctx, ports.Task{JobID: "job_x", Kind: "audio"}))
	require.NoError(t, q.Push(ctx, ports.Task{JobID: "job_v", Kind: "video"}))
	waitFor(t, h.done, 1)

	assert.Eventually(t, func() bool {
		queued, inflight, _ := q.Len(ctx)
		return queued == 0 && inflight == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// leasedQueue is a memory queue that records lease heartbeats.
type leasedQueue struct {
	*queue.MemoryQueue
	started chan struct{}
	stopped chan struct{}
}

func (q *leasedQueue) KeepAlive(ctx context.Context) error {
	close(q.started)
	<-ctx.Done()
	close(q.stopped)
	return nil
}

func TestRunKeepsLeaseAlive(t *testing.T) {
	q := &leasedQueue{MemoryQueue: queue.NewMemoryQueue(), started: make(chan struct{}), stopped: make(chan struct{})}
	h := &recordingHandler{done: make(chan string, 1)}
	cancel := runWorker(t, q, Registry{"video": h})

	select {
	case <-q.started:
	case <-time.After(2 * time.Second):
		t.Fatal("lease heartbeat never started")
	}

	require.NoError(t, q.Push(context.Background(), ports.Task{JobID: "job_1", Kind: "video"}))
	select {
	case id := <-h.done:
		assert.Equal(t, "job_1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("task not processed")
	}

	cancel()
	select {
	case <-q.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("lease heartbeat did not stop with the worker")
	}
}
