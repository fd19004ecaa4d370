package shutdown

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"clipforge/internal/pkg/logger"
)

func newTestLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "debug", Output: io.Discard})
}

func TestRegister(t *testing.T) {
	mgr := NewManager(newTestLogger(), 0)
	if mgr.timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", mgr.timeout)
	}

	mgr.Register("db", func(ctx context.Context) error { return nil })
	mgr.RegisterSimple("redis", func() {})

	if len(mgr.handlers) != 2 {
		t.Fatalf("expected 2 handlers, got %d", len(mgr.handlers))
	}
	if mgr.handlers[0].Name != "db" {
		t.Errorf("expected first handler 'db', got %s", mgr.handlers[0].Name)
	}
}

func TestShutdownRunsHandlersLIFO(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	var order []string
	for _, name := range []string{"db", "queue", "workers"} {
		name := name
		mgr.RegisterSimple(name, func() { order = append(order, name) })
	}

	if err := mgr.Shutdown(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"workers", "queue", "db"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestShutdownJoinsErrors(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)
	boom := errors.New("boom")

	var ran bool
	mgr.RegisterSimple("after", func() { ran = true })
	mgr.Register("failing", func(ctx context.Context) error { return boom })

	err := mgr.Shutdown()
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to contain boom, got %v", err)
	}
	if !ran {
		t.Error("a failing handler must not stop the rest")
	}
	if again := mgr.Shutdown(); !errors.Is(again, boom) {
		t.Error("second Shutdown should return the first result")
	}
}

func TestContextCanceledBeforeHandlers(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)
	ctx := mgr.Context()

	select {
	case <-ctx.Done():
		t.Fatal("context should be live before shutdown")
	default:
	}

	var sawCanceled bool
	mgr.RegisterSimple("observer", func() { sawCanceled = ctx.Err() != nil })
	_ = mgr.Shutdown()

	if !sawCanceled {
		t.Error("expected context canceled before handlers run")
	}
	select {
	case <-mgr.Done():
	case <-time.After(time.Second):
		t.Error("expected done channel to be closed")
	}
}

func TestShutdownTimeout(t *testing.T) {
	mgr := NewManager(newTestLogger(), 100*time.Millisecond)

	var secondRan bool
	mgr.RegisterSimple("second", func() { secondRan = true })
	mgr.Register("slow", func(ctx context.Context) error {
		time.Sleep(2 * time.Second)
		return nil
	})

	start := time.Now()
	err := mgr.Shutdown()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("shutdown took too long: %v", elapsed)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	if secondRan {
		t.Error("handlers after the deadline should be skipped")
	}
}

func TestWaitWithContext(t *testing.T) {
	mgr := NewManager(newTestLogger(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := mgr.WaitWithContext(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case <-mgr.Done():
	default:
		t.Error("expected shutdown to have completed")
	}
}
