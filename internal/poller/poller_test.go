package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStartRunsImmediately(t *testing.T) {
	var calls atomic.Int32
	p := New("campaigns", time.Hour, func(context.Context) error {
		calls.Add(1)
		return nil
	}, discardLogger())

	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, func() bool { return calls.Load() == 1 })
	if !p.Running() {
		t.Error("Running() = false after Start")
	}
}

func TestTicksRepeat(t *testing.T) {
	var calls atomic.Int32
	p := New("campaigns", 5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}, discardLogger())

	p.Start(context.Background())
	waitFor(t, func() bool { return calls.Load() >= 3 })
	p.Stop()
}

func TestStopPreventsLaterTicks(t *testing.T) {
	var calls atomic.Int32
	p := New("campaigns", 5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}, discardLogger())

	p.Start(context.Background())
	waitFor(t, func() bool { return calls.Load() >= 1 })
	p.Stop()

	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != after {
		t.Errorf("refresh ran after Stop: %d -> %d", after, calls.Load())
	}
	if p.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestStartIdempotent(t *testing.T) {
	var calls atomic.Int32
	p := New("campaigns", time.Hour, func(context.Context) error {
		calls.Add(1)
		return nil
	}, discardLogger())

	p.Start(context.Background())
	p.Start(context.Background())
	waitFor(t, func() bool { return calls.Load() >= 1 })
	time.Sleep(10 * time.Millisecond)
	p.Stop()
	p.Stop()

	if calls.Load() != 1 {
		t.Errorf("double Start ran %d immediate refreshes, want 1", calls.Load())
	}
}

func TestTicksNeverOverlap(t *testing.T) {
	var active, maxActive atomic.Int32
	var calls atomic.Int32
	p := New("campaigns", time.Millisecond, func(context.Context) error {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		calls.Add(1)
		return nil
	}, discardLogger())

	p.Start(context.Background())
	waitFor(t, func() bool { return calls.Load() >= 4 })
	p.Stop()

	if maxActive.Load() != 1 {
		t.Errorf("max concurrent refreshes = %d, want 1", maxActive.Load())
	}
}

func TestErrorKeepsPolling(t *testing.T) {
	var calls atomic.Int32
	p := New("campaigns", 5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errors.New("backend unavailable")
	}, discardLogger())

	p.Start(context.Background())
	waitFor(t, func() bool { return calls.Load() >= 3 })
	p.Stop()
}

func TestStopCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	p := New("campaigns", time.Hour, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, discardLogger())

	p.Start(context.Background())
	<-started

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not cancel the in-flight refresh")
	}
}

func TestParentContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	p := New("campaigns", 5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}, discardLogger())

	p.Start(ctx)
	waitFor(t, func() bool { return calls.Load() >= 1 })
	cancel()
	time.Sleep(20 * time.Millisecond)
	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != after {
		t.Error("refresh ran after parent context was cancelled")
	}
	p.Stop()
}

func TestRestartAfterParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	p := New("campaigns", time.Hour, func(context.Context) error {
		calls.Add(1)
		return nil
	}, discardLogger())

	p.Start(ctx)
	waitFor(t, func() bool { return calls.Load() == 1 })
	cancel()
	waitFor(t, func() bool { return !p.Running() })

	p.Start(context.Background())
	defer p.Stop()
	waitFor(t, func() bool { return calls.Load() == 2 })
	if !p.Running() {
		t.Error("Running() = false after restart")
	}
}
