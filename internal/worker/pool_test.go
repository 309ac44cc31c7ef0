package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/f5-tts-go/f5-tts-go/internal/metrics"
)

func TestPoolProcessesJobs(t *testing.T) {
	pool := NewPool(Config{})
	t.Cleanup(func() {
		if err := pool.Shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown failed: %v", err)
		}
	})

	var mu sync.Mutex
	results := make([]int, 0, 3)

	for i := 0; i < 3; i++ {
		i := i
		if err := pool.Submit(context.Background(), func(context.Context) error {
			mu.Lock()
			results = append(results, i)
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
}

func TestPoolReturnsJobError(t *testing.T) {
	m := metrics.New()
	pool := NewPool(Config{Metrics: m})
	defer pool.Shutdown(context.Background())

	boom := errors.New("boom")
	if err := pool.Submit(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected job error, got %v", err)
	}
	if m.JobsFailed() != 1 {
		t.Fatalf("expected 1 failed job, got %d", m.JobsFailed())
	}
}

func TestPoolSerializesJobs(t *testing.T) {
	pool := NewPool(Config{})
	defer pool.Shutdown(context.Background())

	var running, maxRunning atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Submit(context.Background(), func(context.Context) error {
				n := running.Add(1)
				for {
					cur := maxRunning.Load()
					if n <= cur || maxRunning.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxRunning.Load() != 1 {
		t.Fatalf("expected at most one concurrent job, saw %d", maxRunning.Load())
	}
}

func TestPoolSubmitWaitsInsteadOfRejecting(t *testing.T) {
	pool := NewPool(Config{})
	defer pool.Shutdown(context.Background())

	start := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = pool.Submit(context.Background(), func(context.Context) error {
			close(start)
			<-release
			return nil
		})
	}()

	select {
	case <-start:
	case <-time.After(time.Second):
		t.Fatal("worker did not start")
	}

	done := make(chan error, 1)
	go func() {
		done <- pool.Submit(context.Background(), func(context.Context) error { return nil })
	}()

	select {
	case err := <-done:
		t.Fatalf("second job finished while the worker was busy: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second job failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("second job never ran")
	}
}

func TestPoolSubmitHonoursContextWhileWaiting(t *testing.T) {
	pool := NewPool(Config{})
	defer pool.Shutdown(context.Background())

	start := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	go func() {
		_ = pool.Submit(context.Background(), func(context.Context) error {
			close(start)
			<-release
			return nil
		})
	}()
	<-start

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := pool.Submit(ctx, func(context.Context) error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestPoolShutdownWaitsForInflight(t *testing.T) {
	pool := NewPool(Config{})

	start := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		_ = pool.Submit(context.Background(), func(context.Context) error {
			close(start)
			<-release
			close(finished)
			return nil
		})
	}()

	select {
	case <-start:
	case <-time.After(time.Second):
		t.Fatalf("job did not start")
	}

	shutdownDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		shutdownDone <- pool.Shutdown(ctx)
	}()

	select {
	case err := <-shutdownDone:
		if err == nil {
			t.Fatal("shutdown returned before job finished")
		}
	case <-time.After(time.Second):
		t.Fatal("shutdown did not time out")
	}

	close(release)
	<-finished

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown after release failed: %v", err)
	}

	if err := pool.Submit(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrShutdown) {
		t.Fatalf("expected ErrShutdown after shutdown, got %v", err)
	}
}

func TestPoolSubmitReturnsAfterAcceptedJobFinishes(t *testing.T) {
	pool := NewPool(Config{})
	defer pool.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	var finished atomic.Bool

	err := pool.Submit(ctx, func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if !finished.Load() {
		t.Fatal("submit returned before the job finished")
	}
}
