package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWorkerPool_StartStop(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job Job) error {
		processed.Add(1)
		return nil
	}

	pool := NewWorkerPool(2, 10, processor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var handles []*Handle
	for i := 0; i < 5; i++ {
		h, err := pool.Submit(ctx, i)
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		handles = append(handles, h)
	}

	for _, h := range handles {
		if err := h.Wait(ctx); err != nil {
			t.Errorf("unexpected job error: %v", err)
		}
	}
	pool.Stop()

	if processed.Load() != 5 {
		t.Errorf("expected 5 jobs processed, got %d", processed.Load())
	}
}

func TestWorkerPool_HandleCarriesError(t *testing.T) {
	boom := errors.New("push provider down")
	pool := NewWorkerPool(1, 1, func(ctx context.Context, job Job) error {
		if job.(int) == 2 {
			return boom
		}
		if job.(int) == 3 {
			panic("nil alert")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	h, _ := pool.Submit(ctx, 2)
	if err := h.Wait(ctx); !errors.Is(err, boom) {
		t.Errorf("expected job error, got %v", err)
	}

	h, _ = pool.Submit(ctx, 3)
	if err := h.Wait(ctx); err == nil {
		t.Error("expected panic to surface as an error")
	}

	h, _ = pool.Submit(ctx, 1)
	if err := h.Wait(ctx); err != nil {
		t.Errorf("expected pool to survive a panicking job, got %v", err)
	}
}

func TestWorkerPool_ConcurrentSubmit(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job Job) error {
		processed.Add(1)
		return nil
	}

	pool := NewWorkerPool(4, 100, processor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			h, err := pool.Submit(ctx, n)
			if err != nil {
				t.Errorf("Submit failed: %v", err)
				return
			}
			h.Wait(ctx)
		}(i)
	}

	wg.Wait()
	pool.Stop()

	if processed.Load() != 100 {
		t.Errorf("expected 100 jobs processed, got %d", processed.Load())
	}
}

func TestWorkerPool_SubmitBlocksWhenFull(t *testing.T) {
	release := make(chan struct{})
	pool := NewWorkerPool(1, 1, func(ctx context.Context, job Job) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	first, _ := pool.Submit(ctx, 1)
	// wait for the worker to pick up the first job so the buffer is empty
	deadline := time.Now().Add(time.Second)
	for pool.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := pool.Submit(ctx, 2); err != nil {
		t.Fatalf("expected second job to fit the buffer: %v", err)
	}

	short, shortCancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer shortCancel()
	if _, err := pool.Submit(short, 3); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected backpressure to surface as deadline exceeded, got %v", err)
	}

	close(release)
	if err := first.Wait(ctx); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	pool.Stop()
}

func TestWorkerPool_GracefulShutdown(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job Job) error {
		time.Sleep(10 * time.Millisecond)
		processed.Add(1)
		return nil
	}

	pool := NewWorkerPool(2, 50, processor)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	var handles []*Handle
	for i := 0; i < 20; i++ {
		h, err := pool.Submit(ctx, i)
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		handles = append(handles, h)
	}

	cancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool.Stop() timed out")
	}

	// every handle completes: either processed or stopped
	var stopped int
	closed, cancel := context.WithCancel(context.Background())
	cancel()
	for _, h := range handles {
		err := h.Wait(closed)
		if errors.Is(err, context.Canceled) {
			t.Fatal("handle left open after Stop")
		}
		if errors.Is(err, ErrStopped) {
			stopped++
		}
	}
	if int(processed.Load())+stopped != 20 {
		t.Errorf("expected processed + stopped = 20, got %d + %d", processed.Load(), stopped)
	}

	if _, err := pool.Submit(context.Background(), 99); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped after Stop, got %v", err)
	}
	pool.Stop()
}

func TestCompleted(t *testing.T) {
	boom := errors.New("boom")
	h := Completed(boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.Wait(ctx); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}
