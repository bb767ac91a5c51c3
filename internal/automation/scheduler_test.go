package automation

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingRunner reports every cycle on calls and holds it until release
// is closed.
type blockingRunner struct {
	calls   chan struct{}
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{calls: make(chan struct{}, 10), release: make(chan struct{})}
}

func (r *blockingRunner) RunCycle(ctx context.Context) CycleReport {
	r.calls <- struct{}{}
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	return CycleReport{Candidates: 1}
}

func waitCall(t *testing.T, r *blockingRunner) {
	t.Helper()
	select {
	case <-r.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not run")
	}
}

func TestScheduler_OverlappingTicks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newBlockingRunner()
	sched := NewScheduler(runner, 5*time.Minute, false, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	waitCall(t, runner)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	clock.Advance(5 * time.Minute)
	waitCall(t, runner)

	close(runner.release)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_SingleFlight(t *testing.T) {
	runner := newBlockingRunner()
	sched := NewScheduler(runner, time.Minute, true, clockwork.NewFakeClock())
	ctx := context.Background()

	first := make(chan bool)
	go func() {
		_, ran := sched.RunOnce(ctx)
		first <- ran
	}()
	waitCall(t, runner)

	_, ran := sched.RunOnce(ctx)
	assert.False(t, ran, "a tick overlapping a running one is skipped")

	close(runner.release)
	assert.True(t, <-first)

	report, ran := sched.RunOnce(ctx)
	assert.True(t, ran)
	assert.Equal(t, 1, report.Candidates)
	waitCall(t, runner)
}

func TestScheduler_StopsWithContext(t *testing.T) {
	clock := clockwork.NewFakeClock()
	runner := newBlockingRunner()
	close(runner.release)
	sched := NewScheduler(runner, 0, false, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()
	waitCall(t, runner)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, 5*time.Minute, sched.interval)
}
