package automation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

type Runner interface {
	RunCycle(ctx context.Context) CycleReport
}

// Scheduler ticks the monitoring cycle. Every tick runs on its own
// goroutine, so a slow tick does not delay the next one. With singleFlight
// a tick that would overlap a running one is skipped instead.
type Scheduler struct {
	runner       Runner
	interval     time.Duration
	singleFlight bool
	clock        clockwork.Clock

	running atomic.Bool
	wg      sync.WaitGroup
}

func NewScheduler(runner Runner, interval time.Duration, singleFlight bool, clock clockwork.Clock) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		runner:       runner,
		interval:     interval,
		singleFlight: singleFlight,
		clock:        clock,
	}
}

// Run ticks immediately and then every interval until ctx is cancelled. It
// returns after the in-flight ticks finished.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("monitoring scheduler started", "interval", s.interval, "single_flight", s.singleFlight)
	defer s.wg.Wait()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("monitoring scheduler stopping")
			return
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunOnce(ctx)
	}()
}

// RunOnce runs one cycle on the calling goroutine. It reports false when
// single-flight skipped the cycle.
func (s *Scheduler) RunOnce(ctx context.Context) (CycleReport, bool) {
	if s.singleFlight {
		if !s.running.CompareAndSwap(false, true) {
			slog.Warn("monitoring cycle still running, skipping tick")
			return CycleReport{}, false
		}
		defer s.running.Store(false)
	}
	return s.runner.RunCycle(ctx), true
}
