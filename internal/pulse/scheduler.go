package pulse

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// TickFunc runs one check cycle for a monitor.
type TickFunc func(ctx context.Context, monitorID string)

// Scheduler owns one repeating timer per monitor. Timers for different
// monitors run independently. Ticks of the same monitor never overlap: a tick
// that comes due while the previous one is still running is skipped.
type Scheduler struct {
	tick    TickFunc
	logger  *zap.Logger
	metrics *metrics

	// runCtx is passed to ticks. Cancelling a timer never cancels it, so an
	// in-flight tick always runs to completion.
	runCtx    context.Context
	runCancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*scheduleEntry
	stopped bool
	wg      sync.WaitGroup
}

type scheduleEntry struct {
	cancel   context.CancelFunc
	interval time.Duration
	busy     *atomic.Bool // Shared across re-arms of the same monitor.
}

// NewScheduler creates a scheduler that invokes tick for every due monitor.
func NewScheduler(tick TickFunc, logger *zap.Logger, m *metrics) *Scheduler {
	if m == nil {
		m = newMetrics(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tick:      tick,
		logger:    logger,
		metrics:   m,
		runCtx:    ctx,
		runCancel: cancel,
		entries:   make(map[string]*scheduleEntry),
	}
}

// Arm starts a timer for the monitor, replacing any existing one. The new
// interval applies from the next cycle.
func (s *Scheduler) Arm(monitorID string, interval time.Duration) {
	if interval <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	busy := &atomic.Bool{}
	if old, ok := s.entries[monitorID]; ok {
		old.cancel()
		busy = old.busy
	}

	ctx, cancel := context.WithCancel(s.runCtx)
	s.entries[monitorID] = &scheduleEntry{cancel: cancel, interval: interval, busy: busy}
	s.metrics.scheduled.Set(float64(len(s.entries)))

	s.wg.Add(1)
	go s.loop(ctx, monitorID, interval, busy)
}

// Cancel stops the monitor's timer. A tick already running is not interrupted.
func (s *Scheduler) Cancel(monitorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[monitorID]; ok {
		e.cancel()
		delete(s.entries, monitorID)
		s.metrics.scheduled.Set(float64(len(s.entries)))
	}
}

// Scheduled reports whether the monitor has an armed timer.
func (s *Scheduler) Scheduled(monitorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[monitorID]
	return ok
}

// Interval returns the armed interval of a monitor, or zero.
func (s *Scheduler) Interval(monitorID string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[monitorID]; ok {
		return e.interval
	}
	return 0
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels every timer and waits for in-flight ticks to finish. If ctx
// expires first, in-flight ticks are cancelled and Stop returns ctx.Err().
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for id, e := range s.entries {
		e.cancel()
		delete(s.entries, id)
	}
	s.metrics.scheduled.Set(0)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.runCancel()
		return nil
	case <-ctx.Done():
		s.runCancel()
		<-done
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context, monitorID string, interval time.Duration, busy *atomic.Bool) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !busy.CompareAndSwap(false, true) {
				s.metrics.ticksSkipped.Inc()
				s.logger.Debug("tick skipped, previous check still running",
					zap.String("monitor_id", monitorID))
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer busy.Store(false)
				s.run(monitorID)
			}()
		}
	}
}

func (s *Scheduler) run(monitorID string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tick panicked",
				zap.String("monitor_id", monitorID),
				zap.Any("panic", r),
			)
		}
	}()
	s.tick(s.runCtx, monitorID)
}
