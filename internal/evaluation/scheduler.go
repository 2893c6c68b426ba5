package evaluation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"syntax-engine/internal/observability"
)

const (
	// DefaultInterval is the spacing between evaluation cycles.
	DefaultInterval = 30 * time.Second
	// DefaultInitialDelay lets other startup tasks settle before the first cycle.
	DefaultInitialDelay = 5 * time.Second
)

// Scheduler runs the engine on a fixed interval, with one initial run shortly
// after start. Ticks that fire while a cycle is still running are skipped, so
// two cycles never overlap.
type Scheduler struct {
	engine       *Engine
	interval     time.Duration
	initialDelay time.Duration
	logger       *zap.SugaredLogger

	mu      sync.Mutex
	running bool
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Engine       *Engine
	Interval     time.Duration // default DefaultInterval
	InitialDelay time.Duration // default DefaultInitialDelay
	Logger       *zap.SugaredLogger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	interval := opts.Interval
	if interval == 0 {
		interval = DefaultInterval
	}

	initialDelay := opts.InitialDelay
	if initialDelay == 0 {
		initialDelay = DefaultInitialDelay
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Scheduler{
		engine:       opts.Engine,
		interval:     interval,
		initialDelay: initialDelay,
		logger:       logger,
	}
}

// Run blocks until ctx is cancelled, executing cycles on schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Infow("evaluation scheduler starting",
		"interval", s.interval,
		"initial_delay", s.initialDelay,
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.initialDelay):
	}
	s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("evaluation scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle executes one cycle unless one is already in flight.
func (s *Scheduler) runCycle(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("evaluation cycle still running, skipping tick")
		observability.RecordCycleSkipped()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	result, err := s.engine.RunCycle(ctx)
	if err != nil {
		// Read failure: nothing was processed, next tick retries.
		s.logger.Errorw("evaluation cycle aborted", "error", err)
		observability.RecordCycle("error", time.Since(start).Seconds())
		return
	}

	observability.RecordCycle("success", time.Since(start).Seconds())
	observability.DefaultMetrics.LastSuccessfulCycle.SetToCurrentTime()

	s.logger.Infow("evaluation cycle completed",
		"cycle_id", result.CycleID,
		"duration", time.Since(start),
		"scanned", result.Scanned,
		"passed", result.Passed,
		"breached", result.Breached,
		"skipped", result.Skipped,
		"repaired", result.Repaired,
		"errors", len(result.Errors),
	)
}
