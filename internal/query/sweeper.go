package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"sieve/internal/logging"
	"sieve/internal/notify"
)

// Sweeper deletes checkpoints older than a TTL, on a cron schedule.
type Sweeper struct {
	store  CheckpointStore
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu        sync.Mutex
	scheduler gocron.Scheduler

	lastMu sync.Mutex
	last   *SweepResult
	swept  notify.Signal
}

// SweepResult is the outcome of one scheduled sweep.
type SweepResult struct {
	At      time.Time
	Deleted int
	Err     error
}

// NewSweeper returns a sweeper for store. If logger is nil, logging is
// disabled.
func NewSweeper(store CheckpointStore, ttl time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		logger: logging.For(logger, "sweeper"),
	}
}

// Sweep deletes every checkpoint created more than the TTL ago and returns
// how many were deleted.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cps, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list checkpoints: %w", err)
	}
	cutoff := s.now().Add(-s.ttl)
	deleted := 0
	for _, cp := range cps {
		if !cp.Created.Before(cutoff) {
			// Sorted oldest first.
			break
		}
		if err := s.store.Delete(ctx, cp.ID); err != nil {
			return deleted, fmt.Errorf("delete checkpoint %s: %w", cp.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

// Start runs Sweep on the cron schedule until Stop is called. Both 5-field
// and 6-field expressions are accepted.
func (s *Sweeper) Start(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return fmt.Errorf("sweeper already started")
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create sweep scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.CronJob(cronExpr, true),
		gocron.NewTask(s.run),
		gocron.WithName("checkpoint-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("create sweep job: %w", err)
	}
	sched.Start()
	s.scheduler = sched
	s.logger.Info("checkpoint sweeper started", "cron", cronExpr, "ttl", s.ttl)
	return nil
}

func (s *Sweeper) run() {
	n, err := s.Sweep(context.Background())
	switch {
	case err != nil:
		s.logger.Warn("checkpoint sweep failed", "deleted", n, "error", err)
	case n > 0:
		s.logger.Info("expired checkpoints deleted", "deleted", n)
	}

	s.lastMu.Lock()
	s.last = &SweepResult{At: s.now(), Deleted: n, Err: err}
	s.lastMu.Unlock()
	s.swept.Notify()
}

// Swept returns a channel closed when the next scheduled sweep finishes.
func (s *Sweeper) Swept() <-chan struct{} {
	return s.swept.C()
}

// Last returns the result of the latest scheduled sweep, if any ran.
func (s *Sweeper) Last() (SweepResult, bool) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	if s.last == nil {
		return SweepResult{}, false
	}
	return *s.last, true
}

// Stop shuts down the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler == nil {
		return nil
	}
	err := s.scheduler.Shutdown()
	s.scheduler = nil
	return err
}
