package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/langfocus/internal/logger"
	"github.com/go-co-op/gocron"
)

// Sweeper runs one reminder sweep
type Sweeper interface {
	Sweep(ctx context.Context) (Report, error)
}

// Reaper retires idle practice sessions
type Reaper interface {
	ExpireIdle(ctx context.Context) int
}

// Config holds the job schedule
type Config struct {
	SweepAt   string        // HH:MM, UTC
	ReapEvery time.Duration // zero disables the session reaper
}

// Scheduler manages the process-wide background jobs
type Scheduler struct {
	cron    *gocron.Scheduler
	sweeper Sweeper
	reaper  Reaper
	cfg     Config
	log     *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// New creates a new scheduler instance
func New(sweeper Sweeper, reaper Reaper, cfg Config, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron,
		sweeper: sweeper,
		reaper:  reaper,
		cfg:     cfg,
		log:     log.With("service", "scheduler"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start registers the jobs and begins running them in the background
func (s *Scheduler) Start() error {
	if _, err := s.cron.Every(1).Day().At(s.cfg.SweepAt).Do(s.sweep); err != nil {
		return fmt.Errorf("schedule reminder sweep at %q: %w", s.cfg.SweepAt, err)
	}
	if s.reaper != nil && s.cfg.ReapEvery > 0 {
		if _, err := s.cron.Every(s.cfg.ReapEvery).Do(s.reap); err != nil {
			return fmt.Errorf("schedule session reaper: %w", err)
		}
	}

	s.cron.StartAsync()
	s.log.Info("scheduler started", "sweep_at", s.cfg.SweepAt, "reap_every", s.cfg.ReapEvery.String())
	return nil
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.cron.Stop()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// track runs fn unless the scheduler is stopping
func (s *Scheduler) track(name string, fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	started := time.Now()
	fn(s.ctx)
	s.log.Debug("job finished", "job", name, "elapsed", time.Since(started).String())
}

func (s *Scheduler) sweep() {
	s.track("reminder_sweep", func(ctx context.Context) {
		if _, err := s.sweeper.Sweep(ctx); err != nil {
			s.log.Error("reminder sweep failed", "error", err)
		}
	})
}

func (s *Scheduler) reap() {
	s.track("session_reaper", func(ctx context.Context) {
		s.reaper.ExpireIdle(ctx)
	})
}
