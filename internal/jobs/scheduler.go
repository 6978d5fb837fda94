package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Scheduler runs jobs sequentially, on a recurring interval, or in a
// continuous loop. A per-name mutex guarantees at most one live
// execution per job, even across runner goroutines.
type Scheduler struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	jobs  []Job
	log   zerolog.Logger

	// test seams
	recurringRetries    int
	recurringRetryDelay time.Duration
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		locks:               make(map[string]*sync.Mutex),
		log:                 log.With().Str("component", "scheduler").Logger(),
		recurringRetries:    3,
		recurringRetryDelay: 30 * time.Second,
	}
}

// Register appends a job for RunAllSequential, preserving order.
func (s *Scheduler) Register(j Job) {
	s.jobs = append(s.jobs, j)
}

func (s *Scheduler) lockFor(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[name]
	if !ok {
		m = &sync.Mutex{}
		s.locks[name] = m
	}
	return m
}

// execute runs one job under its named mutex. The no-work signal passes
// through untouched.
func (s *Scheduler) execute(ctx context.Context, j Job) error {
	m := s.lockFor(j.Name())
	m.Lock()
	defer m.Unlock()

	start := time.Now()
	err := j.Execute(ctx)
	if err != nil && !IsNoWork(err) {
		return err
	}
	s.log.Info().Str("job", j.Name()).Dur("took", time.Since(start)).Msg("job finished")
	return err
}

// RunAllSequential runs every registered job once in registration order
// and stops at the first failure.
func (s *Scheduler) RunAllSequential(ctx context.Context) error {
	for _, j := range s.jobs {
		s.log.Info().Str("job", j.Name()).Msg("running job")
		if err := s.execute(ctx, j); err != nil && !IsNoWork(err) {
			return fmt.Errorf("job %s: %w", j.Name(), err)
		}
	}
	return nil
}

// RunRecurring runs the job every interval until ctx is canceled. Each
// run gets up to 3 attempts spaced 30 seconds apart; errors are logged
// and the loop continues.
func (s *Scheduler) RunRecurring(ctx context.Context, j Job, interval time.Duration) {
	for {
		s.runWithRetries(ctx, j)
		if !sleepOrDone(ctx, interval) {
			return
		}
	}
}

func (s *Scheduler) runWithRetries(ctx context.Context, j Job) {
	var err error
	for attempt := 1; attempt <= s.recurringRetries; attempt++ {
		err = s.execute(ctx, j)
		if err == nil || IsNoWork(err) {
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.log.Warn().Err(err).Str("job", j.Name()).Int("attempt", attempt).Msg("job attempt failed")
		if attempt < s.recurringRetries && !sleepOrDone(ctx, s.recurringRetryDelay) {
			return
		}
	}
	s.log.Error().Err(err).Str("job", j.Name()).Msg("job failed after retries")
}

// RunContinuous loops the job until ctx is canceled: an immediate rerun
// on success, a checkInterval pause when there is no work or on error.
func (s *Scheduler) RunContinuous(ctx context.Context, j Job, checkInterval time.Duration) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.execute(ctx, j)
		switch {
		case err == nil:
			continue
		case IsNoWork(err):
			s.log.Debug().Str("job", j.Name()).Msg("no work")
		default:
			s.log.Error().Err(err).Str("job", j.Name()).Msg("continuous job failed")
		}
		if !sleepOrDone(ctx, checkInterval) {
			return
		}
	}
}

// WithRetry runs op up to 3 times, waiting attempt seconds between
// tries. The last error comes back wrapped with the operation name.
func WithRetry(ctx context.Context, name string, op func() error) error {
	const attempts = 3
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt < attempts {
			if !sleepOrDone(ctx, time.Duration(attempt)*1000*time.Millisecond) {
				break
			}
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}

// sleepOrDone waits d, returning false when ctx ends first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
