// Package scheduler runs the ledger's periodic jobs. When several instances
// run, a Redis lock makes sure each tick executes on one of them only.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/robfig/cron/v3"
)

// Job is a named unit of periodic work.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
	// Timeout bounds one run; zero means one minute.
	Timeout time.Duration
}

// Scheduler runs jobs on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	locker *redislock.Client
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a scheduler. A nil locker runs every tick locally, which is
// only correct for a single instance.
func New(logger *slog.Logger, locker *redislock.Client) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{logger}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		locker: locker,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers job. Invalid specs are rejected here rather than at start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("job needs a name and a run function")
	}
	_, err := s.cron.AddFunc(job.Spec, func() {
		s.wg.Add(1)
		defer s.wg.Done()
		if err := s.RunOnce(s.ctx, job); err != nil {
			s.logger.Error("scheduled_job_failed", "job", job.Name, "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	s.cancel()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.wg.Wait()
	return nil
}

// RunOnce runs job now under its lock. It returns nil without running when
// another instance holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) error {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, "ledger:job:"+job.Name, timeout, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			s.logger.Debug("scheduled_job_skipped", "job", job.Name, "reason", "lock held elsewhere")
			return nil
		}
		if err != nil {
			return fmt.Errorf("obtain lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				s.logger.Warn("scheduled_job_unlock_failed", "job", job.Name, "err", err)
			}
		}()
	}

	start := time.Now()
	err := job.Run(ctx)
	s.logger.Info("scheduled_job_finished", "job", job.Name, "duration_ms", time.Since(start).Milliseconds(), "ok", err == nil)
	return err
}

type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron_"+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron_"+msg, append(keysAndValues, "err", err)...)
}
