// Package scheduler runs the periodic sweeps (pricing, news, telemetry,
// income, auction expiry) on independent intervals. A sweep that is still
// running when its next tick fires is skipped, and a panicking sweep is
// recovered and logged without stopping the others.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tidewater/ocean-engine/internal/metrics"
)

// ErrUnknownJob is returned by RunOnce for a name that was never added.
var ErrUnknownJob = errors.New("scheduler: unknown job")

// Job is one named sweep.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]Job
	timeout time.Duration
	log     *slog.Logger
	base    context.Context
}

// New creates a scheduler whose jobs each run under timeout.
func New(timeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:    make(map[string]Job),
		timeout: timeout,
		log:     logger,
		base:    context.Background(),
	}
}

// Add registers a job. Jobs with a non-positive interval are only reachable
// through RunOnce.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler: job needs a name and a func")
	}
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("scheduler: duplicate job %q", job.Name)
	}
	s.jobs[job.Name] = job
	if job.Every <= 0 {
		return nil
	}
	s.cron.Schedule(cron.Every(job.Every), cron.FuncJob(func() {
		// The error is already logged and counted by runJob.
		_ = s.runJob(s.base, job)
	}))
	return nil
}

// Names lists registered jobs in alphabetical order.
func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run starts the timers and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.base = ctx
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", s.Names())

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
	return nil
}

// RunOnce runs a single job immediately and returns its error.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownJob, name)
	}
	return s.runJob(ctx, job)
}

func (s *Scheduler) runJob(parent context.Context, job Job) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	err := job.Run(ctx)
	metrics.SweepDuration.WithLabelValues(job.Name).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	metrics.SweepFailures.WithLabelValues(job.Name).Inc()
	if errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn("job timed out", "job", job.Name, "timeout", s.timeout, "err", err)
	} else {
		s.log.Error("job failed", "job", job.Name, "err", err)
	}
	return fmt.Errorf("%s: %w", job.Name, err)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
