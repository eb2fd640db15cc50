// Package scheduler runs periodic maintenance jobs for the intake server.
//
// Jobs are registered with cron expressions (five fields, or descriptors such
// as "@daily" and "@every 10m") and receive a context that is cancelled on Stop.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateExpr reports whether expr is a schedule the Scheduler accepts.
func ValidateExpr(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs []string
}

// New creates and starts a scheduler whose jobs run under ctx.
func New(ctx context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c, ctx: ctx, cancel: cancel}
}

// AddJob schedules job under name using expr.
func (s *Scheduler) AddJob(name, expr string, job Job) error {
	if _, err := s.cron.AddFunc(expr, func() { s.run(name, job) }); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.mu.Lock()
	s.jobs = append(s.jobs, name)
	s.mu.Unlock()
	slog.Debug("Scheduler.AddJob", "name", name, "schedule", expr)
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := job(s.ctx); err != nil {
		slog.Error("Scheduler.run: job failed", "name", name, "error", err, "elapsed", time.Since(start))
		return
	}
	slog.Debug("Scheduler.run: job finished", "name", name, "elapsed", time.Since(start))
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.jobs...)
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
