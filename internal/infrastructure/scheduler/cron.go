// Package scheduler triggers pipeline executions on a cron cadence.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"PaperTracker/internal/ports"
)

// Cron runs the supplied job on a cron expression in a fixed timezone.
type Cron struct {
	spec string
	loc  *time.Location
	cron *cron.Cron
}

var _ ports.Scheduler = (*Cron)(nil)

// New builds a scheduler from a standard five-field cron expression.
func New(spec string, loc *time.Location) *Cron {
	if loc == nil {
		loc = time.UTC
	}
	return &Cron{spec: spec, loc: loc}
}

// Start registers the job and begins ticking. The job receives the scheduled
// firing time in the scheduler's timezone.
func (c *Cron) Start(ctx context.Context, job func(time.Time)) error {
	c.cron = cron.New(cron.WithLocation(c.loc))
	if _, err := c.cron.AddFunc(c.spec, func() {
		job(time.Now().In(c.loc))
	}); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", c.spec, err)
	}
	c.cron.Start()
	return nil
}

// Stop halts scheduling and waits for a running job to finish, bounded by ctx.
func (c *Cron) Stop(ctx context.Context) error {
	if c.cron == nil {
		return nil
	}
	done := c.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
