// Package worker runs the service's recurring background jobs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mtlprog/finsight/internal/metrics"
)

// Schedule returns the next activation time strictly after t.
type Schedule interface {
	Next(t time.Time) time.Time
}

// ParseSchedule parses a standard five-field cron expression. A leading CRON_TZ=Zone
// selects the timezone and descriptors such as @daily or @every 6h are accepted.
func ParseSchedule(expr string) (Schedule, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", expr, err)
	}
	return s, nil
}

// Interval fires at a fixed delay after the previous run.
type Interval time.Duration

func (i Interval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(i))
}

// Task is one unit of recurring work.
type Task func(ctx context.Context) error

// Recurring runs a Task on a Schedule until its context is cancelled.
type Recurring struct {
	name       string
	schedule   Schedule
	task       Task
	runOnStart bool
}

// NewRecurring creates a Recurring job. With runOnStart the task also runs once before the
// first scheduled activation.
func NewRecurring(name string, schedule Schedule, task Task, runOnStart bool) *Recurring {
	return &Recurring{
		name:       name,
		schedule:   schedule,
		task:       task,
		runOnStart: runOnStart,
	}
}

// Name returns the job name used in logs and metrics.
func (w *Recurring) Name() string {
	return w.name
}

// Run starts the job loop. It blocks until the context is cancelled.
func (w *Recurring) Run(ctx context.Context) {
	slog.Info(w.name + ": starting")

	if w.runOnStart {
		w.runOnce(ctx, "initial run")
	}

	for {
		next := w.schedule.Next(time.Now())
		if next.IsZero() {
			slog.Warn(w.name + ": schedule has no further activations")
			<-ctx.Done()
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info(w.name + ": shutting down")
			return
		case <-timer.C:
			w.runOnce(ctx, "run")
		}
	}
}

func (w *Recurring) runOnce(ctx context.Context, label string) {
	if err := w.task(ctx); err != nil {
		metrics.JobRuns.WithLabelValues(w.name, "failure").Inc()
		slog.Error(w.name+": "+label+" failed", "error", err)
		return
	}
	metrics.JobRuns.WithLabelValues(w.name, "success").Inc()
	slog.Info(w.name + ": " + label + " completed")
}
