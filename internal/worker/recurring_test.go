package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func countingTask(n *atomic.Int32, err error) Task {
	return func(_ context.Context) error {
		n.Add(1)
		return err
	}
}

func TestRecurringRunsAndShutdown(t *testing.T) {
	var calls atomic.Int32
	w := NewRecurring("Test", Interval(50*time.Millisecond), countingTask(&calls, nil), true)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	// Initial run plus some ticks.
	if got := calls.Load(); got < 2 {
		t.Errorf("call count = %d, want >= 2", got)
	}
}

func TestRecurringWithoutRunOnStartWaitsForSchedule(t *testing.T) {
	var calls atomic.Int32
	w := NewRecurring("Test", Interval(time.Hour), countingTask(&calls, nil), false)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	if got := calls.Load(); got != 0 {
		t.Errorf("call count = %d, want 0", got)
	}
}

func TestRecurringKeepsRunningAfterFailure(t *testing.T) {
	var calls atomic.Int32
	w := NewRecurring("Test", Interval(20*time.Millisecond), countingTask(&calls, errors.New("boom")), true)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	if got := calls.Load(); got < 2 {
		t.Errorf("call count = %d, want >= 2", got)
	}
}

type never struct{}

func (never) Next(time.Time) time.Time { return time.Time{} }

func TestRecurringStopsSchedulingWhenScheduleEnds(t *testing.T) {
	var calls atomic.Int32
	w := NewRecurring("Test", never{}, countingTask(&calls, nil), true)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	if got := calls.Load(); got != 1 {
		t.Errorf("call count = %d, want 1", got)
	}
}

func TestParseSchedule(t *testing.T) {
	base := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"0 */6 * * *", time.Date(2024, 1, 10, 18, 0, 0, 0, time.UTC)},
		{"@every 1h", base.Add(time.Hour)},
		// 17:00 in Los Angeles is 01:00 UTC the next day in January.
		{"CRON_TZ=America/Los_Angeles 0 17 * * *", time.Date(2024, 1, 11, 1, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := ParseSchedule(tt.expr)
			if err != nil {
				t.Fatalf("ParseSchedule: %v", err)
			}
			if got := s.Next(base); !got.Equal(tt.want) {
				t.Errorf("Next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	for _, expr := range []string{"", "every day", "61 * * * *", "CRON_TZ=Nowhere/City 0 0 * * *"} {
		if _, err := ParseSchedule(expr); err == nil {
			t.Errorf("ParseSchedule(%q) = nil error, want error", expr)
		}
	}
}
