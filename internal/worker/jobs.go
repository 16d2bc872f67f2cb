package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/mtlprog/finsight/internal/account"
	"github.com/mtlprog/finsight/internal/snapshot"
)

// AccountSyncer refreshes account balances from their sources.
type AccountSyncer interface {
	SyncAll(ctx context.Context) (account.SyncResult, error)
}

// ForwardFiller carries yesterday's balances forward for accounts without a snapshot.
type ForwardFiller interface {
	ForwardFill(ctx context.Context) (snapshot.FillResult, error)
}

// RateWarmer refreshes latest exchange rates.
type RateWarmer interface {
	WarmLatest(ctx context.Context, base string, targets []string) error
}

// SyncAccounts is the full account sync job.
func SyncAccounts(syncer AccountSyncer) Task {
	return func(ctx context.Context) error {
		res, err := syncer.SyncAll(ctx)
		if err != nil {
			return err
		}
		slog.Info("SyncAccounts: finished", "synced", res.Synced, "skipped", res.Skipped, "failed", res.Failed)
		return nil
	}
}

// ForwardFillSnapshots is the snapshot forward-fill sweep.
func ForwardFillSnapshots(filler ForwardFiller) Task {
	return func(ctx context.Context) error {
		res, err := filler.ForwardFill(ctx)
		if err != nil {
			return err
		}
		slog.Info("ForwardFill: finished", "created", res.Created, "skipped", res.Skipped)
		return nil
	}
}

// WarmRates refreshes home->currency and currency->home latest rates for every listed currency.
func WarmRates(warmer RateWarmer, home string, currencies []string) Task {
	currencies = lo.Without(lo.Uniq(currencies), home)
	return func(ctx context.Context) error {
		var errs []error
		if err := warmer.WarmLatest(ctx, home, currencies); err != nil {
			errs = append(errs, err)
		}
		for _, c := range currencies {
			if err := warmer.WarmLatest(ctx, c, []string{home}); err != nil {
				errs = append(errs, fmt.Errorf("warming %s: %w", c, err))
			}
		}
		return errors.Join(errs...)
	}
}

// NewRateWorker warms exchange rates on startup and then every interval.
func NewRateWorker(warmer RateWarmer, home string, currencies []string, interval time.Duration) *Recurring {
	return NewRecurring("RateWorker", Interval(interval), WarmRates(warmer, home, currencies), true)
}
