package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mtlprog/finsight/internal/domain"
	"github.com/mtlprog/finsight/internal/metrics"
)

// Forward-fill outcomes for a single account.
const (
	FillCreated   = "created"
	FillExists    = "exists"
	FillNoHistory = "no_history"
	FillSkipped   = "skipped"
)

// FillResult aggregates one sweep. Skipped counts accounts that failed; accounts already
// covered or without any prior snapshot are counted in neither field.
type FillResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// ForwardFill copies each account's most recent snapshot onto "yesterday" in the owner's
// timezone when that day has none. Accounts are processed sequentially; a failing account
// is counted as skipped and the sweep continues. Listing accounts failing aborts the sweep.
func (s *Service) ForwardFill(ctx context.Context) (FillResult, error) {
	accounts, err := s.accounts.ListAll(ctx)
	if err != nil {
		return FillResult{}, fmt.Errorf("listing accounts for forward-fill: %w", err)
	}

	var res FillResult
	for _, acc := range accounts {
		outcome, err := s.ForwardFillAccount(ctx, acc)
		if err != nil {
			outcome = FillSkipped
			slog.Warn("forward-fill skipped account", "account_id", acc.ID, "user_id", acc.UserID, "error", err)
		}
		metrics.ForwardFill.WithLabelValues(outcome).Inc()

		switch outcome {
		case FillCreated:
			res.Created++
		case FillSkipped:
			res.Skipped++
		}
	}

	slog.Info("forward-fill finished", "accounts", len(accounts), "created", res.Created, "skipped", res.Skipped)
	return res, nil
}

// ForwardFillAccount fills yesterday's snapshot for one account and reports the outcome.
func (s *Service) ForwardFillAccount(ctx context.Context, acc domain.Account) (string, error) {
	loc := s.userLocation(ctx, acc.UserID)
	target := domain.Yesterday(s.now(), loc)

	_, err := s.repo.FindByAccountIDAndDate(ctx, acc.ID, target, acc.UserID)
	switch {
	case err == nil:
		return FillExists, nil
	case !errors.Is(err, ErrNotFound):
		return "", err
	}

	prior, err := s.repo.FindMostRecentBeforeDate(ctx, acc.ID, target, acc.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return FillNoHistory, nil
		}
		return "", err
	}

	if _, err := s.Upsert(ctx, UpsertInput{
		AccountID:        acc.ID,
		SnapshotDate:     target,
		CurrentBalance:   prior.CurrentBalance,
		AvailableBalance: prior.AvailableBalance,
		SnapshotType:     TypeForwardFill,
	}, acc.UserID); err != nil {
		return "", fmt.Errorf("filling %s from %s: %w", target, prior.SnapshotDate, err)
	}
	return FillCreated, nil
}
