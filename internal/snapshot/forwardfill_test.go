package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/finsight/internal/domain"
)

func seed(t *testing.T, svc *Service, accountID, userID, date string, current, available int64) {
	t.Helper()
	_, err := svc.Upsert(context.Background(), UpsertInput{
		AccountID:        accountID,
		SnapshotDate:     date,
		CurrentBalance:   domain.Positive(current, "USD"),
		AvailableBalance: domain.Negative(available, "USD"),
	}, userID)
	require.NoError(t, err)
}

func TestForwardFillTokyoYesterday(t *testing.T) {
	// 2024-01-11 15:30 UTC is 2024-01-12 00:30 in Tokyo, so Tokyo's yesterday is 2024-01-11.
	svc, repo, accounts, zones := newTestService(time.Date(2024, 1, 11, 15, 30, 0, 0, time.UTC))
	zones.zones["user-1"] = "Asia/Tokyo"
	accounts.accounts = []domain.Account{{ID: "acc-1", UserID: "user-1"}}
	seed(t, svc, "acc-1", "user-1", "2024-01-10", 700, 50)

	res, err := svc.ForwardFill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FillResult{Created: 1}, res)

	filled, ok := repo.rows[key("acc-1", "2024-01-11")]
	require.True(t, ok)
	assert.Equal(t, TypeForwardFill, filled.SnapshotType)
	assert.Equal(t, "700", filled.CurrentBalance.Money.Amount.String())
	assert.Equal(t, domain.SignNegative, filled.AvailableBalance.Sign)
	assert.Len(t, repo.rows, 2)
}

func TestForwardFillChainsAcrossDays(t *testing.T) {
	now := time.Date(2024, 1, 12, 12, 0, 0, 0, time.UTC)
	svc, repo, accounts, _ := newTestService(now)
	svc.now = func() time.Time { return now }
	accounts.accounts = []domain.Account{{ID: "acc-1", UserID: "user-1"}}
	seed(t, svc, "acc-1", "user-1", "2024-01-10", 300, 0)

	for range 3 {
		_, err := svc.ForwardFill(context.Background())
		require.NoError(t, err)
		now = now.Add(24 * time.Hour)
	}

	for _, d := range []string{"2024-01-11", "2024-01-12", "2024-01-13"} {
		s, ok := repo.rows[key("acc-1", d)]
		require.True(t, ok, "missing %s", d)
		assert.Equal(t, TypeForwardFill, s.SnapshotType)
		assert.Equal(t, "300", s.CurrentBalance.Money.Amount.String())
	}
}

func TestForwardFillIsIdempotent(t *testing.T) {
	svc, repo, accounts, _ := newTestService(time.Date(2024, 1, 12, 12, 0, 0, 0, time.UTC))
	accounts.accounts = []domain.Account{{ID: "acc-1", UserID: "user-1"}}
	seed(t, svc, "acc-1", "user-1", "2024-01-10", 300, 0)

	first, err := svc.ForwardFill(context.Background())
	require.NoError(t, err)
	second, err := svc.ForwardFill(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first.Created)
	assert.Equal(t, FillResult{}, second)
	assert.Len(t, repo.rows, 2)
}

func TestForwardFillDoesNotOverwriteExisting(t *testing.T) {
	svc, repo, accounts, _ := newTestService(time.Date(2024, 1, 12, 12, 0, 0, 0, time.UTC))
	accounts.accounts = []domain.Account{{ID: "acc-1", UserID: "user-1"}}
	seed(t, svc, "acc-1", "user-1", "2024-01-10", 300, 0)
	seed(t, svc, "acc-1", "user-1", "2024-01-11", 999, 0)

	res, err := svc.ForwardFill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FillResult{}, res)
	assert.Equal(t, TypeSync, repo.rows[key("acc-1", "2024-01-11")].SnapshotType)
}

func TestForwardFillWithoutHistory(t *testing.T) {
	svc, repo, accounts, _ := newTestService(time.Date(2024, 1, 12, 12, 0, 0, 0, time.UTC))
	accounts.accounts = []domain.Account{{ID: "new-acc", UserID: "user-1"}}

	outcome, err := svc.ForwardFillAccount(context.Background(), accounts.accounts[0])
	require.NoError(t, err)
	assert.Equal(t, FillNoHistory, outcome)

	res, err := svc.ForwardFill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FillResult{}, res)
	assert.Empty(t, repo.rows)
}

func TestForwardFillCountsFailuresAndContinues(t *testing.T) {
	svc, repo, accounts, _ := newTestService(time.Date(2024, 1, 12, 12, 0, 0, 0, time.UTC))
	accounts.accounts = []domain.Account{
		{ID: "broken", UserID: "user-1"},
		{ID: "acc-2", UserID: "user-2"},
	}
	seed(t, svc, "acc-2", "user-2", "2024-01-09", 10, 0)
	repo.failFor["broken"] = errors.New("connection reset")

	res, err := svc.ForwardFill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FillResult{Created: 1, Skipped: 1}, res)

	s, ok := repo.rows[key("acc-2", "2024-01-11")]
	require.True(t, ok)
	assert.Equal(t, "2024-01-11", s.SnapshotDate)
}

func TestForwardFillAbortsWhenAccountsUnavailable(t *testing.T) {
	svc, _, accounts, _ := newTestService(time.Now())
	accounts.err = errors.New("db down")

	_, err := svc.ForwardFill(context.Background())
	assert.Error(t, err)
}
