package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mtlprog/finsight/internal/conversion"
	"github.com/mtlprog/finsight/internal/database"
	"github.com/mtlprog/finsight/internal/domain"
	"github.com/mtlprog/finsight/internal/events"
	"github.com/mtlprog/finsight/internal/metrics"
)

const defaultListLimit = 366

// ErrInvalidInput wraps validation failures of UpsertInput.
var ErrInvalidInput = errors.New("invalid snapshot")

// AccountLister enumerates every account in the system.
type AccountLister interface {
	ListAll(ctx context.Context) ([]domain.Account, error)
}

// TimezoneProvider returns the IANA timezone configured for a user.
type TimezoneProvider interface {
	GetTimezone(ctx context.Context, userID string) (string, error)
}

// BalanceConverter converts balances into the user's preferred currency.
type BalanceConverter interface {
	AddConvertedBalances(ctx context.Context, items []conversion.Input, userID string) ([]conversion.Balances, error)
}

// Notifier is told about every stored snapshot.
type Notifier interface {
	NotifySnapshot(userID string, s Snapshot)
}

// UpsertInput is a snapshot write. Empty SnapshotDate means today in UTC and empty
// SnapshotType means SYNC.
type UpsertInput struct {
	AccountID        string             `json:"accountId"`
	SnapshotDate     string             `json:"snapshotDate,omitempty"`
	CurrentBalance   domain.SignedMoney `json:"currentBalance"`
	AvailableBalance domain.SignedMoney `json:"availableBalance"`
	SnapshotType     Type               `json:"snapshotType,omitempty"`
}

// WithBalances is a snapshot plus its converted balances.
type WithBalances struct {
	Snapshot
	conversion.Balances
}

// Service maintains the per-account, per-day snapshot ledger.
type Service struct {
	repo      Repository
	accounts  AccountLister
	timezones TimezoneProvider
	converter BalanceConverter
	notifier  Notifier
	location  *time.Location
	now       func() time.Time
}

// NewService creates a snapshot service. defaultLocation is used when a user's timezone
// cannot be determined; nil means UTC.
func NewService(repo Repository, accounts AccountLister, timezones TimezoneProvider, converter BalanceConverter, defaultLocation *time.Location) *Service {
	if defaultLocation == nil {
		defaultLocation = time.UTC
	}
	return &Service{
		repo:      repo,
		accounts:  accounts,
		timezones: timezones,
		converter: converter,
		location:  defaultLocation,
		now:       time.Now,
	}
}

// SetNotifier registers a listener for stored snapshots.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Upsert creates or replaces the snapshot for (AccountID, SnapshotDate).
// Concurrent calls for the same key converge on one row.
func (s *Service) Upsert(ctx context.Context, in UpsertInput, userID string) (Snapshot, error) {
	if in.SnapshotDate == "" {
		in.SnapshotDate = s.now().UTC().Format(domain.DateLayout)
	}
	if in.SnapshotType == "" {
		in.SnapshotType = TypeSync
	}
	if err := validate(in, userID); err != nil {
		return Snapshot{}, err
	}

	row := Snapshot{
		ID:               uuid.NewString(),
		UserID:           userID,
		AccountID:        in.AccountID,
		SnapshotDate:     in.SnapshotDate,
		CurrentBalance:   in.CurrentBalance,
		AvailableBalance: in.AvailableBalance,
		SnapshotType:     in.SnapshotType,
	}
	saved, err := s.repo.Upsert(ctx, row)
	if err != nil && database.IsUniqueViolation(err) {
		slog.Warn("snapshot upsert raced, retrying", "account_id", in.AccountID, "date", in.SnapshotDate)
		row.ID = uuid.NewString()
		saved, err = s.repo.Upsert(ctx, row)
	}
	if err != nil {
		return Snapshot{}, err
	}

	metrics.SnapshotUpserts.WithLabelValues(string(saved.SnapshotType)).Inc()
	if s.notifier != nil {
		s.notifier.NotifySnapshot(userID, saved)
	}
	return saved, nil
}

func validate(in UpsertInput, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: missing user", ErrInvalidInput)
	}
	if in.AccountID == "" {
		return fmt.Errorf("%w: missing account", ErrInvalidInput)
	}
	if _, err := domain.ParseDate(in.SnapshotDate); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !in.SnapshotType.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidInput, in.SnapshotType)
	}
	if err := in.CurrentBalance.Validate(); err != nil {
		return fmt.Errorf("%w: current balance: %v", ErrInvalidInput, err)
	}
	if err := in.AvailableBalance.Validate(); err != nil {
		return fmt.Errorf("%w: available balance: %v", ErrInvalidInput, err)
	}
	return nil
}

// FindByAccountIDAndDate returns nil when no snapshot exists.
func (s *Service) FindByAccountIDAndDate(ctx context.Context, accountID, date, userID string) (*Snapshot, error) {
	return optional(s.repo.FindByAccountIDAndDate(ctx, accountID, date, userID))
}

// FindMostRecentBeforeDate returns the nearest snapshot strictly before date, or nil.
func (s *Service) FindMostRecentBeforeDate(ctx context.Context, accountID, date, userID string) (*Snapshot, error) {
	return optional(s.repo.FindMostRecentBeforeDate(ctx, accountID, date, userID))
}

func optional(snap Snapshot, err error) (*Snapshot, error) {
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

// FindByAccountID lists an account's snapshots within rng, newest first.
func (s *Service) FindByAccountID(ctx context.Context, accountID, userID string, rng Range) ([]Snapshot, error) {
	rng, err := normalizeRange(rng)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByAccount(ctx, accountID, userID, rng)
}

// Delete removes one snapshot owned by userID.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, id, userID)
}

// FindAllWithConversion lists the user's snapshots with balances converted at each snapshot's date.
func (s *Service) FindAllWithConversion(ctx context.Context, userID string, rng Range) ([]WithBalances, error) {
	rng, err := normalizeRange(rng)
	if err != nil {
		return nil, err
	}
	snaps, err := s.repo.ListByUser(ctx, userID, rng)
	if err != nil {
		return nil, err
	}
	return s.withConversion(ctx, snaps, userID)
}

// FindByAccountIDWithConversion lists one account's snapshots with converted balances.
func (s *Service) FindByAccountIDWithConversion(ctx context.Context, accountID, userID string, rng Range) ([]WithBalances, error) {
	snaps, err := s.FindByAccountID(ctx, accountID, userID, rng)
	if err != nil {
		return nil, err
	}
	return s.withConversion(ctx, snaps, userID)
}

// FindSnapshotsForDateWithConversion lists every account's snapshot on date with converted balances.
func (s *Service) FindSnapshotsForDateWithConversion(ctx context.Context, userID, date string) ([]WithBalances, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	snaps, err := s.repo.ListByDate(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	return s.withConversion(ctx, snaps, userID)
}

func (s *Service) withConversion(ctx context.Context, snaps []Snapshot, userID string) ([]WithBalances, error) {
	inputs := lo.Map(snaps, func(snap Snapshot, _ int) conversion.Input {
		return conversion.Input{
			CurrentBalance:   snap.CurrentBalance,
			AvailableBalance: snap.AvailableBalance,
			CurrencyDate:     snap.SnapshotDate,
			AccountType:      snap.AccountType,
		}
	})

	balances, err := s.converter.AddConvertedBalances(ctx, inputs, userID)
	if err != nil {
		return nil, fmt.Errorf("converting snapshot balances: %w", err)
	}

	out := make([]WithBalances, len(snaps))
	for i := range snaps {
		out[i] = WithBalances{Snapshot: snaps[i], Balances: balances[i]}
	}
	return out, nil
}

// OnAccountChanged records a SYNC snapshot for the event's account dated today in the
// owner's timezone. Failures are logged and never returned.
func (s *Service) OnAccountChanged(ctx context.Context, ev events.Event) error {
	if _, err := s.RecordAccountBalance(ctx, ev.Account); err != nil {
		slog.Error("failed to record balance snapshot",
			"topic", ev.Topic, "account_id", ev.Account.ID, "user_id", ev.Account.UserID, "error", err)
	}
	return nil
}

// RecordAccountBalance upserts today's SYNC snapshot for acc.
func (s *Service) RecordAccountBalance(ctx context.Context, acc domain.Account) (Snapshot, error) {
	loc := s.userLocation(ctx, acc.UserID)
	return s.Upsert(ctx, UpsertInput{
		AccountID:        acc.ID,
		SnapshotDate:     domain.LocalDate(s.now(), loc),
		CurrentBalance:   acc.CurrentBalance,
		AvailableBalance: acc.AvailableBalance,
		SnapshotType:     TypeSync,
	}, acc.UserID)
}

func (s *Service) userLocation(ctx context.Context, userID string) *time.Location {
	if s.timezones == nil {
		return s.location
	}
	name, err := s.timezones.GetTimezone(ctx, userID)
	if err != nil {
		slog.Warn("failed to load user timezone, using default", "user_id", userID, "default", s.location.String(), "error", err)
		return s.location
	}
	return domain.LoadLocation(name, s.location)
}

func normalizeRange(rng Range) (Range, error) {
	for _, d := range []string{rng.From, rng.To} {
		if d == "" {
			continue
		}
		if _, err := domain.ParseDate(d); err != nil {
			return Range{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if rng.From != "" && rng.To != "" && rng.From > rng.To {
		return Range{}, fmt.Errorf("%w: range starts after it ends", ErrInvalidInput)
	}
	if rng.Limit <= 0 {
		rng.Limit = defaultListLimit
	}
	return rng, nil
}
