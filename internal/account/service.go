package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/mtlprog/finsight/internal/chain"
	"github.com/mtlprog/finsight/internal/domain"
	"github.com/mtlprog/finsight/internal/events"
)

// ErrInvalidInput wraps rejected link or update requests.
var ErrInvalidInput = errors.New("invalid account")

// Publisher announces account changes.
type Publisher interface {
	PublishAccount(ctx context.Context, topic string, acc domain.Account)
}

// BalanceReader reads wallet balances in base units.
type BalanceReader interface {
	GetBaseUnits(ctx context.Context, network, address string) (domain.Money, error)
}

// LinkInput describes a new account. Wallets set Network and Address; their balances are
// read from the chain and any balances given here are ignored.
type LinkInput struct {
	Name             string             `json:"name"`
	Type             domain.AccountType `json:"type"`
	Network          string             `json:"network,omitempty"`
	Address          string             `json:"address,omitempty"`
	CurrentBalance   domain.SignedMoney `json:"currentBalance"`
	AvailableBalance domain.SignedMoney `json:"availableBalance"`
}

// SyncResult aggregates one wallet sync run.
type SyncResult struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Service links accounts, updates balances and publishes change events.
type Service struct {
	repo      Repository
	reader    BalanceReader
	publisher Publisher
}

// NewService creates an account service.
func NewService(repo Repository, reader BalanceReader, publisher Publisher) *Service {
	return &Service{repo: repo, reader: reader, publisher: publisher}
}

// ListAll returns every account in the system.
func (s *Service) ListAll(ctx context.Context) ([]domain.Account, error) {
	return s.repo.ListAll(ctx)
}

// ListByUser returns the user's accounts.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]domain.Account, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Get returns one of the user's accounts.
func (s *Service) Get(ctx context.Context, id, userID string) (domain.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Account{}, ErrNotFound
	}
	return s.repo.FindByID(ctx, id, userID)
}

// Link stores a new account and publishes linked-account.created.
func (s *Service) Link(ctx context.Context, userID string, in LinkInput) (domain.Account, error) {
	acc := domain.Account{
		ID:               uuid.NewString(),
		UserID:           userID,
		Name:             strings.TrimSpace(in.Name),
		Type:             in.Type,
		CurrentBalance:   in.CurrentBalance,
		AvailableBalance: in.AvailableBalance,
		Network:          strings.ToLower(in.Network),
		Address:          in.Address,
	}
	if acc.Name == "" {
		return domain.Account{}, fmt.Errorf("%w: missing name", ErrInvalidInput)
	}

	if acc.Network != "" || acc.Address != "" {
		if !chain.ValidateAddress(acc.Network, acc.Address) {
			return domain.Account{}, fmt.Errorf("%w: %s address %q", ErrInvalidInput, acc.Network, acc.Address)
		}
		acc.Type = domain.AccountTypeCrypto
		units, err := s.reader.GetBaseUnits(ctx, acc.Network, acc.Address)
		if err != nil {
			return domain.Account{}, fmt.Errorf("reading wallet balance: %w", err)
		}
		acc.CurrentBalance = domain.NewSignedMoney(units.Amount, units.Currency)
		acc.AvailableBalance = acc.CurrentBalance
	}
	if acc.Type == "" {
		acc.Type = domain.AccountTypeOther
	}
	if err := acc.CurrentBalance.Validate(); err != nil {
		return domain.Account{}, fmt.Errorf("%w: current balance: %v", ErrInvalidInput, err)
	}
	if err := acc.AvailableBalance.Validate(); err != nil {
		return domain.Account{}, fmt.Errorf("%w: available balance: %v", ErrInvalidInput, err)
	}

	created, err := s.repo.Create(ctx, acc)
	if err != nil {
		return domain.Account{}, err
	}
	s.publisher.PublishAccount(ctx, events.TopicAccountCreated, created)
	return created, nil
}

// UpdateBalances replaces an account's balances and publishes linked-account.updated.
func (s *Service) UpdateBalances(ctx context.Context, id, userID string, current, available domain.SignedMoney) (domain.Account, error) {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return domain.Account{}, err
	}
	if err := current.Validate(); err != nil {
		return domain.Account{}, fmt.Errorf("%w: current balance: %v", ErrInvalidInput, err)
	}
	if err := available.Validate(); err != nil {
		return domain.Account{}, fmt.Errorf("%w: available balance: %v", ErrInvalidInput, err)
	}

	updated, err := s.repo.UpdateBalances(ctx, id, current, available)
	if err != nil {
		return domain.Account{}, err
	}
	s.publisher.PublishAccount(ctx, events.TopicAccountUpdated, updated)
	return updated, nil
}

// SyncAll refreshes every crypto wallet from the chain. Accounts without a wallet address
// are skipped; a failing wallet is counted and the run continues.
func (s *Service) SyncAll(ctx context.Context) (SyncResult, error) {
	accounts, err := s.repo.ListAll(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("listing accounts for sync: %w", err)
	}

	var res SyncResult
	for _, acc := range accounts {
		if !acc.IsWallet() {
			res.Skipped++
			continue
		}
		if err := s.syncWallet(ctx, acc); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			slog.Warn("wallet sync failed", "account_id", acc.ID, "network", acc.Network, "error", err)
			continue
		}
		res.Synced++
	}

	slog.Info("account sync finished", "synced", res.Synced, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

func (s *Service) syncWallet(ctx context.Context, acc domain.Account) error {
	units, err := s.reader.GetBaseUnits(ctx, acc.Network, acc.Address)
	if err != nil {
		return err
	}
	balance := domain.NewSignedMoney(units.Amount, units.Currency)
	updated, err := s.repo.UpdateBalances(ctx, acc.ID, balance, balance)
	if err != nil {
		return err
	}
	s.publisher.PublishAccount(ctx, events.TopicAccountUpdated, updated)
	return nil
}
