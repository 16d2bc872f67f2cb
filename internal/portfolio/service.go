// Package portfolio aggregates a user's accounts into a net worth figure.
package portfolio

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/finsight/internal/conversion"
	"github.com/mtlprog/finsight/internal/domain"
)

// AccountLister defines the subset of the account store used by Service.
type AccountLister interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Account, error)
}

// BalanceConverter converts balances into the user's preferred currency.
type BalanceConverter interface {
	AddConvertedBalances(ctx context.Context, items []conversion.Input, userID string) ([]conversion.Balances, error)
	TargetCurrency(ctx context.Context, userID string) string
}

// AccountValue is one account with its converted balances.
type AccountValue struct {
	Account domain.Account `json:"account"`
	conversion.Balances
}

// NetWorth is the signed total of every convertible account in Currency.
type NetWorth struct {
	Currency    string             `json:"currency"`
	Total       domain.SignedMoney `json:"total"`
	Accounts    []AccountValue     `json:"accounts"`
	Unconverted []string           `json:"unconverted"`
}

// Service computes dashboard figures from current account balances.
type Service struct {
	accounts  AccountLister
	converter BalanceConverter
}

// NewService creates a new portfolio Service.
func NewService(accounts AccountLister, converter BalanceConverter) *Service {
	return &Service{accounts: accounts, converter: converter}
}

// NetWorth converts every account at the latest rates and sums the effective balances.
// Debts count negative through their sign. Accounts without a usable rate are listed in
// Unconverted and left out of the total.
func (s *Service) NetWorth(ctx context.Context, userID string) (NetWorth, error) {
	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return NetWorth{}, fmt.Errorf("listing accounts for net worth: %w", err)
	}

	target := s.converter.TargetCurrency(ctx, userID)
	inputs := lo.Map(accounts, func(a domain.Account, _ int) conversion.Input {
		return conversion.Input{
			CurrentBalance:   a.CurrentBalance,
			AvailableBalance: a.AvailableBalance,
			AccountType:      a.Type,
		}
	})

	balances, err := s.converter.AddConvertedBalances(ctx, inputs, userID)
	if err != nil {
		return NetWorth{}, fmt.Errorf("converting account balances: %w", err)
	}

	values := lo.Map(accounts, func(a domain.Account, i int) AccountValue {
		return AccountValue{Account: a, Balances: balances[i]}
	})

	unconverted := lo.FilterMap(values, func(v AccountValue, _ int) (string, bool) {
		return v.Account.ID, v.ConvertedEffectiveBalance == nil
	})

	total := lo.Reduce(values, func(sum decimal.Decimal, v AccountValue, _ int) decimal.Decimal {
		if v.ConvertedEffectiveBalance == nil {
			return sum
		}
		return sum.Add(v.ConvertedEffectiveBalance.Balance.Signed())
	}, decimal.Zero)

	return NetWorth{
		Currency:    target,
		Total:       domain.NewSignedMoney(total, target),
		Accounts:    values,
		Unconverted: unconverted,
	}, nil
}
