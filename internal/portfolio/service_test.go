package portfolio

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/finsight/internal/conversion"
	"github.com/mtlprog/finsight/internal/domain"
)

type stubAccounts struct {
	accounts []domain.Account
	err      error
}

func (s *stubAccounts) ListByUser(_ context.Context, _ string) ([]domain.Account, error) {
	return s.accounts, s.err
}

// fixedRateConverter converts everything at rate, except currencies listed in missing.
type fixedRateConverter struct {
	target  string
	rate    decimal.Decimal
	missing map[string]bool
	inputs  []conversion.Input
}

func (c *fixedRateConverter) TargetCurrency(_ context.Context, _ string) string { return c.target }

func (c *fixedRateConverter) AddConvertedBalances(_ context.Context, items []conversion.Input, _ string) ([]conversion.Balances, error) {
	c.inputs = items
	out := make([]conversion.Balances, len(items))
	for i, it := range items {
		eff := conversion.EffectiveBalance(it)
		out[i].EffectiveBalance = eff
		if c.missing[eff.Currency()] {
			continue
		}
		out[i].ConvertedEffectiveBalance = &conversion.ConvertedBalance{
			Balance:  domain.SignedMoney{Money: domain.Money{Amount: eff.Money.Amount.Mul(c.rate).Round(0), Currency: c.target}, Sign: eff.Sign},
			Rate:     c.rate,
			RateDate: "2024-01-10",
		}
	}
	return out, nil
}

func TestNetWorthSumsSignedBalances(t *testing.T) {
	accounts := &stubAccounts{accounts: []domain.Account{
		{ID: "checking", Type: domain.AccountTypeDepository, CurrentBalance: domain.Positive(100000, "EUR"), AvailableBalance: domain.Positive(100000, "EUR")},
		{ID: "card", Type: domain.AccountTypeCredit, CurrentBalance: domain.Negative(25000, "EUR"), AvailableBalance: domain.Positive(75000, "EUR")},
		{ID: "broker", Type: domain.AccountTypeBrokerage, CurrentBalance: domain.Positive(5000, "EUR"), AvailableBalance: domain.Positive(1000, "EUR")},
	}}
	conv := &fixedRateConverter{target: "USD", rate: decimal.RequireFromString("1.1")}
	svc := NewService(accounts, conv)

	got, err := svc.NetWorth(context.Background(), "user-1")
	require.NoError(t, err)

	// 110000 - 27500 + 6600
	assert.Equal(t, "USD", got.Currency)
	assert.True(t, got.Total.Money.Amount.Equal(decimal.NewFromInt(89100)), got.Total.Money.Amount.String())
	assert.Equal(t, domain.SignPositive, got.Total.Sign)
	assert.Empty(t, got.Unconverted)
	require.Len(t, got.Accounts, 3)
	assert.Equal(t, "card", got.Accounts[1].Account.ID)

	for _, in := range conv.inputs {
		assert.Empty(t, in.CurrencyDate)
	}
}

func TestNetWorthNegativeTotal(t *testing.T) {
	accounts := &stubAccounts{accounts: []domain.Account{
		{ID: "loan", Type: domain.AccountTypeLoan, CurrentBalance: domain.Negative(500000, "USD")},
		{ID: "cash", Type: domain.AccountTypeDepository, CurrentBalance: domain.Positive(1000, "USD")},
	}}
	svc := NewService(accounts, &fixedRateConverter{target: "USD", rate: decimal.NewFromInt(1)})

	got, err := svc.NetWorth(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SignNegative, got.Total.Sign)
	assert.True(t, got.Total.Money.Amount.Equal(decimal.NewFromInt(499000)))
}

func TestNetWorthListsUnconvertedAccounts(t *testing.T) {
	accounts := &stubAccounts{accounts: []domain.Account{
		{ID: "cash", Type: domain.AccountTypeDepository, CurrentBalance: domain.Positive(1000, "USD")},
		{ID: "odd", Type: domain.AccountTypeOther, CurrentBalance: domain.Positive(99999, "XYZ")},
	}}
	conv := &fixedRateConverter{target: "USD", rate: decimal.NewFromInt(1), missing: map[string]bool{"XYZ": true}}
	svc := NewService(accounts, conv)

	got, err := svc.NetWorth(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"odd"}, got.Unconverted)
	assert.True(t, got.Total.Money.Amount.Equal(decimal.NewFromInt(1000)))
}

func TestNetWorthNoAccounts(t *testing.T) {
	svc := NewService(&stubAccounts{accounts: []domain.Account{}}, &fixedRateConverter{target: "EUR", rate: decimal.NewFromInt(1)})

	got, err := svc.NetWorth(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "EUR", got.Currency)
	assert.True(t, got.Total.Money.Amount.IsZero())
	assert.Equal(t, domain.SignPositive, got.Total.Sign)
	assert.Empty(t, got.Accounts)
}

func TestNetWorthListError(t *testing.T) {
	svc := NewService(&stubAccounts{err: errors.New("db down")}, &fixedRateConverter{target: "USD"})

	_, err := svc.NetWorth(context.Background(), "user-1")
	assert.Error(t, err)
}
