// Package conversion converts balance-bearing records into a user's preferred currency.
package conversion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/finsight/internal/domain"
	"github.com/mtlprog/finsight/internal/exchange"
)

// Converter is the batch conversion contract of exchange.Service.
type Converter interface {
	ConvertMany(ctx context.Context, items []exchange.Amount, target, rateDate string) ([]exchange.Conversion, error)
}

// SettingsFinder returns a user's settings, or nil when the user has none.
type SettingsFinder interface {
	FindOne(ctx context.Context, userID string) (*domain.UserSettings, error)
}

// Input is one balance-bearing record. CurrencyDate (YYYY-MM-DD) selects a historical
// rate; empty means latest.
type Input struct {
	CurrentBalance   domain.SignedMoney
	AvailableBalance domain.SignedMoney
	CurrencyDate     string
	AccountType      domain.AccountType
}

// ConvertedBalance is a balance expressed in the target currency with the rate used.
type ConvertedBalance struct {
	Balance  domain.SignedMoney `json:"balance"`
	Rate     decimal.Decimal    `json:"rate"`
	RateDate string             `json:"rateDate"`
}

// Balances augments an Input. Converted fields are nil when no rate was available.
type Balances struct {
	ConvertedCurrentBalance   *ConvertedBalance  `json:"convertedCurrentBalance"`
	ConvertedAvailableBalance *ConvertedBalance  `json:"convertedAvailableBalance"`
	EffectiveBalance          domain.SignedMoney `json:"effectiveBalance"`
	ConvertedEffectiveBalance *ConvertedBalance  `json:"convertedEffectiveBalance"`
}

// Helper orchestrates batched conversion of balances.
type Helper struct {
	converter Converter
	settings  SettingsFinder
}

// NewHelper creates a conversion helper.
func NewHelper(converter Converter, settings SettingsFinder) *Helper {
	return &Helper{converter: converter, settings: settings}
}

// dateGroup holds the indexes of inputs sharing one CurrencyDate.
type dateGroup struct {
	date    string
	indexes []int
}

// AddConvertedBalances returns one Balances per input, in input order. Inputs are grouped
// by CurrencyDate and each group issues exactly three ConvertMany calls (current, available,
// effective), all groups running concurrently.
func (h *Helper) AddConvertedBalances(ctx context.Context, items []Input, userID string) ([]Balances, error) {
	if len(items) == 0 {
		return []Balances{}, nil
	}

	target := h.TargetCurrency(ctx, userID)

	out := make([]Balances, len(items))
	for i, item := range items {
		out[i].EffectiveBalance = EffectiveBalance(item)
	}

	groups := groupByDate(items)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, g := range groups {
		wg.Add(1)
		go func(g dateGroup) {
			defer wg.Done()
			if err := h.convertGroup(ctx, items, out, g, target); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(g)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// TargetCurrency is the user's preferred currency, USD when unset or the user is unknown.
func (h *Helper) TargetCurrency(ctx context.Context, userID string) string {
	if h.settings == nil {
		return domain.DefaultCurrency
	}
	s, err := h.settings.FindOne(ctx, userID)
	if err != nil {
		slog.Warn("failed to load user settings, using default currency", "user_id", userID, "error", err)
		return domain.DefaultCurrency
	}
	if s == nil || s.Currency == "" {
		return domain.DefaultCurrency
	}
	return s.Currency
}

// convertGroup writes only to out[i] for i in g.indexes, so groups never touch the same slot.
func (h *Helper) convertGroup(ctx context.Context, items []Input, out []Balances, g dateGroup, target string) error {
	current := make([]exchange.Amount, len(g.indexes))
	available := make([]exchange.Amount, len(g.indexes))
	effective := make([]exchange.Amount, len(g.indexes))
	for j, idx := range g.indexes {
		current[j] = toAmount(items[idx].CurrentBalance)
		available[j] = toAmount(items[idx].AvailableBalance)
		effective[j] = toAmount(out[idx].EffectiveBalance)
	}

	type batch struct {
		results []exchange.Conversion
		err     error
	}
	currentCh := make(chan batch, 1)
	availableCh := make(chan batch, 1)
	effectiveCh := make(chan batch, 1)

	run := func(amounts []exchange.Amount, ch chan<- batch) {
		res, err := h.converter.ConvertMany(ctx, amounts, target, g.date)
		ch <- batch{results: res, err: err}
	}
	go run(current, currentCh)
	go run(available, availableCh)
	go run(effective, effectiveCh)

	cur, avail, eff := <-currentCh, <-availableCh, <-effectiveCh
	for _, b := range []batch{cur, avail, eff} {
		if b.err != nil {
			return fmt.Errorf("converting balances for %q: %w", g.date, b.err)
		}
		if len(b.results) != len(g.indexes) {
			return fmt.Errorf("converting balances for %q: got %d results for %d items", g.date, len(b.results), len(g.indexes))
		}
	}

	for j, idx := range g.indexes {
		out[idx].ConvertedCurrentBalance = BuildConvertedBalance(cur.results[j], items[idx].CurrentBalance.Sign, target)
		out[idx].ConvertedAvailableBalance = BuildConvertedBalance(avail.results[j], items[idx].AvailableBalance.Sign, target)
		out[idx].ConvertedEffectiveBalance = BuildConvertedBalance(eff.results[j], out[idx].EffectiveBalance.Sign, target)
	}
	return nil
}

// groupByDate returns groups sorted by date key, the latest-rate group ("") first.
func groupByDate(items []Input) []dateGroup {
	byDate := make(map[string][]int)
	for i, item := range items {
		byDate[item.CurrencyDate] = append(byDate[item.CurrencyDate], i)
	}

	keys := make([]string, 0, len(byDate))
	for k := range byDate {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]dateGroup, len(keys))
	for i, k := range keys {
		groups[i] = dateGroup{date: k, indexes: byDate[k]}
	}
	return groups
}

func toAmount(m domain.SignedMoney) exchange.Amount {
	return exchange.Amount{Value: m.Money.Amount, Currency: m.Money.Currency}
}

// BuildConvertedBalance maps one conversion result to a ConvertedBalance carrying sign.
// It returns nil on fallback or when the rate or its date is missing.
// The amount is rounded to the nearest base unit, halves away from zero.
func BuildConvertedBalance(c exchange.Conversion, sign domain.Sign, target string) *ConvertedBalance {
	if c.UsedFallback || c.Rate == nil || c.RateDate == nil {
		return nil
	}
	return &ConvertedBalance{
		Balance: domain.SignedMoney{
			Money: domain.Money{Amount: domain.RoundBaseUnits(c.Amount), Currency: target},
			Sign:  sign,
		},
		Rate:     *c.Rate,
		RateDate: *c.RateDate,
	}
}

// EffectiveBalance is current+available for investment-type accounts and the current
// balance otherwise. Arithmetic happens on signed values; the sign is re-derived at the end.
func EffectiveBalance(item Input) domain.SignedMoney {
	if !item.AccountType.IsInvestment() {
		return item.CurrentBalance
	}
	sum := item.CurrentBalance.Signed().Add(item.AvailableBalance.Signed())
	return domain.NewSignedMoney(sum, item.CurrentBalance.Money.Currency)
}
