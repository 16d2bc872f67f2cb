package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/mtlprog/finsight/internal/domain"
	"github.com/mtlprog/finsight/internal/metrics"
)

// Amount is a base-unit amount to convert.
type Amount struct {
	Value    decimal.Decimal
	Currency string
}

// Conversion is the result for one Amount. Amount is in base units of the target currency
// and not rounded. On fallback Amount holds the original value and Rate/RateDate are nil.
type Conversion struct {
	Amount       decimal.Decimal
	Rate         *decimal.Decimal
	RateDate     *string
	UsedFallback bool
}

// fallbackCacheTTL bounds how long a latest rate stands in for a missing historical one.
const fallbackCacheTTL = 15 * time.Minute

// Service resolves exchange rates and converts amounts between currencies.
type Service struct {
	repo      Repository
	providers []Provider
	cache     *rateCache
	inflight  singleflight.Group
	now       func() time.Time
}

// NewService creates a conversion service. Providers are consulted in order.
// repo may be nil, in which case rates are only cached in memory.
func NewService(repo Repository, cacheTTL time.Duration, providers ...Provider) *Service {
	return &Service{
		repo:      repo,
		providers: providers,
		cache:     newRateCache(cacheTTL),
		now:       time.Now,
	}
}

// ConvertMany converts items into target, preserving order and length.
// rateDate is YYYY-MM-DD for a historical rate or empty for the latest one.
// A missing rate never fails the call: the affected items come back with UsedFallback set.
// The only error returned is context cancellation or an unparsable rateDate.
func (s *Service) ConvertMany(ctx context.Context, items []Amount, target, rateDate string) ([]Conversion, error) {
	if rateDate != "" {
		if _, err := domain.ParseDate(rateDate); err != nil {
			return nil, err
		}
	}

	foreign := lo.Uniq(lo.FilterMap(items, func(a Amount, _ int) (string, bool) {
		return a.Currency, a.Currency != target
	}))

	rates := make(map[string]Rate, len(foreign))
	for _, currency := range foreign {
		r, err := s.resolve(ctx, currency, target, rateDate)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			slog.Warn("no exchange rate, amounts stay unconverted",
				"base", currency, "target", target, "date", rateDate, "error", err)
			continue
		}
		rates[currency] = r
	}

	identityDate := rateDate
	if identityDate == "" {
		identityDate = s.now().UTC().Format(domain.DateLayout)
	}

	out := make([]Conversion, len(items))
	for i, item := range items {
		if item.Currency == target {
			one := decimal.NewFromInt(1)
			d := identityDate
			out[i] = Conversion{Amount: item.Value, Rate: &one, RateDate: &d}
			metrics.Conversions.WithLabelValues(metrics.OutcomeIdentity).Inc()
			continue
		}

		r, ok := rates[item.Currency]
		if !ok {
			out[i] = Conversion{Amount: item.Value, UsedFallback: true}
			metrics.Conversions.WithLabelValues(metrics.OutcomeFallback).Inc()
			continue
		}

		value := r.Value
		d := r.Date.Format(domain.DateLayout)
		out[i] = Conversion{
			Amount:   domain.ConvertBaseUnits(item.Value, r.Value, item.Currency, target),
			Rate:     &value,
			RateDate: &d,
		}
		metrics.Conversions.WithLabelValues(metrics.OutcomeConverted).Inc()
	}

	return out, nil
}

// GetRate resolves a single pair. date is YYYY-MM-DD or empty for the latest rate.
func (s *Service) GetRate(ctx context.Context, base, target, date string) (Rate, error) {
	if base == target {
		d := date
		if d == "" {
			d = s.now().UTC().Format(domain.DateLayout)
		}
		day, err := domain.ParseDate(d)
		if err != nil {
			return Rate{}, err
		}
		return Rate{Base: base, Target: target, Value: decimal.NewFromInt(1), Date: day}, nil
	}
	return s.resolve(ctx, base, target, date)
}

// WarmLatest refreshes the latest base->target rates from providers, bypassing the cache.
func (s *Service) WarmLatest(ctx context.Context, base string, targets []string) error {
	var errs []error
	for _, target := range targets {
		if target == base {
			continue
		}
		r, err := s.fetch(ctx, base, target, nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("warming %s->%s: %w", base, target, err))
			continue
		}
		s.store(ctx, r)
		s.cache.set(cacheKey(base, target, ""), r)
	}
	return errors.Join(errs...)
}

// Backfill loads a date range of historical rates from the first provider supporting each pair
// and stores them. It returns how many rates were saved.
func (s *Service) Backfill(ctx context.Context, base string, targets []string, start, end time.Time) (int, error) {
	saved := 0
	for _, p := range s.providers {
		supported := lo.Filter(targets, func(t string, _ int) bool { return p.Supports(base, t) })
		if len(supported) == 0 {
			continue
		}
		targets = lo.Without(targets, supported...)

		series, err := p.GetHistoricalRates(ctx, base, supported, start, end)
		if err != nil {
			return saved, fmt.Errorf("backfilling %s from %s: %w", base, p.Name(), err)
		}
		for day, byTarget := range series {
			date, err := domain.ParseDate(day)
			if err != nil {
				slog.Warn("skipping rate with malformed date", "provider", p.Name(), "date", day)
				continue
			}
			for target, value := range byTarget {
				if !value.IsPositive() {
					slog.Warn("skipping non-positive rate", "provider", p.Name(), "base", base, "target", target, "date", day, "rate", value)
					continue
				}
				if err := s.saveRate(ctx, Rate{Base: base, Target: target, Value: value, Date: date}); err != nil {
					return saved, err
				}
				saved++
			}
		}
	}
	if len(targets) > 0 {
		slog.Warn("no provider supports backfill targets", "base", base, "targets", targets)
	}
	return saved, nil
}

// resolve: memory cache, stored rate for the exact date, providers, then for historical
// requests the latest rate. Concurrent lookups of one key share a single resolution.
func (s *Service) resolve(ctx context.Context, base, target, date string) (Rate, error) {
	key := cacheKey(base, target, date)
	if cached, ok := s.cache.get(key); ok {
		return cached, nil
	}

	v, err, _ := s.inflight.Do(key, func() (any, error) {
		if cached, ok := s.cache.get(key); ok {
			return cached, nil
		}
		return s.resolveUncached(ctx, key, base, target, date)
	})
	if err != nil {
		return Rate{}, err
	}
	return v.(Rate), nil
}

func (s *Service) resolveUncached(ctx context.Context, key, base, target, date string) (Rate, error) {
	var day *time.Time
	if date != "" {
		d, err := domain.ParseDate(date)
		if err != nil {
			return Rate{}, err
		}
		day = &d

		if stored, ok := s.lookupStored(ctx, base, target, day); ok {
			s.cache.set(key, stored)
			return stored, nil
		}
	}

	r, err := s.fetch(ctx, base, target, day)
	if err == nil {
		s.store(ctx, r)
		s.cache.set(key, r)
		return r, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Rate{}, ctxErr
	}
	slog.Warn("exchange rate providers failed", "base", base, "target", target, "date", date, "error", err)

	if day != nil {
		latest, err := s.resolve(ctx, base, target, "")
		if err != nil {
			return Rate{}, err
		}
		s.cache.setFor(key, latest, min(fallbackCacheTTL, s.cache.ttl))
		return latest, nil
	}

	if stored, ok := s.lookupStored(ctx, base, target, nil); ok {
		s.cache.set(key, stored)
		return stored, nil
	}

	return Rate{}, fmt.Errorf("%s->%s: %w", base, target, ErrNoRate)
}

func (s *Service) lookupStored(ctx context.Context, base, target string, day *time.Time) (Rate, bool) {
	if s.repo == nil {
		return Rate{}, false
	}
	var (
		r   Rate
		err error
	)
	if day != nil {
		r, err = s.repo.Get(ctx, base, target, *day)
	} else {
		r, err = s.repo.GetLatest(ctx, base, target)
	}
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("reading stored rate failed", "base", base, "target", target, "error", err)
		}
		return Rate{}, false
	}
	return r, true
}

// fetch asks providers in order; a provider quoting only the reverse pair is inverted.
func (s *Service) fetch(ctx context.Context, base, target string, day *time.Time) (Rate, error) {
	var errs []error
	for _, p := range s.providers {
		switch {
		case p.Supports(base, target):
			r, err := p.GetRate(ctx, base, target, day)
			if err == nil {
				return r, nil
			}
			errs = append(errs, err)
		case p.Supports(target, base):
			r, err := p.GetRate(ctx, target, base, day)
			if err == nil {
				return r.Invert(), nil
			}
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return Rate{}, fmt.Errorf("%s->%s: %w", base, target, ErrUnsupportedCurrency)
	}
	return Rate{}, errors.Join(errs...)
}

func (s *Service) store(ctx context.Context, r Rate) {
	if err := s.saveRate(ctx, r); err != nil {
		slog.Warn("failed to persist exchange rate", "base", r.Base, "target", r.Target, "error", err)
	}
}

func (s *Service) saveRate(ctx context.Context, r Rate) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.Save(ctx, r)
}
