package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/finsight/internal/domain"
	"github.com/mtlprog/finsight/internal/httpclient"
)

// FrankfurterClient fetches fiat rates published by the European Central Bank via the Frankfurter API.
type FrankfurterClient struct {
	baseURL string
	http    *httpclient.Client
}

// NewFrankfurterClient creates a new Frankfurter API client.
func NewFrankfurterClient(baseURL string, maxRetries int, baseDelay time.Duration) *FrankfurterClient {
	return &FrankfurterClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpclient.New("frankfurter", maxRetries, baseDelay),
	}
}

func (c *FrankfurterClient) Name() string { return "frankfurter" }

// Supports accepts any pair of distinct fiat codes.
func (c *FrankfurterClient) Supports(base, target string) bool {
	return base != target &&
		domain.ValidCurrency(base) && domain.ValidCurrency(target) &&
		!domain.IsCrypto(base) && !domain.IsCrypto(target)
}

type frankfurterRates struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

type frankfurterSeries struct {
	Base  string                                `json:"base"`
	Rates map[string]map[string]decimal.Decimal `json:"rates"`
}

func (c *FrankfurterClient) GetRate(ctx context.Context, base, target string, date *time.Time) (Rate, error) {
	if !c.Supports(base, target) {
		return Rate{}, fmt.Errorf("frankfurter %s->%s: %w", base, target, ErrUnsupportedCurrency)
	}

	path := "latest"
	if date != nil {
		path = date.Format(domain.DateLayout)
	}
	u := fmt.Sprintf("%s/%s?from=%s&to=%s", c.baseURL, path, url.QueryEscape(base), url.QueryEscape(target))

	// Parse: {"amount":1.0,"base":"USD","date":"2024-01-10","rates":{"EUR":0.9134}}
	var resp frankfurterRates
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return Rate{}, fmt.Errorf("frankfurter %s->%s: %w", base, target, ErrNoRate)
		}
		return Rate{}, fmt.Errorf("frankfurter %s->%s: %w", base, target, err)
	}

	value, ok := resp.Rates[target]
	if !ok || !value.IsPositive() {
		return Rate{}, fmt.Errorf("frankfurter %s->%s: %w", base, target, ErrNoRate)
	}

	rateDate, err := time.Parse(domain.DateLayout, resp.Date)
	if err != nil {
		return Rate{}, fmt.Errorf("frankfurter %s->%s: parsing date %q: %w", base, target, resp.Date, err)
	}

	return Rate{Base: base, Target: target, Value: value, Date: rateDate}, nil
}

func (c *FrankfurterClient) GetHistoricalRates(ctx context.Context, base string, targets []string, start, end time.Time) (map[string]map[string]decimal.Decimal, error) {
	for _, t := range targets {
		if !c.Supports(base, t) {
			return nil, fmt.Errorf("frankfurter %s->%s: %w", base, t, ErrUnsupportedCurrency)
		}
	}

	u := fmt.Sprintf("%s/%s..%s?from=%s&to=%s", c.baseURL,
		start.Format(domain.DateLayout), end.Format(domain.DateLayout),
		url.QueryEscape(base), url.QueryEscape(strings.Join(targets, ",")))

	// Parse: {"base":"USD","start_date":"...","end_date":"...","rates":{"2024-01-02":{"EUR":0.91}}}
	var resp frankfurterSeries
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("frankfurter %s history: %w", base, err)
	}
	if resp.Rates == nil {
		return map[string]map[string]decimal.Decimal{}, nil
	}
	return resp.Rates, nil
}
