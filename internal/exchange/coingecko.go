package exchange

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/finsight/internal/domain"
	"github.com/mtlprog/finsight/internal/httpclient"
)

// CoinIDs maps supported crypto symbols to CoinGecko IDs.
var CoinIDs = map[string]string{
	domain.CurrencyBTC: "bitcoin",
	domain.CurrencyETH: "ethereum",
}

// CoinGeckoClient fetches crypto prices quoted in fiat from the CoinGecko API.
type CoinGeckoClient struct {
	baseURL string
	http    *httpclient.Client
}

// NewCoinGeckoClient creates a new CoinGecko API client.
func NewCoinGeckoClient(baseURL string, delay time.Duration, maxRetries int) *CoinGeckoClient {
	if delay == 0 {
		delay = 10 * time.Second
	}
	return &CoinGeckoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpclient.New("coingecko", maxRetries, delay),
	}
}

func (c *CoinGeckoClient) Name() string { return "coingecko" }

// Supports accepts ETH or BTC as base and any fiat code as target.
func (c *CoinGeckoClient) Supports(base, target string) bool {
	_, ok := CoinIDs[base]
	return ok && domain.ValidCurrency(target) && !domain.IsCrypto(target)
}

type coinHistory struct {
	MarketData *struct {
		CurrentPrice map[string]decimal.Decimal `json:"current_price"`
	} `json:"market_data"`
}

type marketChart struct {
	Prices [][2]decimal.Decimal `json:"prices"`
}

func (c *CoinGeckoClient) GetRate(ctx context.Context, base, target string, date *time.Time) (Rate, error) {
	if !c.Supports(base, target) {
		return Rate{}, fmt.Errorf("coingecko %s->%s: %w", base, target, ErrUnsupportedCurrency)
	}
	coinID := CoinIDs[base]
	vs := strings.ToLower(target)

	if date == nil {
		u := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s", c.baseURL, coinID, url.QueryEscape(vs))

		// Parse: {"ethereum":{"usd":2500.12}}
		var raw map[string]map[string]decimal.Decimal
		if err := c.http.GetJSON(ctx, u, &raw); err != nil {
			return Rate{}, fmt.Errorf("coingecko %s->%s: %w", base, target, err)
		}
		price, ok := raw[coinID][vs]
		if !ok || !price.IsPositive() {
			return Rate{}, fmt.Errorf("coingecko %s->%s: %w", base, target, ErrNoRate)
		}
		now := time.Now().UTC()
		return Rate{
			Base:   base,
			Target: target,
			Value:  price,
			Date:   time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		}, nil
	}

	u := fmt.Sprintf("%s/coins/%s/history?date=%s&localization=false", c.baseURL, coinID, date.Format("02-01-2006"))

	// Parse: {"market_data":{"current_price":{"usd":2345.6,"eur":2100.1}}}
	var hist coinHistory
	if err := c.http.GetJSON(ctx, u, &hist); err != nil {
		return Rate{}, fmt.Errorf("coingecko %s->%s on %s: %w", base, target, date.Format(domain.DateLayout), err)
	}
	if hist.MarketData == nil {
		return Rate{}, fmt.Errorf("coingecko %s->%s on %s: %w", base, target, date.Format(domain.DateLayout), ErrNoRate)
	}
	price, ok := hist.MarketData.CurrentPrice[vs]
	if !ok || !price.IsPositive() {
		return Rate{}, fmt.Errorf("coingecko %s->%s on %s: %w", base, target, date.Format(domain.DateLayout), ErrNoRate)
	}
	return Rate{Base: base, Target: target, Value: price, Date: date.UTC()}, nil
}

// GetHistoricalRates issues one market_chart/range request per target and keeps the last price of each UTC day.
func (c *CoinGeckoClient) GetHistoricalRates(ctx context.Context, base string, targets []string, start, end time.Time) (map[string]map[string]decimal.Decimal, error) {
	result := make(map[string]map[string]decimal.Decimal)
	for _, target := range targets {
		if !c.Supports(base, target) {
			return nil, fmt.Errorf("coingecko %s->%s: %w", base, target, ErrUnsupportedCurrency)
		}
		u := fmt.Sprintf("%s/coins/%s/market_chart/range?vs_currency=%s&from=%d&to=%d",
			c.baseURL, CoinIDs[base], url.QueryEscape(strings.ToLower(target)),
			start.Unix(), end.Add(24*time.Hour-time.Second).Unix())

		// Parse: {"prices":[[1704844800000, 2345.1], ...]}
		var chart marketChart
		if err := c.http.GetJSON(ctx, u, &chart); err != nil {
			return nil, fmt.Errorf("coingecko %s->%s history: %w", base, target, err)
		}

		for _, point := range chart.Prices {
			day := time.UnixMilli(point[0].IntPart()).UTC().Format(domain.DateLayout)
			if result[day] == nil {
				result[day] = make(map[string]decimal.Decimal)
			}
			// Points are chronological; the last one of the day wins.
			result[day][target] = point[1]
		}
	}
	return result, nil
}
