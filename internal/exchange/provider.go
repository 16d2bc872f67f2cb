package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoRate indicates that no rate could be obtained for a pair and date.
	ErrNoRate = errors.New("exchange rate not available")
	// ErrUnsupportedCurrency indicates that a provider cannot quote the requested pair.
	ErrUnsupportedCurrency = errors.New("unsupported currency pair")
)

// Rate is the price of one unit of Base expressed in Target on Date.
type Rate struct {
	Base   string          `json:"base"`
	Target string          `json:"target"`
	Value  decimal.Decimal `json:"rate"`
	Date   time.Time       `json:"rateDate"`
}

// Invert returns the Target->Base rate.
func (r Rate) Invert() Rate {
	return Rate{
		Base:   r.Target,
		Target: r.Base,
		Value:  decimal.NewFromInt(1).DivRound(r.Value, 18),
		Date:   r.Date,
	}
}

// Provider is an external exchange-rate source.
type Provider interface {
	Name() string
	Supports(base, target string) bool
	// GetRate returns the latest rate when date is nil. The returned Date is the date
	// the source actually quoted, which may precede the requested one.
	GetRate(ctx context.Context, base, target string, date *time.Time) (Rate, error)
	// GetHistoricalRates returns rates keyed by YYYY-MM-DD then by target currency.
	GetHistoricalRates(ctx context.Context, base string, targets []string, start, end time.Time) (map[string]map[string]decimal.Decimal, error)
}
