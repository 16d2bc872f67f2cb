// Package export renders a user's snapshot history as spreadsheet rows.
package export

import (
	"context"
	"fmt"
	"io"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/finsight/internal/domain"
	"github.com/mtlprog/finsight/internal/snapshot"
)

// Row is one snapshot in display units. ConvertedEffective is nil when no rate was available.
type Row struct {
	Date               string
	AccountID          string
	AccountType        string
	Currency           string
	Current            decimal.Decimal
	Available          decimal.Decimal
	Effective          decimal.Decimal
	ConvertedEffective *decimal.Decimal
	TargetCurrency     string
}

// SnapshotSource lists snapshots with converted balances.
type SnapshotSource interface {
	FindAllWithConversion(ctx context.Context, userID string, rng snapshot.Range) ([]snapshot.WithBalances, error)
}

// SheetWriter writes rows to a spreadsheet destination.
type SheetWriter interface {
	Write(ctx context.Context, rows []Row) error
}

// Service builds export rows from the snapshot ledger.
type Service struct {
	snapshots SnapshotSource
}

// NewService creates a new export Service.
func NewService(snapshots SnapshotSource) *Service {
	return &Service{snapshots: snapshots}
}

// Rows returns the user's snapshots in rng, newest first.
func (s *Service) Rows(ctx context.Context, userID string, rng snapshot.Range) ([]Row, error) {
	snaps, err := s.snapshots.FindAllWithConversion(ctx, userID, rng)
	if err != nil {
		return nil, fmt.Errorf("loading snapshots for export: %w", err)
	}
	return lo.Map(snaps, func(w snapshot.WithBalances, _ int) Row { return toRow(w) }), nil
}

// WriteXLSX renders the user's snapshots as an XLSX workbook into out.
func (s *Service) WriteXLSX(ctx context.Context, out io.Writer, userID string, rng snapshot.Range) error {
	rows, err := s.Rows(ctx, userID, rng)
	if err != nil {
		return err
	}
	return WriteXLSX(out, rows)
}

// ExportTo writes the user's snapshots through w.
func (s *Service) ExportTo(ctx context.Context, w SheetWriter, userID string, rng snapshot.Range) (int, error) {
	rows, err := s.Rows(ctx, userID, rng)
	if err != nil {
		return 0, err
	}
	if err := w.Write(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func toRow(w snapshot.WithBalances) Row {
	row := Row{
		Date:        w.SnapshotDate,
		AccountID:   w.AccountID,
		AccountType: string(w.AccountType),
		Currency:    w.CurrentBalance.Currency(),
		Current:     displayValue(w.CurrentBalance),
		Available:   displayValue(w.AvailableBalance),
		Effective:   displayValue(w.EffectiveBalance),
	}
	if c := w.ConvertedEffectiveBalance; c != nil {
		v := displayValue(c.Balance)
		row.ConvertedEffective = &v
		row.TargetCurrency = c.Balance.Currency()
	}
	return row
}

// displayValue shifts signed base units into display units of the currency.
func displayValue(m domain.SignedMoney) decimal.Decimal {
	return m.Signed().Shift(-domain.CurrencyExponent(m.Currency()))
}

var header = []any{
	"Date", "Account", "Type", "Currency",
	"Current", "Available", "Effective",
	"Converted Effective", "Target Currency",
}

// buildValues lays rows out as a header plus one line per snapshot.
// Columns: Date | Account | Type | Currency | Current | Available | Effective | Converted Effective | Target Currency
func buildValues(rows []Row) [][]any {
	data := make([][]any, 0, len(rows)+1)
	data = append(data, header)

	for _, r := range rows {
		data = append(data, []any{
			r.Date, r.AccountID, r.AccountType, r.Currency,
			toFloat(r.Current), toFloat(r.Available), toFloat(r.Effective),
			ptrFloat(r.ConvertedEffective), r.TargetCurrency,
		})
	}

	return data
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func ptrFloat(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	f, _ := d.Float64()
	return f
}
