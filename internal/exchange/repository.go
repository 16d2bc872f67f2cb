package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates that no stored rate matched.
var ErrNotFound = errors.New("stored rate not found")

// Repository defines persistent storage for exchange rates, unique per (base, target, date).
type Repository interface {
	Get(ctx context.Context, base, target string, date time.Time) (Rate, error)
	GetLatest(ctx context.Context, base, target string) (Rate, error)
	Save(ctx context.Context, rate Rate) error
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL rate repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Get(ctx context.Context, base, target string, date time.Time) (Rate, error) {
	rate := Rate{Base: base, Target: target}
	err := r.pool.QueryRow(ctx,
		`SELECT rate, rate_date FROM exchange_rates
		 WHERE base_currency = $1 AND target_currency = $2 AND rate_date = $3`,
		base, target, date).Scan(&rate.Value, &rate.Date)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rate{}, ErrNotFound
		}
		return Rate{}, fmt.Errorf("getting rate %s->%s on %s: %w", base, target, date.Format("2006-01-02"), err)
	}
	return rate, nil
}

func (r *PgRepository) GetLatest(ctx context.Context, base, target string) (Rate, error) {
	rate := Rate{Base: base, Target: target}
	err := r.pool.QueryRow(ctx,
		`SELECT rate, rate_date FROM exchange_rates
		 WHERE base_currency = $1 AND target_currency = $2
		 ORDER BY rate_date DESC
		 LIMIT 1`,
		base, target).Scan(&rate.Value, &rate.Date)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rate{}, ErrNotFound
		}
		return Rate{}, fmt.Errorf("getting latest rate %s->%s: %w", base, target, err)
	}
	return rate, nil
}

func (r *PgRepository) Save(ctx context.Context, rate Rate) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exchange_rates (base_currency, target_currency, rate, rate_date)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (base_currency, target_currency, rate_date)
		 DO UPDATE SET rate = EXCLUDED.rate, updated_at = NOW()`,
		rate.Base, rate.Target, rate.Value, rate.Date)
	if err != nil {
		return fmt.Errorf("saving rate %s->%s: %w", rate.Base, rate.Target, err)
	}
	return nil
}
