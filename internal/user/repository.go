// Package user stores per-user display settings (preferred currency and timezone).
package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/finsight/internal/domain"
)

// ErrNotFound indicates that the user has no stored settings.
var ErrNotFound = errors.New("user settings not found")

// Repository defines persistent storage for user settings.
type Repository interface {
	Get(ctx context.Context, userID string) (domain.UserSettings, error)
	Save(ctx context.Context, settings domain.UserSettings) (domain.UserSettings, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL settings repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Get(ctx context.Context, userID string) (domain.UserSettings, error) {
	s := domain.UserSettings{UserID: userID}
	err := r.pool.QueryRow(ctx,
		`SELECT currency, timezone FROM user_settings WHERE user_id = $1`, userID).
		Scan(&s.Currency, &s.Timezone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserSettings{}, ErrNotFound
		}
		return domain.UserSettings{}, fmt.Errorf("getting settings for user %s: %w", userID, err)
	}
	return s, nil
}

func (r *PgRepository) Save(ctx context.Context, settings domain.UserSettings) (domain.UserSettings, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_settings (user_id, currency, timezone)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id)
		 DO UPDATE SET currency = EXCLUDED.currency, timezone = EXCLUDED.timezone, updated_at = NOW()`,
		settings.UserID, settings.Currency, settings.Timezone)
	if err != nil {
		return domain.UserSettings{}, fmt.Errorf("saving settings for user %s: %w", settings.UserID, err)
	}
	return settings, nil
}
