package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/finsight/internal/domain"
)

var (
	// ErrNotFound indicates that the requested snapshot was not found.
	ErrNotFound = errors.New("snapshot not found")
	// ErrConflict indicates that the (account, date) row belongs to another user.
	ErrConflict = errors.New("snapshot belongs to another user")
)

// Type records how a snapshot came to exist.
type Type string

const (
	TypeSync        Type = "SYNC"
	TypeUserUpdate  Type = "USER_UPDATE"
	TypeForwardFill Type = "FORWARD_FILL"
)

// Valid reports whether t is a known snapshot type.
func (t Type) Valid() bool {
	return t == TypeSync || t == TypeUserUpdate || t == TypeForwardFill
}

// Snapshot is one account's balances on one calendar day in the owner's timezone.
type Snapshot struct {
	ID               string             `json:"id"`
	UserID           string             `json:"userId"`
	AccountID        string             `json:"accountId"`
	SnapshotDate     string             `json:"snapshotDate"`
	CurrentBalance   domain.SignedMoney `json:"currentBalance"`
	AvailableBalance domain.SignedMoney `json:"availableBalance"`
	SnapshotType     Type               `json:"snapshotType"`
	AccountType      domain.AccountType `json:"accountType,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// Range bounds a listing by inclusive YYYY-MM-DD dates; empty bounds are open.
type Range struct {
	From  string
	To    string
	Limit int
}

// Repository defines persistent storage for snapshots, unique per (account, date).
type Repository interface {
	// Upsert inserts or replaces the row for (AccountID, SnapshotDate) atomically.
	Upsert(ctx context.Context, s Snapshot) (Snapshot, error)
	FindByAccountIDAndDate(ctx context.Context, accountID, date, userID string) (Snapshot, error)
	// FindMostRecentBeforeDate returns the latest snapshot strictly before date.
	FindMostRecentBeforeDate(ctx context.Context, accountID, date, userID string) (Snapshot, error)
	ListByAccount(ctx context.Context, accountID, userID string, r Range) ([]Snapshot, error)
	ListByUser(ctx context.Context, userID string, r Range) ([]Snapshot, error)
	ListByDate(ctx context.Context, userID, date string) ([]Snapshot, error)
	Delete(ctx context.Context, id, userID string) error
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL snapshot repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const selectColumns = `s.id::text, s.user_id, s.account_id::text, to_char(s.snapshot_date, 'YYYY-MM-DD'),
	s.current_amount, s.current_currency, s.current_sign,
	s.available_amount, s.available_currency, s.available_sign,
	s.snapshot_type, COALESCE(a.type, ''), s.created_at, s.updated_at`

const fromSnapshots = `FROM balance_snapshots s LEFT JOIN accounts a ON a.id = s.account_id`

const inRange = `s.snapshot_date >= COALESCE(NULLIF($%d, '')::date, '-infinity'::date)
	AND s.snapshot_date <= COALESCE(NULLIF($%d, '')::date, 'infinity'::date)`

func scanSnapshot(row pgx.Row) (Snapshot, error) {
	var s Snapshot
	err := row.Scan(&s.ID, &s.UserID, &s.AccountID, &s.SnapshotDate,
		&s.CurrentBalance.Money.Amount, &s.CurrentBalance.Money.Currency, &s.CurrentBalance.Sign,
		&s.AvailableBalance.Money.Amount, &s.AvailableBalance.Money.Currency, &s.AvailableBalance.Sign,
		&s.SnapshotType, &s.AccountType, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func collect(rows pgx.Rows) ([]Snapshot, error) {
	defer rows.Close()

	snapshots := []Snapshot{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snapshots, nil
}

func (r *PgRepository) Upsert(ctx context.Context, s Snapshot) (Snapshot, error) {
	row := r.pool.QueryRow(ctx,
		`WITH upserted AS (
			INSERT INTO balance_snapshots (id, user_id, account_id, snapshot_date,
				current_amount, current_currency, current_sign,
				available_amount, available_currency, available_sign, snapshot_type)
			VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (account_id, snapshot_date) DO UPDATE SET
				current_amount = EXCLUDED.current_amount,
				current_currency = EXCLUDED.current_currency,
				current_sign = EXCLUDED.current_sign,
				available_amount = EXCLUDED.available_amount,
				available_currency = EXCLUDED.available_currency,
				available_sign = EXCLUDED.available_sign,
				snapshot_type = EXCLUDED.snapshot_type,
				updated_at = NOW()
			WHERE balance_snapshots.user_id = EXCLUDED.user_id
			RETURNING *
		)
		SELECT `+selectColumns+` FROM upserted s LEFT JOIN accounts a ON a.id = s.account_id`,
		s.ID, s.UserID, s.AccountID, s.SnapshotDate,
		s.CurrentBalance.Money.Amount, s.CurrentBalance.Money.Currency, s.CurrentBalance.Sign,
		s.AvailableBalance.Money.Amount, s.AvailableBalance.Money.Currency, s.AvailableBalance.Sign,
		s.SnapshotType)

	saved, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrConflict
		}
		return Snapshot{}, fmt.Errorf("upserting snapshot for account %s on %s: %w", s.AccountID, s.SnapshotDate, err)
	}
	return saved, nil
}

func (r *PgRepository) FindByAccountIDAndDate(ctx context.Context, accountID, date, userID string) (Snapshot, error) {
	s, err := scanSnapshot(r.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` `+fromSnapshots+`
		 WHERE s.account_id = $1 AND s.snapshot_date = $2::date AND s.user_id = $3`,
		accountID, date, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("getting snapshot for account %s on %s: %w", accountID, date, err)
	}
	return s, nil
}

func (r *PgRepository) FindMostRecentBeforeDate(ctx context.Context, accountID, date, userID string) (Snapshot, error) {
	s, err := scanSnapshot(r.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` `+fromSnapshots+`
		 WHERE s.account_id = $1 AND s.snapshot_date < $2::date AND s.user_id = $3
		 ORDER BY s.snapshot_date DESC
		 LIMIT 1`,
		accountID, date, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("getting snapshot for account %s before %s: %w", accountID, date, err)
	}
	return s, nil
}

func (r *PgRepository) ListByAccount(ctx context.Context, accountID, userID string, rng Range) ([]Snapshot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+selectColumns+` `+fromSnapshots+`
		 WHERE s.account_id = $1 AND s.user_id = $2 AND `+fmt.Sprintf(inRange, 3, 4)+`
		 ORDER BY s.snapshot_date DESC
		 LIMIT $5`,
		accountID, userID, rng.From, rng.To, rng.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots for account %s: %w", accountID, err)
	}
	return collect(rows)
}

func (r *PgRepository) ListByUser(ctx context.Context, userID string, rng Range) ([]Snapshot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+selectColumns+` `+fromSnapshots+`
		 WHERE s.user_id = $1 AND `+fmt.Sprintf(inRange, 2, 3)+`
		 ORDER BY s.snapshot_date DESC, s.account_id
		 LIMIT $4`,
		userID, rng.From, rng.To, rng.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots for user: %w", err)
	}
	return collect(rows)
}

func (r *PgRepository) ListByDate(ctx context.Context, userID, date string) ([]Snapshot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+selectColumns+` `+fromSnapshots+`
		 WHERE s.user_id = $1 AND s.snapshot_date = $2::date
		 ORDER BY s.account_id`,
		userID, date)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots on %s: %w", date, err)
	}
	return collect(rows)
}

func (r *PgRepository) Delete(ctx context.Context, id, userID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM balance_snapshots WHERE id = $1::uuid AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
