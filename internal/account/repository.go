// Package account owns linked accounts and keeps crypto wallet balances in sync.
package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/finsight/internal/database"
	"github.com/mtlprog/finsight/internal/domain"
)

var (
	// ErrNotFound indicates that the account does not exist for the user.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicate indicates that the wallet is already linked by the user.
	ErrDuplicate = errors.New("account already linked")
)

// Repository defines persistent storage for accounts.
type Repository interface {
	ListAll(ctx context.Context) ([]domain.Account, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Account, error)
	FindByID(ctx context.Context, id, userID string) (domain.Account, error)
	Create(ctx context.Context, acc domain.Account) (domain.Account, error)
	UpdateBalances(ctx context.Context, id string, current, available domain.SignedMoney) (domain.Account, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL account repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const accountColumns = `id::text, user_id, name, type,
	current_amount, current_currency, current_sign,
	available_amount, available_currency, available_sign,
	network, address, created_at, updated_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Type,
		&a.CurrentBalance.Money.Amount, &a.CurrentBalance.Money.Currency, &a.CurrentBalance.Sign,
		&a.AvailableBalance.Money.Amount, &a.AvailableBalance.Money.Currency, &a.AvailableBalance.Sign,
		&a.Network, &a.Address, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *PgRepository) list(ctx context.Context, query string, args ...any) ([]domain.Account, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accounts: %w", err)
	}
	return accounts, nil
}

func (r *PgRepository) ListAll(ctx context.Context) ([]domain.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
}

func (r *PgRepository) ListByUser(ctx context.Context, userID string) ([]domain.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY name, id`, userID)
}

func (r *PgRepository) FindByID(ctx context.Context, id, userID string) (domain.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1::uuid AND user_id = $2`, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("getting account %s: %w", id, err)
	}
	return a, nil
}

func (r *PgRepository) Create(ctx context.Context, acc domain.Account) (domain.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx,
		`INSERT INTO accounts (id, user_id, name, type,
			current_amount, current_currency, current_sign,
			available_amount, available_currency, available_sign,
			network, address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+accountColumns,
		acc.ID, acc.UserID, acc.Name, acc.Type,
		acc.CurrentBalance.Money.Amount, acc.CurrentBalance.Money.Currency, acc.CurrentBalance.Sign,
		acc.AvailableBalance.Money.Amount, acc.AvailableBalance.Money.Currency, acc.AvailableBalance.Sign,
		acc.Network, acc.Address))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.Account{}, ErrDuplicate
		}
		return domain.Account{}, fmt.Errorf("creating account: %w", err)
	}
	return a, nil
}

func (r *PgRepository) UpdateBalances(ctx context.Context, id string, current, available domain.SignedMoney) (domain.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx,
		`UPDATE accounts SET
			current_amount = $2, current_currency = $3, current_sign = $4,
			available_amount = $5, available_currency = $6, available_sign = $7,
			updated_at = NOW()
		 WHERE id = $1::uuid
		 RETURNING `+accountColumns,
		id,
		current.Money.Amount, current.Money.Currency, current.Sign,
		available.Money.Amount, available.Money.Currency, available.Sign))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("updating balances of account %s: %w", id, err)
	}
	return a, nil
}
