package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/creditflow/creditflow/internal/account"
)

// AccountRepository implements account.Repository
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account
func (r *AccountRepository) Create(ctx context.Context, a *account.Account) error {
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	var planID sql.NullInt64
	if a.PlanID != nil {
		planID = sql.NullInt64{Int64: *a.PlanID, Valid: true}
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO accounts (id, name, email, secret_enc, totp_seed_enc, plan_id,
			monthly_credits, storage_gb, credits_remaining, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, a.ID, a.Name, a.Email, a.SecretEnc, a.TOTPSeedEnc, planID,
		a.MonthlyCredits, a.StorageGB, a.CreditsRemaining, a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, name, email, secret_enc, totp_seed_enc, plan_id,
			monthly_credits, storage_gb, credits_remaining, last_sync, status,
			created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, id)

	a, err := scanAccount(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, account.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return a, nil
}

// Update updates the mutable account fields
func (r *AccountRepository) Update(ctx context.Context, a *account.Account) error {
	a.UpdatedAt = time.Now()

	var planID sql.NullInt64
	if a.PlanID != nil {
		planID = sql.NullInt64{Int64: *a.PlanID, Valid: true}
	}

	result, err := r.db.pool.Exec(ctx, `
		UPDATE accounts
		SET name = $2, email = $3, secret_enc = $4, totp_seed_enc = $5, plan_id = $6,
			monthly_credits = $7, storage_gb = $8, status = $9, updated_at = $10
		WHERE id = $1
	`, a.ID, a.Name, a.Email, a.SecretEnc, a.TOTPSeedEnc, planID,
		a.MonthlyCredits, a.StorageGB, a.Status, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return account.ErrAccountNotFound
	}

	return nil
}

// ListSyncable returns active accounts that have a stored secret
func (r *AccountRepository) ListSyncable(ctx context.Context) ([]*account.Account, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name, email, secret_enc, totp_seed_enc, plan_id,
			monthly_credits, storage_gb, credits_remaining, last_sync, status,
			created_at, updated_at
		FROM accounts
		WHERE status = 'active' AND secret_enc != ''
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list syncable accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}

	return accounts, nil
}

// SetObservedCredit overwrites the authoritative remaining-credit field
func (r *AccountRepository) SetObservedCredit(ctx context.Context, id string, remaining int64, at time.Time) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE accounts
		SET credits_remaining = $2, last_sync = $3, updated_at = NOW()
		WHERE id = $1
	`, id, remaining, at)
	if err != nil {
		return fmt.Errorf("failed to set observed credit: %w", err)
	}
	if result.RowsAffected() == 0 {
		return account.ErrAccountNotFound
	}

	return nil
}

// TouchSync stamps last_sync without changing observed credit
func (r *AccountRepository) TouchSync(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE accounts SET last_sync = $2, updated_at = NOW() WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("failed to stamp last_sync: %w", err)
	}
	if result.RowsAffected() == 0 {
		return account.ErrAccountNotFound
	}

	return nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var a account.Account
	var planID sql.NullInt64
	var lastSync sql.NullTime

	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.SecretEnc, &a.TOTPSeedEnc, &planID,
		&a.MonthlyCredits, &a.StorageGB, &a.CreditsRemaining, &lastSync, &a.Status,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}

	if planID.Valid {
		a.PlanID = &planID.Int64
	}
	if lastSync.Valid {
		t := lastSync.Time
		a.LastSync = &t
	}

	return &a, nil
}
