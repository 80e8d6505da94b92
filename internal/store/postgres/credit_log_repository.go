package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/creditflow/creditflow/internal/member"
)

// autoSyncTag marks ledger entries written by the sync engine, separating
// them from manual adjustments written by the dashboard CRUD surface.
const autoSyncTag = "[auto-sync]"

// CreditLogRepository implements member.CreditLogRepository
type CreditLogRepository struct {
	db *DB
}

// NewCreditLogRepository creates a new credit log repository
func NewCreditLogRepository(db *DB) *CreditLogRepository {
	return &CreditLogRepository{db: db}
}

// Append writes one ledger entry
func (r *CreditLogRepository) Append(ctx context.Context, e *member.CreditLogEntry) error {
	e.CreatedAt = time.Now()
	if e.LogDate == "" {
		e.LogDate = e.CreatedAt.Format("2006-01-02")
	}

	var memberID sql.NullString
	if e.MemberID != nil {
		memberID = sql.NullString{String: *e.MemberID, Valid: true}
	}

	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO credit_logs (account_id, member_id, amount, description, log_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, e.AccountID, memberID, e.Amount, e.Description, e.LogDate, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to append credit log: %w", err)
	}

	return nil
}

// LastAutoSyncAmount returns the most recent auto-sync amount for the key
func (r *CreditLogRepository) LastAutoSyncAmount(ctx context.Context, accountID string, memberID *string) (int64, bool, error) {
	var amount int64
	var err error

	if memberID != nil {
		err = r.db.pool.QueryRow(ctx, `
			SELECT amount FROM credit_logs
			WHERE account_id = $1 AND member_id = $2 AND description LIKE '%'||$3||'%'
			ORDER BY id DESC
			LIMIT 1
		`, accountID, *memberID, autoSyncTag).Scan(&amount)
	} else {
		err = r.db.pool.QueryRow(ctx, `
			SELECT amount FROM credit_logs
			WHERE account_id = $1 AND member_id IS NULL AND description LIKE '%'||$2||'%'
			ORDER BY id DESC
			LIMIT 1
		`, accountID, autoSyncTag).Scan(&amount)
	}

	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get last auto-sync amount: %w", err)
	}

	return amount, true, nil
}
