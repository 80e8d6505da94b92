package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/creditflow/creditflow/internal/member"
)

// MemberRepository implements member.Repository
type MemberRepository struct {
	db *DB
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Create inserts a new member
func (r *MemberRepository) Create(ctx context.Context, m *member.Member) error {
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO members (id, account_id, name, email, status, credit_limit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.AccountID, m.Name, m.Email, m.Status, m.CreditLimit, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}

	return nil
}

// GetByID retrieves a member by ID
func (r *MemberRepository) GetByID(ctx context.Context, id string) (*member.Member, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, account_id, name, email, status, credit_limit, created_at, updated_at
		FROM members
		WHERE id = $1
	`, id)

	m, err := scanMember(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, member.ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return m, nil
}

// GetByName resolves a member by exact name first, then by substring match.
// First match wins when substring resolution is ambiguous.
func (r *MemberRepository) GetByName(ctx context.Context, accountID, name string) (*member.Member, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, account_id, name, email, status, credit_limit, created_at, updated_at
		FROM members
		WHERE account_id = $1 AND name = $2 AND status != 'removed'
		ORDER BY created_at ASC
		LIMIT 1
	`, accountID, name)

	m, err := scanMember(row)
	if err == nil {
		return m, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to get member by name: %w", err)
	}

	row = r.db.pool.QueryRow(ctx, `
		SELECT id, account_id, name, email, status, credit_limit, created_at, updated_at
		FROM members
		WHERE account_id = $1 AND name ILIKE '%' || $2 || '%' AND status != 'removed'
		ORDER BY created_at ASC
		LIMIT 1
	`, accountID, name)

	m, err = scanMember(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, member.ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member by name: %w", err)
	}

	return m, nil
}

// ListPresent returns the account's members in {active, pending}
func (r *MemberRepository) ListPresent(ctx context.Context, accountID string) ([]*member.Member, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, account_id, name, email, status, credit_limit, created_at, updated_at
		FROM members
		WHERE account_id = $1 AND status IN ('active', 'pending')
		ORDER BY created_at ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*member.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, nil
}

// UpdateObserved sets email (only when non-empty) and status from a roster observation
func (r *MemberRepository) UpdateObserved(ctx context.Context, id, email, status string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE members
		SET email = CASE WHEN $2 != '' THEN $2 ELSE email END,
			status = $3,
			updated_at = NOW()
		WHERE id = $1
	`, id, email, status)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	if result.RowsAffected() == 0 {
		return member.ErrMemberNotFound
	}

	return nil
}

// SetStatus updates only the member status
func (r *MemberRepository) SetStatus(ctx context.Context, id, status string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE members SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("failed to set member status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return member.ErrMemberNotFound
	}

	return nil
}

func scanMember(row pgx.Row) (*member.Member, error) {
	var m member.Member
	if err := row.Scan(&m.ID, &m.AccountID, &m.Name, &m.Email, &m.Status,
		&m.CreditLimit, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
