package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/creditflow/creditflow/internal/account"
)

// PlanRepository implements account.PlanRepository
type PlanRepository struct {
	db *DB
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// GetByID retrieves a plan by ID
func (r *PlanRepository) GetByID(ctx context.Context, id int64) (*account.Plan, error) {
	var p account.Plan
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, slug, sync_interval, monthly_credits, storage_gb, max_members, active
		FROM plans
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Slug, &p.SyncInterval, &p.MonthlyCredits,
		&p.StorageGB, &p.MaxMembers, &p.Active)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, account.ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	return &p, nil
}

// List retrieves all active plans
func (r *PlanRepository) List(ctx context.Context) ([]*account.Plan, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name, slug, sync_interval, monthly_credits, storage_gb, max_members, active
		FROM plans
		WHERE active = TRUE
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*account.Plan
	for rows.Next() {
		var p account.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.SyncInterval, &p.MonthlyCredits,
			&p.StorageGB, &p.MaxMembers, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, &p)
	}

	return plans, nil
}
