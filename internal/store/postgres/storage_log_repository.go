package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/creditflow/creditflow/internal/member"
)

// StorageLogRepository implements member.StorageLogRepository
type StorageLogRepository struct {
	db *DB
}

// NewStorageLogRepository creates a new storage log repository
func NewStorageLogRepository(db *DB) *StorageLogRepository {
	return &StorageLogRepository{db: db}
}

// Replace deletes any snapshot for (member, logDate) and inserts the fresh one
func (r *StorageLogRepository) Replace(ctx context.Context, s *member.StorageSnapshot) error {
	s.CreatedAt = time.Now()
	if s.LogDate == "" {
		s.LogDate = s.CreatedAt.Format("2006-01-02")
	}
	if s.TotalGB == 0 {
		s.TotalGB = s.DriveGB + s.GmailGB + s.PhotosGB
	}

	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM storage_logs WHERE member_id = $1 AND log_date = $2
	`, s.MemberID, s.LogDate); err != nil {
		return fmt.Errorf("failed to delete stale snapshot: %w", err)
	}

	if err := tx.QueryRow(ctx, `
		INSERT INTO storage_logs (account_id, member_id, drive_gb, gmail_gb, photos_gb, total_gb, log_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, s.AccountID, s.MemberID, s.DriveGB, s.GmailGB, s.PhotosGB, s.TotalGB, s.LogDate, s.CreatedAt).Scan(&s.ID); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	return nil
}

// GetByMemberAndDate retrieves the snapshot for one (member, day)
func (r *StorageLogRepository) GetByMemberAndDate(ctx context.Context, memberID, logDate string) (*member.StorageSnapshot, error) {
	var s member.StorageSnapshot
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, account_id, member_id, drive_gb, gmail_gb, photos_gb, total_gb, log_date::text, created_at
		FROM storage_logs
		WHERE member_id = $1 AND log_date = $2
	`, memberID, logDate).Scan(&s.ID, &s.AccountID, &s.MemberID, &s.DriveGB, &s.GmailGB,
		&s.PhotosGB, &s.TotalGB, &s.LogDate, &s.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, member.ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get storage snapshot: %w", err)
	}

	return &s, nil
}

// PruneBefore removes snapshots with a log date strictly before cutoff
func (r *StorageLogRepository) PruneBefore(ctx context.Context, cutoff string) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM storage_logs WHERE log_date < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune storage snapshots: %w", err)
	}

	return result.RowsAffected(), nil
}
