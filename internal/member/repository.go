package member

import (
	"context"
	"errors"
)

var ErrMemberNotFound = errors.New("member not found")

// Repository defines the interface for member storage
type Repository interface {
	Create(ctx context.Context, m *Member) error
	GetByID(ctx context.Context, id string) (*Member, error)
	// GetByName resolves a member by exact name first, then by substring
	// match, scoped to one account. First match wins on ambiguity.
	GetByName(ctx context.Context, accountID, name string) (*Member, error)
	// ListPresent returns the account's members in {active, pending}.
	ListPresent(ctx context.Context, accountID string) ([]*Member, error)
	// UpdateObserved sets email (only when non-empty) and status from a
	// fresh roster observation.
	UpdateObserved(ctx context.Context, id, email, status string) error
	SetStatus(ctx context.Context, id, status string) error
}

// CreditLogRepository defines the interface for the credit ledger
type CreditLogRepository interface {
	Append(ctx context.Context, e *CreditLogEntry) error
	// LastAutoSyncAmount returns the amount of the most recent auto-sync
	// entry for (account, member). memberID nil addresses the account-level
	// fallback key. ok is false when no entry exists yet.
	LastAutoSyncAmount(ctx context.Context, accountID string, memberID *string) (amount int64, ok bool, err error)
}

// StorageLogRepository defines the interface for storage snapshots
type StorageLogRepository interface {
	// Replace deletes any snapshot for (member, logDate) and inserts the
	// fresh one in a single transaction.
	Replace(ctx context.Context, s *StorageSnapshot) error
	GetByMemberAndDate(ctx context.Context, memberID, logDate string) (*StorageSnapshot, error)
	// PruneBefore removes snapshots with a log date strictly before cutoff.
	PruneBefore(ctx context.Context, cutoff string) (int64, error)
}
