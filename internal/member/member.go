package member

import (
	"time"
)

// Member belongs to one account. Name and email are observed from the
// external roster; CreditLimit is local policy and never scraped.
type Member struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Status      string    `json:"status"`
	CreditLimit int64     `json:"credit_limit"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Status constants. Allowed transitions: pending→active, active→removed,
// pending→removed. A returning member re-enters via the insert path, never
// by flipping removed back to active.
const (
	StatusActive  = "active"
	StatusPending = "pending"
	StatusRemoved = "removed"
)

// CreditLogEntry is one row of the append-only, change-driven credit ledger.
// MemberID is nil for account-level fallback entries.
type CreditLogEntry struct {
	ID          int64     `json:"id"`
	AccountID   string    `json:"account_id"`
	MemberID    *string   `json:"member_id,omitempty"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	LogDate     string    `json:"log_date"` // YYYY-MM-DD
	CreatedAt   time.Time `json:"created_at"`
}

// StorageSnapshot is the current-day storage breakdown for one member,
// upserted (delete-then-insert) on every sync pass.
type StorageSnapshot struct {
	ID        int64     `json:"id"`
	AccountID string    `json:"account_id"`
	MemberID  string    `json:"member_id"`
	DriveGB   float64   `json:"drive_gb"`
	GmailGB   float64   `json:"gmail_gb"`
	PhotosGB  float64   `json:"photos_gb"`
	TotalGB   float64   `json:"total_gb"`
	LogDate   string    `json:"log_date"` // YYYY-MM-DD
	CreatedAt time.Time `json:"created_at"`
}
