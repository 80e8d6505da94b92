package account

import (
	"time"
)

// Account represents a managed external account plus its local configuration.
// The encrypted secret and optional one-time-code seed are never exposed
// outside this package in decrypted form except through Service.Credentials.
type Account struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	SecretEnc        string     `json:"-"`
	TOTPSeedEnc      string     `json:"-"`
	PlanID           *int64     `json:"plan_id,omitempty"`
	MonthlyCredits   int64      `json:"monthly_credits"`
	StorageGB        float64    `json:"storage_gb"`
	CreditsRemaining int64      `json:"credits_remaining"`
	LastSync         *time.Time `json:"last_sync,omitempty"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Plan is a subscription tier. SyncInterval is free text maintained by
// operators ("30 minutes", "10 phút", "Real-time"); the scheduler parses it.
type Plan struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Slug           string  `json:"slug"`
	SyncInterval   string  `json:"sync_interval"`
	MonthlyCredits int64   `json:"monthly_credits"`
	StorageGB      float64 `json:"storage_gb"`
	MaxMembers     int     `json:"max_members"`
	Active         bool    `json:"active"`
}

// Status constants
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusRemoved  = "removed"
)

// Credentials is the decrypted credential set for one automated session.
type Credentials struct {
	Email    string
	Secret   string
	TOTPSeed string
}

// HasSecret reports whether the account can be synced at all.
func (c Credentials) HasSecret() bool {
	return c.Secret != ""
}
