package account

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrPlanNotFound    = errors.New("plan not found")
)

// Repository defines the interface for account storage
type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	Update(ctx context.Context, a *Account) error
	// ListSyncable returns active accounts that have a stored secret.
	ListSyncable(ctx context.Context) ([]*Account, error)
	// SetObservedCredit overwrites the authoritative remaining-credit field
	// and stamps last_sync.
	SetObservedCredit(ctx context.Context, id string, remaining int64, at time.Time) error
	// TouchSync stamps last_sync without changing observed credit.
	TouchSync(ctx context.Context, id string, at time.Time) error
}

// PlanRepository defines the interface for plan storage
type PlanRepository interface {
	GetByID(ctx context.Context, id int64) (*Plan, error)
	List(ctx context.Context) ([]*Plan, error)
}
