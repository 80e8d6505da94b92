// Copyright 2026 The CreditFlow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/creditflow/creditflow/internal/account"
	"github.com/creditflow/creditflow/internal/extract"
	"github.com/creditflow/creditflow/internal/member"
	"github.com/creditflow/creditflow/internal/observability/logger"
)

// autoSyncPrefix tags ledger entries written by the engine so they can be
// told apart from manual adjustments.
const autoSyncPrefix = "[auto-sync]"

// totalUsageKey is the description of the account-level fallback ledger
// entry used when the page exposed no per-member breakdown.
const totalUsageKey = autoSyncPrefix + " Total usage"

// Reconciler merges one observation set into the persisted store for one
// account. Each Apply is idempotent: replaying the same observations is a
// no-op beyond timestamps.
type Reconciler struct {
	accounts account.Repository
	members  member.Repository
	credits  member.CreditLogRepository
	storage  member.StorageLogRepository
	logger   *slog.Logger
	now      func() time.Time
}

// NewReconciler builds a Reconciler over the given repositories.
func NewReconciler(
	accounts account.Repository,
	members member.Repository,
	credits member.CreditLogRepository,
	storage member.StorageLogRepository,
	log *slog.Logger,
) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		accounts: accounts,
		members:  members,
		credits:  credits,
		storage:  storage,
		logger:   log,
		now:      time.Now,
	}
}

// Apply runs the three reconciliation legs. A failing leg never blocks the
// others; the joined error reports every leg that failed.
func (r *Reconciler) Apply(
	ctx context.Context,
	acct *account.Account,
	roster []extract.RosterEntry,
	usage extract.UsageSnapshot,
	storage extract.StorageSnapshot,
) error {
	var errs []error

	if err := r.reconcileRoster(ctx, acct, roster); err != nil {
		errs = append(errs, fmt.Errorf("roster leg: %w", err))
	}
	if err := r.reconcileCredits(ctx, acct, usage); err != nil {
		errs = append(errs, fmt.Errorf("credit leg: %w", err))
	}
	if err := r.reconcileStorage(ctx, acct, storage); err != nil {
		errs = append(errs, fmt.Errorf("storage leg: %w", err))
	}

	if err := r.finalizeAccount(ctx, acct, usage); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// reconcileRoster drives persisted membership toward the observed roster:
// absent members are marked removed, new names are inserted, existing rows
// take the observed email and role in place.
func (r *Reconciler) reconcileRoster(ctx context.Context, acct *account.Account, roster []extract.RosterEntry) error {
	if len(roster) == 0 {
		// An empty roster is indistinguishable from a failed extraction;
		// never mass-remove on it.
		return nil
	}

	present, err := r.members.ListPresent(ctx, acct.ID)
	if err != nil {
		return fmt.Errorf("failed to list members: %w", err)
	}

	observed := make(map[string]extract.RosterEntry, len(roster))
	for _, entry := range roster {
		observed[entry.Name] = entry
	}

	byName := make(map[string]*member.Member, len(present))
	for _, m := range present {
		byName[m.Name] = m
		if _, ok := observed[m.Name]; ok {
			continue
		}
		if err := r.members.SetStatus(ctx, m.ID, member.StatusRemoved); err != nil {
			return fmt.Errorf("failed to mark %s removed: %w", m.Name, err)
		}
		r.logger.Info("member left the group",
			logger.AccountID(acct.ID), logger.MemberName(m.Name))
	}

	for _, entry := range roster {
		status := member.StatusActive
		if entry.Role == extract.RolePending {
			status = member.StatusPending
		}

		existing, ok := byName[entry.Name]
		if !ok {
			m := &member.Member{
				ID:        uuid.New().String(),
				AccountID: acct.ID,
				Name:      entry.Name,
				Email:     entry.Email,
				Status:    status,
			}
			if err := r.members.Create(ctx, m); err != nil {
				return fmt.Errorf("failed to insert member %s: %w", entry.Name, err)
			}
			r.logger.Info("member observed for the first time",
				logger.AccountID(acct.ID), logger.MemberName(entry.Name), logger.String("status", status))
			continue
		}

		if err := r.members.UpdateObserved(ctx, existing.ID, entry.Email, status); err != nil {
			return fmt.Errorf("failed to update member %s: %w", entry.Name, err)
		}
	}

	return nil
}

// reconcileCredits appends ledger entries only when the observed amount
// moved since the last auto-sync entry for the same key.
func (r *Reconciler) reconcileCredits(ctx context.Context, acct *account.Account, usage extract.UsageSnapshot) error {
	today := r.now().Format("2006-01-02")

	if len(usage.PerMember) == 0 {
		used := acct.MonthlyCredits - usage.RemainingCredit
		if usage.RemainingCredit <= 0 || used <= 0 {
			return nil
		}
		last, _, err := r.credits.LastAutoSyncAmount(ctx, acct.ID, nil)
		if err != nil {
			return err
		}
		if used == last {
			return nil
		}
		return r.credits.Append(ctx, &member.CreditLogEntry{
			AccountID:   acct.ID,
			Amount:      used,
			Description: totalUsageKey,
			LogDate:     today,
		})
	}

	for _, mu := range usage.PerMember {
		m, err := r.members.GetByName(ctx, acct.ID, mu.Name)
		if err != nil {
			if errors.Is(err, member.ErrMemberNotFound) {
				r.logger.Warn("usage entry matches no member",
					logger.AccountID(acct.ID), logger.MemberName(mu.Name))
				continue
			}
			return err
		}

		last, _, err := r.credits.LastAutoSyncAmount(ctx, acct.ID, &m.ID)
		if err != nil {
			return err
		}
		if mu.Amount == last {
			continue
		}

		if err := r.credits.Append(ctx, &member.CreditLogEntry{
			AccountID:   acct.ID,
			MemberID:    &m.ID,
			Amount:      mu.Amount,
			Description: fmt.Sprintf("%s %s", autoSyncPrefix, mu.Name),
			LogDate:     today,
		}); err != nil {
			return err
		}
		r.logger.Info("credit usage changed",
			logger.AccountID(acct.ID), logger.MemberName(mu.Name), logger.Amount(mu.Amount))
	}

	return nil
}

// reconcileStorage replaces today's snapshot for every member with an
// observed footprint.
func (r *Reconciler) reconcileStorage(ctx context.Context, acct *account.Account, storage extract.StorageSnapshot) error {
	today := r.now().Format("2006-01-02")

	for _, ms := range storage.PerMember {
		m, err := r.members.GetByName(ctx, acct.ID, ms.Name)
		if err != nil {
			if errors.Is(err, member.ErrMemberNotFound) {
				continue
			}
			return err
		}

		if err := r.storage.Replace(ctx, &member.StorageSnapshot{
			AccountID: acct.ID,
			MemberID:  m.ID,
			DriveGB:   storage.DriveGB,
			GmailGB:   storage.GmailGB,
			PhotosGB:  storage.PhotosGB,
			TotalGB:   ms.GB,
			LogDate:   today,
		}); err != nil {
			return fmt.Errorf("failed to replace snapshot for %s: %w", ms.Name, err)
		}
	}

	return nil
}

// finalizeAccount overwrites the authoritative remaining-credit field when
// the observation carried one, and stamps the sync time either way.
func (r *Reconciler) finalizeAccount(ctx context.Context, acct *account.Account, usage extract.UsageSnapshot) error {
	now := r.now()
	if usage.RemainingCredit > 0 {
		if err := r.accounts.SetObservedCredit(ctx, acct.ID, usage.RemainingCredit, now); err != nil {
			return fmt.Errorf("failed to record observed credit: %w", err)
		}
		return nil
	}
	if err := r.accounts.TouchSync(ctx, acct.ID, now); err != nil {
		return fmt.Errorf("failed to stamp sync time: %w", err)
	}
	return nil
}
