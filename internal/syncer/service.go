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
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/creditflow/creditflow/internal/account"
	"github.com/creditflow/creditflow/internal/audit"
	"github.com/creditflow/creditflow/internal/authflow"
	"github.com/creditflow/creditflow/internal/browser"
	"github.com/creditflow/creditflow/internal/extract"
	"github.com/creditflow/creditflow/internal/member"
	"github.com/creditflow/creditflow/internal/observability/logger"
)

// syncRunTimeout bounds one whole sync pass, browser time included.
const syncRunTimeout = 10 * time.Minute

// familyStorageToggles expand the collapsed per-member storage section.
var familyStorageToggles = []browser.Locator{
	browser.TextContains("Family storage"),
	browser.TextContains("Bộ nhớ cho gia đình"),
}

// Config carries the sync engine tunables.
type Config struct {
	// StepTimeout bounds each interactive browser step.
	StepTimeout time.Duration
	// BatchSize bounds how many accounts sync concurrently in a sync-all.
	BatchSize int
	// DefaultInterval is the schedule for accounts whose plan carries no
	// parsable interval.
	DefaultInterval time.Duration
}

// Service implements Engine against a local browser pool and the store.
type Service struct {
	accounts   *account.Service
	members    member.Repository
	reconciler *Reconciler
	registry   *StatusRegistry
	sessions   browser.Factory
	audit      audit.Logger
	logger     *slog.Logger
	cfg        Config

	tracer       trace.Tracer
	syncRuns     metric.Int64Counter
	syncDuration metric.Float64Histogram
}

// NewService wires a sync engine.
func NewService(
	accounts *account.Service,
	members member.Repository,
	reconciler *Reconciler,
	registry *StatusRegistry,
	sessions browser.Factory,
	auditLog audit.Logger,
	log *slog.Logger,
	cfg Config,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 30 * time.Second
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	meter := otel.Meter("creditflow/syncer")
	syncRuns, _ := meter.Int64Counter("sync.runs",
		metric.WithDescription("Completed sync runs by outcome"))
	syncDuration, _ := meter.Float64Histogram("sync.duration",
		metric.WithDescription("Sync run duration"),
		metric.WithUnit("s"))

	return &Service{
		accounts:     accounts,
		members:      members,
		reconciler:   reconciler,
		registry:     registry,
		sessions:     sessions,
		audit:        auditLog,
		logger:       log,
		cfg:          cfg,
		tracer:       otel.Tracer("creditflow/syncer"),
		syncRuns:     syncRuns,
		syncDuration: syncDuration,
	}
}

// TriggerSync claims the account and runs the pass in the background. The
// claim is taken before returning so a second trigger observes the conflict
// immediately.
func (s *Service) TriggerSync(ctx context.Context, accountID string) error {
	acct, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if err := s.registry.Begin(acct.ID, "preparing sync"); err != nil {
		return err
	}

	go func() {
		// Detached from the request context: a triggered pass outlives the
		// request that started it.
		runCtx, cancel := context.WithTimeout(context.Background(), syncRunTimeout)
		defer cancel()
		if err := s.runSync(runCtx, acct); err != nil {
			s.logger.Error("sync run failed", logger.AccountID(acct.ID), logger.Error(err))
		}
	}()

	return nil
}

// TriggerSyncAll runs every syncable account in batches of BatchSize.
// Accounts already in flight are skipped, not failed.
func (s *Service) TriggerSyncAll(ctx context.Context) error {
	accts, err := s.accounts.ListSyncable(ctx)
	if err != nil {
		return err
	}

	go s.syncBatches(context.Background(), accts)
	return nil
}

// SyncStatus reports the account's run state, falling back to the stored
// last-sync time when the process has not run this account yet.
func (s *Service) SyncStatus(ctx context.Context, accountID string) (StatusRecord, error) {
	acct, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return StatusRecord{}, err
	}

	rec := s.registry.Get(acct.ID)
	if rec.LastSync == nil && acct.LastSync != nil {
		rec.LastSync = acct.LastSync
	}
	return rec, nil
}

func (s *Service) syncBatches(ctx context.Context, accts []*account.Account) {
	for start := 0; start < len(accts); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(accts) {
			end = len(accts)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, acct := range accts[start:end] {
			g.Go(func() error {
				if err := s.registry.Begin(acct.ID, "preparing sync"); err != nil {
					s.logger.Debug("skipping account already in flight", logger.AccountID(acct.ID))
					return nil
				}
				runCtx, cancel := context.WithTimeout(gctx, syncRunTimeout)
				defer cancel()
				if err := s.runSync(runCtx, acct); err != nil {
					s.logger.Error("sync run failed", logger.AccountID(acct.ID), logger.Error(err))
				}
				return nil
			})
		}
		_ = g.Wait()
	}
}

// runSync executes one claimed pass. The registry claim must already be
// held; runSync always releases it.
func (s *Service) runSync(ctx context.Context, acct *account.Account) (err error) {
	ctx, span := s.tracer.Start(ctx, "syncer.run",
		trace.WithAttributes(attribute.String("account.id", acct.ID)))
	defer span.End()

	start := time.Now()
	outcome := "error"
	defer func() {
		attrs := metric.WithAttributes(attribute.String("outcome", outcome))
		s.syncRuns.Add(ctx, 1, attrs)
		s.syncDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}()

	creds, err := s.accounts.Credentials(ctx, acct)
	if err != nil {
		s.registry.Finish(acct.ID, StatusError, "credential decryption failed", nil)
		return err
	}
	if !creds.HasSecret() {
		// No stored credential is a configuration state, not a failure.
		outcome = "skipped"
		s.audit.Log(ctx, audit.Event{Type: audit.TypeSyncSkipped, AccountID: acct.ID})
		s.registry.Finish(acct.ID, StatusDone, "no credential stored; sync skipped", nil)
		return nil
	}

	s.audit.Log(ctx, audit.Event{Type: audit.TypeSyncStarted, AccountID: acct.ID})
	s.registry.Update(acct.ID, "starting browser session")

	sess, err := s.sessions(ctx, acct.ID)
	if err != nil {
		s.registry.Finish(acct.ID, StatusError, "browser session failed to start", nil)
		s.audit.Log(ctx, audit.Event{Type: audit.TypeSyncFailed, AccountID: acct.ID,
			Metadata: map[string]any{"error": err.Error()}})
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.Close(ctx)

	flow := authflow.New(sess, creds, authflow.Config{
		StepTimeout: s.cfg.StepTimeout,
		Status:      func(msg string) { s.registry.Update(acct.ID, msg) },
		Logger:      s.logger,
	})
	if err := flow.Authenticate(ctx); err != nil {
		reason := string(authflow.ReasonOf(err))
		s.registry.Finish(acct.ID, StatusError, "sign-in failed: "+reason, nil)
		s.audit.Log(ctx, audit.Event{Type: audit.TypeSyncFailed, AccountID: acct.ID,
			Metadata: map[string]any{"reason": reason}})
		return err
	}

	roster, usage, storage := s.collect(ctx, sess, acct)

	s.registry.Update(acct.ID, "reconciling observations")
	if err := s.reconciler.Apply(ctx, acct, roster, usage, storage); err != nil {
		s.registry.Finish(acct.ID, StatusError, "reconciliation failed", nil)
		s.audit.Log(ctx, audit.Event{Type: audit.TypeSyncFailed, AccountID: acct.ID,
			Metadata: map[string]any{"error": err.Error()}})
		return err
	}

	outcome = "done"
	now := time.Now()
	s.registry.Finish(acct.ID, StatusDone,
		fmt.Sprintf("sync complete; credits remaining: %d", usage.RemainingCredit), &now)
	s.audit.Log(ctx, audit.Event{Type: audit.TypeSyncCompleted, AccountID: acct.ID,
		Metadata: map[string]any{
			"remaining_credit": usage.RemainingCredit,
			"roster_size":      len(roster),
		}})
	return nil
}

// collect reads the three pages. A failed sub-section degrades to its zero
// value; collection itself never fails.
func (s *Service) collect(ctx context.Context, sess browser.Session, acct *account.Account) ([]extract.RosterEntry, extract.UsageSnapshot, extract.StorageSnapshot) {
	var (
		roster  []extract.RosterEntry
		usage   extract.UsageSnapshot
		storage extract.StorageSnapshot
	)

	s.registry.Update(acct.ID, "reading credit usage")
	if text, err := s.pageText(ctx, sess, browser.CreditURL, true); err != nil {
		s.logger.Warn("usage page unreadable", logger.AccountID(acct.ID), logger.Error(err))
	} else {
		usage = extract.ParseUsage(text)
	}

	s.registry.Update(acct.ID, "reading group membership")
	if text, err := s.pageText(ctx, sess, browser.FamilyURL, false); err != nil {
		s.logger.Warn("membership page unreadable", logger.AccountID(acct.ID), logger.Error(err))
	} else {
		roster = extract.ParseRoster(text, acct.Email)
		s.collectMemberEmails(ctx, sess, acct, roster)
	}

	s.registry.Update(acct.ID, "reading storage usage")
	if text, err := s.storagePageText(ctx, sess); err != nil {
		s.logger.Warn("storage page unreadable", logger.AccountID(acct.ID), logger.Error(err))
	} else {
		storage = extract.ParseStorage(text)
	}

	return roster, usage, storage
}

// collectMemberEmails opens each active member's detail view to pick up the
// address the membership list itself never shows. Best effort: a member
// whose detail view cannot be opened keeps an empty email and the stored
// value stands.
func (s *Service) collectMemberEmails(ctx context.Context, sess browser.Session, acct *account.Account, roster []extract.RosterEntry) {
	for i, entry := range roster {
		if entry.Role != extract.RoleActive {
			continue
		}

		s.registry.Update(acct.ID, "reading details for "+entry.Name)
		if err := sess.Navigate(ctx, browser.FamilyURL); err != nil {
			s.logger.Warn("membership page unreadable", logger.AccountID(acct.ID), logger.Error(err))
			return
		}

		row, err := sess.Find(ctx, []browser.Locator{
			browser.TextExact(entry.Name),
			browser.TextContains(entry.Name),
		}, s.cfg.StepTimeout)
		if err != nil {
			s.logger.Debug("member row not found on membership page",
				logger.AccountID(acct.ID), logger.MemberName(entry.Name))
			continue
		}
		if err := sess.Click(ctx, row); err != nil {
			continue
		}

		text, err := sess.PageText(ctx)
		if err != nil {
			continue
		}
		roster[i].Email = extract.MemberEmail(text, acct.Email)
	}
}

func (s *Service) pageText(ctx context.Context, sess browser.Session, url string, scroll bool) (string, error) {
	if err := sess.Navigate(ctx, url); err != nil {
		return "", err
	}
	if scroll {
		_ = sess.ScrollBottom(ctx)
	}
	return sess.PageText(ctx)
}

// storagePageText additionally expands the collapsed family section before
// reading; the toggle is optional and its absence is not an error.
func (s *Service) storagePageText(ctx context.Context, sess browser.Session) (string, error) {
	if err := sess.Navigate(ctx, browser.StorageURL); err != nil {
		return "", err
	}
	_ = sess.ScrollBottom(ctx)
	if toggle, err := sess.Find(ctx, familyStorageToggles, 3*time.Second); err == nil {
		_ = sess.Click(ctx, toggle)
	}
	return sess.PageText(ctx)
}
