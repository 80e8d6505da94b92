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

// Package syncer runs the synchronization passes: authenticate, extract,
// reconcile, finalize. It owns the per-account single-flight rule, the
// scheduler, and the confirmable membership mutation workflows.
package syncer

import "context"

// MutationResult is the outcome of a membership mutation workflow.
// NeedsManual marks outcomes an operator has to finish by hand; it is
// distinct from failure so a UI can show an actionable instruction.
type MutationResult struct {
	Success     bool   `json:"success"`
	NeedsManual bool   `json:"needsManual,omitempty"`
	Message     string `json:"message"`
}

// Engine is the operation surface of the sync engine. The local Service
// implements it directly; the bridge client implements it over HTTP so a
// dashboard host can drive an engine running elsewhere.
type Engine interface {
	// TriggerSync starts a sync pass for one account and returns once the
	// pass is claimed. ErrSyncInFlight when one is already running.
	TriggerSync(ctx context.Context, accountID string) error
	// TriggerSyncAll starts sync passes for every syncable account in
	// bounded-concurrency batches. Accounts already in flight are skipped.
	TriggerSyncAll(ctx context.Context) error
	// SyncStatus reports the account's current or last run state.
	SyncStatus(ctx context.Context, accountID string) (StatusRecord, error)
	// Invite sends a group invitation to email.
	Invite(ctx context.Context, accountID, email string) (MutationResult, error)
	// CancelInvitation withdraws a pending invitation for email.
	CancelInvitation(ctx context.Context, accountID, email string) (MutationResult, error)
	// RemoveMember removes the persisted member from the remote group.
	RemoveMember(ctx context.Context, accountID, memberID string) (MutationResult, error)
}
