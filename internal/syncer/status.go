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
	"errors"
	"sync"
	"time"
)

// ErrSyncInFlight is returned when a sync is requested for an account that
// already has one running. Exactly one authenticated session may run per
// account at a time.
var ErrSyncInFlight = errors.New("sync already in flight for this account")

// Sync states as reported to callers.
const (
	StatusIdle    = "idle"
	StatusSyncing = "syncing"
	StatusDone    = "done"
	StatusError   = "error"
)

// StatusRecord is the observable state of an account's last or current run.
type StatusRecord struct {
	Status   string     `json:"status"`
	Message  string     `json:"message"`
	LastSync *time.Time `json:"last_sync,omitempty"`
}

// StatusRegistry tracks per-account run state in memory and enforces the
// single-flight rule. Records survive until process restart; an account
// never queried before reports idle.
type StatusRegistry struct {
	mu       sync.RWMutex
	records  map[string]StatusRecord
	inflight map[string]struct{}
}

// NewStatusRegistry builds an empty registry.
func NewStatusRegistry() *StatusRegistry {
	return &StatusRegistry{
		records:  make(map[string]StatusRecord),
		inflight: make(map[string]struct{}),
	}
}

// Begin claims the account for a run, atomically with the in-flight check.
// It returns ErrSyncInFlight when a run already holds the claim.
func (r *StatusRegistry) Begin(accountID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, running := r.inflight[accountID]; running {
		return ErrSyncInFlight
	}
	r.inflight[accountID] = struct{}{}

	rec := r.records[accountID]
	rec.Status = StatusSyncing
	rec.Message = message
	r.records[accountID] = rec
	return nil
}

// Update replaces the progressive message of a running account.
func (r *StatusRegistry) Update(accountID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.records[accountID]
	rec.Message = message
	r.records[accountID] = rec
}

// Finish releases the claim and records the terminal state. at, when
// non-nil, becomes the last successful sync time.
func (r *StatusRegistry) Finish(accountID, status, message string, at *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.inflight, accountID)

	rec := r.records[accountID]
	rec.Status = status
	rec.Message = message
	if at != nil {
		rec.LastSync = at
	}
	r.records[accountID] = rec
}

// Get returns the account's record, defaulting to idle.
func (r *StatusRegistry) Get(accountID string) StatusRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rec, ok := r.records[accountID]; ok {
		return rec
	}
	return StatusRecord{Status: StatusIdle}
}
