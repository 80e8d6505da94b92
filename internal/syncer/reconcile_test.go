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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditflow/creditflow/internal/account"
	"github.com/creditflow/creditflow/internal/extract"
	"github.com/creditflow/creditflow/internal/member"
)

func testAccount() *account.Account {
	return &account.Account{
		ID:             "acct-1",
		Name:           "Test Tenant",
		Email:          "owner@gmail.com",
		SecretEnc:      "enc",
		MonthlyCredits: 10000,
		Status:         account.StatusActive,
	}
}

func newTestReconciler(store *memStore) *Reconciler {
	return NewReconciler(store, memberStore{store}, creditStore{store}, storageStore{store}, nil)
}

func seedMember(store *memStore, id, accountID, name, status string) {
	_ = memberStore{store}.Create(context.Background(), &member.Member{
		ID:        id,
		AccountID: accountID,
		Name:      name,
		Status:    status,
	})
}

func TestApplyEndToEndScenario(t *testing.T) {
	// Persisted: A active, B pending. Observed: A and C active, A used 1000
	// credits (last logged value 500). Expected: one new log row for A,
	// B removed, C inserted active.
	store := newMemStore()
	acct := testAccount()
	require.NoError(t, store.Create(context.Background(), acct))
	seedMember(store, "m-a", acct.ID, "Alice", member.StatusActive)
	seedMember(store, "m-b", acct.ID, "Bob", member.StatusPending)

	aID := "m-a"
	require.NoError(t, creditStore{store}.Append(context.Background(), &member.CreditLogEntry{
		AccountID: acct.ID, MemberID: &aID, Amount: 500, Description: "[auto-sync] Alice",
	}))

	rec := newTestReconciler(store)
	err := rec.Apply(context.Background(), acct,
		[]extract.RosterEntry{
			{Name: "Alice", Role: extract.RoleActive},
			{Name: "Carol", Role: extract.RoleActive},
		},
		extract.UsageSnapshot{
			RemainingCredit: 9000,
			PerMember:       []extract.MemberUsage{{Name: "Alice", Amount: 1000}},
		},
		extract.StorageSnapshot{},
	)
	require.NoError(t, err)

	assert.Equal(t, member.StatusActive, store.memberByName("Alice").Status)
	assert.Equal(t, member.StatusRemoved, store.memberByName("Bob").Status)

	carol := store.memberByName("Carol")
	require.NotNil(t, carol, "newly observed member must be inserted")
	assert.Equal(t, member.StatusActive, carol.Status)

	assert.Equal(t, 2, store.creditLogCount())
	last := store.lastCreditLog()
	assert.Equal(t, int64(1000), last.Amount)
	require.NotNil(t, last.MemberID)
	assert.Equal(t, "m-a", *last.MemberID)

	got, err := store.GetByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), got.CreditsRemaining)
	assert.NotNil(t, got.LastSync)
}

func TestApplyIsIdempotent(t *testing.T) {
	store := newMemStore()
	acct := testAccount()
	require.NoError(t, store.Create(context.Background(), acct))

	roster := []extract.RosterEntry{{Name: "Alice", Role: extract.RoleActive}}
	usage := extract.UsageSnapshot{
		RemainingCredit: 9000,
		PerMember:       []extract.MemberUsage{{Name: "Alice", Amount: 700}},
	}
	storage := extract.StorageSnapshot{
		DriveGB: 10, GmailGB: 1, PhotosGB: 2,
		PerMember: []extract.MemberStorage{{Name: "Alice", GB: 13}},
	}

	rec := newTestReconciler(store)
	require.NoError(t, rec.Apply(context.Background(), acct, roster, usage, storage))

	membersAfterFirst := len(store.memberOrder)
	logsAfterFirst := store.creditLogCount()
	snapsAfterFirst := len(store.storageLogs)

	require.NoError(t, rec.Apply(context.Background(), acct, roster, usage, storage))

	assert.Equal(t, membersAfterFirst, len(store.memberOrder), "no duplicate member rows")
	assert.Equal(t, logsAfterFirst, store.creditLogCount(), "unchanged usage must not log")
	assert.Equal(t, snapsAfterFirst, len(store.storageLogs), "one snapshot per member per day")
}

func TestApplyPendingBecomesActiveInPlace(t *testing.T) {
	store := newMemStore()
	acct := testAccount()
	require.NoError(t, store.Create(context.Background(), acct))
	seedMember(store, "m-b", acct.ID, "Bob", member.StatusPending)

	rec := newTestReconciler(store)
	err := rec.Apply(context.Background(), acct,
		[]extract.RosterEntry{{Name: "Bob", Role: extract.RoleActive}},
		extract.UsageSnapshot{}, extract.StorageSnapshot{})
	require.NoError(t, err)

	assert.Len(t, store.memberOrder, 1, "transition happens in place")
	bob := store.memberByName("Bob")
	assert.Equal(t, "m-b", bob.ID)
	assert.Equal(t, member.StatusActive, bob.Status)
}

func TestApplyChangeOnlyLogging(t *testing.T) {
	store := newMemStore()
	acct := testAccount()
	require.NoError(t, store.Create(context.Background(), acct))
	seedMember(store, "m-a", acct.ID, "Alice", member.StatusActive)

	aID := "m-a"
	require.NoError(t, creditStore{store}.Append(context.Background(), &member.CreditLogEntry{
		AccountID: acct.ID, MemberID: &aID, Amount: 500, Description: "[auto-sync] Alice",
	}))

	rec := newTestReconciler(store)
	roster := []extract.RosterEntry{{Name: "Alice", Role: extract.RoleActive}}

	// Same value: no new row.
	err := rec.Apply(context.Background(), acct, roster,
		extract.UsageSnapshot{RemainingCredit: 9500, PerMember: []extract.MemberUsage{{Name: "Alice", Amount: 500}}},
		extract.StorageSnapshot{})
	require.NoError(t, err)
	assert.Equal(t, 1, store.creditLogCount())

	// Changed value: exactly one new row.
	err = rec.Apply(context.Background(), acct, roster,
		extract.UsageSnapshot{RemainingCredit: 9300, PerMember: []extract.MemberUsage{{Name: "Alice", Amount: 700}}},
		extract.StorageSnapshot{})
	require.NoError(t, err)
	assert.Equal(t, 2, store.creditLogCount())
	assert.Equal(t, int64(700), store.lastCreditLog().Amount)
}

func TestApplyEmptyRosterNeverMassRemoves(t *testing.T) {
	store := newMemStore()
	acct := testAccount()
	require.NoError(t, store.Create(context.Background(), acct))
	seedMember(store, "m-a", acct.ID, "Alice", member.StatusActive)

	rec := newTestReconciler(store)
	err := rec.Apply(context.Background(), acct, nil,
		extract.UsageSnapshot{}, extract.StorageSnapshot{})
	require.NoError(t, err)

	assert.Equal(t, member.StatusActive, store.memberByName("Alice").Status)
}

func TestApplyAccountLevelFallbackUsage(t *testing.T) {
	store := newMemStore()
	acct := testAccount() // 10000 monthly
	require.NoError(t, store.Create(context.Background(), acct))

	rec := newTestReconciler(store)
	usage := extract.UsageSnapshot{RemainingCredit: 8000}

	require.NoError(t, rec.Apply(context.Background(), acct, nil, usage, extract.StorageSnapshot{}))
	require.Equal(t, 1, store.creditLogCount())

	entry := store.lastCreditLog()
	assert.Nil(t, entry.MemberID)
	assert.Equal(t, int64(2000), entry.Amount)
	assert.Contains(t, entry.Description, "[auto-sync]")

	// Unchanged on replay.
	require.NoError(t, rec.Apply(context.Background(), acct, nil, usage, extract.StorageSnapshot{}))
	assert.Equal(t, 1, store.creditLogCount())
}

func TestApplySubstringResolutionForUsage(t *testing.T) {
	// The usage page truncates long names; resolution falls back to
	// substring match.
	store := newMemStore()
	acct := testAccount()
	require.NoError(t, store.Create(context.Background(), acct))
	seedMember(store, "m-a", acct.ID, "Nguyen Van Hieu", member.StatusActive)

	rec := newTestReconciler(store)
	err := rec.Apply(context.Background(), acct,
		[]extract.RosterEntry{{Name: "Nguyen Van Hieu", Role: extract.RoleActive}},
		extract.UsageSnapshot{RemainingCredit: 9000, PerMember: []extract.MemberUsage{{Name: "Van Hieu", Amount: 300}}},
		extract.StorageSnapshot{})
	require.NoError(t, err)

	require.Equal(t, 1, store.creditLogCount())
	assert.Equal(t, "m-a", *store.lastCreditLog().MemberID)
}

func TestApplyStorageSnapshotReplacedPerDay(t *testing.T) {
	store := newMemStore()
	acct := testAccount()
	require.NoError(t, store.Create(context.Background(), acct))
	seedMember(store, "m-a", acct.ID, "Alice", member.StatusActive)

	rec := newTestReconciler(store)
	roster := []extract.RosterEntry{{Name: "Alice", Role: extract.RoleActive}}

	first := extract.StorageSnapshot{DriveGB: 10, GmailGB: 1, PhotosGB: 2,
		PerMember: []extract.MemberStorage{{Name: "Alice", GB: 13}}}
	require.NoError(t, rec.Apply(context.Background(), acct, roster, extract.UsageSnapshot{}, first))

	second := extract.StorageSnapshot{DriveGB: 12, GmailGB: 1, PhotosGB: 2,
		PerMember: []extract.MemberStorage{{Name: "Alice", GB: 15}}}
	require.NoError(t, rec.Apply(context.Background(), acct, roster, extract.UsageSnapshot{}, second))

	require.Len(t, store.storageLogs, 1)
	for _, snap := range store.storageLogs {
		assert.InDelta(t, 15, snap.TotalGB, 0.001)
		assert.InDelta(t, 12, snap.DriveGB, 0.001)
	}
}

func TestApplyLegIsolation(t *testing.T) {
	// A failing roster leg must not stop the credit leg.
	store := newMemStore()
	acct := testAccount()
	require.NoError(t, store.Create(context.Background(), acct))
	seedMember(store, "m-a", acct.ID, "Alice", member.StatusActive)
	store.listPresentErr = errors.New("store unavailable")

	rec := newTestReconciler(store)
	err := rec.Apply(context.Background(), acct,
		[]extract.RosterEntry{{Name: "Alice", Role: extract.RoleActive}},
		extract.UsageSnapshot{RemainingCredit: 9000, PerMember: []extract.MemberUsage{{Name: "Alice", Amount: 400}}},
		extract.StorageSnapshot{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "roster leg")
	assert.Equal(t, 1, store.creditLogCount(), "credit leg still ran")
}

func TestApplyNeverResurrectsRemovedMembers(t *testing.T) {
	// A name matching only a removed row re-enters through insertion,
	// not by flipping the removed row back.
	store := newMemStore()
	acct := testAccount()
	require.NoError(t, store.Create(context.Background(), acct))
	seedMember(store, "m-old", acct.ID, "Alice", member.StatusRemoved)

	rec := newTestReconciler(store)
	err := rec.Apply(context.Background(), acct,
		[]extract.RosterEntry{{Name: "Alice", Role: extract.RoleActive}},
		extract.UsageSnapshot{}, extract.StorageSnapshot{})
	require.NoError(t, err)

	old, err := memberStore{store}.GetByID(context.Background(), "m-old")
	require.NoError(t, err)
	assert.Equal(t, member.StatusRemoved, old.Status)
	assert.Len(t, store.memberOrder, 2, "returning member gets a fresh row")
}
