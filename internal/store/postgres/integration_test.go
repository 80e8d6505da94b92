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

//go:build integration
// +build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditflow/creditflow/internal/account"
	"github.com/creditflow/creditflow/internal/member"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := New(ctx, Config{
		Host:         "localhost",
		Port:         "5432",
		User:         "creditflow",
		Password:     "creditflow_dev_password",
		Database:     "creditflow",
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 5,
	})
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to database: %v", err)
	}
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx, InitialSchema))
	return db
}

func seedAccount(t *testing.T, db *DB) *account.Account {
	t.Helper()
	a := &account.Account{
		ID:     uuid.NewString(),
		Name:   "Integration Tenant",
		Email:  uuid.NewString() + "@gmail.com",
		Status: account.StatusActive,
	}
	require.NoError(t, NewAccountRepository(db).Create(context.Background(), a))
	return a
}

// Members with the same observed name in two accounts must never leak
// across the account boundary on name lookup.
func TestMemberRepository_AccountIsolation(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	members := NewMemberRepository(db)

	acctA := seedAccount(t, db)
	acctB := seedAccount(t, db)

	mA := &member.Member{ID: uuid.NewString(), AccountID: acctA.ID, Name: "Alice", Status: member.StatusActive}
	mB := &member.Member{ID: uuid.NewString(), AccountID: acctB.ID, Name: "Alice", Status: member.StatusActive}
	require.NoError(t, members.Create(ctx, mA))
	require.NoError(t, members.Create(ctx, mB))

	got, err := members.GetByName(ctx, acctA.ID, "Alice")
	require.NoError(t, err)
	assert.Equal(t, mA.ID, got.ID)

	got, err = members.GetByName(ctx, acctB.ID, "Alice")
	require.NoError(t, err)
	assert.Equal(t, mB.ID, got.ID)
}

func TestCreditLogRepository_LastAutoSyncAmount(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	acct := seedAccount(t, db)
	m := &member.Member{ID: uuid.NewString(), AccountID: acct.ID, Name: "Alice", Status: member.StatusActive}
	require.NoError(t, NewMemberRepository(db).Create(ctx, m))

	logs := NewCreditLogRepository(db)

	_, found, err := logs.LastAutoSyncAmount(ctx, acct.ID, &m.ID)
	require.NoError(t, err)
	assert.False(t, found, "no entry before the first append")

	require.NoError(t, logs.Append(ctx, &member.CreditLogEntry{
		AccountID:   acct.ID,
		MemberID:    &m.ID,
		Amount:      500,
		Description: "[auto-sync] Alice",
		CreatedAt:   time.Now(),
	}))
	require.NoError(t, logs.Append(ctx, &member.CreditLogEntry{
		AccountID:   acct.ID,
		MemberID:    &m.ID,
		Amount:      700,
		Description: "[auto-sync] Alice",
		CreatedAt:   time.Now(),
	}))

	amount, found, err := logs.LastAutoSyncAmount(ctx, acct.ID, &m.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(700), amount, "latest entry wins")
}

func TestStorageLogRepository_ReplaceIsIdempotentPerDay(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	acct := seedAccount(t, db)
	m := &member.Member{ID: uuid.NewString(), AccountID: acct.ID, Name: "Alice", Status: member.StatusActive}
	require.NoError(t, NewMemberRepository(db).Create(ctx, m))

	logs := NewStorageLogRepository(db)
	today := time.Now().Format("2006-01-02")

	first := &member.StorageSnapshot{AccountID: acct.ID, MemberID: m.ID, TotalGB: 10, LogDate: today, CreatedAt: time.Now()}
	require.NoError(t, logs.Replace(ctx, first))

	second := &member.StorageSnapshot{AccountID: acct.ID, MemberID: m.ID, TotalGB: 13, LogDate: today, CreatedAt: time.Now()}
	require.NoError(t, logs.Replace(ctx, second))

	got, err := logs.GetByMemberAndDate(ctx, m.ID, today)
	require.NoError(t, err)
	assert.Equal(t, 13.0, got.TotalGB, "same-day replace keeps one row with the latest value")
}
