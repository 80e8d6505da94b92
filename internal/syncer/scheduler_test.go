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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu       sync.Mutex
	triggers map[string]int
	err      error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{triggers: make(map[string]int)}
}

func (f *fakeEngine) TriggerSync(ctx context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers[accountID]++
	return f.err
}

func (f *fakeEngine) TriggerSyncAll(ctx context.Context) error { return nil }

func (f *fakeEngine) SyncStatus(ctx context.Context, accountID string) (StatusRecord, error) {
	return StatusRecord{Status: StatusIdle}, nil
}

func (f *fakeEngine) Invite(ctx context.Context, accountID, email string) (MutationResult, error) {
	return MutationResult{}, nil
}

func (f *fakeEngine) CancelInvitation(ctx context.Context, accountID, email string) (MutationResult, error) {
	return MutationResult{}, nil
}

func (f *fakeEngine) RemoveMember(ctx context.Context, accountID, memberID string) (MutationResult, error) {
	return MutationResult{}, nil
}

func (f *fakeEngine) count(accountID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.triggers[accountID]
}

func TestParseInterval(t *testing.T) {
	def := 30 * time.Minute
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"30 phút", 30 * time.Minute},
		{"45 minutes", 45 * time.Minute},
		{"10", 10 * time.Minute},
		{"Real-time", realtimeInterval},
		{"realtime", realtimeInterval},
		{"Thời gian thực", realtimeInterval},
		{"", def},
		{"whenever", def},
		{"0 phút", def},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseInterval(tc.in, def), "input %q", tc.in)
	}
}

func TestSchedulerApplyConvergesToDesiredSet(t *testing.T) {
	engine := newFakeEngine()
	s := NewScheduler(engine, nil, time.Minute, 30*time.Minute, nil)
	ctx := context.Background()

	s.apply(ctx, map[string]time.Duration{
		"a": time.Hour,
		"b": 30 * time.Minute,
	})
	assert.Equal(t, map[string]time.Duration{"a": time.Hour, "b": 30 * time.Minute}, s.snapshot())

	// Interval change restarts the timer; departure cancels it.
	s.apply(ctx, map[string]time.Duration{"a": 10 * time.Minute})
	assert.Equal(t, map[string]time.Duration{"a": 10 * time.Minute}, s.snapshot())

	// Unchanged desired state is a no-op.
	s.apply(ctx, map[string]time.Duration{"a": 10 * time.Minute})
	assert.Equal(t, map[string]time.Duration{"a": 10 * time.Minute}, s.snapshot())

	s.stopAll()
	assert.Empty(t, s.snapshot())
}

func TestSchedulerTriggersAtInterval(t *testing.T) {
	engine := newFakeEngine()
	s := NewScheduler(engine, nil, time.Minute, 30*time.Minute, nil)

	s.apply(context.Background(), map[string]time.Duration{"a": 20 * time.Millisecond})
	defer s.stopAll()

	require.Eventually(t, func() bool {
		return engine.count("a") >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestSchedulerToleratesInFlightConflicts(t *testing.T) {
	engine := newFakeEngine()
	engine.err = ErrSyncInFlight
	s := NewScheduler(engine, nil, time.Minute, 30*time.Minute, nil)

	s.apply(context.Background(), map[string]time.Duration{"a": 10 * time.Millisecond})
	defer s.stopAll()

	// The timer keeps ticking despite every trigger colliding.
	require.Eventually(t, func() bool {
		return engine.count("a") >= 3
	}, time.Second, 5*time.Millisecond)
}
