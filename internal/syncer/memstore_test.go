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
	"strings"
	"sync"
	"time"

	"github.com/creditflow/creditflow/internal/account"
	"github.com/creditflow/creditflow/internal/member"
)

// memStore is an in-memory implementation of the four store interfaces,
// shared by the tests in this package.
type memStore struct {
	mu sync.Mutex

	accounts    map[string]*account.Account
	plans       map[int64]*account.Plan
	memberOrder []string
	members     map[string]*member.Member
	creditLogs  []*member.CreditLogEntry
	storageLogs map[string]*member.StorageSnapshot

	// Error injection.
	listPresentErr error
}

func newMemStore() *memStore {
	return &memStore{
		accounts:    make(map[string]*account.Account),
		plans:       make(map[int64]*account.Plan),
		members:     make(map[string]*member.Member),
		storageLogs: make(map[string]*member.StorageSnapshot),
	}
}

// account.Repository

func (s *memStore) Create(ctx context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) Update(ctx context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
	return nil
}

func (s *memStore) ListSyncable(ctx context.Context) ([]*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*account.Account
	for _, a := range s.accounts {
		if a.Status == account.StatusActive && a.SecretEnc != "" {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) SetObservedCredit(ctx context.Context, id string, remaining int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return account.ErrAccountNotFound
	}
	a.CreditsRemaining = remaining
	a.LastSync = &at
	return nil
}

func (s *memStore) TouchSync(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return account.ErrAccountNotFound
	}
	a.LastSync = &at
	return nil
}

// planStore adapts memStore to account.PlanRepository.
type planStore struct{ s *memStore }

func (p planStore) GetByID(ctx context.Context, id int64) (*account.Plan, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	plan, ok := p.s.plans[id]
	if !ok {
		return nil, account.ErrPlanNotFound
	}
	return plan, nil
}

func (p planStore) List(ctx context.Context) ([]*account.Plan, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	var out []*account.Plan
	for _, plan := range p.s.plans {
		out = append(out, plan)
	}
	return out, nil
}

// memberStore adapts memStore to the member-side interfaces.
type memberStore struct{ s *memStore }

func (m memberStore) Create(ctx context.Context, mm *member.Member) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *mm
	m.s.members[mm.ID] = &cp
	m.s.memberOrder = append(m.s.memberOrder, mm.ID)
	return nil
}

func (m memberStore) GetByID(ctx context.Context, id string) (*member.Member, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	mm, ok := m.s.members[id]
	if !ok {
		return nil, member.ErrMemberNotFound
	}
	cp := *mm
	return &cp, nil
}

func (m memberStore) GetByName(ctx context.Context, accountID, name string) (*member.Member, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, id := range m.s.memberOrder {
		mm := m.s.members[id]
		if mm.AccountID == accountID && mm.Status != member.StatusRemoved && mm.Name == name {
			cp := *mm
			return &cp, nil
		}
	}
	for _, id := range m.s.memberOrder {
		mm := m.s.members[id]
		if mm.AccountID == accountID && mm.Status != member.StatusRemoved &&
			strings.Contains(strings.ToLower(mm.Name), strings.ToLower(name)) {
			cp := *mm
			return &cp, nil
		}
	}
	return nil, member.ErrMemberNotFound
}

func (m memberStore) ListPresent(ctx context.Context, accountID string) ([]*member.Member, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.listPresentErr != nil {
		return nil, m.s.listPresentErr
	}
	var out []*member.Member
	for _, id := range m.s.memberOrder {
		mm := m.s.members[id]
		if mm.AccountID == accountID && (mm.Status == member.StatusActive || mm.Status == member.StatusPending) {
			cp := *mm
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m memberStore) UpdateObserved(ctx context.Context, id, email, status string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	mm, ok := m.s.members[id]
	if !ok {
		return member.ErrMemberNotFound
	}
	if email != "" {
		mm.Email = email
	}
	mm.Status = status
	return nil
}

func (m memberStore) SetStatus(ctx context.Context, id, status string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	mm, ok := m.s.members[id]
	if !ok {
		return member.ErrMemberNotFound
	}
	mm.Status = status
	return nil
}

// creditStore adapts memStore to member.CreditLogRepository.
type creditStore struct{ s *memStore }

func (c creditStore) Append(ctx context.Context, e *member.CreditLogEntry) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	cp := *e
	cp.ID = int64(len(c.s.creditLogs) + 1)
	c.s.creditLogs = append(c.s.creditLogs, &cp)
	return nil
}

func (c creditStore) LastAutoSyncAmount(ctx context.Context, accountID string, memberID *string) (int64, bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for i := len(c.s.creditLogs) - 1; i >= 0; i-- {
		e := c.s.creditLogs[i]
		if e.AccountID != accountID || !strings.Contains(e.Description, autoSyncPrefix) {
			continue
		}
		switch {
		case memberID == nil && e.MemberID == nil:
			return e.Amount, true, nil
		case memberID != nil && e.MemberID != nil && *memberID == *e.MemberID:
			return e.Amount, true, nil
		}
	}
	return 0, false, nil
}

// storageStore adapts memStore to member.StorageLogRepository.
type storageStore struct{ s *memStore }

func (st storageStore) Replace(ctx context.Context, snap *member.StorageSnapshot) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if snap.LogDate == "" {
		snap.LogDate = time.Now().Format("2006-01-02")
	}
	cp := *snap
	st.s.storageLogs[snap.MemberID+"|"+snap.LogDate] = &cp
	return nil
}

func (st storageStore) GetByMemberAndDate(ctx context.Context, memberID, logDate string) (*member.StorageSnapshot, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	snap, ok := st.s.storageLogs[memberID+"|"+logDate]
	if !ok {
		return nil, member.ErrMemberNotFound
	}
	cp := *snap
	return &cp, nil
}

func (st storageStore) PruneBefore(ctx context.Context, cutoff string) (int64, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var n int64
	for key, snap := range st.s.storageLogs {
		if snap.LogDate < cutoff {
			delete(st.s.storageLogs, key)
			n++
		}
	}
	return n, nil
}

// helpers

func (s *memStore) memberByName(name string) *member.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.memberOrder {
		if s.members[id].Name == name {
			cp := *s.members[id]
			return &cp
		}
	}
	return nil
}

func (s *memStore) creditLogCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.creditLogs)
}

func (s *memStore) lastCreditLog() *member.CreditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.creditLogs) == 0 {
		return nil
	}
	cp := *s.creditLogs[len(s.creditLogs)-1]
	return &cp
}
