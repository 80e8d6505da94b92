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

package account

import (
	"context"
	"fmt"

	"github.com/creditflow/creditflow/internal/secrets"
)

// Service provides account access with credential decryption
type Service struct {
	repo     Repository
	planRepo PlanRepository
	cipher   *secrets.Cipher
}

// NewService creates a new account service
func NewService(repo Repository, planRepo PlanRepository, cipher *secrets.Cipher) *Service {
	return &Service{
		repo:     repo,
		planRepo: planRepo,
		cipher:   cipher,
	}
}

// GetAccount retrieves an account by ID
func (s *Service) GetAccount(ctx context.Context, id string) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}

// ListSyncable lists active accounts that have a stored secret
func (s *Service) ListSyncable(ctx context.Context) ([]*Account, error) {
	return s.repo.ListSyncable(ctx)
}

// Credentials decrypts an account's credential set. A missing or undecryptable
// secret yields Credentials with an empty Secret; the caller decides whether
// that means "skip" or "fail".
func (s *Service) Credentials(ctx context.Context, a *Account) (Credentials, error) {
	secret, err := s.cipher.Decrypt(a.SecretEnc)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to decrypt secret for account %s: %w", a.ID, err)
	}

	seed, err := s.cipher.Decrypt(a.TOTPSeedEnc)
	if err != nil {
		// A bad seed degrades to manual second-factor handling, it does not
		// block credential entry.
		seed = ""
	}

	return Credentials{
		Email:    a.Email,
		Secret:   secret,
		TOTPSeed: seed,
	}, nil
}

// PlanInterval returns the free-text sync interval of the account's plan,
// or the empty string when the account has no plan.
func (s *Service) PlanInterval(ctx context.Context, a *Account) (string, error) {
	if a.PlanID == nil {
		return "", nil
	}
	plan, err := s.planRepo.GetByID(ctx, *a.PlanID)
	if err != nil {
		return "", err
	}
	return plan.SyncInterval, nil
}
