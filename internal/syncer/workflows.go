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
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/creditflow/creditflow/internal/account"
	"github.com/creditflow/creditflow/internal/audit"
	"github.com/creditflow/creditflow/internal/authflow"
	"github.com/creditflow/creditflow/internal/browser"
	"github.com/creditflow/creditflow/internal/member"
	"github.com/creditflow/creditflow/internal/observability/logger"
)

// confirmPoll is how often a workflow re-reads the page while waiting for a
// remote confirmation.
const confirmPoll = 500 * time.Millisecond

// Mutation controls, exact labels first so "Remove member" never matches
// inside longer furniture text.
var (
	inviteControls = []browser.Locator{
		browser.TextExact("Invite family member"),
		browser.TextExact("Mời thành viên gia đình"),
		browser.TextContains("Invite someone"),
		browser.TextContains("Mời người khác"),
	}
	inviteEmailInputs = []browser.Locator{
		browser.CSS(`input[type="email"]`),
		browser.CSS(`input[type="text"]`),
	}
	inviteSendControls = []browser.Locator{
		browser.TextExact("Send"),
		browser.TextExact("Send invitation"),
		browser.TextExact("Gửi"),
		browser.TextExact("Gửi lời mời"),
	}
	cancelControls = []browser.Locator{
		browser.TextExact("Cancel invitation"),
		browser.TextExact("Hủy lời mời"),
		browser.TextContains("Cancel invitation"),
		browser.TextContains("Hủy lời mời"),
	}
	cancelConfirmControls = []browser.Locator{
		browser.TextExact("Cancel invitation"),
		browser.TextExact("Hủy lời mời"),
		browser.TextExact("Yes"),
		browser.TextExact("Có"),
	}
	removeControls = []browser.Locator{
		browser.TextExact("Remove member"),
		browser.TextExact("Xóa thành viên"),
		browser.TextContains("Remove from family group"),
		browser.TextContains("Xóa khỏi nhóm gia đình"),
	}
	removeConfirmControls = []browser.Locator{
		browser.TextExact("Remove"),
		browser.TextExact("Xóa"),
	}
	reverifyCredentialInputs = []browser.Locator{
		browser.CSS(`input[type="password"]`),
	}
	reverifyCodeInputs = []browser.Locator{
		browser.CSS(`input[name="totpPin"]`),
		browser.CSS(`input[type="tel"]`),
	}
)

// Confirmation markers, lowercase.
var (
	inviteConfirmMarkers = []string{
		"invitation sent", "đã gửi lời mời", "lời mời đã được gửi",
	}
	cancelConfirmMarkers = []string{
		"invitation cancelled", "invitation canceled", "đã hủy lời mời",
	}
	removeConfirmMarkers = []string{
		"has been removed", "removed from your family group", "đã bị xóa khỏi", "đã xóa",
	}
	phoneVerifyMarkers = []string{
		"text message", "phone number", "số điện thoại", "tin nhắn văn bản",
	}
)

// Invite drives the invitation workflow for one account. The local pending
// row is written only after the surface confirms the invitation was sent.
func (s *Service) Invite(ctx context.Context, accountID, email string) (MutationResult, error) {
	return s.mutate(ctx, accountID, "sending invitation", func(ctx context.Context, acct *account.Account, sess browser.Session, creds account.Credentials) (MutationResult, error) {
		if err := sess.Navigate(ctx, browser.FamilyURL); err != nil {
			return MutationResult{}, fmt.Errorf("failed to open membership page: %w", err)
		}

		control, err := sess.Find(ctx, inviteControls, s.cfg.StepTimeout)
		if err != nil {
			return MutationResult{}, fmt.Errorf("invite control not found: %w", err)
		}
		if err := sess.Click(ctx, control); err != nil {
			return MutationResult{}, fmt.Errorf("failed to open invite form: %w", err)
		}

		input, err := sess.Find(ctx, inviteEmailInputs, s.cfg.StepTimeout)
		if err != nil {
			return MutationResult{}, fmt.Errorf("invite email input not found: %w", err)
		}
		if err := sess.Fill(ctx, input, email); err != nil {
			return MutationResult{}, fmt.Errorf("failed to enter email: %w", err)
		}

		if send, err := sess.Find(ctx, inviteSendControls, s.cfg.StepTimeout); err == nil {
			if err := sess.Click(ctx, send); err != nil {
				return MutationResult{}, fmt.Errorf("failed to send invitation: %w", err)
			}
		} else if err := sess.PressEnter(ctx, input); err != nil {
			return MutationResult{}, fmt.Errorf("failed to send invitation: %w", err)
		}

		if !s.awaitMarkers(ctx, sess, inviteConfirmMarkers) {
			s.audit.Log(ctx, audit.Event{Type: audit.TypeActionNotConfirmed, AccountID: acct.ID,
				Resource: email, Metadata: map[string]any{"action": "invite"}})
			return MutationResult{Message: "invitation was not confirmed by the surface"}, nil
		}

		// Local write strictly after the remote confirmation.
		if _, err := s.members.GetByName(ctx, acct.ID, email); errors.Is(err, member.ErrMemberNotFound) {
			m := &member.Member{
				ID:        uuid.New().String(),
				AccountID: acct.ID,
				Name:      email,
				Email:     email,
				Status:    member.StatusPending,
			}
			if err := s.members.Create(ctx, m); err != nil {
				return MutationResult{}, fmt.Errorf("failed to record pending member: %w", err)
			}
		} else if err != nil {
			return MutationResult{}, err
		}

		s.audit.Log(ctx, audit.Event{Type: audit.TypeMemberInvited, AccountID: acct.ID, Resource: email})
		return MutationResult{Success: true, Message: "invitation sent to " + email}, nil
	})
}

// CancelInvitation withdraws a pending invitation and marks the local
// pending row removed once the surface confirms.
func (s *Service) CancelInvitation(ctx context.Context, accountID, email string) (MutationResult, error) {
	return s.mutate(ctx, accountID, "cancelling invitation", func(ctx context.Context, acct *account.Account, sess browser.Session, creds account.Credentials) (MutationResult, error) {
		if err := sess.Navigate(ctx, browser.FamilyURL); err != nil {
			return MutationResult{}, fmt.Errorf("failed to open membership page: %w", err)
		}

		row, err := sess.Find(ctx, []browser.Locator{browser.TextContains(email)}, s.cfg.StepTimeout)
		if err != nil {
			return MutationResult{}, fmt.Errorf("no pending invitation visible for %s: %w", email, err)
		}
		if err := sess.Click(ctx, row); err != nil {
			return MutationResult{}, fmt.Errorf("failed to open invitation: %w", err)
		}

		control, err := sess.Find(ctx, cancelControls, s.cfg.StepTimeout)
		if err != nil {
			return MutationResult{}, fmt.Errorf("cancel control not found: %w", err)
		}
		if err := sess.Click(ctx, control); err != nil {
			return MutationResult{}, fmt.Errorf("failed to cancel invitation: %w", err)
		}

		// A confirmation dialog may interpose.
		if confirm, err := sess.Find(ctx, cancelConfirmControls, 3*time.Second); err == nil {
			_ = sess.Click(ctx, confirm)
		}

		if !s.awaitConfirmation(ctx, sess, cancelConfirmMarkers, email) {
			s.audit.Log(ctx, audit.Event{Type: audit.TypeActionNotConfirmed, AccountID: acct.ID,
				Resource: email, Metadata: map[string]any{"action": "cancel_invitation"}})
			return MutationResult{Message: "cancellation was not confirmed by the surface"}, nil
		}

		if m, err := s.members.GetByName(ctx, acct.ID, email); err == nil {
			if err := s.members.SetStatus(ctx, m.ID, member.StatusRemoved); err != nil {
				return MutationResult{}, fmt.Errorf("failed to record cancellation: %w", err)
			}
		} else if !errors.Is(err, member.ErrMemberNotFound) {
			return MutationResult{}, err
		}

		s.audit.Log(ctx, audit.Event{Type: audit.TypeInvitationCancelled, AccountID: acct.ID, Resource: email})
		return MutationResult{Success: true, Message: "invitation to " + email + " cancelled"}, nil
	})
}

// RemoveMember removes a member from the remote group, tolerating the
// inline re-verification the surface sometimes demands. Phone verification
// cannot be automated and yields a needs-manual result with no local write.
func (s *Service) RemoveMember(ctx context.Context, accountID, memberID string) (MutationResult, error) {
	return s.mutate(ctx, accountID, "removing member", func(ctx context.Context, acct *account.Account, sess browser.Session, creds account.Credentials) (MutationResult, error) {
		m, err := s.members.GetByID(ctx, memberID)
		if err != nil {
			return MutationResult{}, err
		}
		if m.AccountID != acct.ID {
			return MutationResult{}, member.ErrMemberNotFound
		}

		if err := sess.Navigate(ctx, browser.FamilyURL); err != nil {
			return MutationResult{}, fmt.Errorf("failed to open membership page: %w", err)
		}

		row, err := sess.Find(ctx, []browser.Locator{
			browser.TextExact(m.Name),
			browser.TextContains(m.Name),
		}, s.cfg.StepTimeout)
		if err != nil {
			return MutationResult{}, fmt.Errorf("member %s not visible on the page: %w", m.Name, err)
		}
		if err := sess.Click(ctx, row); err != nil {
			return MutationResult{}, fmt.Errorf("failed to open member detail: %w", err)
		}

		control, err := sess.Find(ctx, removeControls, s.cfg.StepTimeout)
		if err != nil {
			return MutationResult{}, fmt.Errorf("remove control not found: %w", err)
		}
		if err := sess.Click(ctx, control); err != nil {
			return MutationResult{}, fmt.Errorf("failed to trigger removal: %w", err)
		}

		if confirm, err := sess.Find(ctx, removeConfirmControls, 3*time.Second); err == nil {
			_ = sess.Click(ctx, confirm)
		}

		res, done, err := s.reverify(ctx, acct, sess, creds)
		if err != nil || done {
			return res, err
		}

		if !s.awaitConfirmation(ctx, sess, removeConfirmMarkers, m.Name) {
			s.audit.Log(ctx, audit.Event{Type: audit.TypeActionNotConfirmed, AccountID: acct.ID,
				Resource: m.Name, Metadata: map[string]any{"action": "remove_member"}})
			return MutationResult{Message: "removal was not confirmed by the surface"}, nil
		}

		if err := s.members.SetStatus(ctx, m.ID, member.StatusRemoved); err != nil {
			return MutationResult{}, fmt.Errorf("failed to record removal: %w", err)
		}

		s.audit.Log(ctx, audit.Event{Type: audit.TypeMemberRemoved, AccountID: acct.ID, Resource: m.Name})
		return MutationResult{Success: true, Message: m.Name + " removed from the group"}, nil
	})
}

// mutate wraps the shared workflow skeleton: claim the account, open an
// authenticated session, run fn, finalize the status record.
func (s *Service) mutate(
	ctx context.Context,
	accountID, statusMsg string,
	fn func(ctx context.Context, acct *account.Account, sess browser.Session, creds account.Credentials) (MutationResult, error),
) (MutationResult, error) {
	acct, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return MutationResult{}, err
	}
	if err := s.registry.Begin(acct.ID, statusMsg); err != nil {
		return MutationResult{}, err
	}

	res, err := s.runMutation(ctx, acct, statusMsg, fn)
	switch {
	case err != nil:
		s.registry.Finish(acct.ID, StatusError, err.Error(), nil)
	case res.Success:
		s.registry.Finish(acct.ID, StatusDone, res.Message, nil)
	default:
		s.registry.Finish(acct.ID, StatusError, res.Message, nil)
	}
	return res, err
}

func (s *Service) runMutation(
	ctx context.Context,
	acct *account.Account,
	statusMsg string,
	fn func(ctx context.Context, acct *account.Account, sess browser.Session, creds account.Credentials) (MutationResult, error),
) (MutationResult, error) {
	creds, err := s.accounts.Credentials(ctx, acct)
	if err != nil {
		return MutationResult{}, err
	}
	if !creds.HasSecret() {
		return MutationResult{}, errors.New("no credential stored for this account")
	}

	sess, err := s.sessions(ctx, acct.ID)
	if err != nil {
		return MutationResult{}, fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.Close(ctx)

	flow := authflow.New(sess, creds, authflow.Config{
		StepTimeout: s.cfg.StepTimeout,
		Status:      func(msg string) { s.registry.Update(acct.ID, msg) },
		Logger:      s.logger,
	})
	verified, err := flow.VerifySession(ctx)
	if err != nil {
		s.logger.Debug("session verification failed, running full sign-in",
			logger.AccountID(acct.ID), logger.Error(err))
	}
	if !verified {
		if err := flow.Authenticate(ctx); err != nil {
			var flowErr *authflow.Error
			if errors.As(err, &flowErr) && flowErr.NeedsManual() {
				s.audit.Log(ctx, audit.Event{Type: audit.TypeManualIntervention, AccountID: acct.ID,
					Metadata: map[string]any{"stage": "sign-in"}})
				return MutationResult{NeedsManual: true, Message: "sign-in requires manual verification"}, nil
			}
			return MutationResult{}, err
		}
	}

	s.registry.Update(acct.ID, statusMsg)
	return fn(ctx, acct, sess, creds)
}

// reverify handles the optional inline re-verification after a removal is
// triggered. done is true when reverify already produced the terminal
// result (the phone case).
func (s *Service) reverify(ctx context.Context, acct *account.Account, sess browser.Session, creds account.Credentials) (MutationResult, bool, error) {
	text, err := sess.PageText(ctx)
	if err != nil {
		return MutationResult{}, false, fmt.Errorf("failed to read page: %w", err)
	}

	if containsAnyMarker(text, phoneVerifyMarkers) {
		s.logger.Warn("removal blocked on phone verification", logger.AccountID(acct.ID))
		s.audit.Log(ctx, audit.Event{Type: audit.TypeManualIntervention, AccountID: acct.ID,
			Metadata: map[string]any{"stage": "remove_member"}})
		return MutationResult{
			NeedsManual: true,
			Message:     "phone verification required; finish the removal manually",
		}, true, nil
	}

	if input, err := sess.Find(ctx, reverifyCredentialInputs, 3*time.Second); err == nil {
		if err := sess.Fill(ctx, input, creds.Secret); err != nil {
			return MutationResult{}, false, fmt.Errorf("failed to re-enter credential: %w", err)
		}
		if err := sess.PressEnter(ctx, input); err != nil {
			return MutationResult{}, false, fmt.Errorf("failed to submit credential: %w", err)
		}
		return MutationResult{}, false, nil
	}

	if input, err := sess.Find(ctx, reverifyCodeInputs, 3*time.Second); err == nil {
		if creds.TOTPSeed == "" {
			s.audit.Log(ctx, audit.Event{Type: audit.TypeManualIntervention, AccountID: acct.ID,
				Metadata: map[string]any{"stage": "remove_member"}})
			return MutationResult{
				NeedsManual: true,
				Message:     "one-time code required but no seed is configured",
			}, true, nil
		}
		code, err := authflow.GenerateCode(creds.TOTPSeed, time.Now())
		if err != nil {
			return MutationResult{}, false, fmt.Errorf("failed to generate one-time code: %w", err)
		}
		if err := sess.Fill(ctx, input, code); err != nil {
			return MutationResult{}, false, fmt.Errorf("failed to enter one-time code: %w", err)
		}
		if err := sess.PressEnter(ctx, input); err != nil {
			return MutationResult{}, false, fmt.Errorf("failed to submit one-time code: %w", err)
		}
	}

	return MutationResult{}, false, nil
}

// awaitMarkers polls the page text for any of the markers until the step
// timeout elapses.
func (s *Service) awaitMarkers(ctx context.Context, sess browser.Session, markers []string) bool {
	deadline := time.Now().Add(s.cfg.StepTimeout)
	for {
		if text, err := sess.PageText(ctx); err == nil && containsAnyMarker(text, markers) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(confirmPoll):
		}
	}
}

// awaitConfirmation accepts either an explicit marker or the subject
// disappearing from the page.
func (s *Service) awaitConfirmation(ctx context.Context, sess browser.Session, markers []string, subject string) bool {
	deadline := time.Now().Add(s.cfg.StepTimeout)
	for {
		if text, err := sess.PageText(ctx); err == nil {
			if containsAnyMarker(text, markers) {
				return true
			}
			if !strings.Contains(strings.ToLower(text), strings.ToLower(subject)) {
				return true
			}
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(confirmPoll):
		}
	}
}

func containsAnyMarker(text string, markers []string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
