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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditflow/creditflow/internal/browser"
	"github.com/creditflow/creditflow/internal/browser/browsertest"
	"github.com/creditflow/creditflow/internal/member"
)

const inviteEmail = "friend@gmail.com"

// workflowSession is signed in for owner@gmail.com and serves a scripted
// membership page.
func workflowSession(familyText string) *browsertest.Fake {
	fake := browsertest.New(browsertest.Page{})
	fake.OnNavigate = func(page *browsertest.Page, url string) {
		switch {
		case strings.Contains(url, "family/details"):
			page.Text = familyText
		case strings.Contains(url, "one.google.com"):
			page.Text = syncCreditText
		}
	}
	return fake
}

func TestInviteHappyPath(t *testing.T) {
	fake := workflowSession("Family group\nowner@gmail.com\nInvite family member\n")

	emailInput := browser.CSS(`input[type="email"]`)
	fake.OnClick = func(page *browsertest.Page, loc browser.Locator) {
		switch loc {
		case browser.TextExact("Invite family member"):
			page.Text = "Invite someone to your family group\nSend\n"
			page.Elements = []browser.Locator{emailInput}
		case browser.TextExact("Send"):
			page.Text = "Invitation sent\nAn invitation was sent to " + inviteEmail
		}
	}

	rig := newTestRig(t, fake)
	acct := rig.seedAccount(t, "hunter2", "")

	res, err := rig.service.Invite(context.Background(), acct.ID, inviteEmail)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.NeedsManual)

	pending := rig.store.memberByName(inviteEmail)
	require.NotNil(t, pending, "confirmed invitation must create a pending row")
	assert.Equal(t, member.StatusPending, pending.Status)
	assert.Equal(t, inviteEmail, pending.Email)

	assert.Equal(t, StatusDone, rig.registry.Get(acct.ID).Status)
	assert.True(t, fake.Closed)
}

func TestInviteWithoutConfirmationWritesNothing(t *testing.T) {
	fake := workflowSession("Family group\nowner@gmail.com\nInvite family member\n")

	emailInput := browser.CSS(`input[type="email"]`)
	fake.OnClick = func(page *browsertest.Page, loc browser.Locator) {
		switch loc {
		case browser.TextExact("Invite family member"):
			page.Text = "Invite someone to your family group\nSend\n"
			page.Elements = []browser.Locator{emailInput}
		case browser.TextExact("Send"):
			// The surface silently swallows the action.
		}
	}

	rig := newTestRig(t, fake)
	acct := rig.seedAccount(t, "hunter2", "")

	res, err := rig.service.Invite(context.Background(), acct.ID, inviteEmail)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "not confirmed")

	assert.Nil(t, rig.store.memberByName(inviteEmail), "no local write without remote confirmation")
	assert.Equal(t, StatusError, rig.registry.Get(acct.ID).Status)
}

func TestCancelInvitationHappyPath(t *testing.T) {
	fake := workflowSession("Family group\nowner@gmail.com\n" + inviteEmail + "\nInvitation pending\n")
	fake.OnClick = func(page *browsertest.Page, loc browser.Locator) {
		switch loc {
		case browser.TextContains(inviteEmail):
			page.Text = inviteEmail + "\nInvitation pending\nCancel invitation\n"
		case browser.TextExact("Cancel invitation"):
			page.Text = "Invitation cancelled"
		}
	}

	rig := newTestRig(t, fake)
	acct := rig.seedAccount(t, "hunter2", "")
	seedMember(rig.store, "m-pending", acct.ID, inviteEmail, member.StatusPending)

	res, err := rig.service.CancelInvitation(context.Background(), acct.ID, inviteEmail)
	require.NoError(t, err)
	assert.True(t, res.Success)

	got, err := memberStore{rig.store}.GetByID(context.Background(), "m-pending")
	require.NoError(t, err)
	assert.Equal(t, member.StatusRemoved, got.Status)
}

func TestRemoveMemberHappyPath(t *testing.T) {
	fake := workflowSession("Family group\nowner@gmail.com\nBob Tran\nMember\n")
	fake.OnClick = func(page *browsertest.Page, loc browser.Locator) {
		switch loc {
		case browser.TextExact("Bob Tran"):
			page.Text = "Bob Tran\nbob@gmail.com\nRemove member\n"
		case browser.TextExact("Remove member"):
			page.Text = "Bob Tran has been removed from your family group"
		}
	}

	rig := newTestRig(t, fake)
	acct := rig.seedAccount(t, "hunter2", "")
	seedMember(rig.store, "m-bob", acct.ID, "Bob Tran", member.StatusActive)

	res, err := rig.service.RemoveMember(context.Background(), acct.ID, "m-bob")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.NeedsManual)

	got, err := memberStore{rig.store}.GetByID(context.Background(), "m-bob")
	require.NoError(t, err)
	assert.Equal(t, member.StatusRemoved, got.Status)
}

func TestRemoveMemberPhoneVerificationNeedsManual(t *testing.T) {
	fake := workflowSession("Family group\nowner@gmail.com\nBob Tran\nMember\n")
	fake.OnClick = func(page *browsertest.Page, loc browser.Locator) {
		switch loc {
		case browser.TextExact("Bob Tran"):
			page.Text = "Bob Tran\nbob@gmail.com\nRemove member\n"
		case browser.TextExact("Remove member"):
			page.Text = "Verify it's you\nGoogle will send a verification code in a text message to your phone number"
		}
	}

	rig := newTestRig(t, fake)
	acct := rig.seedAccount(t, "hunter2", "")
	seedMember(rig.store, "m-bob", acct.ID, "Bob Tran", member.StatusActive)

	res, err := rig.service.RemoveMember(context.Background(), acct.ID, "m-bob")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.NeedsManual, "phone verification must be distinguishable from failure")

	got, err := memberStore{rig.store}.GetByID(context.Background(), "m-bob")
	require.NoError(t, err)
	assert.Equal(t, member.StatusActive, got.Status, "member stays until removal is confirmed")
}

func TestRemoveMemberCredentialReverification(t *testing.T) {
	passwordInput := browser.CSS(`input[type="password"]`)

	fake := workflowSession("Family group\nowner@gmail.com\nBob Tran\nMember\n")
	fake.OnClick = func(page *browsertest.Page, loc browser.Locator) {
		switch loc {
		case browser.TextExact("Bob Tran"):
			page.Text = "Bob Tran\nbob@gmail.com\nRemove member\n"
		case browser.TextExact("Remove member"):
			page.Text = "To continue, first verify it's you\nEnter your password"
			page.Elements = []browser.Locator{passwordInput}
		}
	}
	fake.OnFill = func(page *browsertest.Page, loc browser.Locator, text string) {
		if loc == passwordInput {
			page.Text = "Bob Tran has been removed from your family group"
			page.Elements = nil
		}
	}

	rig := newTestRig(t, fake)
	acct := rig.seedAccount(t, "hunter2", "")
	seedMember(rig.store, "m-bob", acct.ID, "Bob Tran", member.StatusActive)

	res, err := rig.service.RemoveMember(context.Background(), acct.ID, "m-bob")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hunter2", fake.Filled[passwordInput])

	got, err := memberStore{rig.store}.GetByID(context.Background(), "m-bob")
	require.NoError(t, err)
	assert.Equal(t, member.StatusRemoved, got.Status)
}

func TestRemoveMemberUnknownMember(t *testing.T) {
	rig := newTestRig(t, workflowSession("Family group\n"))
	acct := rig.seedAccount(t, "hunter2", "")

	_, err := rig.service.RemoveMember(context.Background(), acct.ID, "no-such-member")
	assert.ErrorIs(t, err, member.ErrMemberNotFound)
}

func TestMutationReusesAuthenticatedSession(t *testing.T) {
	fake := workflowSession("Family group\nowner@gmail.com\nInvite family member\n")

	emailInput := browser.CSS(`input[type="email"]`)
	fake.OnClick = func(page *browsertest.Page, loc browser.Locator) {
		switch loc {
		case browser.TextExact("Invite family member"):
			page.Text = "Invite someone to your family group\nSend\n"
			page.Elements = []browser.Locator{emailInput}
		case browser.TextExact("Send"):
			page.Text = "Invitation sent\nAn invitation was sent to " + inviteEmail
		}
	}

	rig := newTestRig(t, fake)
	acct := rig.seedAccount(t, "hunter2", "")

	res, err := rig.service.Invite(context.Background(), acct.ID, inviteEmail)
	require.NoError(t, err)
	assert.True(t, res.Success)

	require.NotEmpty(t, fake.Navigations)
	assert.Contains(t, fake.Navigations[0], "family/details",
		"a valid persisted session is verified on the mutation surface itself")
	for _, url := range fake.Navigations {
		assert.NotContains(t, url, "accounts.google.com", "no sign-in round trip for a valid session")
	}
}

func TestMutationFallsBackToFullSignIn(t *testing.T) {
	idInput := browser.CSS(`input[type="email"]`)
	idNext := browser.CSS(`#identifierNext`)
	pwInput := browser.CSS(`input[type="password"]`)
	pwNext := browser.CSS(`#passwordNext`)

	signedIn := false
	fake := browsertest.New(browsertest.Page{})
	fake.OnNavigate = func(page *browsertest.Page, url string) {
		switch {
		case !signedIn:
			// The expired session bounces every surface to sign-in.
			page.URL = "https://accounts.google.com/v3/signin/identifier"
			page.Text = "Sign in\nUse your Google Account"
			page.Elements = []browser.Locator{idInput, idNext}
		case strings.Contains(url, "family/details"):
			page.Text = "Family group\nowner@gmail.com\nInvite family member\n"
			page.Elements = nil
		}
	}
	fake.OnClick = func(page *browsertest.Page, loc browser.Locator) {
		switch loc {
		case idNext:
			page.URL = "https://accounts.google.com/v3/signin/challenge/pwd"
			page.Text = "Welcome\nEnter your password"
			page.Elements = []browser.Locator{pwInput, pwNext}
		case pwNext:
			signedIn = true
			page.URL = browser.CreditURL
			page.Text = syncCreditText
			page.Elements = nil
		case browser.TextExact("Invite family member"):
			page.Text = "Invite someone to your family group\nSend\n"
			page.Elements = []browser.Locator{idInput}
		case browser.TextExact("Send"):
			page.Text = "Invitation sent\nAn invitation was sent to " + inviteEmail
		}
	}

	rig := newTestRig(t, fake)
	acct := rig.seedAccount(t, "hunter2", "")

	res, err := rig.service.Invite(context.Background(), acct.ID, inviteEmail)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hunter2", fake.Filled[pwInput], "expired session must run the full sign-in")
}

func TestMutationRejectedWhileSyncRuns(t *testing.T) {
	rig := newTestRig(t, workflowSession("Family group\n"))
	acct := rig.seedAccount(t, "hunter2", "")

	require.NoError(t, rig.registry.Begin(acct.ID, "sync running"))

	_, err := rig.service.Invite(context.Background(), acct.ID, inviteEmail)
	assert.ErrorIs(t, err, ErrSyncInFlight)
}
