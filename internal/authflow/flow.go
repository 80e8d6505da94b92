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

package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	neturl "net/url"
	"strings"
	"time"

	"github.com/creditflow/creditflow/internal/account"
	"github.com/creditflow/creditflow/internal/browser"
)

// optionTimeout bounds waits for controls that are optional on the page,
// like the next button that some variants replace with keyboard submit.
const optionTimeout = 3 * time.Second

// Config configures a Flow.
type Config struct {
	// StepTimeout bounds each interactive step of the flow.
	StepTimeout time.Duration
	// Status receives progressive human-readable status messages. Optional.
	Status func(message string)
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Now is the clock used for one-time codes. Defaults to time.Now.
	Now func() time.Time
}

// Flow authenticates one session with one account's credentials.
type Flow struct {
	sess        browser.Session
	creds       account.Credentials
	stepTimeout time.Duration
	status      func(string)
	logger      *slog.Logger
	now         func() time.Time
}

// New builds a Flow over an open session.
func New(sess browser.Session, creds account.Credentials, cfg Config) *Flow {
	f := &Flow{
		sess:        sess,
		creds:       creds,
		stepTimeout: cfg.StepTimeout,
		status:      cfg.Status,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	if f.stepTimeout <= 0 {
		f.stepTimeout = 30 * time.Second
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f
}

// Authenticate drives the session to an authenticated state on the target
// surface. It returns nil on success or an *Error classifying the failure.
// A persisted profile with a still-valid session for the expected identity
// short-circuits the whole flow.
func (f *Flow) Authenticate(ctx context.Context) error {
	f.report("opening target surface")
	if err := f.navigate(ctx, browser.CreditURL); err != nil {
		return err
	}

	url, err := f.sess.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("failed to read location: %w", err)
	}

	if onTarget(url) {
		ok, err := f.identityMatches(ctx)
		if err != nil {
			return err
		}
		if ok {
			f.report("session still valid")
			f.logger.Debug("reused persisted session")
			return nil
		}
		// The profile is signed in as somebody else. Sign out and run the
		// full flow for the expected identity.
		f.report("signed-in identity mismatch, signing out")
		f.logger.Warn("persisted session holds a different identity, forcing sign-out")
		if err := f.navigate(ctx, browser.LogoutURL); err != nil {
			return err
		}
	} else if strings.Contains(url, "/about") {
		// Unauthenticated visitors land on a public marketing page that
		// never redirects to sign-in on its own.
		signin := browser.SigninURL + "&continue=" + neturl.QueryEscape(browser.CreditURL)
		if err := f.navigate(ctx, signin); err != nil {
			return err
		}
	}

	if err := f.enterIdentifier(ctx); err != nil {
		return err
	}
	if err := f.enterCredential(ctx); err != nil {
		return err
	}
	if err := f.resolveChallenge(ctx); err != nil {
		return err
	}
	return f.confirmAuthenticated(ctx)
}

// VerifySession opens the membership surface and reports whether the
// persisted session already renders the expected identity there, without
// running the sign-in steps. Mutation workflows try this before falling
// back to a full Authenticate.
func (f *Flow) VerifySession(ctx context.Context) (bool, error) {
	f.report("checking persisted session")
	if err := f.navigate(ctx, browser.FamilyURL); err != nil {
		return false, err
	}

	url, err := f.sess.CurrentURL(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read location: %w", err)
	}
	if !onTarget(url) && !strings.Contains(url, "myaccount.google.com") {
		return false, nil
	}
	return f.identityMatches(ctx)
}

func (f *Flow) enterIdentifier(ctx context.Context) error {
	f.report("entering identifier")

	input, err := f.sess.Find(ctx, identifierInputs, f.stepTimeout)
	if err != nil {
		// An account chooser can render instead of the identifier input.
		text, terr := f.sess.PageText(ctx)
		if terr == nil && hasAnyMarker(text, chooseAccountMarkers) {
			if other, ferr := f.sess.Find(ctx, useAnotherAccount, optionTimeout); ferr == nil {
				if cerr := f.sess.Click(ctx, other); cerr != nil {
					return fmt.Errorf("failed to leave account chooser: %w", cerr)
				}
				input, err = f.sess.Find(ctx, identifierInputs, f.stepTimeout)
			}
		}
	}
	if err != nil {
		return failed(ReasonIdentifierNotFound, StateNeedsIdentifier, "identifier input did not render")
	}

	if err := f.sess.Fill(ctx, input, f.creds.Email); err != nil {
		return fmt.Errorf("failed to enter identifier: %w", err)
	}
	if err := f.submit(ctx, identifierNextButtons, input); err != nil {
		return err
	}

	text, err := f.sess.PageText(ctx)
	if err != nil {
		return fmt.Errorf("failed to read page: %w", err)
	}
	if hasAnyMarker(text, notRecognizedMarkers) {
		return failed(ReasonIdentityNotRecognized, StateIdentifierEntered, "surface does not recognize the identifier")
	}
	return nil
}

func (f *Flow) enterCredential(ctx context.Context) error {
	f.report("entering credential")

	input, err := f.sess.Find(ctx, credentialInputs, f.stepTimeout)
	if err != nil {
		text, terr := f.sess.PageText(ctx)
		if terr == nil && hasAnyMarker(text, notRecognizedMarkers) {
			return failed(ReasonIdentityNotRecognized, StateNeedsCredential, "surface does not recognize the identifier")
		}
		return failed(ReasonTimeout, StateNeedsCredential, "credential input did not render")
	}

	if err := f.sess.Fill(ctx, input, f.creds.Secret); err != nil {
		return fmt.Errorf("failed to enter credential: %w", err)
	}
	if err := f.submit(ctx, credentialNextButtons, input); err != nil {
		return err
	}

	text, err := f.sess.PageText(ctx)
	if err != nil {
		return fmt.Errorf("failed to read page: %w", err)
	}
	switch {
	case hasAnyMarker(text, wrongPasswordMarkers):
		return failed(ReasonCredentialRejected, StateCredentialEntered, "surface rejected the credential")
	case hasAnyMarker(text, deletedMarkers):
		return failed(ReasonIdentityDeleted, StateCredentialEntered, "remote account has been deleted")
	case hasAnyMarker(text, blockedMarkers):
		return failed(ReasonIdentityBlocked, StateCredentialEntered, "surface blocked sign-in from this device")
	}
	return nil
}

func (f *Flow) resolveChallenge(ctx context.Context) error {
	url, err := f.sess.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("failed to read location: %w", err)
	}
	if onTarget(url) {
		return nil
	}
	if !strings.Contains(url, "challenge") && !strings.Contains(url, "signin") {
		return nil
	}

	f.report("resolving verification challenge")
	if f.creds.TOTPSeed == "" {
		return failed(ReasonManualIntervention, StateChallenge, "verification challenge with no one-time seed configured")
	}

	// A challenge menu may render before the code input; pick the
	// authenticator option when it does.
	if option, err := f.sess.Find(ctx, authenticatorOptions, optionTimeout); err == nil {
		if err := f.sess.Click(ctx, option); err != nil {
			return fmt.Errorf("failed to select authenticator challenge: %w", err)
		}
	}

	input, err := f.sess.Find(ctx, codeInputs, f.stepTimeout)
	if err != nil {
		return failed(ReasonManualIntervention, StateChallenge, "challenge offers no code input")
	}

	code, err := GenerateCode(f.creds.TOTPSeed, f.now())
	if err != nil {
		return failed(ReasonManualIntervention, StateChallenge, "one-time seed is unusable: %v", err)
	}
	if err := f.sess.Fill(ctx, input, code); err != nil {
		return fmt.Errorf("failed to enter one-time code: %w", err)
	}
	if err := f.submit(ctx, codeNextButtons, input); err != nil {
		return err
	}

	text, err := f.sess.PageText(ctx)
	if err != nil {
		return fmt.Errorf("failed to read page: %w", err)
	}
	if hasAnyMarker(text, wrongCodeMarkers) {
		return failed(ReasonSecondFactorRejected, StateChallenge, "one-time code was not accepted")
	}
	url, err = f.sess.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("failed to read location: %w", err)
	}
	if strings.Contains(url, "challenge") {
		return failed(ReasonSecondFactorRejected, StateChallenge, "challenge persisted after code entry")
	}
	return nil
}

func (f *Flow) confirmAuthenticated(ctx context.Context) error {
	url, err := f.sess.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("failed to read location: %w", err)
	}
	if !onTarget(url) {
		if err := f.navigate(ctx, "https://one.google.com/"); err != nil {
			return err
		}
		url, err = f.sess.CurrentURL(ctx)
		if err != nil {
			return fmt.Errorf("failed to read location: %w", err)
		}
	}
	if !onTarget(url) {
		return failed(ReasonTimeout, StateFailed, "surface never reached the target after sign-in")
	}
	f.report("authenticated")
	return nil
}

// identityMatches checks that the rendered page belongs to the expected
// identity before the persisted session is trusted.
func (f *Flow) identityMatches(ctx context.Context) (bool, error) {
	text, err := f.sess.PageText(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read page: %w", err)
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(f.creds.Email)), nil
}

// submit clicks the first rendered next-button variant, falling back to a
// keyboard submit on the input itself.
func (f *Flow) submit(ctx context.Context, buttons []browser.Locator, input browser.Locator) error {
	if btn, err := f.sess.Find(ctx, buttons, optionTimeout); err == nil {
		if cerr := f.sess.Click(ctx, btn); cerr != nil {
			return fmt.Errorf("failed to submit: %w", cerr)
		}
		return nil
	}
	if err := f.sess.PressEnter(ctx, input); err != nil {
		return fmt.Errorf("failed to submit: %w", err)
	}
	return nil
}

func (f *Flow) navigate(ctx context.Context, url string) error {
	sctx, cancel := context.WithTimeout(ctx, f.stepTimeout)
	defer cancel()
	if err := f.sess.Navigate(sctx, url); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return failed(ReasonTimeout, StateNavigate, "navigation to %s timed out", url)
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (f *Flow) report(message string) {
	if f.status != nil {
		f.status(message)
	}
}

// onTarget reports whether the URL is on the authenticated target surface.
func onTarget(url string) bool {
	return strings.Contains(url, "one.google.com") &&
		!strings.Contains(url, "accounts.google.com") &&
		!strings.Contains(url, "/about")
}
