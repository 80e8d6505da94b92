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

// Package browser abstracts one automated interactive session against the
// external web surface. The engine only ever sees this interface; the
// chromedp implementation lives behind it so the authentication state
// machine and the mutation workflows are drivable from synthetic page text
// in tests.
package browser

import (
	"context"
	"errors"
	"time"
)

// External surface URLs. Two locale variants of the same pages; the hl
// parameter is advisory, the extraction layer handles either language.
const (
	CreditURL  = "https://one.google.com/ai/activity?g1_landing_page=0"
	StorageURL = "https://one.google.com/storage?g1_landing_page=2"
	FamilyURL  = "https://myaccount.google.com/family/details"
	SigninURL  = "https://accounts.google.com/signin/v2/identifier?flowName=GlifWebSignIn&flowEntry=ServiceLogin"
	LogoutURL  = "https://accounts.google.com/Logout"
)

// ErrElementNotFound is returned when no locator in a chain matched a
// visible element within the allotted time.
var ErrElementNotFound = errors.New("element not found")

// Strategy selects how a Locator's value is interpreted.
type Strategy string

const (
	// StrategyCSS matches a CSS selector.
	StrategyCSS Strategy = "css"
	// StrategyTextContains matches any element whose text contains the value.
	StrategyTextContains Strategy = "text-contains"
	// StrategyTextExact matches any element whose trimmed text equals the value.
	StrategyTextExact Strategy = "text-exact"
)

// Locator describes one way to find an element. Fallback chains are ordered
// slices of locators evaluated in sequence with early exit on first match.
type Locator struct {
	Strategy Strategy
	Value    string
}

// CSS builds a CSS locator.
func CSS(selector string) Locator {
	return Locator{Strategy: StrategyCSS, Value: selector}
}

// TextContains builds a visible-text substring locator.
func TextContains(text string) Locator {
	return Locator{Strategy: StrategyTextContains, Value: text}
}

// TextExact builds an exact trimmed-text locator.
func TextExact(text string) Locator {
	return Locator{Strategy: StrategyTextExact, Value: text}
}

// Session is one live automated browser session. Implementations must be
// safe for sequential use from a single goroutine; the engine never shares
// a session across accounts.
type Session interface {
	// Navigate loads a URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// CurrentURL returns the current location.
	CurrentURL(ctx context.Context) (string, error)
	// PageText returns the rendered text of the whole page.
	PageText(ctx context.Context) (string, error)
	// Find polls the ordered locator chain until one matches a visible
	// element or the timeout elapses, returning the matching locator.
	Find(ctx context.Context, locators []Locator, timeout time.Duration) (Locator, error)
	// Fill clears the element and types the text with a small randomized
	// inter-keystroke delay.
	Fill(ctx context.Context, loc Locator, text string) error
	// Click clicks the element, falling back to a script-driven click.
	Click(ctx context.Context, loc Locator) error
	// PressEnter submits via the keyboard on the given element.
	PressEnter(ctx context.Context, loc Locator) error
	// ScrollBottom scrolls to the bottom of the page so lazy sections render.
	ScrollBottom(ctx context.Context) error
	// Close tears the session down. The persisted profile survives.
	Close(ctx context.Context) error
}

// Factory creates a session bound to one account's persisted profile.
type Factory func(ctx context.Context, accountID string) (Session, error)
