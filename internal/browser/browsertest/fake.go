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

// Package browsertest provides a scripted in-memory Session for driving the
// authentication state machine and the mutation workflows from synthetic
// page states.
package browsertest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/creditflow/creditflow/internal/browser"
)

// Page is one synthetic page state: its rendered text plus the locators
// that currently resolve to a visible element.
type Page struct {
	URL      string
	Text     string
	Elements []browser.Locator
}

// Has reports whether the page exposes the locator. Text locators also
// match against the page text so scripts do not have to enumerate every
// label twice.
func (p Page) Has(loc browser.Locator) bool {
	for _, el := range p.Elements {
		if el == loc {
			return true
		}
	}
	switch loc.Strategy {
	case browser.StrategyTextContains:
		return strings.Contains(p.Text, loc.Value)
	case browser.StrategyTextExact:
		for _, line := range strings.Split(p.Text, "\n") {
			if strings.TrimSpace(line) == loc.Value {
				return true
			}
		}
	}
	return false
}

// Fake is a scripted Session. Tests set the current Page directly or mutate
// it from the On* hooks to model page transitions.
type Fake struct {
	mu sync.Mutex

	page Page

	// OnNavigate, OnFill and OnClick run after the corresponding action is
	// recorded. They mutate the page in place to model the transition the
	// action causes.
	OnNavigate func(page *Page, url string)
	OnFill     func(page *Page, loc browser.Locator, text string)
	OnClick    func(page *Page, loc browser.Locator)

	// Recorded interactions, in order.
	Navigations  []string
	Filled       map[browser.Locator]string
	Clicks       []browser.Locator
	EnterPresses []browser.Locator

	Closed bool
}

// New returns a Fake showing the given initial page.
func New(initial Page) *Fake {
	return &Fake{
		page:   initial,
		Filled: make(map[browser.Locator]string),
	}
}

// SetPage replaces the current page state.
func (f *Fake) SetPage(p Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.page = p
}

// Page returns a copy of the current page state.
func (f *Fake) Page() Page {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page
}

func (f *Fake) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Navigations = append(f.Navigations, url)
	f.page.URL = url
	if f.OnNavigate != nil {
		f.OnNavigate(&f.page, url)
	}
	return nil
}

func (f *Fake) CurrentURL(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page.URL, nil
}

func (f *Fake) PageText(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page.Text, nil
}

// Find scans the chain once against the current page; the fake never waits.
func (f *Fake) Find(_ context.Context, locators []browser.Locator, _ time.Duration) (browser.Locator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, loc := range locators {
		if f.page.Has(loc) {
			return loc, nil
		}
	}
	return browser.Locator{}, browser.ErrElementNotFound
}

func (f *Fake) Fill(_ context.Context, loc browser.Locator, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.page.Has(loc) {
		return browser.ErrElementNotFound
	}
	f.Filled[loc] = text
	if f.OnFill != nil {
		f.OnFill(&f.page, loc, text)
	}
	return nil
}

func (f *Fake) Click(_ context.Context, loc browser.Locator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.page.Has(loc) {
		return browser.ErrElementNotFound
	}
	f.Clicks = append(f.Clicks, loc)
	if f.OnClick != nil {
		f.OnClick(&f.page, loc)
	}
	return nil
}

func (f *Fake) PressEnter(_ context.Context, loc browser.Locator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EnterPresses = append(f.EnterPresses, loc)
	return nil
}

func (f *Fake) ScrollBottom(_ context.Context) error { return nil }

func (f *Fake) Close(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
