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

package browser

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// findPollInterval is how often Find re-evaluates its locator chain while
// waiting for an element to render.
const findPollInterval = 500 * time.Millisecond

// ChromeConfig configures a Chrome-backed session.
type ChromeConfig struct {
	// Headless runs Chrome without a visible window.
	Headless bool
	// ProfileDir is the root under which per-account profiles are kept.
	ProfileDir string
	// AccountID selects the profile subdirectory. Cookies and device trust
	// accumulated by earlier sessions for the same account are reused.
	AccountID string
}

// ChromeSession implements Session on a real Chrome instance via chromedp.
type ChromeSession struct {
	ctx     context.Context
	cancels []context.CancelFunc
}

// NewChromeSession launches Chrome with a persistent per-account profile.
func NewChromeSession(parent context.Context, cfg ChromeConfig) (*ChromeSession, error) {
	profile, err := filepath.Abs(filepath.Join(cfg.ProfileDir, "account_"+cfg.AccountID))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profile dir: %w", err)
	}
	if err := os.MkdirAll(profile, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create profile dir: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profile),
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.WindowSize(1280, 900),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &ChromeSession{
		ctx:     tabCtx,
		cancels: []context.CancelFunc{cancelTab, cancelAlloc},
	}

	// Force the first Run so a broken Chrome install fails here, not on the
	// first navigation.
	if err := chromedp.Run(tabCtx); err != nil {
		s.Close(parent)
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return s, nil
}

// NewChromeFactory returns a Factory producing Chrome sessions with the
// given base configuration.
func NewChromeFactory(headless bool, profileDir string) Factory {
	return func(ctx context.Context, accountID string) (Session, error) {
		return NewChromeSession(ctx, ChromeConfig{
			Headless:   headless,
			ProfileDir: profileDir,
			AccountID:  accountID,
		})
	}
}

// run executes actions on the session tab while honoring the caller's
// deadline and cancellation.
func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := s.ctx
	cancel := context.CancelFunc(func() {})
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate loads the URL and gives the page a moment to settle. The target
// surface renders most content after load, so a fixed settle delay is more
// reliable than waiting for readyState alone.
func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.Sleep(2*time.Second),
	); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// CurrentURL returns the tab's current location.
func (s *ChromeSession) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}

// PageText returns the rendered text of the document body.
func (s *ChromeSession) PageText(ctx context.Context) (string, error) {
	var text string
	if err := s.run(ctx,
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
	); err != nil {
		return "", fmt.Errorf("failed to read page text: %w", err)
	}
	return text, nil
}

// Find polls the locator chain in order until one matches a visible element.
func (s *ChromeSession) Find(ctx context.Context, locators []Locator, timeout time.Duration) (Locator, error) {
	deadline := time.Now().Add(timeout)
	for {
		for _, loc := range locators {
			visible, err := s.isVisible(ctx, loc)
			if err != nil {
				return Locator{}, err
			}
			if visible {
				return loc, nil
			}
		}
		if time.Now().After(deadline) {
			return Locator{}, ErrElementNotFound
		}
		select {
		case <-ctx.Done():
			return Locator{}, ctx.Err()
		case <-time.After(findPollInterval):
		}
	}
}

// Fill clears the element and types the text one keystroke at a time with a
// 50-100ms delay between keystrokes.
func (s *ChromeSession) Fill(ctx context.Context, loc Locator, text string) error {
	sel, opt := loc.target()
	if err := s.run(ctx,
		chromedp.WaitVisible(sel, opt),
		chromedp.Click(sel, opt),
		chromedp.SetValue(sel, "", opt),
	); err != nil {
		return fmt.Errorf("failed to focus element: %w", err)
	}
	for _, ch := range text {
		if err := s.run(ctx, chromedp.SendKeys(sel, string(ch), opt)); err != nil {
			return fmt.Errorf("failed to type into element: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(50+rand.Intn(51)) * time.Millisecond):
		}
	}
	return nil
}

// Click clicks the element, retrying with a script-driven click when the
// native click is intercepted by an overlay.
func (s *ChromeSession) Click(ctx context.Context, loc Locator) error {
	sel, opt := loc.target()
	if err := s.run(ctx, chromedp.Click(sel, opt)); err == nil {
		return nil
	}
	var clicked bool
	if err := s.run(ctx,
		chromedp.Evaluate(fmt.Sprintf(`(() => {
			const el = %s;
			if (!el) return false;
			el.click();
			return true;
		})()`, loc.jsLookup()), &clicked),
	); err != nil {
		return fmt.Errorf("failed to click element: %w", err)
	}
	if !clicked {
		return ErrElementNotFound
	}
	return nil
}

// PressEnter sends the Enter key to the element.
func (s *ChromeSession) PressEnter(ctx context.Context, loc Locator) error {
	sel, opt := loc.target()
	if err := s.run(ctx, chromedp.SendKeys(sel, kb.Enter, opt)); err != nil {
		return fmt.Errorf("failed to press enter: %w", err)
	}
	return nil
}

// ScrollBottom scrolls the window to the bottom of the document.
func (s *ChromeSession) ScrollBottom(ctx context.Context) error {
	if err := s.run(ctx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(time.Second),
	); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

// Close shuts the tab and the browser process down.
func (s *ChromeSession) Close(_ context.Context) error {
	for _, cancel := range s.cancels {
		cancel()
	}
	return nil
}

func (s *ChromeSession) isVisible(ctx context.Context, loc Locator) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el) return false;
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden') return false;
		return el.getClientRects().length > 0;
	})()`, loc.jsLookup())

	var visible bool
	if err := s.run(ctx, chromedp.Evaluate(script, &visible)); err != nil {
		// Evaluation races page navigations; treat a failed probe as absent.
		return false, nil
	}
	return visible, nil
}

// target maps a locator onto a chromedp selector and query option.
func (l Locator) target() (string, chromedp.QueryOption) {
	switch l.Strategy {
	case StrategyTextContains:
		return fmt.Sprintf(`//*[contains(normalize-space(.), %s)]`, xpathLiteral(l.Value)), chromedp.BySearch
	case StrategyTextExact:
		return fmt.Sprintf(`//*[normalize-space(text()) = %s]`, xpathLiteral(l.Value)), chromedp.BySearch
	default:
		return l.Value, chromedp.ByQuery
	}
}

// jsLookup returns a JS expression resolving the locator to an element or null.
func (l Locator) jsLookup() string {
	switch l.Strategy {
	case StrategyTextContains, StrategyTextExact:
		xpath, _ := l.target()
		return fmt.Sprintf(
			`document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`,
			strconv.Quote(xpath))
	default:
		return fmt.Sprintf(`document.querySelector(%s)`, strconv.Quote(l.Value))
	}
}

// xpathLiteral quotes a string for embedding in an XPath expression. XPath
// 1.0 has no escape sequences, so values containing both quote kinds are
// built with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, `'`) {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, `'`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
