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
	"strings"

	"github.com/creditflow/creditflow/internal/browser"
)

// Page-state markers, lowercase, in both locales the surface serves. The
// surface picks its language from the account, so every classification has
// to carry both sets.
var (
	chooseAccountMarkers = []string{"choose an account", "chọn tài khoản", "chọn một tài khoản"}
	notRecognizedMarkers = []string{"couldn't find", "không tìm thấy"}
	wrongPasswordMarkers = []string{"wrong password", "sai mật khẩu"}
	deletedMarkers       = []string{"has been deleted", "đã bị xóa"}
	blockedMarkers       = []string{"blocked sign-in", "chặn đăng nhập"}
	wrongCodeMarkers     = []string{"wrong code", "mã không đúng", "mã sai"}
)

// Locator chains, ordered by specificity. The surface A/B-tests its markup,
// so each control carries fallbacks observed in the wild.
var (
	identifierInputs = []browser.Locator{
		browser.CSS(`input[type="email"]`),
		browser.CSS(`#identifierId`),
	}
	identifierNextButtons = []browser.Locator{
		browser.CSS(`#identifierNext`),
		browser.CSS(`#identifierNext button`),
		browser.CSS(`button[jsname="LgbsSe"]`),
	}
	useAnotherAccount = []browser.Locator{
		browser.TextContains("Use another account"),
		browser.TextContains("Sử dụng một tài khoản khác"),
	}
	credentialInputs = []browser.Locator{
		browser.CSS(`input[type="password"]`),
	}
	credentialNextButtons = []browser.Locator{
		browser.CSS(`#passwordNext`),
		browser.CSS(`#passwordNext button`),
		browser.CSS(`button[jsname="LgbsSe"]`),
	}
	authenticatorOptions = []browser.Locator{
		browser.CSS(`[data-challengetype="6"]`),
		browser.CSS(`div[data-challengeid="6"]`),
	}
	codeInputs = []browser.Locator{
		browser.CSS(`input[name="totpPin"]`),
		browser.CSS(`input[type="tel"]`),
		browser.CSS(`#totpPin`),
	}
	codeNextButtons = []browser.Locator{
		browser.CSS(`#totpNext`),
		browser.CSS(`#totpNext button`),
		browser.CSS(`button[jsname="LgbsSe"]`),
	}
)

func hasAnyMarker(text string, markers []string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
