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
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// GenerateCode derives the current one-time code from a base32 seed.
// Seeds are stored as copied from the surface's enrollment screen, so
// whitespace and lowercase are tolerated.
func GenerateCode(seed string, at time.Time) (string, error) {
	clean := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(seed), " ", ""))
	code, err := totp.GenerateCode(clean, at)
	if err != nil {
		return "", fmt.Errorf("failed to generate one-time code: %w", err)
	}
	return code, nil
}
