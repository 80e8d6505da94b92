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

// Package extract turns rendered page text into typed snapshots. The
// external surface has no stable markup, so everything works over line
// patterns and locale-variant marker phrases. Parsers never fail: text
// that does not match yields empty results.
package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// UsageSnapshot is the credit state read from the usage page.
type UsageSnapshot struct {
	// RemainingCredit is the account-level remaining allotment, 0 if the
	// page did not expose it.
	RemainingCredit int64
	// PerMember lists per-member consumption when the page broke it down.
	PerMember []MemberUsage
}

// MemberUsage is one member's consumed credit amount.
type MemberUsage struct {
	Name   string
	Amount int64
}

// StorageSnapshot is the storage state read from the storage page.
type StorageSnapshot struct {
	TotalGB   float64
	UsedGB    float64
	DriveGB   float64
	GmailGB   float64
	PhotosGB  float64
	PerMember []MemberStorage
}

// MemberStorage is one member's total storage footprint.
type MemberStorage struct {
	Name string
	GB   float64
}

// Roster entry roles.
const (
	RoleActive  = "active"
	RolePending = "pending"
)

// RosterEntry is one observed group member.
type RosterEntry struct {
	Name  string
	Email string
	Role  string
}

// Locale-variant section markers, lowercase. Ordered by how commonly each
// variant has been observed.
var (
	familySectionMarkers = []string{
		"nhóm gia đình",
		"family group members",
		"family group",
		"thành viên trong nhóm",
	}
	remainingCreditMarkers = []string{
		"credits remaining",
		"tín dụng còn lại",
		"ai credits",
		"tín dụng ai",
	}
	familyStorageMarkers = []string{
		"bộ nhớ cho gia đình",
		"family storage",
	}
	pendingInviteMarkers = []string{
		"invitation pending",
		"invitation expires",
		"lời mời đang chờ",
		"lời mời hết hạn",
		"đang chờ xử lý",
	}
)

// usageStopWords disqualify a line from being a member name in the usage
// section; they are page furniture that happens to sit next to numbers.
var usageStopWords = []string{
	"credit", "tín dụng", "manage", "quản lý", "activity", "hoạt động",
	"add", "thêm", "group", "nhóm",
}

// rosterStopWords disqualify a line from being a member name on the
// membership page.
var rosterStopWords = []string{
	"storage", "premium", "benefits", "password", "sharing", "delete",
	"family group", "send invitations", "learn more", "tìm hiểu",
	"gửi lời mời", "xóa", "bộ nhớ", "mật khẩu", "chia sẻ",
	"giải trí", "tổ chức", "khám phá", "google", "youtube",
	"account storage", "shared with",
}

// Exact role labels; "member" must not match "membership".
var (
	memberLabels  = []string{"member", "thành viên"}
	managerLabels = []string{"family manager", "người quản lý gia đình"}
)

var (
	amountLineRe = regexp.MustCompile(`^-?([\d,.]+)$`)
	emailRe      = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	totalStorageRe = regexp.MustCompile(`(?i)(\d+)\s*TB`)
	usedStorageRe  = regexp.MustCompile(`(?i)(?:Đã dùng\s*([\d,.]+)\s*(GB|MB|TB))|(?:([\d,.]+)\s*(GB|MB|TB)\s*(?:of|out of))`)
	driveRe        = regexp.MustCompile(`(?i)Google Drive\s*([\d,.]+)\s*(GB|MB|TB)`)
	gmailRe        = regexp.MustCompile(`(?i)Gmail\s*([\d,.]+)\s*(GB|MB|TB)`)
	photosRe       = regexp.MustCompile(`(?i)Google Photos\s*([\d,.]+)\s*(GB|MB|TB)`)
	memberGBRe     = regexp.MustCompile(`([A-Za-zÀ-ỹ][A-Za-zÀ-ỹ\s.]*?)\s*([\d,.]+)\s*(GB|MB|TB)`)
)

// ParseUsage reads the remaining account credit and the per-member usage
// breakdown from the usage page text.
func ParseUsage(text string) UsageSnapshot {
	var snap UsageSnapshot

	lines := cleanLines(text)
	snap.RemainingCredit = remainingCredit(lines)

	body, ok := sliceSection(text, familySectionMarkers)
	if !ok {
		return snap
	}

	sectionLines := cleanLines(body)
	for i := 0; i < len(sectionLines)-1; i++ {
		line := sectionLines[i]
		next := sectionLines[i+1]

		m := amountLineRe.FindStringSubmatch(next)
		if m == nil {
			continue
		}
		if !isNameCandidate(line, usageStopWords) {
			continue
		}
		amount := parseAmount(m[1])
		if amount <= 0 {
			continue
		}
		snap.PerMember = append(snap.PerMember, MemberUsage{Name: line, Amount: amount})
	}

	return snap
}

// ParseRoster reads the member list from the membership page text. Active
// members are lines immediately followed by an exact role label; pending
// invitations are emails adjacent to a pending marker. ownEmail filters the
// account holder's own address out of pending detection.
func ParseRoster(text, ownEmail string) []RosterEntry {
	lines := cleanLines(text)
	var roster []RosterEntry
	seen := make(map[string]bool)

	for i := 0; i < len(lines)-1; i++ {
		line := lines[i]
		next := strings.ToLower(lines[i+1])

		isMember := containsExact(memberLabels, next)
		isManager := containsExact(managerLabels, next)
		if !isMember && !isManager {
			continue
		}
		if !isNameCandidate(line, rosterStopWords) {
			continue
		}
		if isManager {
			// The manager is the tenant itself, never a member row.
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		roster = append(roster, RosterEntry{Name: line, Role: RoleActive})
	}

	for i, line := range lines {
		if !hasAnyMarker(line, pendingInviteMarkers) {
			continue
		}
		email := firstEmail(line)
		if email == "" && i > 0 {
			email = firstEmail(lines[i-1])
		}
		if email == "" && i < len(lines)-1 {
			email = firstEmail(lines[i+1])
		}
		if email == "" || strings.EqualFold(email, ownEmail) || seen[email] {
			continue
		}
		seen[email] = true
		roster = append(roster, RosterEntry{Name: email, Email: email, Role: RolePending})
	}

	return roster
}

// MemberEmail picks a member's address out of their detail page text: the
// first email that is not the account holder's own. Detail pages render the
// manager's address alongside the member's, so ownEmail must be excluded.
func MemberEmail(text, ownEmail string) string {
	for _, email := range emailRe.FindAllString(text, -1) {
		if !strings.EqualFold(email, ownEmail) {
			return email
		}
	}
	return ""
}

// ParseStorage reads account-level storage figures and the per-member
// breakdown from the storage page text.
func ParseStorage(text string) StorageSnapshot {
	var snap StorageSnapshot

	if m := totalStorageRe.FindStringSubmatch(text); m != nil {
		snap.TotalGB = parseStorageGB(m[1], "TB")
	}
	if m := usedStorageRe.FindStringSubmatch(text); m != nil {
		if m[1] != "" {
			snap.UsedGB = parseStorageGB(m[1], m[2])
		} else {
			snap.UsedGB = parseStorageGB(m[3], m[4])
		}
	}
	if m := driveRe.FindStringSubmatch(text); m != nil {
		snap.DriveGB = parseStorageGB(m[1], m[2])
	}
	if m := gmailRe.FindStringSubmatch(text); m != nil {
		snap.GmailGB = parseStorageGB(m[1], m[2])
	}
	if m := photosRe.FindStringSubmatch(text); m != nil {
		snap.PhotosGB = parseStorageGB(m[1], m[2])
	}

	body, ok := sliceSection(text, familyStorageMarkers)
	if !ok {
		return snap
	}
	// Cut the marker line itself so it cannot be mistaken for a name.
	if idx := strings.Index(body, "\n"); idx != -1 {
		body = body[idx+1:]
	} else {
		body = ""
	}
	for _, m := range memberGBRe.FindAllStringSubmatch(body, -1) {
		name := strings.TrimSpace(m[1])
		if len(name) < 2 {
			continue
		}
		lower := strings.ToLower(name)
		if strings.Contains(lower, "google") || strings.Contains(lower, "thành viên") || strings.Contains(lower, "member") {
			continue
		}
		snap.PerMember = append(snap.PerMember, MemberStorage{
			Name: name,
			GB:   parseStorageGB(m[2], m[3]),
		})
	}

	return snap
}

// remainingCredit finds the first standalone amount line after a remaining
// credit marker, stopping before the family section.
func remainingCredit(lines []string) int64 {
	for i, line := range lines {
		if !hasAnyMarker(line, remainingCreditMarkers) {
			continue
		}
		for j := i + 1; j < len(lines) && j <= i+3; j++ {
			if m := amountLineRe.FindStringSubmatch(lines[j]); m != nil {
				return parseAmount(m[1])
			}
		}
	}
	return 0
}

// sliceSection returns the text from the first matching marker onward.
func sliceSection(text string, markers []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, marker := range markers {
		if idx := strings.Index(lower, marker); idx != -1 {
			return text[idx:], true
		}
	}
	return "", false
}

// isNameCandidate applies the shared name heuristics: bounded length, not
// digit or symbol leading, no URL or email fragments, no stop words.
func isNameCandidate(line string, stopWords []string) bool {
	if len(line) < 2 || len(line) > 50 {
		return false
	}
	first := line[0]
	if first >= '0' && first <= '9' {
		return false
	}
	if first == '+' || first == '-' || first == '*' {
		return false
	}
	if strings.Contains(line, "http") || strings.Contains(line, "@") {
		return false
	}
	lower := strings.ToLower(line)
	for _, w := range stopWords {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return true
}

func containsExact(labels []string, s string) bool {
	for _, l := range labels {
		if s == l {
			return true
		}
	}
	return false
}

func hasAnyMarker(line string, markers []string) bool {
	lower := strings.ToLower(line)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func firstEmail(line string) string {
	return emailRe.FindString(line)
}

// parseAmount reads a thousands-separated integer; both "2,900" and "2.900"
// styles appear depending on locale.
func parseAmount(s string) int64 {
	clean := strings.NewReplacer(".", "", ",", "").Replace(s)
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseStorageGB normalizes a sized value to gigabytes.
func parseStorageGB(value, unit string) float64 {
	num, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(unit) {
	case "TB":
		return num * 1024
	case "MB":
		return num / 1024
	default:
		return num
	}
}

func cleanLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
