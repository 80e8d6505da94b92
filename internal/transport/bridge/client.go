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

// Package bridge proxies engine operations to a remote host that has a
// browser available. The server side is the regular HTTP transport; this
// client signs a short-lived bearer token per request.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/creditflow/creditflow/internal/account"
	"github.com/creditflow/creditflow/internal/member"
	"github.com/creditflow/creditflow/internal/syncer"
)

// tokenIssuer must match what the server's bridge auth middleware expects.
const tokenIssuer = "creditflow"

const defaultTokenTTL = 2 * time.Minute

// Config holds bridge client configuration.
type Config struct {
	// BaseURL is the remote host, e.g. "https://vps.example.com:8080".
	BaseURL string
	// Secret signs the per-request bearer token.
	Secret string
	// TokenTTL bounds token validity. Zero means 2 minutes.
	TokenTTL time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client implements syncer.Engine against a remote CreditFlow instance.
type Client struct {
	baseURL string
	secret  string
	ttl     time.Duration
	httpc   *http.Client
}

// NewClient creates a bridge client.
func NewClient(cfg Config) *Client {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		secret:  cfg.Secret,
		ttl:     ttl,
		httpc:   httpc,
	}
}

var _ syncer.Engine = (*Client)(nil)

// TriggerSync starts a sync pass on the remote host.
func (c *Client) TriggerSync(ctx context.Context, accountID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/accounts/"+accountID+"/sync", nil, nil)
}

// TriggerSyncAll starts a sync pass for every syncable account on the remote host.
func (c *Client) TriggerSyncAll(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/accounts/sync-all", nil, nil)
}

// SyncStatus fetches the remote status record.
func (c *Client) SyncStatus(ctx context.Context, accountID string) (syncer.StatusRecord, error) {
	var rec syncer.StatusRecord
	err := c.do(ctx, http.MethodGet, "/api/v1/accounts/"+accountID+"/sync-status", nil, &rec)
	return rec, err
}

// Invite runs the invite workflow on the remote host.
func (c *Client) Invite(ctx context.Context, accountID, email string) (syncer.MutationResult, error) {
	var res syncer.MutationResult
	err := c.do(ctx, http.MethodPost, "/api/v1/accounts/"+accountID+"/invite",
		map[string]string{"email": email}, &res)
	return res, err
}

// CancelInvitation runs the cancel workflow on the remote host.
func (c *Client) CancelInvitation(ctx context.Context, accountID, email string) (syncer.MutationResult, error) {
	var res syncer.MutationResult
	err := c.do(ctx, http.MethodPost, "/api/v1/accounts/"+accountID+"/cancel-invitation",
		map[string]string{"email": email}, &res)
	return res, err
}

// RemoveMember runs the remove workflow on the remote host.
func (c *Client) RemoveMember(ctx context.Context, accountID, memberID string) (syncer.MutationResult, error) {
	var res syncer.MutationResult
	err := c.do(ctx, http.MethodPost, "/api/v1/accounts/"+accountID+"/remove-member",
		map[string]string{"member_id": memberID}, &res)
	return res, err
}

func (c *Client) signToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.secret))
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build bridge request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		token, err := c.signToken()
		if err != nil {
			return fmt.Errorf("failed to sign bridge token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("bridge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.statusError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode bridge response: %w", err)
		}
	}
	return nil
}

// statusError maps remote HTTP failures back onto the domain errors the
// local engine would have returned, so callers switch on one error set.
func (c *Client) statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)

	switch resp.StatusCode {
	case http.StatusConflict:
		return syncer.ErrSyncInFlight
	case http.StatusNotFound:
		if strings.Contains(body.Error, "member") {
			return member.ErrMemberNotFound
		}
		return account.ErrAccountNotFound
	default:
		if body.Error != "" {
			return fmt.Errorf("bridge returned %d: %s", resp.StatusCode, body.Error)
		}
		return fmt.Errorf("bridge returned %d", resp.StatusCode)
	}
}
