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

// @title CreditFlow Sync API
// @version 1.0.0
// @description Account synchronization and reconciliation engine
// @host localhost:8080
// @BasePath /api/v1

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/creditflow/creditflow/internal/account"
	"github.com/creditflow/creditflow/internal/member"
	"github.com/creditflow/creditflow/internal/observability/logger"
	"github.com/creditflow/creditflow/internal/syncer"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	engine       syncer.Engine
	validate     *validator.Validate
	bridgeSecret string
}

// NewHandler creates a new HTTP handler. bridgeSecret guards the account
// routes with signed bearer tokens; an empty secret disables the check.
func NewHandler(engine syncer.Engine, bridgeSecret string) *Handler {
	return &Handler{
		engine:       engine,
		validate:     validator.New(),
		bridgeSecret: bridgeSecret,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// API routes
	r.Route("/api/v1/accounts", func(r chi.Router) {
		r.Use(h.BridgeAuthMiddleware)

		r.Post("/sync-all", h.TriggerSyncAll)

		r.Route("/{accountID}", func(r chi.Router) {
			r.Post("/sync", h.TriggerSync)
			r.Get("/sync-status", h.SyncStatus)
			r.Post("/invite", h.Invite)
			r.Post("/cancel-invitation", h.CancelInvitation)
			r.Post("/remove-member", h.RemoveMember)
		})
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "creditflow",
	})
}

// TriggerSync starts a sync pass for one account
// @Summary Trigger Sync
// @Description Start an asynchronous sync pass for the account
// @Tags Sync
// @Produce json
// @Param accountID path string true "Account ID"
// @Success 202 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /accounts/{accountID}/sync [post]
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	if err := h.engine.TriggerSync(r.Context(), accountID); err != nil {
		h.respondEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":     "accepted",
		"account_id": accountID,
	})
}

// TriggerSyncAll starts a sync pass for every syncable account
// @Summary Trigger Sync All
// @Tags Sync
// @Produce json
// @Success 202 {object} map[string]string
// @Router /accounts/sync-all [post]
func (h *Handler) TriggerSyncAll(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.TriggerSyncAll(r.Context()); err != nil {
		h.respondEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
	})
}

// SyncStatus reports the sync state of one account
// @Summary Sync Status
// @Tags Sync
// @Produce json
// @Param accountID path string true "Account ID"
// @Success 200 {object} syncer.StatusRecord
// @Failure 404 {object} map[string]string
// @Router /accounts/{accountID}/sync-status [get]
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	rec, err := h.engine.SyncStatus(r.Context(), accountID)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// InviteRequest represents an invitation to join the family group
type InviteRequest struct {
	Email string `json:"email" validate:"required,email" example:"friend@gmail.com"`
}

// Invite sends a family group invitation
// @Summary Invite Member
// @Description Invite an email address to the account's family group
// @Tags Members
// @Accept json
// @Produce json
// @Param accountID path string true "Account ID"
// @Param request body InviteRequest true "Invitation"
// @Success 200 {object} syncer.MutationResult
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /accounts/{accountID}/invite [post]
func (h *Handler) Invite(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req InviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	res, err := h.engine.Invite(r.Context(), accountID, req.Email)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// CancelInvitationRequest identifies a pending invitation by email
type CancelInvitationRequest struct {
	Email string `json:"email" validate:"required,email" example:"friend@gmail.com"`
}

// CancelInvitation withdraws a pending family group invitation
// @Summary Cancel Invitation
// @Tags Members
// @Accept json
// @Produce json
// @Param accountID path string true "Account ID"
// @Param request body CancelInvitationRequest true "Invitation"
// @Success 200 {object} syncer.MutationResult
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /accounts/{accountID}/cancel-invitation [post]
func (h *Handler) CancelInvitation(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req CancelInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	res, err := h.engine.CancelInvitation(r.Context(), accountID, req.Email)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// RemoveMemberRequest identifies a persisted member row
type RemoveMemberRequest struct {
	MemberID string `json:"member_id" validate:"required"`
}

// RemoveMember removes a member from the family group
// @Summary Remove Member
// @Tags Members
// @Accept json
// @Produce json
// @Param accountID path string true "Account ID"
// @Param request body RemoveMemberRequest true "Member"
// @Success 200 {object} syncer.MutationResult
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /accounts/{accountID}/remove-member [post]
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req RemoveMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "member_id is required")
		return
	}

	res, err := h.engine.RemoveMember(r.Context(), accountID, req.MemberID)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// respondEngineError maps engine errors to HTTP status codes.
func (h *Handler) respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, syncer.ErrSyncInFlight):
		respondError(w, http.StatusConflict, "a sync is already in flight for this account")
	case errors.Is(err, account.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, member.ErrMemberNotFound):
		respondError(w, http.StatusNotFound, "member not found")
	default:
		slog.ErrorContext(r.Context(), "engine operation failed",
			logger.Error(err),
			logger.Path(r.URL.Path),
		)
		respondError(w, http.StatusInternalServerError, "operation failed")
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
