// Package handler exposes the consent ledger over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tessera/internal/consent"
	"tessera/internal/transport/http/shared"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
)

// Handler handles consent endpoints.
type Handler struct {
	consent *consent.Service
	logger  *slog.Logger
}

// New creates a consent Handler.
func New(service *consent.Service, logger *slog.Logger) *Handler {
	return &Handler{consent: service, logger: logger}
}

// Register mounts the consent routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/consents", func(r chi.Router) {
		r.Post("/process-expired", h.handleProcessExpired)
		r.Get("/language/{scope}", h.handleLanguage)
		r.Route("/{userID}", func(r chi.Router) {
			r.Get("/", h.handleList)
			r.Get("/stale-language", h.handleStaleLanguage)
			r.Post("/withdraw-all", h.handleWithdrawAll)
			r.Post("/validate-export", h.handleValidateExport)
			r.Route("/{scope}", func(r chi.Router) {
				r.Get("/", h.handleStatus)
				r.Post("/present", h.handlePresent)
				r.Post("/grant", h.handleGrant)
				r.Post("/decline", h.handleDecline)
				r.Post("/withdraw", h.handleWithdraw)
				r.Post("/renew", h.handleRenew)
			})
		})
	})
}

type consentResponse struct {
	UserID      string     `json:"user_id"`
	Scope       string     `json:"scope"`
	Status      string     `json:"status"`
	Version     int        `json:"version"`
	StudyID     string     `json:"study_id,omitempty"`
	GrantedAt   *time.Time `json:"granted_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	WithdrawnAt *time.Time `json:"withdrawn_at,omitempty"`
}

func toResponse(record *consent.Consent) consentResponse {
	resp := consentResponse{
		UserID:      record.UserID.String(),
		Scope:       record.Scope.String(),
		Status:      string(record.Status),
		Version:     record.Version,
		GrantedAt:   record.GrantedAt,
		ExpiresAt:   record.ExpiresAt,
		WithdrawnAt: record.WithdrawnAt,
	}
	if !record.StudyID.IsNil() {
		resp.StudyID = record.StudyID.String()
	}
	return resp
}

func (h *Handler) params(r *http.Request) (id.UserID, id.ConsentScope, error) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		return id.UserID{}, "", err
	}
	scope, err := id.ParseConsentScope(chi.URLParam(r, "scope"))
	if err != nil {
		return id.UserID{}, "", err
	}
	return userID, scope, nil
}

type grantRequest struct {
	StudyID       string `json:"study_id"`
	ExpiresInDays int    `json:"expires_in_days"`
}

func (h *Handler) handlePresent(w http.ResponseWriter, r *http.Request) {
	userID, scope, err := h.params(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req grantRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	studyID, err := parseOptionalStudyID(req.StudyID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	record, err := h.consent.Present(r.Context(), userID, scope, studyID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(record))
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	userID, scope, err := h.params(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req grantRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	studyID, err := parseOptionalStudyID(req.StudyID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	record, err := h.consent.Grant(r.Context(), userID, scope, studyID, req.ExpiresInDays)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(record))
}

func (h *Handler) handleDecline(w http.ResponseWriter, r *http.Request) {
	userID, scope, err := h.params(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	record, err := h.consent.Decline(r.Context(), userID, scope)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(record))
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	userID, scope, err := h.params(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	record, err := h.consent.Withdraw(r.Context(), userID, scope)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if record == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(record))
}

func (h *Handler) handleWithdrawAll(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	count, err := h.consent.WithdrawAll(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int{"withdrawn": count})
}

type renewRequest struct {
	AdditionalDays int `json:"additional_days"`
}

func (h *Handler) handleRenew(w http.ResponseWriter, r *http.Request) {
	userID, scope, err := h.params(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req renewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	record, err := h.consent.Renew(r.Context(), userID, scope, req.AdditionalDays)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(record))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID, scope, err := h.params(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	status, err := h.consent.Status(r.Context(), userID, scope)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	active, err := h.consent.HasActiveConsent(r.Context(), userID, scope)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"status": string(status),
		"active": active,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	records, err := h.consent.ListByUser(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	responses := make([]consentResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, toResponse(record))
	}
	shared.WriteJSON(w, http.StatusOK, responses)
}

type validateExportRequest struct {
	Scopes []string `json:"scopes"`
}

func (h *Handler) handleValidateExport(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req validateExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	scopes := make([]id.ConsentScope, 0, len(req.Scopes))
	for _, raw := range req.Scopes {
		scope, err := id.ParseConsentScope(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		scopes = append(scopes, scope)
	}
	validation, err := h.consent.ValidateForExport(r.Context(), userID, scopes)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"valid":   validation.Valid(),
		"granted": scopeStrings(validation.Granted),
		"missing": scopeStrings(validation.Missing),
		"expired": scopeStrings(validation.Expired),
	})
}

func (h *Handler) handleStaleLanguage(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	stale, err := h.consent.StaleLanguage(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"stale_scopes": scopeStrings(stale)})
}

func (h *Handler) handleProcessExpired(w http.ResponseWriter, r *http.Request) {
	count, err := h.consent.ProcessExpired(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int{"processed": count})
}

func (h *Handler) handleLanguage(w http.ResponseWriter, r *http.Request) {
	scope, err := id.ParseConsentScope(chi.URLParam(r, "scope"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	lang := h.consent.Languages().Current(scope)
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"scope":   scope.String(),
		"version": lang.Version,
		"hash":    lang.Hash,
		"text":    lang.Text,
	})
}

func scopeStrings(scopes []id.ConsentScope) []string {
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		out = append(out, scope.String())
	}
	return out
}

func parseOptionalStudyID(raw string) (id.StudyID, error) {
	if raw == "" {
		return id.StudyID{}, nil
	}
	return id.ParseStudyID(raw)
}
