// Package handler exposes partnership governance over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tessera/internal/partnership"
	"tessera/internal/transport/http/shared"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
)

// Handler handles partnership endpoints.
type Handler struct {
	partnerships *partnership.Service
	logger       *slog.Logger
}

// New creates a partnership Handler.
func New(service *partnership.Service, logger *slog.Logger) *Handler {
	return &Handler{partnerships: service, logger: logger}
}

// Register mounts the partnership routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/partnerships", func(r chi.Router) {
		r.Post("/requests", h.handleSubmitRequest)
		r.Get("/requests", h.handleListRequests)
		r.Get("/requests/{requestID}", h.handleGetRequest)
		r.Post("/requests/{requestID}/status", h.handleUpdateRequestStatus)

		r.Post("/agreements", h.handleCreateAgreement)
		r.Get("/agreements", h.handleListAgreements)
		r.Get("/agreements/{agreementID}", h.handleGetAgreement)
		r.Post("/agreements/{agreementID}/sign", h.handleSign)
		r.Post("/agreements/{agreementID}/activate", h.handleActivate)
		r.Post("/agreements/{agreementID}/pause", h.handlePause)
		r.Post("/agreements/{agreementID}/terminate", h.handleTerminate)
		r.Post("/agreements/{agreementID}/validate-access", h.handleValidateAccess)
		r.Post("/agreements/{agreementID}/record-access", h.handleRecordAccess)
		r.Post("/agreements/{agreementID}/record-audit", h.handleRecordAudit)
	})
}

type requestResponse struct {
	ID           string    `json:"id"`
	Organization string    `json:"organization"`
	ContactEmail string    `json:"contact_email,omitempty"`
	Status       string    `json:"status"`
	Reviewer     string    `json:"reviewer,omitempty"`
	ReviewNotes  string    `json:"review_notes,omitempty"`
	AgreementID  string    `json:"agreement_id,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

func toRequestResponse(request *partnership.Request) requestResponse {
	resp := requestResponse{
		ID:           request.ID.String(),
		Organization: request.Organization,
		ContactEmail: request.ContactEmail,
		Status:       string(request.Status),
		Reviewer:     request.Reviewer,
		ReviewNotes:  request.ReviewNotes,
		SubmittedAt:  request.SubmittedAt,
	}
	if !request.AgreementID.IsNil() {
		resp.AgreementID = request.AgreementID.String()
	}
	return resp
}

type agreementResponse struct {
	ID              string                 `json:"id"`
	RequestID       string                 `json:"request_id"`
	PartnerName     string                 `json:"partner_name"`
	Status          string                 `json:"status"`
	AllowedElements []string               `json:"allowed_elements"`
	AllowedFormats  []string               `json:"allowed_formats"`
	EffectiveAt     time.Time              `json:"effective_at"`
	ExpiresAt       time.Time              `json:"expires_at"`
	AuditLog        []partnership.LogEntry `json:"audit_log"`
}

func toAgreementResponse(agreement *partnership.Agreement) agreementResponse {
	return agreementResponse{
		ID:              agreement.ID.String(),
		RequestID:       agreement.RequestID.String(),
		PartnerName:     agreement.PartnerName,
		Status:          string(agreement.Status),
		AllowedElements: agreement.AllowedElements,
		AllowedFormats:  agreement.AllowedFormats,
		EffectiveAt:     agreement.EffectiveAt,
		ExpiresAt:       agreement.ExpiresAt,
		AuditLog:        agreement.AuditLog,
	}
}

type submitRequestRequest struct {
	Organization string `json:"organization"`
	ContactEmail string `json:"contact_email"`
	Proposal     string `json:"proposal"`
}

func (h *Handler) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req submitRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	request, err := h.partnerships.SubmitRequest(r.Context(), req.Organization, req.ContactEmail, req.Proposal)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toRequestResponse(request))
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.partnerships.ListRequests(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	responses := make([]requestResponse, 0, len(requests))
	for _, request := range requests {
		responses = append(responses, toRequestResponse(request))
	}
	shared.WriteJSON(w, http.StatusOK, responses)
}

func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParsePartnershipRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	request, err := h.partnerships.GetRequest(r.Context(), requestID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRequestResponse(request))
}

type updateStatusRequest struct {
	Status   string `json:"status"`
	Reviewer string `json:"reviewer"`
	Notes    string `json:"notes"`
}

func (h *Handler) handleUpdateRequestStatus(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParsePartnershipRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	request, err := h.partnerships.UpdateRequestStatus(r.Context(), requestID,
		partnership.RequestStatus(req.Status), req.Reviewer, req.Notes)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRequestResponse(request))
}

type createAgreementRequest struct {
	RequestID       string    `json:"request_id"`
	PartnerName     string    `json:"partner_name"`
	AllowedElements []string  `json:"allowed_elements"`
	AllowedFormats  []string  `json:"allowed_formats"`
	EffectiveAt     time.Time `json:"effective_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

func (h *Handler) handleCreateAgreement(w http.ResponseWriter, r *http.Request) {
	var req createAgreementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	requestID, err := id.ParsePartnershipRequestID(req.RequestID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	agreement, secret, err := h.partnerships.CreateAgreement(r.Context(), requestID, req.PartnerName,
		req.AllowedElements, req.AllowedFormats, req.EffectiveAt, req.ExpiresAt)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	// The credential appears in this response only; it is never retrievable
	// again.
	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"agreement":  toAgreementResponse(agreement),
		"credential": secret,
	})
}

func (h *Handler) handleListAgreements(w http.ResponseWriter, r *http.Request) {
	agreements, err := h.partnerships.ListAgreements(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	responses := make([]agreementResponse, 0, len(agreements))
	for _, agreement := range agreements {
		responses = append(responses, toAgreementResponse(agreement))
	}
	shared.WriteJSON(w, http.StatusOK, responses)
}

func (h *Handler) handleGetAgreement(w http.ResponseWriter, r *http.Request) {
	agreementID, err := id.ParseAgreementID(chi.URLParam(r, "agreementID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	agreement, err := h.partnerships.GetAgreement(r.Context(), agreementID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toAgreementResponse(agreement))
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.partnerships.SignAgreement)
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.partnerships.ActivateAgreement)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.partnerships.PauseAgreement)
}

func (h *Handler) handleTerminate(w http.ResponseWriter, r *http.Request) {
	agreementID, err := id.ParseAgreementID(chi.URLParam(r, "agreementID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	agreement, err := h.partnerships.TerminateAgreement(r.Context(), agreementID, req.Reason)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toAgreementResponse(agreement))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, agreementID id.AgreementID) (*partnership.Agreement, error)) {
	agreementID, err := id.ParseAgreementID(chi.URLParam(r, "agreementID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	agreement, err := fn(r.Context(), agreementID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toAgreementResponse(agreement))
}

type validateAccessRequest struct {
	Elements []string `json:"elements"`
	Format   string   `json:"format"`
}

func (h *Handler) handleValidateAccess(w http.ResponseWriter, r *http.Request) {
	agreementID, err := id.ParseAgreementID(chi.URLParam(r, "agreementID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req validateAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	decision, err := h.partnerships.ValidateDataAccess(r.Context(), agreementID, req.Elements, req.Format)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, decision)
}

type noteRequest struct {
	Note string `json:"note"`
}

func (h *Handler) handleRecordAccess(w http.ResponseWriter, r *http.Request) {
	h.recordNote(w, r, h.partnerships.RecordDataAccess)
}

func (h *Handler) handleRecordAudit(w http.ResponseWriter, r *http.Request) {
	h.recordNote(w, r, h.partnerships.RecordAuditConducted)
}

func (h *Handler) recordNote(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, agreementID id.AgreementID, note string) error) {
	agreementID, err := id.ParseAgreementID(chi.URLParam(r, "agreementID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	if err := fn(r.Context(), agreementID, req.Note); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
