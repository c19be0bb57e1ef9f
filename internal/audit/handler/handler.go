// Package handler exposes read access to the governance trail. The trail is
// append-only; this surface is query-only.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tessera/internal/transport/http/shared"
	dErrors "tessera/pkg/domain-errors"
	"tessera/pkg/platform/audit"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// Handler serves governance trail queries.
type Handler struct {
	trail  audit.Store
	logger *slog.Logger
}

// New creates an audit trail Handler.
func New(trail audit.Store, logger *slog.Logger) *Handler {
	return &Handler{trail: trail, logger: logger}
}

// Register mounts the audit routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.Get("/recent", h.handleRecent)
		r.Get("/{subjectType}/{subject}", h.handleBySubject)
	})
}

type eventResponse struct {
	Category       string    `json:"category"`
	Timestamp      time.Time `json:"timestamp"`
	SubjectType    string    `json:"subject_type"`
	Subject        string    `json:"subject"`
	Action         string    `json:"action"`
	Decision       string    `json:"decision,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Scope          string    `json:"scope,omitempty"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status,omitempty"`
	ConsentVersion int       `json:"consent_version,omitempty"`
	StudyID        string    `json:"study_id,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	ActorID        string    `json:"actor_id,omitempty"`
}

func toResponses(events []audit.Event) []eventResponse {
	responses := make([]eventResponse, 0, len(events))
	for _, event := range events {
		responses = append(responses, eventResponse{
			Category:       string(event.Category),
			Timestamp:      event.Timestamp,
			SubjectType:    string(event.SubjectType),
			Subject:        event.Subject,
			Action:         event.Action,
			Decision:       event.Decision,
			Reason:         event.Reason,
			Scope:          event.Scope,
			PreviousStatus: event.PreviousStatus,
			NewStatus:      event.NewStatus,
			ConsentVersion: event.ConsentVersion,
			StudyID:        event.StudyID,
			RequestID:      event.RequestID,
			ActorID:        event.ActorID,
		})
	}
	return responses
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = min(parsed, maxRecentLimit)
	}
	events, err := h.trail.ListRecent(r.Context(), limit)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"events": toResponses(events)})
}

var subjectTypes = map[audit.SubjectType]bool{
	audit.SubjectUser:      true,
	audit.SubjectRequest:   true,
	audit.SubjectAgreement: true,
	audit.SubjectExport:    true,
	audit.SubjectCohort:    true,
}

func (h *Handler) handleBySubject(w http.ResponseWriter, r *http.Request) {
	subjectType := audit.SubjectType(chi.URLParam(r, "subjectType"))
	if !subjectTypes[subjectType] {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "unknown subject type "+string(subjectType)))
		return
	}
	subject := chi.URLParam(r, "subject")
	if subject == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "subject is required"))
		return
	}
	events, err := h.trail.ListBySubject(r.Context(), subjectType, subject)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"events": toResponses(events)})
}
