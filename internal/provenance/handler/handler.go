// Package handler exposes provenance tracking over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tessera/internal/provenance"
	"tessera/internal/transport/http/shared"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
)

// Handler handles provenance endpoints.
type Handler struct {
	tracker *provenance.Tracker
	logger  *slog.Logger
}

// New creates a provenance Handler.
func New(tracker *provenance.Tracker, logger *slog.Logger) *Handler {
	return &Handler{tracker: tracker, logger: logger}
}

// Register mounts the provenance routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/provenance", func(r chi.Router) {
		r.Post("/", h.handleRecordCapture)
		r.Get("/participants/{participantID}/sources", h.handleSources)
		r.Route("/{dataPointID}", func(r chi.Router) {
			r.Get("/history", h.handleHistory)
			r.Post("/modifications", h.handleRecordModification)
		})
	})
}

type captureRequest struct {
	ParticipantID  string    `json:"participant_id"`
	SourceType     string    `json:"source_type"`
	CapturedAt     time.Time `json:"captured_at"`
	DeviceType     string    `json:"device_type"`
	AppVersion     string    `json:"app_version"`
	TimezoneOffset int       `json:"timezone_offset"`
}

func (h *Handler) handleRecordCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	participantID, err := id.ParseParticipantID(req.ParticipantID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	record := &provenance.Record{
		DataPointID:    id.NewDataPointID(),
		ParticipantID:  participantID,
		SourceType:     provenance.SourceType(req.SourceType),
		CapturedAt:     req.CapturedAt,
		DeviceType:     req.DeviceType,
		AppVersion:     req.AppVersion,
		TimezoneOffset: req.TimezoneOffset,
	}
	if err := h.tracker.RecordCapture(r.Context(), record); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]string{
		"data_point_id": record.DataPointID.String(),
	})
}

type modificationRequest struct {
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Field      string    `json:"field"`
	Note       string    `json:"note"`
}

func (h *Handler) handleRecordModification(w http.ResponseWriter, r *http.Request) {
	dataPointID, err := id.ParseDataPointID(chi.URLParam(r, "dataPointID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req modificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	mod := provenance.Modification{
		Kind:       provenance.ChangeKind(req.Kind),
		OccurredAt: req.OccurredAt,
		Field:      req.Field,
		Note:       req.Note,
	}
	if err := h.tracker.RecordModification(r.Context(), dataPointID, mod); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type modificationResponse struct {
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Field      string    `json:"field,omitempty"`
	Note       string    `json:"note,omitempty"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	dataPointID, err := id.ParseDataPointID(chi.URLParam(r, "dataPointID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	history, err := h.tracker.History(r.Context(), dataPointID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	responses := make([]modificationResponse, 0, len(history))
	for _, mod := range history {
		responses = append(responses, modificationResponse{
			Kind:       string(mod.Kind),
			OccurredAt: mod.OccurredAt,
			Field:      mod.Field,
			Note:       mod.Note,
		})
	}
	shared.WriteJSON(w, http.StatusOK, responses)
}

func (h *Handler) handleSources(w http.ResponseWriter, r *http.Request) {
	participantID, err := id.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	sources, err := h.tracker.SourceLabels(r.Context(), participantID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string][]string{"source_types": sources})
}
