// Package handler exposes quality scoring over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tessera/internal/quality"
	"tessera/internal/transport/http/shared"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
)

// Handler handles quality score endpoints.
type Handler struct {
	quality *quality.Service
	logger  *slog.Logger
}

// New creates a quality Handler.
func New(service *quality.Service, logger *slog.Logger) *Handler {
	return &Handler{quality: service, logger: logger}
}

// Register mounts the quality routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/quality/{participantID}", func(r chi.Router) {
		r.Get("/", h.handleLatest)
		r.Post("/recalculate", h.handleRecalculate)
	})
}

type scoreResponse struct {
	ParticipantID   string    `json:"participant_id"`
	OverallScore    int       `json:"overall_score"`
	Completeness    int       `json:"completeness"`
	Consistency     int       `json:"consistency"`
	Timeliness      int       `json:"timeliness"`
	Continuity      int       `json:"continuity"`
	Stability       int       `json:"stability"`
	SignalFrequency string    `json:"signal_frequency"`
	CalculatedAt    time.Time `json:"calculated_at"`
}

func toScoreResponse(score quality.Score) scoreResponse {
	return scoreResponse{
		ParticipantID:   score.ParticipantID.String(),
		OverallScore:    score.OverallScore,
		Completeness:    score.Completeness,
		Consistency:     score.Consistency,
		Timeliness:      score.Timeliness,
		Continuity:      score.Continuity,
		Stability:       score.Stability,
		SignalFrequency: string(score.SignalFrequency),
		CalculatedAt:    score.CalculatedAt,
	}
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	participantID, err := id.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	score, err := h.quality.Latest(r.Context(), participantID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toScoreResponse(score))
}

type signalPointPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type recalculateRequest struct {
	Points       []signalPointPayload `json:"points"`
	ExpectedRate float64              `json:"expected_rate"`
}

func (h *Handler) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	participantID, err := id.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req recalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	points := make([]quality.SignalPoint, 0, len(req.Points))
	for _, p := range req.Points {
		points = append(points, quality.SignalPoint{Timestamp: p.Timestamp, Value: p.Value})
	}
	score, err := h.quality.Recalculate(r.Context(), participantID, points, req.ExpectedRate)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toScoreResponse(score))
}
