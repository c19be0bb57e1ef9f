// Package handler exposes the three signal domains over HTTP. Recording
// routes are keyed by user and consent-gated inside the services; profile
// routes are keyed by participant and return only de-identified aggregates.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tessera/internal/signals/engagement"
	"tessera/internal/signals/intervention"
	"tessera/internal/signals/sensor"
	"tessera/internal/transport/http/shared"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
)

// Handler handles signal endpoints.
type Handler struct {
	engagement    *engagement.Service
	interventions *intervention.Service
	sensors       *sensor.Service
	logger        *slog.Logger
}

// New creates a signals Handler.
func New(eng *engagement.Service, iv *intervention.Service, sr *sensor.Service, logger *slog.Logger) *Handler {
	return &Handler{engagement: eng, interventions: iv, sensors: sr, logger: logger}
}

// Register mounts the signal routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/signals", func(r chi.Router) {
		r.Post("/engagement/{userID}", h.handleRecordEngagement)
		r.Get("/engagement/profile/{participantID}", h.handleEngagementProfile)
		r.Get("/engagement/user/{userID}", h.handleEngagementUserProfile)

		r.Post("/intervention/{userID}", h.handleRecordIntervention)
		r.Get("/intervention/profile/{participantID}", h.handleInterventionProfile)
		r.Get("/intervention/user/{userID}", h.handleInterventionUserProfile)

		r.Post("/sensor/{userID}", h.handleRecordSensor)
		r.Get("/sensor/profile/{participantID}", h.handleSensorProfile)
		r.Get("/sensor/user/{userID}", h.handleSensorUserProfile)
	})
}

type engagementProfileResponse struct {
	ParticipantID string         `json:"participant_id"`
	TotalEvents   int            `json:"total_events"`
	ActiveDays    int            `json:"active_days"`
	FirstEventAt  time.Time      `json:"first_event_at"`
	LastEventAt   time.Time      `json:"last_event_at"`
	ByType        map[string]int `json:"by_type"`
}

func toEngagementProfile(p *engagement.Profile) engagementProfileResponse {
	byType := make(map[string]int, len(p.ByType))
	for t, n := range p.ByType {
		byType[string(t)] = n
	}
	return engagementProfileResponse{
		ParticipantID: p.ParticipantID.String(),
		TotalEvents:   p.TotalEvents,
		ActiveDays:    p.ActiveDays,
		FirstEventAt:  p.FirstEventAt,
		LastEventAt:   p.LastEventAt,
		ByType:        byType,
	}
}

type interventionProfileResponse struct {
	ParticipantID string         `json:"participant_id"`
	TotalMarkers  int            `json:"total_markers"`
	HasMarkers    bool           `json:"has_markers"`
	ByKind        map[string]int `json:"by_kind"`
	FirstMarkerAt time.Time      `json:"first_marker_at"`
	LastMarkerAt  time.Time      `json:"last_marker_at"`
}

func toInterventionProfile(p *intervention.Profile) interventionProfileResponse {
	byKind := make(map[string]int, len(p.ByKind))
	for k, n := range p.ByKind {
		byKind[string(k)] = n
	}
	return interventionProfileResponse{
		ParticipantID: p.ParticipantID.String(),
		TotalMarkers:  p.TotalMarkers,
		HasMarkers:    p.HasMarkers,
		ByKind:        byKind,
		FirstMarkerAt: p.FirstMarkerAt,
		LastMarkerAt:  p.LastMarkerAt,
	}
}

type sensorProfileResponse struct {
	ParticipantID  string         `json:"participant_id"`
	TotalReadings  int            `json:"total_readings"`
	ActiveDays     int            `json:"active_days"`
	FirstReadingAt time.Time      `json:"first_reading_at"`
	LastReadingAt  time.Time      `json:"last_reading_at"`
	ByMetric       map[string]int `json:"by_metric"`
}

func toSensorProfile(p *sensor.Profile) sensorProfileResponse {
	byMetric := make(map[string]int, len(p.ByMetric))
	for m, n := range p.ByMetric {
		byMetric[string(m)] = n
	}
	return sensorProfileResponse{
		ParticipantID:  p.ParticipantID.String(),
		TotalReadings:  p.TotalReadings,
		ActiveDays:     p.ActiveDays,
		FirstReadingAt: p.FirstReadingAt,
		LastReadingAt:  p.LastReadingAt,
		ByMetric:       byMetric,
	}
}

type engagementEventRequest struct {
	Type       string    `json:"type"`
	Feature    string    `json:"feature"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (h *Handler) handleRecordEngagement(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req engagementEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	err = h.engagement.Record(r.Context(), userID, engagement.Event{
		Type:       engagement.EventType(req.Type),
		Feature:    req.Feature,
		OccurredAt: req.OccurredAt,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleEngagementProfile(w http.ResponseWriter, r *http.Request) {
	participantID, err := id.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	profile, err := h.engagement.ProfileFor(r.Context(), participantID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toEngagementProfile(profile))
}

func (h *Handler) handleEngagementUserProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	profile, err := h.engagement.ProfileForUser(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if profile == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toEngagementProfile(profile))
}

type interventionMarkerRequest struct {
	Kind       string    `json:"kind"`
	Label      string    `json:"label"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (h *Handler) handleRecordIntervention(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req interventionMarkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	err = h.interventions.Record(r.Context(), userID, intervention.Marker{
		Kind:       intervention.Kind(req.Kind),
		Label:      req.Label,
		OccurredAt: req.OccurredAt,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleInterventionProfile(w http.ResponseWriter, r *http.Request) {
	participantID, err := id.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	profile, err := h.interventions.ProfileFor(r.Context(), participantID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toInterventionProfile(profile))
}

func (h *Handler) handleInterventionUserProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	profile, err := h.interventions.ProfileForUser(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if profile == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toInterventionProfile(profile))
}

type sensorReadingRequest struct {
	Source     string    `json:"source"`
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	CapturedAt time.Time `json:"captured_at"`
}

func (h *Handler) handleRecordSensor(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req sensorReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	err = h.sensors.Record(r.Context(), userID, sensor.Reading{
		Source:     req.Source,
		Metric:     sensor.Metric(req.Metric),
		Value:      req.Value,
		CapturedAt: req.CapturedAt,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleSensorProfile(w http.ResponseWriter, r *http.Request) {
	participantID, err := id.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	profile, err := h.sensors.ProfileFor(r.Context(), participantID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSensorProfile(profile))
}

func (h *Handler) handleSensorUserProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	profile, err := h.sensors.ProfileForUser(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if profile == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toSensorProfile(profile))
}
