// Package handler exposes the cohort builder over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tessera/internal/cohort"
	"tessera/internal/transport/http/shared"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
)

// Handler handles cohort endpoints.
type Handler struct {
	cohorts *cohort.Service
	logger  *slog.Logger
}

// New creates a cohort Handler.
func New(service *cohort.Service, logger *slog.Logger) *Handler {
	return &Handler{cohorts: service, logger: logger}
}

// Register mounts the cohort routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/cohorts", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Route("/{cohortID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Delete("/", h.handleDelete)
			r.Put("/criteria", h.handleUpdateCriteria)
			r.Post("/lock", h.handleLock)
			r.Post("/members", h.handleAddMember)
			r.Delete("/members/{participantID}", h.handleRemoveMember)
			r.Get("/members", h.handleFilterMembers)
			r.Get("/statistics", h.handleStatistics)
			r.Get("/manifest", h.handleManifest)
		})
	})
}

type criteriaPayload struct {
	AgeBands            []string   `json:"age_bands,omitempty"`
	Regions             []string   `json:"regions,omitempty"`
	Contexts            []string   `json:"contexts,omitempty"`
	MinSignalCount      int        `json:"min_signal_count,omitempty"`
	MinDaysActive       int        `json:"min_days_active,omitempty"`
	ActiveFrom          *time.Time `json:"active_from,omitempty"`
	ActiveTo            *time.Time `json:"active_to,omitempty"`
	RequireIntervention *bool      `json:"require_intervention,omitempty"`
	MinQualityScore     int        `json:"min_quality_score,omitempty"`
}

func (p criteriaPayload) toCriteria() cohort.Criteria {
	criteria := cohort.Criteria{
		MinSignalCount:      p.MinSignalCount,
		MinDaysActive:       p.MinDaysActive,
		ActiveFrom:          p.ActiveFrom,
		ActiveTo:            p.ActiveTo,
		RequireIntervention: p.RequireIntervention,
		MinQualityScore:     p.MinQualityScore,
	}
	for _, band := range p.AgeBands {
		criteria.AgeBands = append(criteria.AgeBands, cohort.AgeBand(band))
	}
	for _, region := range p.Regions {
		criteria.Regions = append(criteria.Regions, cohort.Region(region))
	}
	for _, context := range p.Contexts {
		criteria.Contexts = append(criteria.Contexts, cohort.Context(context))
	}
	return criteria
}

type cohortResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	MemberCount int        `json:"member_count"`
	StudyID     string     `json:"study_id,omitempty"`
	IsLocked    bool       `json:"is_locked"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toCohortResponse(c *cohort.Cohort) cohortResponse {
	resp := cohortResponse{
		ID:          c.ID.String(),
		Name:        c.Name,
		Description: c.Description,
		MemberCount: c.MemberCount,
		IsLocked:    c.IsLocked,
		LockedAt:    c.LockedAt,
		ExpiresAt:   c.ExpiresAt,
		CreatedAt:   c.CreatedAt,
	}
	if !c.StudyID.IsNil() {
		resp.StudyID = c.StudyID.String()
	}
	return resp
}

type createCohortRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Criteria    criteriaPayload `json:"criteria"`
	StudyID     string          `json:"study_id"`
	ExpiresAt   *time.Time      `json:"expires_at"`
	CreatedBy   string          `json:"created_by"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createCohortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	var studyID id.StudyID
	if req.StudyID != "" {
		parsed, err := id.ParseStudyID(req.StudyID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		studyID = parsed
	}
	created, err := h.cohorts.CreateCohort(r.Context(), req.Name, req.Description, req.Criteria.toCriteria(), studyID, req.ExpiresAt, req.CreatedBy)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toCohortResponse(created))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	cohorts, err := h.cohorts.List(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	responses := make([]cohortResponse, 0, len(cohorts))
	for _, c := range cohorts {
		responses = append(responses, toCohortResponse(c))
	}
	shared.WriteJSON(w, http.StatusOK, responses)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	cohortID, err := id.ParseCohortID(chi.URLParam(r, "cohortID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	c, err := h.cohorts.Get(r.Context(), cohortID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toCohortResponse(c))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	cohortID, err := id.ParseCohortID(chi.URLParam(r, "cohortID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.cohorts.DeleteCohort(r.Context(), cohortID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdateCriteria(w http.ResponseWriter, r *http.Request) {
	cohortID, err := id.ParseCohortID(chi.URLParam(r, "cohortID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var payload criteriaPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	updated, err := h.cohorts.UpdateCriteria(r.Context(), cohortID, payload.toCriteria())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toCohortResponse(updated))
}

func (h *Handler) handleLock(w http.ResponseWriter, r *http.Request) {
	cohortID, err := id.ParseCohortID(chi.URLParam(r, "cohortID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	locked, err := h.cohorts.LockCohort(r.Context(), cohortID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toCohortResponse(locked))
}

type addMemberRequest struct {
	UserID                 string    `json:"user_id"`
	Age                    int       `json:"age"`
	CountryCode            string    `json:"country_code"`
	ContextLabels          []string  `json:"context_labels"`
	SignalCount            int       `json:"signal_count"`
	DaysActive             int       `json:"days_active"`
	FirstSignalAt          time.Time `json:"first_signal_at"`
	LastSignalAt           time.Time `json:"last_signal_at"`
	HasInterventionMarkers bool      `json:"has_intervention_markers"`
}

type memberResponse struct {
	ParticipantID string `json:"participant_id"`
	AgeBand       string `json:"age_band"`
	Region        string `json:"region"`
	Context       string `json:"context"`
	SignalCount   int    `json:"signal_count"`
	DaysActive    int    `json:"days_active"`
	QualityScore  int    `json:"quality_score"`
}

func toMemberResponse(m *cohort.Member) memberResponse {
	return memberResponse{
		ParticipantID: m.ParticipantID.String(),
		AgeBand:       string(m.AgeBand),
		Region:        string(m.Region),
		Context:       string(m.Context),
		SignalCount:   m.SignalCount,
		DaysActive:    m.DaysActive,
		QualityScore:  m.QualityScore,
	}
}

func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	cohortID, err := id.ParseCohortID(chi.URLParam(r, "cohortID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	member, err := h.cohorts.AddMember(r.Context(), cohortID, userID, cohort.EnrollmentProfile{
		Age:                    req.Age,
		CountryCode:            req.CountryCode,
		ContextLabels:          req.ContextLabels,
		SignalCount:            req.SignalCount,
		DaysActive:             req.DaysActive,
		FirstSignalAt:          req.FirstSignalAt,
		LastSignalAt:           req.LastSignalAt,
		HasInterventionMarkers: req.HasInterventionMarkers,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if member == nil {
		// Consent absent: not an error, nothing was enrolled.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toMemberResponse(member))
}

func (h *Handler) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	cohortID, err := id.ParseCohortID(chi.URLParam(r, "cohortID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	participantID, err := id.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.cohorts.RemoveMember(r.Context(), cohortID, participantID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFilterMembers(w http.ResponseWriter, r *http.Request) {
	cohortID, err := id.ParseCohortID(chi.URLParam(r, "cohortID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var extra *cohort.Criteria
	if raw := r.URL.Query().Get("criteria"); raw != "" {
		var payload criteriaPayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid criteria"))
			return
		}
		criteria := payload.toCriteria()
		extra = &criteria
	}
	members, err := h.cohorts.FilterMembers(r.Context(), cohortID, extra)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	responses := make([]memberResponse, 0, len(members))
	for _, member := range members {
		responses = append(responses, toMemberResponse(member))
	}
	shared.WriteJSON(w, http.StatusOK, responses)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	cohortID, err := id.ParseCohortID(chi.URLParam(r, "cohortID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	stats, err := h.cohorts.GetStatistics(r.Context(), cohortID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleManifest(w http.ResponseWriter, r *http.Request) {
	cohortID, err := id.ParseCohortID(chi.URLParam(r, "cohortID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	manifest, err := h.cohorts.ExportManifest(r.Context(), cohortID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, manifest)
}
