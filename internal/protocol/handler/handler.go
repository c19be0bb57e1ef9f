// Package handler exposes protocol document rendering over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tessera/internal/protocol"
	"tessera/internal/transport/http/shared"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
)

// Handler handles protocol endpoints.
type Handler struct {
	logger *slog.Logger
}

// New creates a protocol Handler.
func New(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// Register mounts the protocol routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/protocols/render", h.handleRender)
}

type renderRequest struct {
	Protocol protocolPayload `json:"protocol"`
	Template templatePayload `json:"template"`
}

type protocolPayload struct {
	StudyID               string    `json:"study_id"`
	Title                 string    `json:"title"`
	Version               string    `json:"version"`
	PrincipalInvestigator string    `json:"principal_investigator"`
	Sponsor               string    `json:"sponsor"`
	Objective             string    `json:"objective"`
	Population            string    `json:"population"`
	DataElements          []string  `json:"data_elements"`
	ConsentScopes         []string  `json:"consent_scopes"`
	RetentionPolicy       string    `json:"retention_policy"`
	SubmittedAt           time.Time `json:"submitted_at"`
}

type templatePayload struct {
	Organization    string `json:"organization"`
	BoardName       string `json:"board_name"`
	Preamble        string `json:"preamble"`
	EthicsStatement string `json:"ethics_statement"`
	ContactEmail    string `json:"contact_email"`
}

func (h *Handler) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	studyID, err := id.ParseStudyID(req.Protocol.StudyID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	scopes := make([]id.ConsentScope, 0, len(req.Protocol.ConsentScopes))
	for _, raw := range req.Protocol.ConsentScopes {
		scope, err := id.ParseConsentScope(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		scopes = append(scopes, scope)
	}
	document := protocol.RenderSubmission(protocol.StudyProtocol{
		StudyID:               studyID,
		Title:                 req.Protocol.Title,
		Version:               req.Protocol.Version,
		PrincipalInvestigator: req.Protocol.PrincipalInvestigator,
		Sponsor:               req.Protocol.Sponsor,
		Objective:             req.Protocol.Objective,
		Population:            req.Protocol.Population,
		DataElements:          req.Protocol.DataElements,
		ConsentScopes:         scopes,
		RetentionPolicy:       req.Protocol.RetentionPolicy,
		SubmittedAt:           req.Protocol.SubmittedAt,
	}, protocol.Template{
		Organization:    req.Template.Organization,
		BoardName:       req.Template.BoardName,
		Preamble:        req.Template.Preamble,
		EthicsStatement: req.Template.EthicsStatement,
		ContactEmail:    req.Template.ContactEmail,
	})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(document))
}
