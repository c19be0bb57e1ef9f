// Package handler exposes export packaging over HTTP. Operator routes live
// under /exports; the partner-facing routes under /partner trade an agreement
// credential for a short-lived token and gate every read on it.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tessera/internal/cohort"
	"tessera/internal/export"
	"tessera/internal/transport/http/shared"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
)

// CredentialVerifier checks a partner's agreement credential.
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, agreementID id.AgreementID, secret string) error
}

// CohortNamer resolves cohort names for rendered documents.
type CohortNamer interface {
	Get(ctx context.Context, cohortID id.CohortID) (*cohort.Cohort, error)
}

// Handler handles export endpoints.
type Handler struct {
	exports     *export.Service
	tokens      *export.TokenService
	credentials CredentialVerifier
	cohorts     CohortNamer
	tokenTTL    time.Duration
	logger      *slog.Logger
}

// New creates an export Handler.
func New(exports *export.Service, tokens *export.TokenService, credentials CredentialVerifier, cohorts CohortNamer, tokenTTL time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		exports:     exports,
		tokens:      tokens,
		credentials: credentials,
		cohorts:     cohorts,
		tokenTTL:    tokenTTL,
		logger:      logger,
	}
}

// Register mounts the export routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/exports", func(r chi.Router) {
		r.Post("/", h.handleGenerate)
		r.Get("/", h.handleListByCohort)
		r.Get("/{exportID}", h.handleGet)
		r.Get("/{exportID}/document", h.handleDocument)
		r.Post("/{exportID}/access", h.handleRecordAccess)
	})
	r.Route("/partner", func(r chi.Router) {
		r.Post("/token", h.handlePartnerToken)
		r.Get("/exports/{exportID}", h.handlePartnerGet)
		r.Get("/exports/{exportID}/document", h.handlePartnerDocument)
	})
}

type packageResponse struct {
	ID              string               `json:"id"`
	CohortID        string               `json:"cohort_id"`
	AgreementID     string               `json:"agreement_id"`
	Format          string               `json:"format"`
	GeneratedAt     time.Time            `json:"generated_at"`
	GeneratedBy     string               `json:"generated_by,omitempty"`
	StudyID         string               `json:"study_id,omitempty"`
	ProtocolVersion string               `json:"protocol_version,omitempty"`
	RecordCount     int                  `json:"record_count"`
	FileManifest    []export.FileEntry   `json:"file_manifest"`
	Metadata        export.Metadata      `json:"metadata"`
	AccessLog       []export.AccessEntry `json:"access_log"`
}

func toPackageResponse(pkg *export.Package) packageResponse {
	resp := packageResponse{
		ID:              pkg.ID.String(),
		CohortID:        pkg.CohortID.String(),
		AgreementID:     pkg.AgreementID.String(),
		Format:          string(pkg.Format),
		GeneratedAt:     pkg.GeneratedAt,
		GeneratedBy:     pkg.GeneratedBy,
		ProtocolVersion: pkg.ProtocolVersion,
		RecordCount:     pkg.RecordCount,
		FileManifest:    pkg.FileManifest,
		Metadata:        pkg.Metadata,
		AccessLog:       pkg.AccessLog,
	}
	if !pkg.StudyID.IsNil() {
		resp.StudyID = pkg.StudyID.String()
	}
	return resp
}

type generateRequest struct {
	CohortID        string `json:"cohort_id"`
	AgreementID     string `json:"agreement_id"`
	Format          string `json:"format"`
	GeneratedBy     string `json:"generated_by"`
	StudyID         string `json:"study_id"`
	ProtocolVersion string `json:"protocol_version"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	cohortID, err := id.ParseCohortID(req.CohortID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	agreementID, err := id.ParseAgreementID(req.AgreementID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	format, ok := export.ParseFormat(req.Format)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "unknown export format "+req.Format))
		return
	}
	var studyID id.StudyID
	if req.StudyID != "" {
		studyID, err = id.ParseStudyID(req.StudyID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
	}
	pkg, content, err := h.exports.Generate(r.Context(), export.Config{
		CohortID:    cohortID,
		AgreementID: agreementID,
		Format:      format,
	}, req.GeneratedBy, studyID, req.ProtocolVersion)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	// Every serializer emits JSON, so the content embeds directly.
	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"package": toPackageResponse(pkg),
		"content": json.RawMessage(content),
	})
}

func (h *Handler) handleListByCohort(w http.ResponseWriter, r *http.Request) {
	cohortID, err := id.ParseCohortID(r.URL.Query().Get("cohort_id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	packages, err := h.exports.ListByCohort(r.Context(), cohortID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	responses := make([]packageResponse, 0, len(packages))
	for _, pkg := range packages {
		responses = append(responses, toPackageResponse(pkg))
	}
	shared.WriteJSON(w, http.StatusOK, responses)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	pkg, err := h.getPackage(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toPackageResponse(pkg))
}

func (h *Handler) handleDocument(w http.ResponseWriter, r *http.Request) {
	pkg, err := h.getPackage(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	h.writeDocument(w, r, pkg)
}

type recordAccessRequest struct {
	AccessedBy string `json:"accessed_by"`
}

func (h *Handler) handleRecordAccess(w http.ResponseWriter, r *http.Request) {
	exportID, err := id.ParseExportID(chi.URLParam(r, "exportID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req recordAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	if err := h.exports.RecordAccess(r.Context(), exportID, req.AccessedBy); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type partnerTokenRequest struct {
	AgreementID string `json:"agreement_id"`
	Credential  string `json:"credential"`
}

func (h *Handler) handlePartnerToken(w http.ResponseWriter, r *http.Request) {
	var req partnerTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	agreementID, err := id.ParseAgreementID(req.AgreementID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.credentials.VerifyCredential(r.Context(), agreementID, req.Credential); err != nil {
		shared.WriteError(w, err)
		return
	}
	token, err := h.tokens.Mint(agreementID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(h.tokenTTL.Seconds()),
	})
}

func (h *Handler) handlePartnerGet(w http.ResponseWriter, r *http.Request) {
	pkg, agreementID, err := h.partnerPackage(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.exports.RecordAccess(r.Context(), pkg.ID, "partner:"+agreementID.String()); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toPackageResponse(pkg))
}

func (h *Handler) handlePartnerDocument(w http.ResponseWriter, r *http.Request) {
	pkg, agreementID, err := h.partnerPackage(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.exports.RecordAccess(r.Context(), pkg.ID, "partner:"+agreementID.String()); err != nil {
		shared.WriteError(w, err)
		return
	}
	h.writeDocument(w, r, pkg)
}

func (h *Handler) getPackage(r *http.Request) (*export.Package, error) {
	exportID, err := id.ParseExportID(chi.URLParam(r, "exportID"))
	if err != nil {
		return nil, err
	}
	return h.exports.Get(r.Context(), exportID)
}

// partnerPackage authenticates the bearer token and loads the package,
// refusing any package generated under a different agreement.
func (h *Handler) partnerPackage(r *http.Request) (*export.Package, id.AgreementID, error) {
	agreementID, err := h.tokens.Verify(bearerToken(r))
	if err != nil {
		return nil, id.AgreementID{}, err
	}
	pkg, err := h.getPackage(r)
	if err != nil {
		return nil, id.AgreementID{}, err
	}
	if pkg.AgreementID != agreementID {
		return nil, id.AgreementID{}, dErrors.New(dErrors.CodeAccessDenied, "package belongs to a different agreement")
	}
	return pkg, agreementID, nil
}

func (h *Handler) writeDocument(w http.ResponseWriter, r *http.Request, pkg *export.Package) {
	cohortName := ""
	if h.cohorts != nil {
		if c, err := h.cohorts.Get(r.Context(), pkg.CohortID); err == nil {
			cohortName = c.Name
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(export.RenderDocument(pkg, cohortName)))
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
