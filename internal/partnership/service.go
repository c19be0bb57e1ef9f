package partnership

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"tessera/internal/platform/metrics"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
	"tessera/pkg/platform/audit"
	"tessera/pkg/platform/sentinel"
	"tessera/pkg/requestcontext"
	"tessera/pkg/secrets"
)

// Service runs the partnership state machines. Transitions are validated
// against the fixed transition tables; invalid moves return CodeConflict.
type Service struct {
	store   Store
	tx      Tx
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source; tests pin it to exercise the
// effective/expiration window.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs the partnership governor.
func NewService(store Store, tx Tx, opts ...Option) *Service {
	s := &Service{store: store, tx: tx, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitRequest records an inbound partnership inquiry. Every request starts
// at inquiry regardless of how far along the partner believes they are.
func (s *Service) SubmitRequest(ctx context.Context, organization, contactEmail, proposal string) (*Request, error) {
	if organization == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "organization is required")
	}
	now := s.now()
	request := &Request{
		ID:           id.NewPartnershipRequestID(),
		Organization: organization,
		ContactEmail: contactEmail,
		Proposal:     proposal,
		Status:       RequestInquiry,
		SubmittedAt:  now,
		UpdatedAt:    now,
	}
	err := s.tx.RunInTx(ctx, request.ID.String(), func(store Store) error {
		if err := store.CreateRequest(ctx, request); err != nil {
			return err
		}
		return store.AppendAudit(ctx, s.requestEvent(ctx, request, audit.ActionRequestSubmitted, ""))
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "partnership request submitted",
		"request_id", request.ID.String(), "organization", organization)
	return request, nil
}

// UpdateRequestStatus moves a request along its lifecycle, recording reviewer
// and notes. The audit action derives from the target status: negotiating
// reads as reviewed, legal_review as approved, anything else as rejected.
func (s *Service) UpdateRequestStatus(ctx context.Context, requestID id.PartnershipRequestID, to RequestStatus, reviewer, notes string) (*Request, error) {
	var result *Request
	err := s.tx.RunInTx(ctx, requestID.String(), func(store Store) error {
		request, err := store.GetRequest(ctx, requestID)
		if err != nil {
			return translateNotFound(err, "partnership request")
		}
		if !canTransitionRequest(request.Status, to) {
			return dErrors.New(dErrors.CodeConflict,
				"request cannot move from "+string(request.Status)+" to "+string(to))
		}
		prev := request.Status
		request.Status = to
		request.Reviewer = reviewer
		request.ReviewNotes = notes
		request.UpdatedAt = s.now()
		if err := store.SaveRequest(ctx, request); err != nil {
			return err
		}
		event := s.requestEvent(ctx, request, deriveRequestAction(to), notes)
		event.PreviousStatus = string(prev)
		event.NewStatus = string(to)
		if err := store.AppendAudit(ctx, event); err != nil {
			return err
		}
		result = request
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func deriveRequestAction(to RequestStatus) audit.Action {
	switch to {
	case RequestNegotiating:
		return audit.ActionRequestReviewed
	case RequestLegalReview:
		return audit.ActionRequestApproved
	default:
		return audit.ActionRequestRejected
	}
}

// CreateAgreement drafts an agreement from an approved request. The returned
// secret is the partner's API credential, shown exactly once; only its bcrypt
// hash is stored.
func (s *Service) CreateAgreement(ctx context.Context, requestID id.PartnershipRequestID, partnerName string, allowedElements, allowedFormats []string, effectiveAt, expiresAt time.Time) (*Agreement, string, error) {
	if expiresAt.Before(effectiveAt) {
		return nil, "", dErrors.New(dErrors.CodeInvalidInput, "expiration precedes effective date")
	}
	secret, err := secrets.Generate()
	if err != nil {
		return nil, "", err
	}
	hash, err := secrets.Hash(secret)
	if err != nil {
		return nil, "", err
	}

	now := s.now()
	agreement := &Agreement{
		ID:              id.NewAgreementID(),
		RequestID:       requestID,
		PartnerName:     partnerName,
		Status:          AgreementNegotiating,
		AllowedElements: allowedElements,
		AllowedFormats:  allowedFormats,
		EffectiveAt:     effectiveAt,
		ExpiresAt:       expiresAt,
		CredentialHash:  hash,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	agreement.AuditLog = append(agreement.AuditLog, LogEntry{
		At:    now,
		Actor: requestcontext.Actor(ctx),
		Note:  "agreement created",
	})

	err = s.tx.RunInTx(ctx, agreement.ID.String(), func(store Store) error {
		request, err := store.GetRequest(ctx, requestID)
		if err != nil {
			return translateNotFound(err, "partnership request")
		}
		if request.Status != RequestLegalReview {
			return dErrors.New(dErrors.CodeConflict, "agreements require an approved request")
		}
		if !request.AgreementID.IsNil() {
			return dErrors.New(dErrors.CodeConflict, "request already has an agreement")
		}
		if err := store.CreateAgreement(ctx, agreement); err != nil {
			return err
		}
		request.AgreementID = agreement.ID
		request.UpdatedAt = now
		if err := store.SaveRequest(ctx, request); err != nil {
			return err
		}
		return store.AppendAudit(ctx, s.agreementEvent(ctx, agreement, audit.ActionAgreementCreated, "", ""))
	})
	if err != nil {
		return nil, "", err
	}
	return agreement, secret, nil
}

// SignAgreement moves a negotiated agreement into legal review.
func (s *Service) SignAgreement(ctx context.Context, agreementID id.AgreementID) (*Agreement, error) {
	return s.transition(ctx, agreementID, AgreementLegalReview, audit.ActionAgreementSigned, "agreement signed", nil)
}

// ActivateAgreement makes the agreement live and forces the parent request to
// active. A paused agreement resumes through the same call.
func (s *Service) ActivateAgreement(ctx context.Context, agreementID id.AgreementID) (*Agreement, error) {
	return s.transition(ctx, agreementID, AgreementActive, audit.ActionAgreementActivated, "agreement activated",
		func(ctx context.Context, store Store, agreement *Agreement) error {
			request, err := store.GetRequest(ctx, agreement.RequestID)
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if request.Status == RequestActive {
				return nil
			}
			request.Status = RequestActive
			request.UpdatedAt = s.now()
			return store.SaveRequest(ctx, request)
		})
}

// PauseAgreement suspends a live agreement; access checks deny while paused.
func (s *Service) PauseAgreement(ctx context.Context, agreementID id.AgreementID) (*Agreement, error) {
	return s.transition(ctx, agreementID, AgreementPaused, audit.ActionAgreementPaused, "agreement paused", nil)
}

// TerminateAgreement ends the agreement permanently.
func (s *Service) TerminateAgreement(ctx context.Context, agreementID id.AgreementID, reason string) (*Agreement, error) {
	note := "agreement terminated"
	if reason != "" {
		note += ": " + reason
	}
	return s.transition(ctx, agreementID, AgreementTerminated, audit.ActionAgreementEnded, note, nil)
}

// transition applies one agreement state change, appending to both the
// agreement's own log and the global trail, plus an optional extra mutation
// under the same tx.
func (s *Service) transition(ctx context.Context, agreementID id.AgreementID, to AgreementStatus, action audit.Action, note string, extra func(context.Context, Store, *Agreement) error) (*Agreement, error) {
	var result *Agreement
	err := s.tx.RunInTx(ctx, agreementID.String(), func(store Store) error {
		agreement, err := store.GetAgreement(ctx, agreementID)
		if err != nil {
			return translateNotFound(err, "agreement")
		}
		if !canTransitionAgreement(agreement.Status, to) {
			return dErrors.New(dErrors.CodeConflict,
				"agreement cannot move from "+string(agreement.Status)+" to "+string(to))
		}
		prev := agreement.Status
		agreement.Status = to
		agreement.UpdatedAt = s.now()
		agreement.AuditLog = append(agreement.AuditLog, LogEntry{
			At:    agreement.UpdatedAt,
			Actor: requestcontext.Actor(ctx),
			Note:  note,
		})
		if err := store.SaveAgreement(ctx, agreement); err != nil {
			return err
		}
		if extra != nil {
			if err := extra(ctx, store, agreement); err != nil {
				return err
			}
		}
		event := s.agreementEvent(ctx, agreement, action, string(prev), string(to))
		if err := store.AppendAudit(ctx, event); err != nil {
			return err
		}
		result = agreement
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ValidateDataAccess is the sole gate before any export. A missing agreement,
// a non-active status, or a clock outside the effective window denies
// everything; otherwise denial is the set difference of elements plus format
// membership. The check is audited, allow and deny alike.
func (s *Service) ValidateDataAccess(ctx context.Context, agreementID id.AgreementID, requestedElements []string, requestedFormat string) (*AccessDecision, error) {
	agreement, err := s.store.GetAgreement(ctx, agreementID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return s.deny(ctx, agreementID, requestedElements, requestedFormat, "no agreement on file")
	}
	if err != nil {
		return nil, err
	}
	if agreement.Status != AgreementActive {
		return s.deny(ctx, agreementID, requestedElements, requestedFormat,
			"agreement is "+string(agreement.Status))
	}
	now := s.now()
	if now.Before(agreement.EffectiveAt) || now.After(agreement.ExpiresAt) {
		return s.deny(ctx, agreementID, requestedElements, requestedFormat,
			"outside agreement effective window")
	}

	decision := &AccessDecision{}
	allowed := make(map[string]bool, len(agreement.AllowedElements))
	for _, element := range agreement.AllowedElements {
		allowed[element] = true
	}
	for _, element := range requestedElements {
		if !allowed[element] {
			decision.DeniedElements = append(decision.DeniedElements, element)
		}
	}
	decision.DeniedFormat = true
	for _, format := range agreement.AllowedFormats {
		if format == requestedFormat {
			decision.DeniedFormat = false
			break
		}
	}
	decision.Allowed = len(decision.DeniedElements) == 0 && !decision.DeniedFormat
	if !decision.Allowed {
		switch {
		case decision.DeniedFormat && len(decision.DeniedElements) > 0:
			decision.Reason = "format and elements not covered by agreement"
		case decision.DeniedFormat:
			decision.Reason = "format not covered by agreement"
		default:
			decision.Reason = "elements not covered: " + strings.Join(decision.DeniedElements, ", ")
		}
	}

	if err := s.auditAccessCheck(ctx, agreementID, decision); err != nil {
		return nil, err
	}
	return decision, nil
}

func (s *Service) deny(ctx context.Context, agreementID id.AgreementID, elements []string, format, reason string) (*AccessDecision, error) {
	decision := &AccessDecision{
		DeniedElements: append([]string{}, elements...),
		DeniedFormat:   format != "",
		Reason:         reason,
	}
	if err := s.auditAccessCheck(ctx, agreementID, decision); err != nil {
		return nil, err
	}
	return decision, nil
}

func (s *Service) auditAccessCheck(ctx context.Context, agreementID id.AgreementID, decision *AccessDecision) error {
	outcome := "allowed"
	if !decision.Allowed {
		outcome = "denied"
	}
	s.metrics.IncAccessDecision(outcome)
	event := audit.Event{
		Category:    audit.ActionDataAccessChecked.Category(),
		Timestamp:   s.now(),
		SubjectType: audit.SubjectAgreement,
		Subject:     agreementID.String(),
		Action:      string(audit.ActionDataAccessChecked),
		Decision:    outcome,
		Reason:      decision.Reason,
		RequestID:   requestcontext.RequestID(ctx),
		ActorID:     requestcontext.Actor(ctx),
	}
	return s.store.AppendAudit(ctx, event)
}

// RecordDataAccess appends a free-text access line to a live agreement
// without changing its status.
func (s *Service) RecordDataAccess(ctx context.Context, agreementID id.AgreementID, note string) error {
	return s.appendLogLine(ctx, agreementID, note, audit.ActionDataAccessRecorded)
}

// RecordAuditConducted notes a completed partner audit on a live agreement.
func (s *Service) RecordAuditConducted(ctx context.Context, agreementID id.AgreementID, note string) error {
	return s.appendLogLine(ctx, agreementID, note, audit.ActionAuditConducted)
}

func (s *Service) appendLogLine(ctx context.Context, agreementID id.AgreementID, note string, action audit.Action) error {
	return s.tx.RunInTx(ctx, agreementID.String(), func(store Store) error {
		agreement, err := store.GetAgreement(ctx, agreementID)
		if err != nil {
			return translateNotFound(err, "agreement")
		}
		if agreement.Status != AgreementActive {
			return dErrors.New(dErrors.CodeConflict, "agreement is not active")
		}
		agreement.AuditLog = append(agreement.AuditLog, LogEntry{
			At:    s.now(),
			Actor: requestcontext.Actor(ctx),
			Note:  note,
		})
		if err := store.SaveAgreement(ctx, agreement); err != nil {
			return err
		}
		event := s.agreementEvent(ctx, agreement, action, "", "")
		event.Reason = note
		return store.AppendAudit(ctx, event)
	})
}

// VerifyCredential checks a partner-presented secret against the agreement's
// stored hash. Used by the export handler before minting access tokens.
func (s *Service) VerifyCredential(ctx context.Context, agreementID id.AgreementID, secret string) error {
	agreement, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return translateNotFound(err, "agreement")
	}
	if err := secrets.Verify(secret, agreement.CredentialHash); err != nil {
		return dErrors.New(dErrors.CodeAccessDenied, "invalid partner credential")
	}
	return nil
}

// GetRequest returns one request.
func (s *Service) GetRequest(ctx context.Context, requestID id.PartnershipRequestID) (*Request, error) {
	request, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, translateNotFound(err, "partnership request")
	}
	return request, nil
}

// ListRequests returns all requests.
func (s *Service) ListRequests(ctx context.Context) ([]*Request, error) {
	return s.store.ListRequests(ctx)
}

// GetAgreement returns one agreement.
func (s *Service) GetAgreement(ctx context.Context, agreementID id.AgreementID) (*Agreement, error) {
	agreement, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, translateNotFound(err, "agreement")
	}
	return agreement, nil
}

// ListAgreements returns all agreements.
func (s *Service) ListAgreements(ctx context.Context) ([]*Agreement, error) {
	return s.store.ListAgreements(ctx)
}

func translateNotFound(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return err
}

func (s *Service) requestEvent(ctx context.Context, request *Request, action audit.Action, reason string) audit.Event {
	return audit.Event{
		Category:    action.Category(),
		Timestamp:   s.now(),
		SubjectType: audit.SubjectRequest,
		Subject:     request.ID.String(),
		Action:      string(action),
		Reason:      reason,
		RequestID:   requestcontext.RequestID(ctx),
		ActorID:     requestcontext.Actor(ctx),
	}
}

func (s *Service) agreementEvent(ctx context.Context, agreement *Agreement, action audit.Action, prev, next string) audit.Event {
	return audit.Event{
		Category:       action.Category(),
		Timestamp:      s.now(),
		SubjectType:    audit.SubjectAgreement,
		Subject:        agreement.ID.String(),
		Action:         string(action),
		PreviousStatus: prev,
		NewStatus:      next,
		RequestID:      requestcontext.RequestID(ctx),
		ActorID:        requestcontext.Actor(ctx),
	}
}
