// Package partnership governs external research partnerships through two
// linked state machines: inbound requests and the agreements created from
// approved requests. Every transition is audited twice, once on the entity's
// own log and once on the global governance trail.
package partnership

import (
	"time"

	id "tessera/pkg/domain"
)

// RequestStatus is the lifecycle of an inbound partnership request.
type RequestStatus string

const (
	RequestInquiry     RequestStatus = "inquiry"
	RequestNegotiating RequestStatus = "negotiating"
	RequestLegalReview RequestStatus = "legal_review"
	RequestActive      RequestStatus = "active"
	RequestTerminated  RequestStatus = "terminated"
)

// requestTransitions is the forward path; terminated is reachable from any
// state via explicit rejection.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestInquiry:     {RequestNegotiating, RequestTerminated},
	RequestNegotiating: {RequestLegalReview, RequestTerminated},
	RequestLegalReview: {RequestActive, RequestTerminated},
	RequestActive:      {RequestTerminated},
	RequestTerminated:  {},
}

func canTransitionRequest(from, to RequestStatus) bool {
	for _, next := range requestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Request is an inbound partnership inquiry under review.
type Request struct {
	ID           id.PartnershipRequestID
	Organization string
	ContactEmail string
	Proposal     string
	Status       RequestStatus
	Reviewer     string
	ReviewNotes  string
	AgreementID  id.AgreementID // set once an agreement is created from it
	SubmittedAt  time.Time
	UpdatedAt    time.Time
}

// AgreementStatus is the lifecycle of a signed partnership agreement.
type AgreementStatus string

const (
	AgreementNegotiating AgreementStatus = "negotiating"
	AgreementLegalReview AgreementStatus = "legal_review"
	AgreementActive      AgreementStatus = "active"
	AgreementPaused      AgreementStatus = "paused"
	AgreementTerminated  AgreementStatus = "terminated"
)

// agreementTransitions: pause is the one reversible edge; terminated is
// terminal and reachable from every live state.
var agreementTransitions = map[AgreementStatus][]AgreementStatus{
	AgreementNegotiating: {AgreementLegalReview, AgreementTerminated},
	AgreementLegalReview: {AgreementActive, AgreementTerminated},
	AgreementActive:      {AgreementPaused, AgreementTerminated},
	AgreementPaused:      {AgreementActive, AgreementTerminated},
	AgreementTerminated:  {},
}

func canTransitionAgreement(from, to AgreementStatus) bool {
	for _, next := range agreementTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LogEntry is one line on an agreement's own audit log.
type LogEntry struct {
	At    time.Time
	Actor string
	Note  string
}

// Agreement is the contract governing a partner's data access. The allowed
// element and format lists plus the effective window are the sole inputs to
// export gating.
type Agreement struct {
	ID              id.AgreementID
	RequestID       id.PartnershipRequestID
	PartnerName     string
	Status          AgreementStatus
	AllowedElements []string
	AllowedFormats  []string
	EffectiveAt     time.Time
	ExpiresAt       time.Time
	CredentialHash  string
	AuditLog        []LogEntry
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AccessDecision is the structured outcome of an export access check. A
// denial is a normal value, not an error; the caller inspects the fields.
type AccessDecision struct {
	Allowed        bool
	DeniedElements []string
	DeniedFormat   bool
	Reason         string
}
