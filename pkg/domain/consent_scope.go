package domain

import dErrors "tessera/pkg/domain-errors"

// ConsentScope is a domain value that identifies what a user has agreed to.
// Invariant: the value must be one of the six supported scopes.
//
// Usage: construct via ParseConsentScope at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type ConsentScope string

// Supported consent scopes. Every consent-gated operation names exactly one.
const (
	ScopeDataCollection        ConsentScope = "data_collection"
	ScopeResearchParticipation ConsentScope = "research_participation"
	ScopeCohortInclusion       ConsentScope = "cohort_inclusion"
	ScopePartnerSharing        ConsentScope = "partner_sharing"
	ScopeSensorCapture         ConsentScope = "sensor_capture"
	ScopeInterventionTracking  ConsentScope = "intervention_tracking"
)

// validConsentScopes is the single source of truth for valid scopes.
var validConsentScopes = map[ConsentScope]bool{
	ScopeDataCollection:        true,
	ScopeResearchParticipation: true,
	ScopeCohortInclusion:       true,
	ScopePartnerSharing:        true,
	ScopeSensorCapture:         true,
	ScopeInterventionTracking:  true,
}

// AllConsentScopes returns the supported scopes in a stable order.
func AllConsentScopes() []ConsentScope {
	return []ConsentScope{
		ScopeDataCollection,
		ScopeResearchParticipation,
		ScopeCohortInclusion,
		ScopePartnerSharing,
		ScopeSensorCapture,
		ScopeInterventionTracking,
	}
}

// ParseConsentScope constructs a ConsentScope from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseConsentScope(s string) (ConsentScope, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "scope cannot be empty")
	}
	scope := ConsentScope(s)
	if !scope.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid scope")
	}
	return scope, nil
}

// IsValid checks if the scope is one of the supported enum values.
func (s ConsentScope) IsValid() bool { return validConsentScopes[s] }

// String returns the string representation of the scope.
func (s ConsentScope) String() string { return string(s) }
