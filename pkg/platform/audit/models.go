package audit

import (
	"time"

	id "tessera/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and storage routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance:
	// consent transitions, agreement lifecycle, data access, export generation.
	// These require guaranteed persistence and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational
	// visibility: routine access patterns, sweeps, profile reads.
	CategoryOperations EventCategory = "operations"
)

// SubjectType labels what kind of entity an event is about. Per-subject
// ordering is guaranteed within a (SubjectType, Subject) pair.
type SubjectType string

const (
	SubjectUser      SubjectType = "user"
	SubjectRequest   SubjectType = "partnership_request"
	SubjectAgreement SubjectType = "agreement"
	SubjectExport    SubjectType = "export"
	SubjectCohort    SubjectType = "cohort"
)

// Event is emitted from domain logic to capture governance actions. It is
// transport-agnostic so stores and sinks can fan out. Consent transitions fill
// the consent-specific fields; partnership and export events leave them empty.
type Event struct {
	Category    EventCategory
	Timestamp   time.Time
	SubjectType SubjectType
	Subject     string // entity key: user ID, agreement ID, export ID, ...
	Action      string
	Decision    string // outcome: granted, denied, approved, rejected, ...
	Reason      string

	// Consent-specific enrichment
	Scope          string
	PreviousStatus string
	NewStatus      string
	ConsentVersion int
	StudyID        string

	// Correlation
	RequestID string
	ActorID   string
}

// Action is the closed set of audit actions emitted by the pipeline.
type Action string

const (
	// Consent ledger actions
	ActionConsentPresented Action = "consent_presented"
	ActionConsentGranted   Action = "consent_granted"
	ActionConsentDeclined  Action = "consent_declined"
	ActionConsentWithdrawn Action = "consent_withdrawn"
	ActionConsentRenewed   Action = "consent_renewed"
	ActionConsentExpired   Action = "consent_expired"
	ActionConsentChecked   Action = "consent_checked"
	ActionExportValidated  Action = "export_consent_validated"

	// Cohort actions
	ActionCohortCreated  Action = "cohort_created"
	ActionCohortUpdated  Action = "cohort_criteria_updated"
	ActionCohortLocked   Action = "cohort_locked"
	ActionCohortDeleted  Action = "cohort_deleted"
	ActionMemberEnrolled Action = "cohort_member_enrolled"
	ActionMemberRemoved  Action = "cohort_member_removed"

	// Partnership actions
	ActionRequestSubmitted   Action = "partnership_request_submitted"
	ActionRequestReviewed    Action = "partnership_request_reviewed"
	ActionRequestApproved    Action = "partnership_request_approved"
	ActionRequestRejected    Action = "partnership_request_rejected"
	ActionAgreementCreated   Action = "agreement_created"
	ActionAgreementSigned    Action = "agreement_signed"
	ActionAgreementActivated Action = "agreement_activated"
	ActionAgreementPaused    Action = "agreement_paused"
	ActionAgreementEnded     Action = "agreement_terminated"
	ActionDataAccessChecked  Action = "data_access_checked"
	ActionDataAccessRecorded Action = "data_access_recorded"
	ActionAuditConducted     Action = "audit_conducted"

	// Export actions
	ActionExportGenerated Action = "export_generated"
	ActionExportAccessed  Action = "export_accessed"
)

// eventCategories maps each action to its category. Compliance events require
// guaranteed persistence; operations events may be sampled.
var eventCategories = map[Action]EventCategory{
	ActionConsentPresented:   CategoryCompliance,
	ActionConsentGranted:     CategoryCompliance,
	ActionConsentDeclined:    CategoryCompliance,
	ActionConsentWithdrawn:   CategoryCompliance,
	ActionConsentRenewed:     CategoryCompliance,
	ActionConsentExpired:     CategoryCompliance,
	ActionConsentChecked:     CategoryOperations,
	ActionExportValidated:    CategoryCompliance,
	ActionCohortCreated:      CategoryOperations,
	ActionCohortUpdated:      CategoryOperations,
	ActionCohortLocked:       CategoryCompliance,
	ActionCohortDeleted:      CategoryCompliance,
	ActionMemberEnrolled:     CategoryCompliance,
	ActionMemberRemoved:      CategoryCompliance,
	ActionRequestSubmitted:   CategoryCompliance,
	ActionRequestReviewed:    CategoryCompliance,
	ActionRequestApproved:    CategoryCompliance,
	ActionRequestRejected:    CategoryCompliance,
	ActionAgreementCreated:   CategoryCompliance,
	ActionAgreementSigned:    CategoryCompliance,
	ActionAgreementActivated: CategoryCompliance,
	ActionAgreementPaused:    CategoryCompliance,
	ActionAgreementEnded:     CategoryCompliance,
	ActionDataAccessChecked:  CategoryCompliance,
	ActionDataAccessRecorded: CategoryCompliance,
	ActionAuditConducted:     CategoryCompliance,
	ActionExportGenerated:    CategoryCompliance,
	ActionExportAccessed:     CategoryCompliance,
}

// Category returns the EventCategory for this action.
// Unknown actions default to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := eventCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// UserEvent builds a compliance event about a user subject. Consent callers
// enrich the returned event with scope and status fields before emitting.
func UserEvent(userID id.UserID, action Action) Event {
	return Event{
		Category:    action.Category(),
		Timestamp:   time.Now(),
		SubjectType: SubjectUser,
		Subject:     userID.String(),
		Action:      string(action),
	}
}
