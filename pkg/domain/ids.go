// Package domain holds shared identity types and enums used across modules.
// Typed UUID wrappers prevent cross-type assignment at compile time: a
// ParticipantID can never be passed where a UserID is expected, which is the
// first line of defense for the one-way identity mapping.
package domain

import (
	"github.com/google/uuid"

	dErrors "tessera/pkg/domain-errors"
)

type (
	// UserID identifies an internal app user. It must never appear in any
	// research-facing record or export.
	UserID uuid.UUID

	// ParticipantID is the opaque research-facing identifier. It is random
	// (uuid v4), never derived from a UserID, and the only subject key
	// cohorts, scores, and exports may carry.
	ParticipantID uuid.UUID

	// CohortID identifies a research cohort.
	CohortID uuid.UUID

	// StudyID identifies a research study a consent or cohort is tied to.
	StudyID uuid.UUID

	// PartnershipRequestID identifies an inbound partnership request.
	PartnershipRequestID uuid.UUID

	// AgreementID identifies a partnership agreement.
	AgreementID uuid.UUID

	// ExportID identifies a generated export package.
	ExportID uuid.UUID

	// DataPointID identifies a captured data point for provenance tracking.
	DataPointID uuid.UUID
)

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id UserID) String() string     { return uuid.UUID(id).String() }
func (id ParticipantID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ParticipantID) String() string {
	return uuid.UUID(id).String()
}
func (id CohortID) IsNil() bool               { return uuid.UUID(id) == uuid.Nil }
func (id CohortID) String() string            { return uuid.UUID(id).String() }
func (id StudyID) IsNil() bool                { return uuid.UUID(id) == uuid.Nil }
func (id StudyID) String() string             { return uuid.UUID(id).String() }
func (id PartnershipRequestID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id PartnershipRequestID) String() string { return uuid.UUID(id).String() }
func (id AgreementID) IsNil() bool            { return uuid.UUID(id) == uuid.Nil }
func (id AgreementID) String() string         { return uuid.UUID(id).String() }
func (id ExportID) IsNil() bool               { return uuid.UUID(id) == uuid.Nil }
func (id ExportID) String() string            { return uuid.UUID(id).String() }
func (id DataPointID) IsNil() bool            { return uuid.UUID(id) == uuid.Nil }
func (id DataPointID) String() string         { return uuid.UUID(id).String() }

// The research-facing IDs appear in serialized export datasets, so they
// marshal as canonical UUID strings rather than raw bytes.

func (id ParticipantID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *ParticipantID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = ParticipantID(u)
	return nil
}

func (id CohortID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *CohortID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = CohortID(u)
	return nil
}

func (id StudyID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *StudyID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = StudyID(u)
	return nil
}

// NewParticipantID mints a fresh opaque participant identifier. Random v4 so
// the mapping from user to participant is one-way by construction.
func NewParticipantID() ParticipantID { return ParticipantID(uuid.New()) }

func NewCohortID() CohortID                         { return CohortID(uuid.New()) }
func NewPartnershipRequestID() PartnershipRequestID { return PartnershipRequestID(uuid.New()) }
func NewAgreementID() AgreementID                   { return AgreementID(uuid.New()) }
func NewExportID() ExportID                         { return ExportID(uuid.New()) }
func NewDataPointID() DataPointID                   { return DataPointID(uuid.New()) }

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be nil")
	}
	return u, nil
}

// ParseUserID constructs a UserID from external input. Call from handlers and
// adapters at trust boundaries; direct casting bypasses validation.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseParticipantID constructs a ParticipantID from external input.
func ParseParticipantID(s string) (ParticipantID, error) {
	u, err := parseUUID(s, "participant id")
	return ParticipantID(u), err
}

// ParseStudyID constructs a StudyID from external input.
func ParseStudyID(s string) (StudyID, error) {
	u, err := parseUUID(s, "study id")
	return StudyID(u), err
}

// ParseCohortID constructs a CohortID from external input.
func ParseCohortID(s string) (CohortID, error) {
	u, err := parseUUID(s, "cohort id")
	return CohortID(u), err
}

// ParseAgreementID constructs an AgreementID from external input.
func ParseAgreementID(s string) (AgreementID, error) {
	u, err := parseUUID(s, "agreement id")
	return AgreementID(u), err
}

// ParsePartnershipRequestID constructs a PartnershipRequestID from external input.
func ParsePartnershipRequestID(s string) (PartnershipRequestID, error) {
	u, err := parseUUID(s, "partnership request id")
	return PartnershipRequestID(u), err
}

// ParseDataPointID constructs a DataPointID from external input.
func ParseDataPointID(s string) (DataPointID, error) {
	u, err := parseUUID(s, "data point id")
	return DataPointID(u), err
}

// ParseExportID constructs an ExportID from external input.
func ParseExportID(s string) (ExportID, error) {
	u, err := parseUUID(s, "export id")
	return ExportID(u), err
}
