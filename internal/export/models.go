// Package export packages a cohort's de-identified data for partner delivery
// in one of five research interchange formats. All serializers consume the
// same canonical dataset; packages store content hashes, never content.
package export

import (
	"time"

	id "tessera/pkg/domain"
)

// Format selects the interchange format of a generated package.
type Format string

const (
	FormatNative Format = "native"
	FormatFlat   Format = "flat"
	FormatSDTM   Format = "sdtm"
	FormatFHIR   Format = "fhir"
	FormatOMOP   Format = "omop"
)

// ParseFormat validates an external format string.
func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case FormatNative, FormatFlat, FormatSDTM, FormatFHIR, FormatOMOP:
		return Format(s), true
	}
	return "", false
}

// DeidentificationMethod is the fixed label recorded on every package
// describing how participant data was reduced before export.
const DeidentificationMethod = "bucketed-demographics-v1"

// QualityDimensions carries the five dimension scores into the canonical
// dataset without importing the scoring package's internals.
type QualityDimensions struct {
	Overall      int `json:"overall"`
	Completeness int `json:"completeness"`
	Consistency  int `json:"consistency"`
	Timeliness   int `json:"timeliness"`
	Continuity   int `json:"continuity"`
	Stability    int `json:"stability"`
}

// ParticipantRecord is one de-identified participant in the canonical
// dataset. Only bucketed demographics and aggregates appear here.
type ParticipantRecord struct {
	ParticipantID          id.ParticipantID  `json:"participant_id"`
	AgeBand                string            `json:"age_band"`
	Region                 string            `json:"region"`
	Context                string            `json:"context"`
	SignalCount            int               `json:"signal_count"`
	DaysActive             int               `json:"days_active"`
	FirstSignalAt          time.Time         `json:"first_signal_at"`
	LastSignalAt           time.Time         `json:"last_signal_at"`
	HasInterventionMarkers bool              `json:"has_intervention_markers"`
	Quality                QualityDimensions `json:"quality"`
}

// Dataset is the single canonical in-memory structure every serializer
// consumes. Serializers are swappable format functions over this shape.
type Dataset struct {
	CohortID     id.CohortID         `json:"cohort_id"`
	CohortName   string              `json:"cohort_name"`
	StudyID      id.StudyID          `json:"study_id,omitempty"`
	GeneratedAt  time.Time           `json:"generated_at"`
	Participants []ParticipantRecord `json:"participants"`
}

// FileEntry is one generated file in a package manifest: the name, the
// SHA-256 of its content, and how many records it held. Content itself is
// delivered out of band and never stored.
type FileEntry struct {
	Filename    string
	ContentHash string
	RecordCount int
}

// Metadata summarizes a package for partners and auditors.
type Metadata struct {
	AvgQualityScore float64
	DateRangeStart  time.Time
	DateRangeEnd    time.Time
	DeidMethod      string
	SourceTypes     []string
}

// AccessEntry is one read of a generated package.
type AccessEntry struct {
	AccessedBy string
	AccessedAt time.Time
}

// Package is an immutable export record. Only the access log grows after
// generation.
type Package struct {
	ID              id.ExportID
	CohortID        id.CohortID
	AgreementID     id.AgreementID
	Format          Format
	GeneratedAt     time.Time
	GeneratedBy     string
	StudyID         id.StudyID
	ProtocolVersion string
	RecordCount     int
	FileManifest    []FileEntry
	Metadata        Metadata
	AccessLog       []AccessEntry
}
