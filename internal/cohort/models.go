// Package cohort builds named, de-identified groups of research participants
// selected by declarative criteria. Members carry only bucketed and aggregated
// fields; raw identifiers never enter this package.
package cohort

import (
	"time"

	id "tessera/pkg/domain"
)

// Cohort is a named participant group. Criteria are editable until the cohort
// is locked; locking is one-way and freezes criteria and membership. An
// optional ExpiresAt closes the enrollment window without locking.
type Cohort struct {
	ID          id.CohortID
	Name        string
	Description string
	Criteria    Criteria
	MemberCount int
	StudyID     id.StudyID
	IsLocked    bool
	LockedAt    *time.Time
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	CreatedBy   string
}

// Expired reports whether the cohort's enrollment window has closed.
func (c *Cohort) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// Member is one enrolled participant, reduced to bucketed demographics and
// aggregated signal fields. QualityScore is pinned at enrollment time.
type Member struct {
	CohortID               id.CohortID
	ParticipantID          id.ParticipantID
	AgeBand                AgeBand
	Region                 Region
	Context                Context
	SignalCount            int
	DaysActive             int
	FirstSignalAt          time.Time
	LastSignalAt           time.Time
	HasInterventionMarkers bool
	QualityScore           int
	EnrolledAt             time.Time
}

// EnrollmentProfile is the caller-supplied raw profile converted into a
// Member at enrollment. Age and country code are bucketed and discarded.
type EnrollmentProfile struct {
	Age                    int
	CountryCode            string
	ContextLabels          []string
	SignalCount            int
	DaysActive             int
	FirstSignalAt          time.Time
	LastSignalAt           time.Time
	HasInterventionMarkers bool
}

// Criteria is a conjunctive filter over members. Unset fields impose no
// constraint; every set field must hold for a member to match.
type Criteria struct {
	AgeBands       []AgeBand
	Regions        []Region
	Contexts       []Context
	MinSignalCount int
	MinDaysActive  int
	// ActiveFrom/ActiveTo require the member's signal window to overlap
	// the given range. Either end may be nil.
	ActiveFrom          *time.Time
	ActiveTo            *time.Time
	RequireIntervention *bool
	MinQualityScore     int
}

// Matches reports whether the member satisfies every set criterion.
func (c Criteria) Matches(member *Member) bool {
	if len(c.AgeBands) > 0 && !containsAgeBand(c.AgeBands, member.AgeBand) {
		return false
	}
	if len(c.Regions) > 0 && !containsRegion(c.Regions, member.Region) {
		return false
	}
	if len(c.Contexts) > 0 && !containsContext(c.Contexts, member.Context) {
		return false
	}
	if member.SignalCount < c.MinSignalCount {
		return false
	}
	if member.DaysActive < c.MinDaysActive {
		return false
	}
	if member.QualityScore < c.MinQualityScore {
		return false
	}
	if c.ActiveFrom != nil && member.LastSignalAt.Before(*c.ActiveFrom) {
		return false
	}
	if c.ActiveTo != nil && member.FirstSignalAt.After(*c.ActiveTo) {
		return false
	}
	if c.RequireIntervention != nil && member.HasInterventionMarkers != *c.RequireIntervention {
		return false
	}
	return true
}

func containsAgeBand(bands []AgeBand, band AgeBand) bool {
	for _, b := range bands {
		if b == band {
			return true
		}
	}
	return false
}

func containsRegion(regions []Region, region Region) bool {
	for _, r := range regions {
		if r == region {
			return true
		}
	}
	return false
}

func containsContext(contexts []Context, context Context) bool {
	for _, c := range contexts {
		if c == context {
			return true
		}
	}
	return false
}

// suppressionFloor is the smallest bucket count reported as-is; buckets with
// fewer members read as zero so small groups cannot be singled out.
const suppressionFloor = 5

// Statistics is the aggregate view of a cohort with small-count suppression
// applied to every breakdown.
type Statistics struct {
	CohortID         id.CohortID
	MemberCount      int
	AvgQualityScore  float64
	AgeBands         map[AgeBand]int
	Regions          map[Region]int
	Contexts         map[Context]int
	WithIntervention int
}

// Manifest is the external description of a cohort for partners. It carries
// no operator identity.
type Manifest struct {
	CohortID    id.CohortID
	Name        string
	Description string
	Criteria    Criteria
	MemberCount int
	StudyID     id.StudyID
	IsLocked    bool
	LockedAt    *time.Time
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}
