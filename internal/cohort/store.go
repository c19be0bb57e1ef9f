package cohort

import (
	"context"

	id "tessera/pkg/domain"
	"tessera/pkg/platform/audit"
)

// Store persists cohorts and their members. Get returns
// sentinel.ErrNotFound for unknown cohorts. Delete cascades member removal.
type Store interface {
	CreateCohort(ctx context.Context, cohort *Cohort) error
	GetCohort(ctx context.Context, cohortID id.CohortID) (*Cohort, error)
	SaveCohort(ctx context.Context, cohort *Cohort) error
	DeleteCohort(ctx context.Context, cohortID id.CohortID) error
	ListCohorts(ctx context.Context) ([]*Cohort, error)

	UpsertMember(ctx context.Context, member *Member) error
	GetMember(ctx context.Context, cohortID id.CohortID, participantID id.ParticipantID) (*Member, error)
	DeleteMember(ctx context.Context, cohortID id.CohortID, participantID id.ParticipantID) error
	ListMembers(ctx context.Context, cohortID id.CohortID) ([]*Member, error)

	// AppendAudit writes a trail entry inside the same transactional
	// boundary as the mutation it accompanies.
	AppendAudit(ctx context.Context, event audit.Event) error
}

// Tx serializes mutations per cohort so concurrent enrollment cannot lose
// updates or drift the member count.
type Tx interface {
	RunInTx(ctx context.Context, cohortID id.CohortID, fn func(store Store) error) error
}
