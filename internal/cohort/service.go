package cohort

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tessera/internal/platform/metrics"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
	"tessera/pkg/platform/audit"
	"tessera/pkg/platform/sentinel"
	"tessera/pkg/requestcontext"
)

// ConsentChecker gates enrollment on the cohort_inclusion scope.
type ConsentChecker interface {
	HasActiveConsent(ctx context.Context, userID id.UserID, scope id.ConsentScope) (bool, error)
}

// IdentityResolver mints or reuses the opaque participant ID for a user.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID id.UserID) (id.ParticipantID, error)
}

// QualityReader supplies the score pinned on the member at enrollment.
type QualityReader interface {
	LatestOverall(ctx context.Context, participantID id.ParticipantID) (int, error)
}

// Service is the cohort builder. Mutations run inside a per-cohort
// transactional boundary so the stored member count never drifts from the
// live membership.
type Service struct {
	store    Store
	tx       Tx
	consent  ConsentChecker
	identity IdentityResolver
	quality  QualityReader
	logger   *slog.Logger
	metrics  *metrics.Metrics
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

// WithQualityReader wires the quality store used to pin enrollment scores.
// Without it members enroll with a zero score.
func WithQualityReader(q QualityReader) Option {
	return func(s *Service) { s.quality = q }
}

// NewService constructs the cohort builder.
func NewService(store Store, tx Tx, consent ConsentChecker, identity IdentityResolver, opts ...Option) *Service {
	s := &Service{store: store, tx: tx, consent: consent, identity: identity, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCohort creates an unlocked cohort with the given criteria. A non-nil
// expiresAt closes enrollment after that time.
func (s *Service) CreateCohort(ctx context.Context, name, description string, criteria Criteria, studyID id.StudyID, expiresAt *time.Time, createdBy string) (*Cohort, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "cohort name is required")
	}
	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "cohort expiry must be in the future")
	}
	cohort := &Cohort{
		ID:          id.NewCohortID(),
		Name:        name,
		Description: description,
		Criteria:    criteria,
		StudyID:     studyID,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now(),
		CreatedBy:   createdBy,
	}
	err := s.tx.RunInTx(ctx, cohort.ID, func(store Store) error {
		if err := store.CreateCohort(ctx, cohort); err != nil {
			return err
		}
		return store.AppendAudit(ctx, s.cohortEvent(ctx, cohort, audit.ActionCohortCreated))
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "cohort created", "cohort_id", cohort.ID.String(), "name", name)
	return cohort, nil
}

// UpdateCriteria replaces the cohort's criteria. Existing members are not
// re-filtered; criteria apply at enrollment and FilterMembers time.
func (s *Service) UpdateCriteria(ctx context.Context, cohortID id.CohortID, criteria Criteria) (*Cohort, error) {
	var result *Cohort
	err := s.tx.RunInTx(ctx, cohortID, func(store Store) error {
		cohort, err := s.getUnlocked(ctx, store, cohortID)
		if err != nil {
			return err
		}
		cohort.Criteria = criteria
		if err := store.SaveCohort(ctx, cohort); err != nil {
			return err
		}
		if err := store.AppendAudit(ctx, s.cohortEvent(ctx, cohort, audit.ActionCohortUpdated)); err != nil {
			return err
		}
		result = cohort
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LockCohort freezes criteria and membership. Locking is one-way; locking an
// already locked cohort is a no-op.
func (s *Service) LockCohort(ctx context.Context, cohortID id.CohortID) (*Cohort, error) {
	var result *Cohort
	err := s.tx.RunInTx(ctx, cohortID, func(store Store) error {
		cohort, err := store.GetCohort(ctx, cohortID)
		if err != nil {
			return translateNotFound(err, "cohort")
		}
		if cohort.IsLocked {
			result = cohort
			return nil
		}
		now := time.Now()
		cohort.IsLocked = true
		cohort.LockedAt = &now
		if err := store.SaveCohort(ctx, cohort); err != nil {
			return err
		}
		if err := store.AppendAudit(ctx, s.cohortEvent(ctx, cohort, audit.ActionCohortLocked)); err != nil {
			return err
		}
		result = cohort
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteCohort removes an unlocked cohort and cascades member removal.
func (s *Service) DeleteCohort(ctx context.Context, cohortID id.CohortID) error {
	return s.tx.RunInTx(ctx, cohortID, func(store Store) error {
		cohort, err := s.getUnlocked(ctx, store, cohortID)
		if err != nil {
			return err
		}
		if err := store.DeleteCohort(ctx, cohortID); err != nil {
			return err
		}
		return store.AppendAudit(ctx, s.cohortEvent(ctx, cohort, audit.ActionCohortDeleted))
	})
}

// Get returns the cohort.
func (s *Service) Get(ctx context.Context, cohortID id.CohortID) (*Cohort, error) {
	cohort, err := s.store.GetCohort(ctx, cohortID)
	if err != nil {
		return nil, translateNotFound(err, "cohort")
	}
	return cohort, nil
}

// List returns all cohorts.
func (s *Service) List(ctx context.Context) ([]*Cohort, error) {
	return s.store.ListCohorts(ctx)
}

// AddMember enrolls a consenting user. Missing cohort_inclusion consent is a
// nil no-op, not an error. The raw profile is bucketed before anything is
// stored; duplicate enrollment returns the existing member unchanged.
func (s *Service) AddMember(ctx context.Context, cohortID id.CohortID, userID id.UserID, profile EnrollmentProfile) (*Member, error) {
	ok, err := s.consent.HasActiveConsent(ctx, userID, id.ScopeCohortInclusion)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.InfoContext(ctx, "enrollment skipped without consent", "cohort_id", cohortID.String())
		return nil, nil
	}
	if profile.Age < 18 {
		return nil, dErrors.New(dErrors.CodeValidation, "participants must be 18 or older")
	}

	participantID, err := s.identity.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	member := &Member{
		CohortID:               cohortID,
		ParticipantID:          participantID,
		AgeBand:                BucketAge(profile.Age),
		Region:                 BucketCountry(profile.CountryCode),
		Context:                BucketContext(profile.ContextLabels),
		SignalCount:            profile.SignalCount,
		DaysActive:             profile.DaysActive,
		FirstSignalAt:          profile.FirstSignalAt,
		LastSignalAt:           profile.LastSignalAt,
		HasInterventionMarkers: profile.HasInterventionMarkers,
		EnrolledAt:             time.Now(),
	}
	if s.quality != nil {
		score, err := s.quality.LatestOverall(ctx, participantID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}
		member.QualityScore = score
	}

	var result *Member
	err = s.tx.RunInTx(ctx, cohortID, func(store Store) error {
		cohort, err := s.getUnlocked(ctx, store, cohortID)
		if err != nil {
			return err
		}
		if cohort.Expired(time.Now()) {
			return dErrors.New(dErrors.CodeConflict, "cohort enrollment window has closed")
		}
		if existing, err := store.GetMember(ctx, cohortID, participantID); err == nil {
			result = existing
			return nil
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}

		if err := store.UpsertMember(ctx, member); err != nil {
			return err
		}
		cohort.MemberCount++
		if err := store.SaveCohort(ctx, cohort); err != nil {
			return err
		}
		event := s.cohortEvent(ctx, cohort, audit.ActionMemberEnrolled)
		if err := store.AppendAudit(ctx, event); err != nil {
			return err
		}
		result = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == member {
		s.metrics.IncCohortEnrollment(cohortID.String())
	}
	return result, nil
}

// RemoveMember unenrolls a participant from an unlocked cohort. Removing an
// absent member is a no-op.
func (s *Service) RemoveMember(ctx context.Context, cohortID id.CohortID, participantID id.ParticipantID) error {
	return s.tx.RunInTx(ctx, cohortID, func(store Store) error {
		cohort, err := s.getUnlocked(ctx, store, cohortID)
		if err != nil {
			return err
		}
		if _, err := store.GetMember(ctx, cohortID, participantID); errors.Is(err, sentinel.ErrNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		if err := store.DeleteMember(ctx, cohortID, participantID); err != nil {
			return err
		}
		cohort.MemberCount--
		if err := store.SaveCohort(ctx, cohort); err != nil {
			return err
		}
		return store.AppendAudit(ctx, s.cohortEvent(ctx, cohort, audit.ActionMemberRemoved))
	})
}

// MatchesCriteria reports whether a member satisfies the criteria. Pure and
// conjunctive; exposed for callers composing their own filters.
func (s *Service) MatchesCriteria(member *Member, criteria Criteria) bool {
	return criteria.Matches(member)
}

// FilterMembers returns the members satisfying the cohort's own criteria plus
// any extra criteria. Both layers use the same matcher.
func (s *Service) FilterMembers(ctx context.Context, cohortID id.CohortID, extra *Criteria) ([]*Member, error) {
	cohort, err := s.store.GetCohort(ctx, cohortID)
	if err != nil {
		return nil, translateNotFound(err, "cohort")
	}
	members, err := s.store.ListMembers(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	var matched []*Member
	for _, member := range members {
		if !cohort.Criteria.Matches(member) {
			continue
		}
		if extra != nil && !extra.Matches(member) {
			continue
		}
		matched = append(matched, member)
	}
	return matched, nil
}

// Members returns the full membership without filtering.
func (s *Service) Members(ctx context.Context, cohortID id.CohortID) ([]*Member, error) {
	if _, err := s.store.GetCohort(ctx, cohortID); err != nil {
		return nil, translateNotFound(err, "cohort")
	}
	return s.store.ListMembers(ctx, cohortID)
}

// GetStatistics aggregates the cohort with small-count suppression: any
// demographic bucket with fewer than five members reads as zero.
func (s *Service) GetStatistics(ctx context.Context, cohortID id.CohortID) (*Statistics, error) {
	members, err := s.Members(ctx, cohortID)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		CohortID:    cohortID,
		MemberCount: len(members),
		AgeBands:    make(map[AgeBand]int),
		Regions:     make(map[Region]int),
		Contexts:    make(map[Context]int),
	}
	totalQuality := 0
	intervention := 0
	for _, member := range members {
		stats.AgeBands[member.AgeBand]++
		stats.Regions[member.Region]++
		stats.Contexts[member.Context]++
		totalQuality += member.QualityScore
		if member.HasInterventionMarkers {
			intervention++
		}
	}
	if len(members) > 0 {
		stats.AvgQualityScore = float64(totalQuality) / float64(len(members))
	}
	stats.WithIntervention = suppress(intervention)
	for band, count := range stats.AgeBands {
		stats.AgeBands[band] = suppress(count)
	}
	for region, count := range stats.Regions {
		stats.Regions[region] = suppress(count)
	}
	for context, count := range stats.Contexts {
		stats.Contexts[context] = suppress(count)
	}
	return stats, nil
}

// ExportManifest is the partner-facing cohort description. Operator identity
// is stripped.
func (s *Service) ExportManifest(ctx context.Context, cohortID id.CohortID) (*Manifest, error) {
	cohort, err := s.store.GetCohort(ctx, cohortID)
	if err != nil {
		return nil, translateNotFound(err, "cohort")
	}
	return &Manifest{
		CohortID:    cohort.ID,
		Name:        cohort.Name,
		Description: cohort.Description,
		Criteria:    cohort.Criteria,
		MemberCount: cohort.MemberCount,
		StudyID:     cohort.StudyID,
		IsLocked:    cohort.IsLocked,
		LockedAt:    cohort.LockedAt,
		ExpiresAt:   cohort.ExpiresAt,
		CreatedAt:   cohort.CreatedAt,
	}, nil
}

func suppress(count int) int {
	if count < suppressionFloor {
		return 0
	}
	return count
}

// getUnlocked loads a cohort and refuses the mutation when it is locked.
func (s *Service) getUnlocked(ctx context.Context, store Store, cohortID id.CohortID) (*Cohort, error) {
	cohort, err := store.GetCohort(ctx, cohortID)
	if err != nil {
		return nil, translateNotFound(err, "cohort")
	}
	if cohort.IsLocked {
		return nil, dErrors.New(dErrors.CodeLocked, "cohort is locked")
	}
	return cohort, nil
}

func translateNotFound(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return err
}

func (s *Service) cohortEvent(ctx context.Context, cohort *Cohort, action audit.Action) audit.Event {
	event := audit.Event{
		Category:    action.Category(),
		Timestamp:   time.Now(),
		SubjectType: audit.SubjectCohort,
		Subject:     cohort.ID.String(),
		Action:      string(action),
		RequestID:   requestcontext.RequestID(ctx),
		ActorID:     requestcontext.Actor(ctx),
	}
	if !cohort.StudyID.IsNil() {
		event.StudyID = cohort.StudyID.String()
	}
	return event
}
