package cohort

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
	"tessera/pkg/platform/audit"
	auditmemory "tessera/pkg/platform/audit/store/memory"
	"tessera/pkg/platform/sentinel"
	"tessera/pkg/testutil"
)

// stubConsent grants cohort_inclusion to an allowlist of users.
type stubConsent struct {
	granted map[id.UserID]bool
}

func (c *stubConsent) HasActiveConsent(_ context.Context, userID id.UserID, _ id.ConsentScope) (bool, error) {
	return c.granted[userID], nil
}

// stubIdentity mints stable participant IDs per user.
type stubIdentity struct {
	mappings map[id.UserID]id.ParticipantID
}

func (r *stubIdentity) Resolve(_ context.Context, userID id.UserID) (id.ParticipantID, error) {
	if participantID, ok := r.mappings[userID]; ok {
		return participantID, nil
	}
	participantID := id.NewParticipantID()
	r.mappings[userID] = participantID
	return participantID, nil
}

// stubQuality serves fixed overall scores.
type stubQuality struct {
	scores map[id.ParticipantID]int
}

func (q *stubQuality) LatestOverall(_ context.Context, participantID id.ParticipantID) (int, error) {
	if score, ok := q.scores[participantID]; ok {
		return score, nil
	}
	return 0, sentinel.ErrNotFound
}

type CohortServiceSuite struct {
	suite.Suite
	store    *InMemoryStore
	trail    *auditmemory.InMemoryStore
	consent  *stubConsent
	identity *stubIdentity
	quality  *stubQuality
	service  *Service
	ctx      context.Context
}

func (s *CohortServiceSuite) SetupTest() {
	s.trail = auditmemory.NewInMemoryStore()
	s.store = NewInMemoryStore(s.trail)
	s.consent = &stubConsent{granted: make(map[id.UserID]bool)}
	s.identity = &stubIdentity{mappings: make(map[id.UserID]id.ParticipantID)}
	s.quality = &stubQuality{scores: make(map[id.ParticipantID]int)}
	s.service = NewService(s.store, NewMemoryTx(s.store), s.consent, s.identity,
		WithLogger(testutil.DiscardLogger()), WithQualityReader(s.quality))
	s.ctx = context.Background()
}

func TestCohortServiceSuite(t *testing.T) {
	suite.Run(t, new(CohortServiceSuite))
}

func (s *CohortServiceSuite) consentingUser() id.UserID {
	userID := testutil.NewUserID()
	s.consent.granted[userID] = true
	return userID
}

func (s *CohortServiceSuite) newCohort(criteria Criteria) *Cohort {
	cohort, err := s.service.CreateCohort(s.ctx, "sleep study", "", criteria, id.StudyID{}, nil, "ops")
	s.Require().NoError(err)
	return cohort
}

func profile(age int, country string) EnrollmentProfile {
	now := time.Now()
	return EnrollmentProfile{
		Age:           age,
		CountryCode:   country,
		ContextLabels: []string{"work"},
		SignalCount:   40,
		DaysActive:    20,
		FirstSignalAt: now.AddDate(0, 0, -30),
		LastSignalAt:  now,
	}
}

func (s *CohortServiceSuite) TestCreateCohort() {
	s.Run("requires a name", func() {
		_, err := s.service.CreateCohort(s.ctx, "", "", Criteria{}, id.StudyID{}, nil, "ops")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("starts unlocked and empty", func() {
		cohort := s.newCohort(Criteria{})
		s.False(cohort.IsLocked)
		s.Zero(cohort.MemberCount)
	})

	s.Run("stores an optional enrollment window", func() {
		expiry := time.Now().Add(24 * time.Hour)
		cohort, err := s.service.CreateCohort(s.ctx, "windowed", "", Criteria{}, id.StudyID{}, &expiry, "ops")
		s.Require().NoError(err)
		s.Require().NotNil(cohort.ExpiresAt)
		s.WithinDuration(expiry, *cohort.ExpiresAt, time.Second)
	})

	s.Run("rejects an expiry in the past", func() {
		expiry := time.Now().Add(-time.Hour)
		_, err := s.service.CreateCohort(s.ctx, "windowed", "", Criteria{}, id.StudyID{}, &expiry, "ops")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *CohortServiceSuite) TestUpdateCriteria() {
	s.Run("replaces criteria and leaves a trail entry", func() {
		cohort := s.newCohort(Criteria{})
		updated, err := s.service.UpdateCriteria(s.ctx, cohort.ID, Criteria{MinSignalCount: 5})
		s.Require().NoError(err)
		s.Equal(5, updated.Criteria.MinSignalCount)

		events, err := s.trail.ListBySubject(s.ctx, audit.SubjectCohort, cohort.ID.String())
		s.Require().NoError(err)
		var actions []string
		for _, event := range events {
			actions = append(actions, event.Action)
		}
		s.Contains(actions, string(audit.ActionCohortUpdated))
	})
}

func (s *CohortServiceSuite) TestAddMember() {
	s.Run("missing consent is a silent no-op", func() {
		cohort := s.newCohort(Criteria{})
		member, err := s.service.AddMember(s.ctx, cohort.ID, testutil.NewUserID(), profile(30, "US"))
		s.Require().NoError(err)
		s.Nil(member)

		members, err := s.service.Members(s.ctx, cohort.ID)
		s.Require().NoError(err)
		s.Empty(members)
	})

	s.Run("buckets the raw profile before storing", func() {
		cohort := s.newCohort(Criteria{})
		member, err := s.service.AddMember(s.ctx, cohort.ID, s.consentingUser(), profile(30, "DE"))
		s.Require().NoError(err)
		s.Require().NotNil(member)
		s.Equal(Age25To34, member.AgeBand)
		s.Equal(RegionEurope, member.Region)
		s.Equal(ContextWork, member.Context)
	})

	s.Run("rejects minors", func() {
		cohort := s.newCohort(Criteria{})
		_, err := s.service.AddMember(s.ctx, cohort.ID, s.consentingUser(), profile(17, "US"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("duplicate enrollment returns the existing member", func() {
		cohort := s.newCohort(Criteria{})
		userID := s.consentingUser()
		first, err := s.service.AddMember(s.ctx, cohort.ID, userID, profile(30, "US"))
		s.Require().NoError(err)
		second, err := s.service.AddMember(s.ctx, cohort.ID, userID, profile(40, "DE"))
		s.Require().NoError(err)
		s.Equal(first.AgeBand, second.AgeBand)

		updated, err := s.service.Get(s.ctx, cohort.ID)
		s.Require().NoError(err)
		s.Equal(1, updated.MemberCount)
	})

	s.Run("pins the quality score at enrollment", func() {
		cohort := s.newCohort(Criteria{})
		userID := s.consentingUser()
		participantID, err := s.identity.Resolve(s.ctx, userID)
		s.Require().NoError(err)
		s.quality.scores[participantID] = 72

		member, err := s.service.AddMember(s.ctx, cohort.ID, userID, profile(30, "US"))
		s.Require().NoError(err)
		s.Equal(72, member.QualityScore)
	})

	s.Run("unscored participants enroll with zero quality", func() {
		cohort := s.newCohort(Criteria{})
		member, err := s.service.AddMember(s.ctx, cohort.ID, s.consentingUser(), profile(30, "US"))
		s.Require().NoError(err)
		s.Zero(member.QualityScore)
	})

	s.Run("expired cohort refuses enrollment", func() {
		closed := time.Now().Add(-time.Hour)
		cohort := &Cohort{ID: id.NewCohortID(), Name: "closed", ExpiresAt: &closed, CreatedAt: time.Now().AddDate(0, -1, 0)}
		s.Require().NoError(s.store.CreateCohort(s.ctx, cohort))

		_, err := s.service.AddMember(s.ctx, cohort.ID, s.consentingUser(), profile(30, "US"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("locked cohort refuses enrollment", func() {
		cohort := s.newCohort(Criteria{})
		_, err := s.service.LockCohort(s.ctx, cohort.ID)
		s.Require().NoError(err)
		_, err = s.service.AddMember(s.ctx, cohort.ID, s.consentingUser(), profile(30, "US"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeLocked))
	})
}

func (s *CohortServiceSuite) TestRemoveMember() {
	s.Run("removes and decrements the count", func() {
		cohort := s.newCohort(Criteria{})
		userID := s.consentingUser()
		member, err := s.service.AddMember(s.ctx, cohort.ID, userID, profile(30, "US"))
		s.Require().NoError(err)

		s.Require().NoError(s.service.RemoveMember(s.ctx, cohort.ID, member.ParticipantID))
		updated, err := s.service.Get(s.ctx, cohort.ID)
		s.Require().NoError(err)
		s.Zero(updated.MemberCount)
	})

	s.Run("absent member is a no-op", func() {
		cohort := s.newCohort(Criteria{})
		s.Require().NoError(s.service.RemoveMember(s.ctx, cohort.ID, testutil.NewParticipantID()))
	})
}

func (s *CohortServiceSuite) TestLockCohort() {
	s.Run("locking is one-way and idempotent", func() {
		cohort := s.newCohort(Criteria{})
		locked, err := s.service.LockCohort(s.ctx, cohort.ID)
		s.Require().NoError(err)
		s.True(locked.IsLocked)
		firstLockedAt := *locked.LockedAt

		again, err := s.service.LockCohort(s.ctx, cohort.ID)
		s.Require().NoError(err)
		s.Equal(firstLockedAt, *again.LockedAt)
	})

	s.Run("locked cohort refuses criteria updates and deletion", func() {
		cohort := s.newCohort(Criteria{})
		_, err := s.service.LockCohort(s.ctx, cohort.ID)
		s.Require().NoError(err)

		_, err = s.service.UpdateCriteria(s.ctx, cohort.ID, Criteria{MinSignalCount: 5})
		s.True(dErrors.HasCode(err, dErrors.CodeLocked))
		err = s.service.DeleteCohort(s.ctx, cohort.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeLocked))
	})
}

func (s *CohortServiceSuite) TestCriteriaMatching() {
	member := &Member{
		AgeBand:     Age25To34,
		Region:      RegionEurope,
		Context:     ContextWork,
		SignalCount: 40,
		DaysActive:  20,
	}

	s.Run("empty criteria match everything", func() {
		s.True(s.service.MatchesCriteria(member, Criteria{}))
	})

	s.Run("each set field constrains", func() {
		s.True(s.service.MatchesCriteria(member, Criteria{AgeBands: []AgeBand{Age25To34}}))
		s.False(s.service.MatchesCriteria(member, Criteria{AgeBands: []AgeBand{Age65Plus}}))
		s.False(s.service.MatchesCriteria(member, Criteria{MinSignalCount: 50}))
		s.False(s.service.MatchesCriteria(member, Criteria{Regions: []Region{RegionOther}}))
	})

	s.Run("conjunction requires all fields to hold", func() {
		criteria := Criteria{
			AgeBands:       []AgeBand{Age25To34},
			MinSignalCount: 50,
		}
		s.False(s.service.MatchesCriteria(member, criteria))
	})

	s.Run("intervention requirement matches both polarities", func() {
		yes, no := true, false
		s.False(s.service.MatchesCriteria(member, Criteria{RequireIntervention: &yes}))
		s.True(s.service.MatchesCriteria(member, Criteria{RequireIntervention: &no}))
	})
}

func (s *CohortServiceSuite) TestFilterMembers() {
	s.Run("applies cohort criteria plus extra filter", func() {
		cohort := s.newCohort(Criteria{MinSignalCount: 10})
		for i := 0; i < 3; i++ {
			_, err := s.service.AddMember(s.ctx, cohort.ID, s.consentingUser(), profile(30, "US"))
			s.Require().NoError(err)
		}
		_, err := s.service.AddMember(s.ctx, cohort.ID, s.consentingUser(), profile(70, "DE"))
		s.Require().NoError(err)

		extra := Criteria{AgeBands: []AgeBand{Age25To34}}
		matched, err := s.service.FilterMembers(s.ctx, cohort.ID, &extra)
		s.Require().NoError(err)
		s.Len(matched, 3)
	})
}

func (s *CohortServiceSuite) TestStatistics() {
	s.Run("buckets below the suppression floor read as zero", func() {
		cohort := s.newCohort(Criteria{})
		for i := 0; i < 5; i++ {
			_, err := s.service.AddMember(s.ctx, cohort.ID, s.consentingUser(), profile(30, "US"))
			s.Require().NoError(err)
		}
		for i := 0; i < 2; i++ {
			_, err := s.service.AddMember(s.ctx, cohort.ID, s.consentingUser(), profile(70, "DE"))
			s.Require().NoError(err)
		}

		stats, err := s.service.GetStatistics(s.ctx, cohort.ID)
		s.Require().NoError(err)
		s.Equal(7, stats.MemberCount)
		s.Equal(5, stats.AgeBands[Age25To34])
		s.Zero(stats.AgeBands[Age65Plus])
		s.Zero(stats.Regions[RegionEurope])
		s.Zero(stats.WithIntervention)
	})
}

func (s *CohortServiceSuite) TestExportManifest() {
	s.Run("strips operator identity", func() {
		cohort := s.newCohort(Criteria{})
		manifest, err := s.service.ExportManifest(s.ctx, cohort.ID)
		s.Require().NoError(err)
		s.Equal(cohort.ID, manifest.CohortID)
		s.Equal("sleep study", manifest.Name)
	})

	s.Run("unknown cohort is not found", func() {
		_, err := s.service.ExportManifest(s.ctx, id.NewCohortID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
