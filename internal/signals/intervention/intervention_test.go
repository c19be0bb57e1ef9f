package intervention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "tessera/pkg/domain"
	"tessera/pkg/testutil"
)

type stubConsent struct {
	granted map[id.UserID]bool
}

func (c *stubConsent) HasActiveConsent(_ context.Context, userID id.UserID, _ id.ConsentScope) (bool, error) {
	return c.granted[userID], nil
}

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

type InterventionSuite struct {
	suite.Suite
	consent  *stubConsent
	identity *stubIdentity
	service  *Service
	ctx      context.Context
}

func (s *InterventionSuite) SetupTest() {
	s.consent = &stubConsent{granted: make(map[id.UserID]bool)}
	s.identity = &stubIdentity{mappings: make(map[id.UserID]id.ParticipantID)}
	s.service = NewService(NewInMemoryStore(), s.consent, s.identity, testutil.DiscardLogger())
	s.ctx = context.Background()
}

func TestInterventionSuite(t *testing.T) {
	suite.Run(t, new(InterventionSuite))
}

func (s *InterventionSuite) TestRecord() {
	s.Run("missing consent drops the marker silently", func() {
		userID := testutil.NewUserID()
		s.Require().NoError(s.service.Record(s.ctx, userID, Marker{Kind: KindStarted, Label: "sleep plan"}))
		s.Empty(s.identity.mappings)
	})

	s.Run("consenting markers land under the participant ID", func() {
		userID := testutil.NewUserID()
		s.consent.granted[userID] = true
		s.Require().NoError(s.service.Record(s.ctx, userID, Marker{Kind: KindStarted, Label: "sleep plan"}))

		profile, err := s.service.ProfileForUser(s.ctx, userID)
		s.Require().NoError(err)
		s.Require().NotNil(profile)
		s.True(profile.HasMarkers)
		s.Equal(1, profile.ByKind[KindStarted])
	})
}

func (s *InterventionSuite) TestAggregate() {
	s.Run("labels are dropped from the profile", func() {
		base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
		markers := []Marker{
			{Kind: KindStarted, Label: "sleep plan", OccurredAt: base},
			{Kind: KindAdjusted, Label: "sleep plan", OccurredAt: base.AddDate(0, 0, 7)},
			{Kind: KindCompleted, Label: "sleep plan", OccurredAt: base.AddDate(0, 0, 30)},
		}
		profile := Aggregate(testutil.NewParticipantID(), markers)
		s.Equal(3, profile.TotalMarkers)
		s.Equal(base, profile.FirstMarkerAt)
		s.Equal(base.AddDate(0, 0, 30), profile.LastMarkerAt)
		s.Equal(1, profile.ByKind[KindAdjusted])
	})

	s.Run("no markers means no intervention flag", func() {
		profile := Aggregate(testutil.NewParticipantID(), nil)
		s.False(profile.HasMarkers)
	})
}
