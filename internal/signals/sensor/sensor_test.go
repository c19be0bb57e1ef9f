package sensor

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

type SensorSuite struct {
	suite.Suite
	consent  *stubConsent
	identity *stubIdentity
	service  *Service
	ctx      context.Context
}

func (s *SensorSuite) SetupTest() {
	s.consent = &stubConsent{granted: make(map[id.UserID]bool)}
	s.identity = &stubIdentity{mappings: make(map[id.UserID]id.ParticipantID)}
	s.service = NewService(NewInMemoryStore(), s.consent, s.identity, testutil.DiscardLogger())
	s.ctx = context.Background()
}

func TestSensorSuite(t *testing.T) {
	suite.Run(t, new(SensorSuite))
}

func (s *SensorSuite) TestRecord() {
	s.Run("missing consent drops the reading silently", func() {
		userID := testutil.NewUserID()
		s.Require().NoError(s.service.Record(s.ctx, userID, Reading{Metric: MetricSteps, Value: 8000}))
		s.Empty(s.identity.mappings)
	})

	s.Run("consenting readings land under the participant ID", func() {
		userID := testutil.NewUserID()
		s.consent.granted[userID] = true
		s.Require().NoError(s.service.Record(s.ctx, userID, Reading{
			Source: "wearable", Metric: MetricSleep, Value: 430,
		}))

		profile, err := s.service.ProfileForUser(s.ctx, userID)
		s.Require().NoError(err)
		s.Require().NotNil(profile)
		s.Equal(1, profile.TotalReadings)
		s.Equal(1, profile.ByMetric[MetricSleep])
	})
}

func (s *SensorSuite) TestSignalSeries() {
	s.Run("projects readings into scoring points", func() {
		userID := testutil.NewUserID()
		s.consent.granted[userID] = true
		base := time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			s.Require().NoError(s.service.Record(s.ctx, userID, Reading{
				Metric:     MetricHeartRate,
				Value:      float64(60 + i),
				CapturedAt: base.Add(time.Duration(i) * time.Hour),
			}))
		}

		points, err := s.service.SignalSeries(s.ctx, s.identity.mappings[userID])
		s.Require().NoError(err)
		s.Require().Len(points, 3)
		s.Equal(base, points[0].Timestamp)
		s.Equal(62.0, points[2].Value)
	})

	s.Run("unseen participant yields an empty series", func() {
		points, err := s.service.SignalSeries(s.ctx, testutil.NewParticipantID())
		s.Require().NoError(err)
		s.Empty(points)
	})
}

func (s *SensorSuite) TestAggregate() {
	s.Run("counts metrics and active days", func() {
		base := time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC)
		readings := []Reading{
			{Metric: MetricSteps, Value: 9000, CapturedAt: base},
			{Metric: MetricSteps, Value: 7000, CapturedAt: base.AddDate(0, 0, 1)},
			{Metric: MetricSleep, Value: 410, CapturedAt: base.AddDate(0, 0, 1).Add(time.Hour)},
		}
		profile := Aggregate(testutil.NewParticipantID(), readings)
		s.Equal(3, profile.TotalReadings)
		s.Equal(2, profile.ActiveDays)
		s.Equal(2, profile.ByMetric[MetricSteps])
	})
}
