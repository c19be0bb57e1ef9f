package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ScorerSuite struct {
	suite.Suite
	now time.Time
}

func (s *ScorerSuite) SetupTest() {
	s.now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestScorerSuite(t *testing.T) {
	suite.Run(t, new(ScorerSuite))
}

// series builds n points ending just before s.now, spaced evenly.
func (s *ScorerSuite) series(n int, spacing time.Duration, value float64) []SignalPoint {
	points := make([]SignalPoint, n)
	start := s.now.Add(-time.Duration(n-1) * spacing)
	for i := range points {
		points[i] = SignalPoint{Timestamp: start.Add(time.Duration(i) * spacing), Value: value}
	}
	return points
}

func (s *ScorerSuite) TestEmptySeries() {
	score := Calculate(nil, DefaultExpectedRate, s.now)
	s.Zero(score.OverallScore)
	s.Zero(score.Completeness)
	s.Equal(FrequencyLow, score.SignalFrequency)
}

func (s *ScorerSuite) TestPerfectSeries() {
	// Two signals per day, evenly spaced, last one recent: every dimension
	// should be at or near its ceiling.
	points := s.series(28, 12*time.Hour, 5.0)
	score := Calculate(points, 2.0, s.now)

	s.Equal(100, score.Completeness)
	s.Equal(100, score.Consistency)
	s.Equal(100, score.Timeliness)
	s.Equal(100, score.Stability)
	s.GreaterOrEqual(score.Continuity, 90)
	s.GreaterOrEqual(score.OverallScore, 95)
	s.Equal(FrequencyHigh, score.SignalFrequency)
}

func (s *ScorerSuite) TestCompleteness() {
	s.Run("sparse series scores proportionally", func() {
		// 7 points over 14 days against an expectation of 2/day.
		points := s.series(7, 48*time.Hour, 5.0)
		score := Calculate(points, 2.0, s.now)
		s.InDelta(25, score.Completeness, 5)
	})

	s.Run("zero expected rate falls back to the default", func() {
		points := s.series(10, 12*time.Hour, 5.0)
		withDefault := Calculate(points, 0, s.now)
		explicit := Calculate(points, DefaultExpectedRate, s.now)
		s.Equal(explicit.Completeness, withDefault.Completeness)
	})
}

func (s *ScorerSuite) TestConsistency() {
	s.Run("duplicates drag the score down", func() {
		points := s.series(20, 12*time.Hour, 5.0)
		// Duplicate half the points within the duplicate window.
		for i := 0; i < 10; i++ {
			points = append(points, SignalPoint{
				Timestamp: points[i].Timestamp.Add(time.Second),
				Value:     5.0,
			})
		}
		score := Calculate(points, 2.0, s.now)
		s.Less(score.Consistency, 50)
	})

	s.Run("flat series has no outliers", func() {
		points := s.series(20, 12*time.Hour, 5.0)
		score := Calculate(points, 2.0, s.now)
		s.Zero(score.Metrics.OutlierCount)
	})
}

func (s *ScorerSuite) TestTimeliness() {
	cases := []struct {
		name     string
		lastAgo  time.Duration
		expected int
	}{
		{"under a day", 12 * time.Hour, 100},
		{"under a week", 3 * 24 * time.Hour, 80},
		{"under a month", 20 * 24 * time.Hour, 50},
		{"under ninety days", 60 * 24 * time.Hour, 30},
		{"stale", 120 * 24 * time.Hour, 10},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			last := s.now.Add(-tc.lastAgo)
			points := []SignalPoint{
				{Timestamp: last.Add(-24 * time.Hour), Value: 5},
				{Timestamp: last, Value: 5},
			}
			score := Calculate(points, 2.0, s.now)
			s.Equal(tc.expected, score.Timeliness)
		})
	}
}

func (s *ScorerSuite) TestContinuity() {
	s.Run("a week long gap zeroes continuity", func() {
		points := []SignalPoint{
			{Timestamp: s.now.Add(-10 * 24 * time.Hour), Value: 5},
			{Timestamp: s.now.Add(-2 * time.Hour), Value: 5},
		}
		score := Calculate(points, 2.0, s.now)
		s.Zero(score.Continuity)
	})
}

func (s *ScorerSuite) TestFrequencyClassification() {
	s.Run("medium between half and one and a half per day", func() {
		points := s.series(14, 24*time.Hour, 5.0)
		score := Calculate(points, 2.0, s.now)
		s.Equal(FrequencyMedium, score.SignalFrequency)
	})

	s.Run("low under half per day", func() {
		points := s.series(5, 72*time.Hour, 5.0)
		score := Calculate(points, 2.0, s.now)
		s.Equal(FrequencyLow, score.SignalFrequency)
	})
}

func (s *ScorerSuite) TestOverallIsWeightedBlend() {
	points := s.series(28, 12*time.Hour, 5.0)
	score := Calculate(points, 2.0, s.now)
	expected := int(0.25*float64(score.Completeness) +
		0.20*float64(score.Consistency) +
		0.20*float64(score.Timeliness) +
		0.20*float64(score.Continuity) +
		0.15*float64(score.Stability) + 0.5)
	s.Equal(expected, score.OverallScore)
}
