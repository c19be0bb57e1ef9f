package quality

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type ThresholdSuite struct {
	suite.Suite
}

func TestThresholdSuite(t *testing.T) {
	suite.Run(t, new(ThresholdSuite))
}

func (s *ThresholdSuite) TestMeetsThreshold() {
	strong := Score{
		OverallScore: 85,
		Completeness: 80,
		Continuity:   80,
		Metrics:      Metrics{TotalSignals: 90},
	}

	s.Run("strong score clears every tier", func() {
		s.True(MeetsThreshold(strong, TierMinimum))
		s.True(MeetsThreshold(strong, TierRecommended))
		s.True(MeetsThreshold(strong, TierHigh))
	})

	s.Run("overall alone is not sufficient", func() {
		score := strong
		score.Completeness = 30
		s.False(MeetsThreshold(score, TierMinimum))
	})

	s.Run("signal count floor is enforced", func() {
		score := strong
		score.Metrics.TotalSignals = 10
		s.False(MeetsThreshold(score, TierMinimum))
	})

	s.Run("mid score clears recommended but not high", func() {
		score := Score{
			OverallScore: 65,
			Completeness: 65,
			Continuity:   65,
			Metrics:      Metrics{TotalSignals: 40},
		}
		s.True(MeetsThreshold(score, TierRecommended))
		s.False(MeetsThreshold(score, TierHigh))
	})

	s.Run("unknown tier reads as minimum", func() {
		s.Equal(ThresholdFor(TierMinimum), ThresholdFor(Tier("bogus")))
	})
}
