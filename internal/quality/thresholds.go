package quality

// Tier names a research-eligibility threshold level.
type Tier string

const (
	TierMinimum     Tier = "minimum"
	TierRecommended Tier = "recommended"
	TierHigh        Tier = "high"
)

// Threshold is the floor a score must clear for a tier. Overall score alone
// is necessary but not sufficient: completeness, continuity, and total signal
// count must each clear their own floor.
type Threshold struct {
	OverallScore int
	Completeness int
	Continuity   int
	MinSignals   int
}

// thresholds are the three fixed tiers gating research eligibility.
var thresholds = map[Tier]Threshold{
	TierMinimum:     {OverallScore: 40, Completeness: 40, Continuity: 40, MinSignals: 14},
	TierRecommended: {OverallScore: 60, Completeness: 60, Continuity: 60, MinSignals: 30},
	TierHigh:        {OverallScore: 80, Completeness: 75, Continuity: 75, MinSignals: 60},
}

// ThresholdFor returns the floors for a tier; unknown tiers read as minimum.
func ThresholdFor(tier Tier) Threshold {
	if t, ok := thresholds[tier]; ok {
		return t
	}
	return thresholds[TierMinimum]
}

// MeetsThreshold reports whether a score clears every floor of the tier.
func MeetsThreshold(score Score, tier Tier) bool {
	t := ThresholdFor(tier)
	return score.OverallScore >= t.OverallScore &&
		score.Completeness >= t.Completeness &&
		score.Continuity >= t.Continuity &&
		score.Metrics.TotalSignals >= t.MinSignals
}
