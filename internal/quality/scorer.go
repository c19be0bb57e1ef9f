package quality

import (
	"math"
	"sort"
	"time"
)

// DefaultExpectedRate is the expected daily signal rate when the caller has
// no better estimate.
const DefaultExpectedRate = 2.0

const (
	duplicateWindow  = 60 * time.Second
	outlierSigma     = 3.0
	continuityWindow = 7 * 24.0 // reference window for the longest gap, hours
)

// Calculate scores a signal series against an expected daily rate. The series
// need not be sorted. An empty series yields an all-zero score with low
// frequency rather than an error. now anchors the timeliness dimension.
func Calculate(points []SignalPoint, expectedRate float64, now time.Time) Score {
	if expectedRate <= 0 {
		expectedRate = DefaultExpectedRate
	}
	score := Score{SignalFrequency: FrequencyLow, CalculatedAt: now}
	if len(points) == 0 {
		return score
	}

	sorted := make([]SignalPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	first, last := sorted[0].Timestamp, sorted[len(sorted)-1].Timestamp
	daysBetween := math.Max(1, last.Sub(first).Hours()/24)
	observed := len(sorted)

	expectedSignals := int(math.Round(daysBetween * expectedRate))
	completeness := 100
	if expectedSignals > 0 {
		completeness = int(math.Min(100, math.Round(100*float64(observed)/float64(expectedSignals))))
	}

	duplicates := countDuplicates(sorted)
	outliers := countOutliers(sorted)
	anomalyRate := float64(duplicates+outliers) / float64(observed)
	consistency := int(math.Round(100 * (1 - math.Min(1, anomalyRate*5))))

	timeliness := timelinessScore(now.Sub(last))

	longestGap := longestGapHours(sorted)
	continuity := int(math.Round(100 * (1 - math.Min(1, longestGap/continuityWindow))))

	stability := stabilityScore(sorted, expectedRate)

	overall := int(math.Round(
		0.25*float64(completeness) +
			0.20*float64(consistency) +
			0.20*float64(timeliness) +
			0.20*float64(continuity) +
			0.15*float64(stability)))

	signalsPerDay := float64(observed) / daysBetween

	score.OverallScore = overall
	score.Completeness = completeness
	score.Consistency = consistency
	score.Timeliness = timeliness
	score.Continuity = continuity
	score.Stability = stability
	score.SignalFrequency = classifyFrequency(signalsPerDay)
	score.Metrics = Metrics{
		TotalSignals:    observed,
		ExpectedSignals: expectedSignals,
		DuplicateCount:  duplicates,
		OutlierCount:    outliers,
		LongestGapHours: longestGap,
		DaysSpanned:     daysBetween,
		SignalsPerDay:   signalsPerDay,
	}
	return score
}

// countDuplicates counts consecutive points closer than the duplicate window.
func countDuplicates(sorted []SignalPoint) int {
	duplicates := 0
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Timestamp.Sub(sorted[i-1].Timestamp) < duplicateWindow {
			duplicates++
		}
	}
	return duplicates
}

// countOutliers counts points deviating more than three standard deviations
// from the series mean. A flat series has no outliers.
func countOutliers(points []SignalPoint) int {
	n := float64(len(points))
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	mean := sum / n

	var variance float64
	for _, p := range points {
		d := p.Value - mean
		variance += d * d
	}
	variance /= n
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return 0
	}

	outliers := 0
	for _, p := range points {
		if math.Abs(p.Value-mean) > outlierSigma*stddev {
			outliers++
		}
	}
	return outliers
}

// timelinessScore is a step function of time since the last point.
func timelinessScore(sinceLast time.Duration) int {
	days := sinceLast.Hours() / 24
	switch {
	case days < 1:
		return 100
	case days < 7:
		return 80
	case days < 30:
		return 50
	case days < 90:
		return 30
	default:
		return 10
	}
}

func longestGapHours(sorted []SignalPoint) float64 {
	var longest float64
	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].Timestamp.Sub(sorted[i-1].Timestamp).Hours()
		if gap > longest {
			longest = gap
		}
	}
	return longest
}

// stabilityScore penalizes variance of inter-point gaps around the
// theoretical expected gap of 24/expectedRate hours.
func stabilityScore(sorted []SignalPoint, expectedRate float64) int {
	if len(sorted) < 2 {
		return 100
	}
	expectedGap := 24 / expectedRate
	var variance float64
	gaps := 0
	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].Timestamp.Sub(sorted[i-1].Timestamp).Hours()
		d := gap - expectedGap
		variance += d * d
		gaps++
	}
	variance /= float64(gaps)
	return int(math.Round(math.Max(0, 100-math.Sqrt(variance)*2)))
}

func classifyFrequency(signalsPerDay float64) SignalFrequency {
	switch {
	case signalsPerDay >= 1.5:
		return FrequencyHigh
	case signalsPerDay >= 0.5:
		return FrequencyMedium
	default:
		return FrequencyLow
	}
}
