// Package quality scores a participant's signal series across five
// dimensions. Scoring is a pure function over the series; scores are
// recomputed wholesale and upserted, never incrementally patched.
package quality

import (
	"time"

	id "tessera/pkg/domain"
)

// SignalPoint is one timestamped observation from the capture layer.
type SignalPoint struct {
	Timestamp time.Time
	Value     float64
}

// SignalFrequency classifies how often a participant logs signals.
type SignalFrequency string

const (
	FrequencyHigh   SignalFrequency = "high"   // >= 1.5 signals/day
	FrequencyMedium SignalFrequency = "medium" // >= 0.5 signals/day
	FrequencyLow    SignalFrequency = "low"
)

// Metrics are the raw counts and gaps behind the dimension scores, kept for
// export metadata and debugging.
type Metrics struct {
	TotalSignals    int
	ExpectedSignals int
	DuplicateCount  int
	OutlierCount    int
	LongestGapHours float64
	DaysSpanned     float64
	SignalsPerDay   float64
}

// Score is the five-dimension quality assessment of one participant's series.
// OverallScore is a fixed weighted function of the dimensions.
type Score struct {
	ParticipantID   id.ParticipantID
	OverallScore    int
	Completeness    int
	Consistency     int
	Timeliness      int
	Continuity      int
	Stability       int
	SignalFrequency SignalFrequency
	Metrics         Metrics
	CalculatedAt    time.Time
}
