package export

import "encoding/json"

// flatRow is the fixed column set of the tabular format. Dates are calendar
// days, not timestamps.
type flatRow struct {
	ParticipantID   string `json:"participant_id"`
	AgeBand         string `json:"age_band"`
	Region          string `json:"region"`
	Context         string `json:"context"`
	SignalCount     int    `json:"signal_count"`
	DaysActive      int    `json:"days_active"`
	FirstSignalDate string `json:"first_signal_date"`
	LastSignalDate  string `json:"last_signal_date"`
	HasIntervention bool   `json:"has_intervention"`
	QualityScore    int    `json:"quality_score"`
}

// flatSerializer emits one row per participant with a fixed column set.
type flatSerializer struct{}

func (flatSerializer) Format() Format { return FormatFlat }

func (flatSerializer) Serialize(ds *Dataset) ([]byte, error) {
	rows := make([]flatRow, 0, len(ds.Participants))
	for _, p := range ds.Participants {
		rows = append(rows, flatRow{
			ParticipantID:   p.ParticipantID.String(),
			AgeBand:         p.AgeBand,
			Region:          p.Region,
			Context:         p.Context,
			SignalCount:     p.SignalCount,
			DaysActive:      p.DaysActive,
			FirstSignalDate: dayString(p.FirstSignalAt),
			LastSignalDate:  dayString(p.LastSignalAt),
			HasIntervention: p.HasInterventionMarkers,
			QualityScore:    p.Quality.Overall,
		})
	}
	return json.MarshalIndent(rows, "", "  ")
}
