package export

import "encoding/json"

type omopPerson struct {
	PersonID  int    `json:"person_id"`
	AgeBand   string `json:"age_band"`
	Region    string `json:"region"`
	ContextID string `json:"context"`
}

type omopObservation struct {
	ObservationID int    `json:"observation_id"`
	PersonID      int    `json:"person_id"`
	Concept       string `json:"observation_concept"`
	ValueAsNumber int    `json:"value_as_number"`
	Date          string `json:"observation_date"`
}

type omopPeriod struct {
	PeriodID  int    `json:"observation_period_id"`
	PersonID  int    `json:"person_id"`
	StartDate string `json:"observation_period_start_date"`
	EndDate   string `json:"observation_period_end_date"`
}

type omopDocument struct {
	Person            []omopPerson      `json:"person"`
	Observation       []omopObservation `json:"observation"`
	ObservationPeriod []omopPeriod      `json:"observation_period"`
}

// omopSerializer emits parallel person/observation/observation_period tables
// with positional synthetic integer IDs; no opaque identifiers survive.
type omopSerializer struct{}

func (omopSerializer) Format() Format { return FormatOMOP }

func (omopSerializer) Serialize(ds *Dataset) ([]byte, error) {
	doc := omopDocument{
		Person:            []omopPerson{},
		Observation:       []omopObservation{},
		ObservationPeriod: []omopPeriod{},
	}
	obsID := 1
	for i, p := range ds.Participants {
		personID := i + 1
		doc.Person = append(doc.Person, omopPerson{
			PersonID:  personID,
			AgeBand:   p.AgeBand,
			Region:    p.Region,
			ContextID: p.Context,
		})
		doc.Observation = append(doc.Observation,
			omopObservation{
				ObservationID: obsID,
				PersonID:      personID,
				Concept:       "signal_count",
				ValueAsNumber: p.SignalCount,
				Date:          dayString(p.LastSignalAt),
			},
			omopObservation{
				ObservationID: obsID + 1,
				PersonID:      personID,
				Concept:       "quality_score",
				ValueAsNumber: p.Quality.Overall,
				Date:          dayString(p.LastSignalAt),
			},
		)
		obsID += 2
		doc.ObservationPeriod = append(doc.ObservationPeriod, omopPeriod{
			PeriodID:  personID,
			PersonID:  personID,
			StartDate: dayString(p.FirstSignalAt),
			EndDate:   dayString(p.LastSignalAt),
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}
