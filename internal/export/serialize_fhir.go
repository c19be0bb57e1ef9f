package export

import "encoding/json"

type fhirCoding struct {
	System string `json:"system"`
	Code   string `json:"code"`
}

type fhirCodeable struct {
	Coding []fhirCoding `json:"coding"`
	Text   string       `json:"text"`
}

type fhirComponent struct {
	Code          fhirCodeable `json:"code"`
	ValueInteger  *int         `json:"valueInteger,omitempty"`
	ValueDateTime string       `json:"valueDateTime,omitempty"`
}

type fhirObservation struct {
	ResourceType string          `json:"resourceType"`
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Code         fhirCodeable    `json:"code"`
	Subject      map[string]any  `json:"subject"`
	Component    []fhirComponent `json:"component"`
}

type fhirEntry struct {
	Resource fhirObservation `json:"resource"`
}

type fhirBundle struct {
	ResourceType string      `json:"resourceType"`
	Type         string      `json:"type"`
	Entry        []fhirEntry `json:"entry"`
}

const fhirCodeSystem = "urn:tessera:research-profile"

// fhirSerializer emits one Observation-shaped resource per participant with
// component sub-values for signal count and active days.
type fhirSerializer struct{}

func (fhirSerializer) Format() Format { return FormatFHIR }

func (fhirSerializer) Serialize(ds *Dataset) ([]byte, error) {
	bundle := fhirBundle{ResourceType: "Bundle", Type: "collection", Entry: []fhirEntry{}}
	for _, p := range ds.Participants {
		signalCount := p.SignalCount
		daysActive := p.DaysActive
		quality := p.Quality.Overall
		obs := fhirObservation{
			ResourceType: "Observation",
			ID:           p.ParticipantID.String(),
			Status:       "final",
			Code: fhirCodeable{
				Coding: []fhirCoding{{System: fhirCodeSystem, Code: "research-data-profile"}},
				Text:   "Research data profile",
			},
			Subject: map[string]any{
				"reference": "Patient/" + p.ParticipantID.String(),
			},
			Component: []fhirComponent{
				{
					Code:         fhirCodeable{Coding: []fhirCoding{{System: fhirCodeSystem, Code: "signal-count"}}},
					ValueInteger: &signalCount,
				},
				{
					Code:         fhirCodeable{Coding: []fhirCoding{{System: fhirCodeSystem, Code: "days-active"}}},
					ValueInteger: &daysActive,
				},
				{
					Code:         fhirCodeable{Coding: []fhirCoding{{System: fhirCodeSystem, Code: "quality-score"}}},
					ValueInteger: &quality,
				},
				{
					Code:          fhirCodeable{Coding: []fhirCoding{{System: fhirCodeSystem, Code: "last-signal-date"}}},
					ValueDateTime: dayString(p.LastSignalAt),
				},
			},
		}
		bundle.Entry = append(bundle.Entry, fhirEntry{Resource: obs})
	}
	return json.MarshalIndent(bundle, "", "  ")
}
