package export

import (
	"encoding/json"
	"fmt"
)

// sdtmDM is one demographics domain record.
type sdtmDM struct {
	StudyID string `json:"STUDYID"`
	Domain  string `json:"DOMAIN"`
	USubjID string `json:"USUBJID"`
	AgeGrp  string `json:"AGEGR1"`
	Region  string `json:"REGION"`
	Context string `json:"CONTEXT"`
}

// sdtmQS is one questionnaire domain record carrying the quality assessment.
type sdtmQS struct {
	StudyID  string `json:"STUDYID"`
	Domain   string `json:"DOMAIN"`
	USubjID  string `json:"USUBJID"`
	TestCode string `json:"QSTESTCD"`
	Result   int    `json:"QSORRES"`
	Date     string `json:"QSDTC"`
}

type sdtmDocument struct {
	DM []sdtmDM `json:"dm"`
	QS []sdtmQS `json:"qs"`
}

// sdtmSerializer emits two parallel record arrays keyed by a synthetic
// per-row subject identifier, so the opaque participant ID never appears.
type sdtmSerializer struct{}

func (sdtmSerializer) Format() Format { return FormatSDTM }

func (sdtmSerializer) Serialize(ds *Dataset) ([]byte, error) {
	studyID := ""
	if !ds.StudyID.IsNil() {
		studyID = ds.StudyID.String()
	}
	doc := sdtmDocument{DM: []sdtmDM{}, QS: []sdtmQS{}}
	for i, p := range ds.Participants {
		subject := fmt.Sprintf("SUBJ-%04d", i+1)
		doc.DM = append(doc.DM, sdtmDM{
			StudyID: studyID,
			Domain:  "DM",
			USubjID: subject,
			AgeGrp:  p.AgeBand,
			Region:  p.Region,
			Context: p.Context,
		})
		doc.QS = append(doc.QS, sdtmQS{
			StudyID:  studyID,
			Domain:   "QS",
			USubjID:  subject,
			TestCode: "DQSCORE",
			Result:   p.Quality.Overall,
			Date:     dayString(p.LastSignalAt),
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}
