package protocol

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "tessera/pkg/domain"
	"tessera/pkg/testutil"
)

type RenderSuite struct {
	suite.Suite
	protocol StudyProtocol
	template Template
}

func (s *RenderSuite) SetupTest() {
	s.protocol = StudyProtocol{
		StudyID:               testutil.NewStudyID(),
		Title:                 "Sleep and Engagement",
		Version:               "2.1",
		PrincipalInvestigator: "Dr. Yuen",
		Sponsor:               "Aster Clinical",
		Objective:             "Assess engagement patterns against sleep quality.",
		Population:            "Consenting adults with at least 30 days of signals.",
		DataElements:          []string{"age_band", "signal_aggregates"},
		ConsentScopes:         []id.ConsentScope{id.ScopeResearchParticipation, id.ScopeCohortInclusion},
		RetentionPolicy:       "De-identified aggregates retained for five years.",
		SubmittedAt:           time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	s.template = Template{
		Organization:    "Tessera Research",
		BoardName:       "Institutional Review Board",
		Preamble:        "This submission follows the standing data governance policy.",
		EthicsStatement: "No identifiable participant data leaves the platform.",
		ContactEmail:    "governance@tessera.example",
	}
}

func TestRenderSuite(t *testing.T) {
	suite.Run(t, new(RenderSuite))
}

func (s *RenderSuite) TestRenderSubmission() {
	s.Run("sections appear in fixed order", func() {
		doc := RenderSubmission(s.protocol, s.template)
		order := []string{
			"PROTOCOL SUBMISSION: Sleep and Engagement",
			"1. OBJECTIVE",
			"2. STUDY POPULATION",
			"3. DATA ELEMENTS",
			"4. CONSENT SCOPES REQUIRED",
			"5. DATA RETENTION",
			"6. ETHICS STATEMENT",
		}
		last := -1
		for _, heading := range order {
			idx := strings.Index(doc, heading)
			s.Greater(idx, last, heading)
			last = idx
		}
	})

	s.Run("lists elements and scopes as bullets", func() {
		doc := RenderSubmission(s.protocol, s.template)
		s.Contains(doc, "  - age_band\n")
		s.Contains(doc, "  - research_participation\n")
		s.Contains(doc, "  - cohort_inclusion\n")
	})

	s.Run("carries the header fields", func() {
		doc := RenderSubmission(s.protocol, s.template)
		s.Contains(doc, "Study ID:       "+s.protocol.StudyID.String())
		s.Contains(doc, "Sponsor:        Aster Clinical")
		s.Contains(doc, "Submitted:      2026-04-01")
		s.Contains(doc, "Contact: governance@tessera.example")
	})

	s.Run("empty optional fields collapse", func() {
		s.protocol.Sponsor = ""
		s.protocol.SubmittedAt = time.Time{}
		s.template.Preamble = ""
		s.template.EthicsStatement = ""
		s.template.ContactEmail = ""

		doc := RenderSubmission(s.protocol, s.template)
		s.NotContains(doc, "Sponsor:")
		s.NotContains(doc, "Submitted:")
		s.NotContains(doc, "6. ETHICS STATEMENT")
		s.NotContains(doc, "Contact:")
	})
}
