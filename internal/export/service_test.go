package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tessera/internal/cohort"
	"tessera/internal/partnership"
	"tessera/internal/quality"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
	auditmemory "tessera/pkg/platform/audit/store/memory"
	"tessera/pkg/platform/sentinel"
	"tessera/pkg/testutil"
)

// stubCohorts serves one fixed cohort and its members.
type stubCohorts struct {
	cohort  *cohort.Cohort
	members []*cohort.Member
}

func (c *stubCohorts) Get(_ context.Context, cohortID id.CohortID) (*cohort.Cohort, error) {
	if c.cohort == nil || c.cohort.ID != cohortID {
		return nil, dErrors.New(dErrors.CodeNotFound, "cohort not found")
	}
	return c.cohort, nil
}

func (c *stubCohorts) Members(_ context.Context, _ id.CohortID) ([]*cohort.Member, error) {
	return c.members, nil
}

// stubAccess returns a canned decision and remembers what was asked.
type stubAccess struct {
	decision        partnership.AccessDecision
	lastElements    []string
	lastFormat      string
	lastAgreementID id.AgreementID
}

func (a *stubAccess) ValidateDataAccess(_ context.Context, agreementID id.AgreementID, elements []string, format string) (*partnership.AccessDecision, error) {
	a.lastAgreementID = agreementID
	a.lastElements = elements
	a.lastFormat = format
	decision := a.decision
	return &decision, nil
}

// stubScores serves current quality scores per participant.
type stubScores struct {
	scores map[id.ParticipantID]quality.Score
}

func (q *stubScores) Latest(_ context.Context, participantID id.ParticipantID) (quality.Score, error) {
	if score, ok := q.scores[participantID]; ok {
		return score, nil
	}
	return quality.Score{}, sentinel.ErrNotFound
}

type stubSources struct {
	labels []string
}

func (s *stubSources) SourceLabels(_ context.Context, _ id.ParticipantID) ([]string, error) {
	return s.labels, nil
}

type ExportServiceSuite struct {
	suite.Suite
	store   *InMemoryStore
	cohorts *stubCohorts
	access  *stubAccess
	scores  *stubScores
	service *Service
	now     time.Time
	ctx     context.Context
}

func (s *ExportServiceSuite) SetupTest() {
	s.store = NewInMemoryStore(auditmemory.NewInMemoryStore())
	s.now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	s.cohorts = &stubCohorts{
		cohort: &cohort.Cohort{ID: id.NewCohortID(), Name: "sleep study"},
	}
	for i := 0; i < 3; i++ {
		s.cohorts.members = append(s.cohorts.members, &cohort.Member{
			ParticipantID: id.NewParticipantID(),
			AgeBand:       cohort.Age25To34,
			Region:        cohort.RegionEurope,
			Context:       cohort.ContextWork,
			SignalCount:   40,
			DaysActive:    20,
			FirstSignalAt: s.now.AddDate(0, 0, -30),
			LastSignalAt:  s.now.AddDate(0, 0, -1),
			QualityScore:  50,
		})
	}
	s.access = &stubAccess{decision: partnership.AccessDecision{Allowed: true}}
	s.scores = &stubScores{scores: make(map[id.ParticipantID]quality.Score)}
	s.service = NewService(s.store, s.cohorts, s.access, s.scores,
		WithLogger(testutil.DiscardLogger()),
		WithSourceReader(&stubSources{labels: []string{"wearable", "manual"}}),
		WithClock(func() time.Time { return s.now }))
	s.ctx = context.Background()
}

func (s *ExportServiceSuite) SetupSubTest() {
	s.SetupTest()
}

func TestExportServiceSuite(t *testing.T) {
	suite.Run(t, new(ExportServiceSuite))
}

func (s *ExportServiceSuite) config(format Format) Config {
	return Config{
		CohortID:    s.cohorts.cohort.ID,
		AgreementID: id.NewAgreementID(),
		Format:      format,
	}
}

func (s *ExportServiceSuite) TestGenerate() {
	s.Run("native content round-trips through the parser", func() {
		pkg, content, err := s.service.Generate(s.ctx, s.config(FormatNative), "ops", id.StudyID{}, "v1")
		s.Require().NoError(err)
		s.Equal(3, pkg.RecordCount)

		ds, err := ParseNative(content)
		s.Require().NoError(err)
		s.Equal(s.cohorts.cohort.ID, ds.CohortID)
		s.Equal("sleep study", ds.CohortName)
		s.Len(ds.Participants, 3)
	})

	s.Run("manifest hash matches the delivered bytes", func() {
		pkg, content, err := s.service.Generate(s.ctx, s.config(FormatNative), "ops", id.StudyID{}, "v1")
		s.Require().NoError(err)
		s.Require().Len(pkg.FileManifest, 1)
		sum := sha256.Sum256(content)
		s.Equal(hex.EncodeToString(sum[:]), pkg.FileManifest[0].ContentHash)
		s.Equal(3, pkg.FileManifest[0].RecordCount)
	})

	s.Run("participants are sorted deterministically", func() {
		_, content, err := s.service.Generate(s.ctx, s.config(FormatNative), "ops", id.StudyID{}, "v1")
		s.Require().NoError(err)
		ds, err := ParseNative(content)
		s.Require().NoError(err)
		sorted := sort.SliceIsSorted(ds.Participants, func(i, j int) bool {
			return ds.Participants[i].ParticipantID.String() < ds.Participants[j].ParticipantID.String()
		})
		s.True(sorted)
	})

	s.Run("requests the standard elements from the gate", func() {
		_, _, err := s.service.Generate(s.ctx, s.config(FormatFHIR), "ops", id.StudyID{}, "v1")
		s.Require().NoError(err)
		s.Equal([]string{"demographics", "signal_aggregates", "quality_scores"}, s.access.lastElements)
		s.Equal("fhir", s.access.lastFormat)
	})

	s.Run("denied access aborts generation", func() {
		s.access.decision = partnership.AccessDecision{Allowed: false, Reason: "agreement is paused"}
		_, _, err := s.service.Generate(s.ctx, s.config(FormatNative), "ops", id.StudyID{}, "v1")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))

		packages, err := s.service.ListByCohort(s.ctx, s.cohorts.cohort.ID)
		s.Require().NoError(err)
		s.Empty(packages)
	})

	s.Run("empty cohort cannot be exported", func() {
		s.cohorts.members = nil
		_, _, err := s.service.Generate(s.ctx, s.config(FormatNative), "ops", id.StudyID{}, "v1")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown format is rejected before any lookup", func() {
		_, _, err := s.service.Generate(s.ctx, Config{Format: Format("xml")}, "ops", id.StudyID{}, "v1")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ExportServiceSuite) TestQualityJoin() {
	s.Run("current scores override the enrollment pin", func() {
		scored := s.cohorts.members[0].ParticipantID
		s.scores.scores[scored] = quality.Score{OverallScore: 91, Completeness: 88}

		_, content, err := s.service.Generate(s.ctx, s.config(FormatNative), "ops", id.StudyID{}, "v1")
		s.Require().NoError(err)
		ds, err := ParseNative(content)
		s.Require().NoError(err)

		for _, p := range ds.Participants {
			if p.ParticipantID == scored {
				s.Equal(91, p.Quality.Overall)
				s.Equal(88, p.Quality.Completeness)
			} else {
				s.Equal(50, p.Quality.Overall)
			}
		}
	})
}

func (s *ExportServiceSuite) TestMetadata() {
	s.Run("summarizes quality, date range, and sources", func() {
		pkg, _, err := s.service.Generate(s.ctx, s.config(FormatNative), "ops", id.StudyID{}, "v1")
		s.Require().NoError(err)
		s.InDelta(50.0, pkg.Metadata.AvgQualityScore, 0.01)
		s.Equal(s.now.AddDate(0, 0, -30), pkg.Metadata.DateRangeStart)
		s.Equal(s.now.AddDate(0, 0, -1), pkg.Metadata.DateRangeEnd)
		s.Equal(DeidentificationMethod, pkg.Metadata.DeidMethod)
		s.Equal([]string{"manual", "wearable"}, pkg.Metadata.SourceTypes)
	})
}

func (s *ExportServiceSuite) TestRecordAccess() {
	s.Run("appends to the package access log", func() {
		pkg, _, err := s.service.Generate(s.ctx, s.config(FormatNative), "ops", id.StudyID{}, "v1")
		s.Require().NoError(err)

		s.Require().NoError(s.service.RecordAccess(s.ctx, pkg.ID, "partner:aster"))
		stored, err := s.service.Get(s.ctx, pkg.ID)
		s.Require().NoError(err)
		s.Require().Len(stored.AccessLog, 1)
		s.Equal("partner:aster", stored.AccessLog[0].AccessedBy)
	})

	s.Run("unknown package is not found", func() {
		err := s.service.RecordAccess(s.ctx, id.NewExportID(), "partner:aster")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ExportServiceSuite) TestSerializerShapes() {
	dims := func(format Format) []byte {
		_, content, err := s.service.Generate(s.ctx, s.config(format), "ops", id.StudyID{}, "v1")
		s.Require().NoError(err)
		return content
	}

	s.Run("flat emits one row per participant", func() {
		s.Contains(string(dims(FormatFlat)), `"participant_id"`)
	})

	s.Run("fhir wraps participants in a bundle", func() {
		s.Contains(string(dims(FormatFHIR)), `"resourceType"`)
	})

	s.Run("sdtm uses uppercase domain variables", func() {
		s.Contains(string(dims(FormatSDTM)), `"USUBJID"`)
	})

	s.Run("omop emits person records", func() {
		s.Contains(string(dims(FormatOMOP)), `"person_id"`)
	})
}
