package partnership

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
	"tessera/pkg/platform/audit"
	auditmemory "tessera/pkg/platform/audit/store/memory"
	"tessera/pkg/testutil"
)

type PartnershipServiceSuite struct {
	suite.Suite
	trail   *auditmemory.InMemoryStore
	store   *InMemoryStore
	service *Service
	now     time.Time
	ctx     context.Context
}

func (s *PartnershipServiceSuite) SetupTest() {
	s.trail = auditmemory.NewInMemoryStore()
	s.store = NewInMemoryStore(s.trail)
	s.now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	s.service = NewService(s.store, NewMemoryTx(s.store),
		WithLogger(testutil.DiscardLogger()),
		WithClock(func() time.Time { return s.now }))
	s.ctx = context.Background()
}

func TestPartnershipServiceSuite(t *testing.T) {
	suite.Run(t, new(PartnershipServiceSuite))
}

func (s *PartnershipServiceSuite) submitRequest() *Request {
	request, err := s.service.SubmitRequest(s.ctx, "Aster Clinical", "research@aster.example", "sleep cohort access")
	s.Require().NoError(err)
	return request
}

// approvedRequest walks a fresh request to legal_review.
func (s *PartnershipServiceSuite) approvedRequest() *Request {
	request := s.submitRequest()
	_, err := s.service.UpdateRequestStatus(s.ctx, request.ID, RequestNegotiating, "reviewer", "")
	s.Require().NoError(err)
	approved, err := s.service.UpdateRequestStatus(s.ctx, request.ID, RequestLegalReview, "legal", "terms acceptable")
	s.Require().NoError(err)
	return approved
}

// activeAgreement creates and activates an agreement whose window spans s.now.
func (s *PartnershipServiceSuite) activeAgreement(elements, formats []string) (*Agreement, string) {
	request := s.approvedRequest()
	agreement, secret, err := s.service.CreateAgreement(s.ctx, request.ID, "Aster Clinical",
		elements, formats, s.now.AddDate(0, 0, -1), s.now.AddDate(1, 0, 0))
	s.Require().NoError(err)
	_, err = s.service.SignAgreement(s.ctx, agreement.ID)
	s.Require().NoError(err)
	activated, err := s.service.ActivateAgreement(s.ctx, agreement.ID)
	s.Require().NoError(err)
	return activated, secret
}

func (s *PartnershipServiceSuite) TestSubmitRequest() {
	s.Run("requires an organization", func() {
		_, err := s.service.SubmitRequest(s.ctx, "", "a@b.example", "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("starts at inquiry", func() {
		request := s.submitRequest()
		s.Equal(RequestInquiry, request.Status)
		s.True(request.AgreementID.IsNil())
	})
}

func (s *PartnershipServiceSuite) TestRequestLifecycle() {
	s.Run("walks the forward path", func() {
		request := s.submitRequest()
		for _, next := range []RequestStatus{RequestNegotiating, RequestLegalReview, RequestActive} {
			updated, err := s.service.UpdateRequestStatus(s.ctx, request.ID, next, "reviewer", "")
			s.Require().NoError(err)
			s.Equal(next, updated.Status)
		}
	})

	s.Run("refuses to skip stages", func() {
		request := s.submitRequest()
		_, err := s.service.UpdateRequestStatus(s.ctx, request.ID, RequestActive, "reviewer", "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("any stage can be terminated", func() {
		request := s.submitRequest()
		updated, err := s.service.UpdateRequestStatus(s.ctx, request.ID, RequestTerminated, "reviewer", "out of scope")
		s.Require().NoError(err)
		s.Equal(RequestTerminated, updated.Status)
		s.Equal("out of scope", updated.ReviewNotes)
	})

	s.Run("terminated is terminal", func() {
		request := s.submitRequest()
		_, err := s.service.UpdateRequestStatus(s.ctx, request.ID, RequestTerminated, "reviewer", "")
		s.Require().NoError(err)
		_, err = s.service.UpdateRequestStatus(s.ctx, request.ID, RequestNegotiating, "reviewer", "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown request is not found", func() {
		_, err := s.service.UpdateRequestStatus(s.ctx, id.NewPartnershipRequestID(), RequestNegotiating, "reviewer", "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *PartnershipServiceSuite) TestCreateAgreement() {
	s.Run("requires an approved request", func() {
		request := s.submitRequest()
		_, _, err := s.service.CreateAgreement(s.ctx, request.ID, "Aster Clinical",
			nil, nil, s.now, s.now.AddDate(1, 0, 0))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("rejects an inverted window", func() {
		request := s.approvedRequest()
		_, _, err := s.service.CreateAgreement(s.ctx, request.ID, "Aster Clinical",
			nil, nil, s.now, s.now.AddDate(0, 0, -1))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("links the request and issues a verifiable credential", func() {
		request := s.approvedRequest()
		agreement, secret, err := s.service.CreateAgreement(s.ctx, request.ID, "Aster Clinical",
			[]string{"age_band"}, []string{"native"}, s.now, s.now.AddDate(1, 0, 0))
		s.Require().NoError(err)
		s.Equal(AgreementNegotiating, agreement.Status)
		s.NotEmpty(secret)
		s.NotEqual(secret, agreement.CredentialHash)

		linked, err := s.service.GetRequest(s.ctx, request.ID)
		s.Require().NoError(err)
		s.Equal(agreement.ID, linked.AgreementID)

		s.NoError(s.service.VerifyCredential(s.ctx, agreement.ID, secret))
	})

	s.Run("rejects a wrong credential", func() {
		agreement, _ := s.activeAgreement([]string{"age_band"}, []string{"native"})
		err := s.service.VerifyCredential(s.ctx, agreement.ID, "not-the-secret")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))
	})

	s.Run("one agreement per request", func() {
		request := s.approvedRequest()
		_, _, err := s.service.CreateAgreement(s.ctx, request.ID, "Aster Clinical",
			nil, nil, s.now, s.now.AddDate(1, 0, 0))
		s.Require().NoError(err)
		_, _, err = s.service.CreateAgreement(s.ctx, request.ID, "Aster Clinical",
			nil, nil, s.now, s.now.AddDate(1, 0, 0))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *PartnershipServiceSuite) TestAgreementLifecycle() {
	s.Run("activation promotes the parent request", func() {
		agreement, _ := s.activeAgreement([]string{"age_band"}, []string{"native"})
		s.Equal(AgreementActive, agreement.Status)
		request, err := s.service.GetRequest(s.ctx, agreement.RequestID)
		s.Require().NoError(err)
		s.Equal(RequestActive, request.Status)
	})

	s.Run("pause and resume", func() {
		agreement, _ := s.activeAgreement([]string{"age_band"}, []string{"native"})
		paused, err := s.service.PauseAgreement(s.ctx, agreement.ID)
		s.Require().NoError(err)
		s.Equal(AgreementPaused, paused.Status)

		resumed, err := s.service.ActivateAgreement(s.ctx, agreement.ID)
		s.Require().NoError(err)
		s.Equal(AgreementActive, resumed.Status)
	})

	s.Run("refuses activation before signing", func() {
		request := s.approvedRequest()
		agreement, _, err := s.service.CreateAgreement(s.ctx, request.ID, "Aster Clinical",
			nil, nil, s.now, s.now.AddDate(1, 0, 0))
		s.Require().NoError(err)
		_, err = s.service.ActivateAgreement(s.ctx, agreement.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("termination is terminal", func() {
		agreement, _ := s.activeAgreement([]string{"age_band"}, []string{"native"})
		terminated, err := s.service.TerminateAgreement(s.ctx, agreement.ID, "contract ended")
		s.Require().NoError(err)
		s.Equal(AgreementTerminated, terminated.Status)

		_, err = s.service.ActivateAgreement(s.ctx, agreement.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("transitions append to the agreement's own log", func() {
		agreement, _ := s.activeAgreement([]string{"age_band"}, []string{"native"})
		// created, signed, activated
		s.Len(agreement.AuditLog, 3)
		s.Equal("agreement activated", agreement.AuditLog[2].Note)
	})
}

func (s *PartnershipServiceSuite) TestValidateDataAccess() {
	elements := []string{"age_band", "region", "quality_score"}
	formats := []string{"native", "fhir"}

	s.Run("allows a covered request", func() {
		agreement, _ := s.activeAgreement(elements, formats)
		decision, err := s.service.ValidateDataAccess(s.ctx, agreement.ID, []string{"age_band", "region"}, "fhir")
		s.Require().NoError(err)
		s.True(decision.Allowed)
		s.Empty(decision.DeniedElements)
	})

	s.Run("denies uncovered elements", func() {
		agreement, _ := s.activeAgreement(elements, formats)
		decision, err := s.service.ValidateDataAccess(s.ctx, agreement.ID, []string{"age_band", "raw_identity"}, "native")
		s.Require().NoError(err)
		s.False(decision.Allowed)
		s.Equal([]string{"raw_identity"}, decision.DeniedElements)
	})

	s.Run("denies an uncovered format", func() {
		agreement, _ := s.activeAgreement(elements, formats)
		decision, err := s.service.ValidateDataAccess(s.ctx, agreement.ID, []string{"age_band"}, "sdtm")
		s.Require().NoError(err)
		s.False(decision.Allowed)
		s.True(decision.DeniedFormat)
	})

	s.Run("denies everything while paused", func() {
		agreement, _ := s.activeAgreement(elements, formats)
		_, err := s.service.PauseAgreement(s.ctx, agreement.ID)
		s.Require().NoError(err)
		decision, err := s.service.ValidateDataAccess(s.ctx, agreement.ID, []string{"age_band"}, "native")
		s.Require().NoError(err)
		s.False(decision.Allowed)
		s.Equal([]string{"age_band"}, decision.DeniedElements)
	})

	s.Run("denies outside the effective window", func() {
		agreement, _ := s.activeAgreement(elements, formats)
		s.now = s.now.AddDate(2, 0, 0)
		decision, err := s.service.ValidateDataAccess(s.ctx, agreement.ID, []string{"age_band"}, "native")
		s.Require().NoError(err)
		s.False(decision.Allowed)
		s.Contains(decision.Reason, "effective window")
	})

	s.Run("missing agreement denies rather than errors", func() {
		decision, err := s.service.ValidateDataAccess(s.ctx, id.NewAgreementID(), []string{"age_band"}, "native")
		s.Require().NoError(err)
		s.False(decision.Allowed)
		s.Equal("no agreement on file", decision.Reason)
	})

	s.Run("every check lands on the trail", func() {
		agreement, _ := s.activeAgreement(elements, formats)
		_, err := s.service.ValidateDataAccess(s.ctx, agreement.ID, []string{"age_band"}, "native")
		s.Require().NoError(err)
		_, err = s.service.ValidateDataAccess(s.ctx, agreement.ID, []string{"raw_identity"}, "native")
		s.Require().NoError(err)

		events, err := s.trail.ListBySubject(s.ctx, audit.SubjectAgreement, agreement.ID.String())
		s.Require().NoError(err)
		var decisions []string
		for _, event := range events {
			if event.Action == string(audit.ActionDataAccessChecked) {
				decisions = append(decisions, event.Decision)
			}
		}
		s.Equal([]string{"allowed", "denied"}, decisions)
	})
}

func (s *PartnershipServiceSuite) TestRecordAccessAndAudit() {
	s.Run("active agreement accumulates access lines", func() {
		agreement, _ := s.activeAgreement([]string{"age_band"}, []string{"native"})
		s.Require().NoError(s.service.RecordDataAccess(s.ctx, agreement.ID, "monthly export pulled"))
		s.Require().NoError(s.service.RecordAuditConducted(s.ctx, agreement.ID, "annual review passed"))

		updated, err := s.service.GetAgreement(s.ctx, agreement.ID)
		s.Require().NoError(err)
		last := updated.AuditLog[len(updated.AuditLog)-1]
		s.Equal("annual review passed", last.Note)
	})

	s.Run("non-active agreement refuses log lines", func() {
		agreement, _ := s.activeAgreement([]string{"age_band"}, []string{"native"})
		_, err := s.service.PauseAgreement(s.ctx, agreement.ID)
		s.Require().NoError(err)
		err = s.service.RecordDataAccess(s.ctx, agreement.ID, "attempted pull")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}
