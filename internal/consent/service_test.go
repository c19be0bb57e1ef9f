package consent

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

type ConsentServiceSuite struct {
	suite.Suite
	store     *InMemoryStore
	trail     *auditmemory.InMemoryStore
	languages *LanguageRegistry
	service   *Service
	ctx       context.Context
	userID    id.UserID
}

func (s *ConsentServiceSuite) SetupTest() {
	s.trail = auditmemory.NewInMemoryStore()
	s.store = NewInMemoryStore(s.trail)
	s.languages = NewLanguageRegistry()
	s.service = NewService(s.store, NewMemoryTx(s.store), s.languages,
		WithLogger(testutil.DiscardLogger()))
	s.ctx = context.Background()
	s.userID = testutil.NewUserID()
}

func TestConsentServiceSuite(t *testing.T) {
	suite.Run(t, new(ConsentServiceSuite))
}

func (s *ConsentServiceSuite) TestPresent() {
	s.Run("creates pending record stamped with current language", func() {
		record, err := s.service.Present(s.ctx, s.userID, id.ScopeDataCollection, id.StudyID{})
		s.Require().NoError(err)
		s.Equal(StatusPending, record.Status)
		s.Equal(s.languages.Current(id.ScopeDataCollection).Hash, record.LanguageHash)
		s.Equal(1, record.Version)
	})

	s.Run("repeat presentation returns the existing record", func() {
		first, err := s.service.Present(s.ctx, s.userID, id.ScopeDataCollection, id.StudyID{})
		s.Require().NoError(err)
		second, err := s.service.Present(s.ctx, s.userID, id.ScopeDataCollection, id.StudyID{})
		s.Require().NoError(err)
		s.Equal(first.PresentedAt, second.PresentedAt)
	})
}

func (s *ConsentServiceSuite) TestGrant() {
	s.Run("grants directly from not asked", func() {
		record, err := s.service.Grant(s.ctx, s.userID, id.ScopeResearchParticipation, id.StudyID{}, 0)
		s.Require().NoError(err)
		s.Equal(StatusGranted, record.Status)
		s.NotNil(record.GrantedAt)
		s.Nil(record.ExpiresAt)
	})

	s.Run("sets expiry when expiresInDays is positive", func() {
		record, err := s.service.Grant(s.ctx, s.userID, id.ScopeCohortInclusion, id.StudyID{}, 30)
		s.Require().NoError(err)
		s.Require().NotNil(record.ExpiresAt)
		s.WithinDuration(time.Now().AddDate(0, 0, 30), *record.ExpiresAt, time.Minute)
	})

	s.Run("declined scope cannot be granted", func() {
		_, err := s.service.Decline(s.ctx, s.userID, id.ScopeSensorCapture)
		s.Require().NoError(err)
		_, err = s.service.Grant(s.ctx, s.userID, id.ScopeSensorCapture, id.StudyID{}, 0)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("regrant after withdrawal is allowed", func() {
		_, err := s.service.Grant(s.ctx, s.userID, id.ScopePartnerSharing, id.StudyID{}, 0)
		s.Require().NoError(err)
		_, err = s.service.Withdraw(s.ctx, s.userID, id.ScopePartnerSharing)
		s.Require().NoError(err)
		record, err := s.service.Grant(s.ctx, s.userID, id.ScopePartnerSharing, id.StudyID{}, 0)
		s.Require().NoError(err)
		s.Equal(StatusGranted, record.Status)
		s.Nil(record.WithdrawnAt)
	})
}

func (s *ConsentServiceSuite) TestWithdraw() {
	s.Run("withdraws an active grant", func() {
		_, err := s.service.Grant(s.ctx, s.userID, id.ScopeDataCollection, id.StudyID{}, 0)
		s.Require().NoError(err)
		record, err := s.service.Withdraw(s.ctx, s.userID, id.ScopeDataCollection)
		s.Require().NoError(err)
		s.Equal(StatusWithdrawn, record.Status)
		s.NotNil(record.WithdrawnAt)
	})

	s.Run("withdrawing an absent scope is a no-op", func() {
		record, err := s.service.Withdraw(s.ctx, testutil.NewUserID(), id.ScopeDataCollection)
		s.Require().NoError(err)
		s.Nil(record)
	})

	s.Run("withdraw all revokes every active grant", func() {
		userID := testutil.NewUserID()
		for _, scope := range []id.ConsentScope{id.ScopeDataCollection, id.ScopeSensorCapture} {
			_, err := s.service.Grant(s.ctx, userID, scope, id.StudyID{}, 0)
			s.Require().NoError(err)
		}
		_, err := s.service.Decline(s.ctx, userID, id.ScopeInterventionTracking)
		s.Require().NoError(err)

		count, err := s.service.WithdrawAll(s.ctx, userID)
		s.Require().NoError(err)
		s.Equal(2, count)
	})
}

func (s *ConsentServiceSuite) TestRenew() {
	s.Run("extends from the current expiry", func() {
		record, err := s.service.Grant(s.ctx, s.userID, id.ScopeDataCollection, id.StudyID{}, 10)
		s.Require().NoError(err)
		firstExpiry := *record.ExpiresAt

		renewed, err := s.service.Renew(s.ctx, s.userID, id.ScopeDataCollection, 10)
		s.Require().NoError(err)
		s.WithinDuration(firstExpiry.AddDate(0, 0, 10), *renewed.ExpiresAt, time.Minute)
	})

	s.Run("rejects non positive days", func() {
		_, err := s.service.Renew(s.ctx, s.userID, id.ScopeDataCollection, 0)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("only granted consent can be renewed", func() {
		userID := testutil.NewUserID()
		_, err := s.service.Decline(s.ctx, userID, id.ScopeDataCollection)
		s.Require().NoError(err)
		_, err = s.service.Renew(s.ctx, userID, id.ScopeDataCollection, 10)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ConsentServiceSuite) TestHasActiveConsent() {
	s.Run("false when never asked", func() {
		active, err := s.service.HasActiveConsent(s.ctx, s.userID, id.ScopeDataCollection)
		s.Require().NoError(err)
		s.False(active)
	})

	s.Run("true for an unexpired grant", func() {
		_, err := s.service.Grant(s.ctx, s.userID, id.ScopeDataCollection, id.StudyID{}, 30)
		s.Require().NoError(err)
		active, err := s.service.HasActiveConsent(s.ctx, s.userID, id.ScopeDataCollection)
		s.Require().NoError(err)
		s.True(active)
	})

	s.Run("false once the expiry has passed", func() {
		userID := testutil.NewUserID()
		_, err := s.service.Grant(s.ctx, userID, id.ScopeDataCollection, id.StudyID{}, 1)
		s.Require().NoError(err)
		s.expireGrant(userID, id.ScopeDataCollection)

		active, err := s.service.HasActiveConsent(s.ctx, userID, id.ScopeDataCollection)
		s.Require().NoError(err)
		s.False(active)
	})
}

func (s *ConsentServiceSuite) TestValidateForExport() {
	scopes := []id.ConsentScope{id.ScopeResearchParticipation, id.ScopePartnerSharing}

	s.Run("partitions scopes into granted missing and expired", func() {
		userID := testutil.NewUserID()
		_, err := s.service.Grant(s.ctx, userID, id.ScopeResearchParticipation, id.StudyID{}, 0)
		s.Require().NoError(err)
		_, err = s.service.Grant(s.ctx, userID, id.ScopePartnerSharing, id.StudyID{}, 1)
		s.Require().NoError(err)
		s.expireGrant(userID, id.ScopePartnerSharing)

		validation, err := s.service.ValidateForExport(s.ctx, userID, scopes)
		s.Require().NoError(err)
		s.False(validation.Valid())
		s.Equal([]id.ConsentScope{id.ScopeResearchParticipation}, validation.Granted)
		s.Equal([]id.ConsentScope{id.ScopePartnerSharing}, validation.Expired)
		s.Empty(validation.Missing)
	})

	s.Run("valid when every scope is active", func() {
		userID := testutil.NewUserID()
		for _, scope := range scopes {
			_, err := s.service.Grant(s.ctx, userID, scope, id.StudyID{}, 0)
			s.Require().NoError(err)
		}
		validation, err := s.service.ValidateForExport(s.ctx, userID, scopes)
		s.Require().NoError(err)
		s.True(validation.Valid())
	})
}

func (s *ConsentServiceSuite) TestProcessExpired() {
	s.Run("sweeps expired grants into withdrawn", func() {
		userID := testutil.NewUserID()
		_, err := s.service.Grant(s.ctx, userID, id.ScopeDataCollection, id.StudyID{}, 1)
		s.Require().NoError(err)
		s.expireGrant(userID, id.ScopeDataCollection)

		processed, err := s.service.ProcessExpired(s.ctx)
		s.Require().NoError(err)
		s.Equal(1, processed)

		status, err := s.service.Status(s.ctx, userID, id.ScopeDataCollection)
		s.Require().NoError(err)
		s.Equal(StatusWithdrawn, status)
	})

	s.Run("second sweep finds nothing", func() {
		processed, err := s.service.ProcessExpired(s.ctx)
		s.Require().NoError(err)
		s.Zero(processed)
	})
}

func (s *ConsentServiceSuite) TestStaleLanguage() {
	s.Run("flags grants pinned to superseded disclosure text", func() {
		userID := testutil.NewUserID()
		_, err := s.service.Grant(s.ctx, userID, id.ScopeDataCollection, id.StudyID{}, 0)
		s.Require().NoError(err)
		_, err = s.service.Grant(s.ctx, userID, id.ScopeSensorCapture, id.StudyID{}, 0)
		s.Require().NoError(err)

		s.languages.Update(id.ScopeDataCollection, "We collect the signals you log, including reflective notes.")

		stale, err := s.service.StaleLanguage(s.ctx, userID)
		s.Require().NoError(err)
		s.Equal([]id.ConsentScope{id.ScopeDataCollection}, stale)
	})
}

func (s *ConsentServiceSuite) TestAuditTrail() {
	s.Run("every mutation appends one trail entry", func() {
		userID := testutil.NewUserID()
		_, err := s.service.Grant(s.ctx, userID, id.ScopeDataCollection, id.StudyID{}, 0)
		s.Require().NoError(err)
		_, err = s.service.Withdraw(s.ctx, userID, id.ScopeDataCollection)
		s.Require().NoError(err)

		events, err := s.trail.ListBySubject(s.ctx, audit.SubjectUser, userID.String())
		s.Require().NoError(err)
		s.Require().Len(events, 2)
		s.Equal(string(audit.ActionConsentGranted), events[0].Action)
		s.Equal(string(audit.ActionConsentWithdrawn), events[1].Action)
	})
}

// expireGrant rewrites a granted record's expiry into the past, simulating
// the passage of time.
func (s *ConsentServiceSuite) expireGrant(userID id.UserID, scope id.ConsentScope) {
	record, err := s.store.Get(s.ctx, userID, scope)
	s.Require().NoError(err)
	past := time.Now().Add(-time.Hour)
	record.ExpiresAt = &past
	s.Require().NoError(s.store.Save(s.ctx, record))
}
