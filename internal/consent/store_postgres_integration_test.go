//go:build integration

package consent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "tessera/pkg/domain"
	"tessera/pkg/platform/audit"
	"tessera/pkg/platform/sentinel"
	"tessera/pkg/testutil"
	"tessera/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *PostgresStore
	ctx      context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = NewPostgresStore(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) TearDownSuite() {
	s.postgres.Terminate(s.ctx)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "consents", "audit_events"))
}

func (s *PostgresStoreSuite) record(userID id.UserID, status Status) *Consent {
	now := time.Now().UTC().Truncate(time.Microsecond)
	record := &Consent{
		UserID:       userID,
		Scope:        id.ScopeDataCollection,
		Status:       status,
		Version:      1,
		LanguageHash: "abc123",
		PresentedAt:  now,
		UpdatedAt:    now,
	}
	if status == StatusGranted {
		record.GrantedAt = &now
	}
	return record
}

func (s *PostgresStoreSuite) TestSaveAndGet() {
	s.Run("round-trips a granted record", func() {
		userID := testutil.NewUserID()
		saved := s.record(userID, StatusGranted)
		s.Require().NoError(s.store.Save(s.ctx, saved))

		loaded, err := s.store.Get(s.ctx, userID, id.ScopeDataCollection)
		s.Require().NoError(err)
		s.Equal(StatusGranted, loaded.Status)
		s.Equal("abc123", loaded.LanguageHash)
		s.Require().NotNil(loaded.GrantedAt)
		s.WithinDuration(*saved.GrantedAt, *loaded.GrantedAt, time.Millisecond)
	})

	s.Run("save upserts on the user and scope key", func() {
		userID := testutil.NewUserID()
		s.Require().NoError(s.store.Save(s.ctx, s.record(userID, StatusGranted)))

		withdrawn := s.record(userID, StatusWithdrawn)
		now := time.Now().UTC()
		withdrawn.WithdrawnAt = &now
		s.Require().NoError(s.store.Save(s.ctx, withdrawn))

		loaded, err := s.store.Get(s.ctx, userID, id.ScopeDataCollection)
		s.Require().NoError(err)
		s.Equal(StatusWithdrawn, loaded.Status)

		records, err := s.store.ListByUser(s.ctx, userID)
		s.Require().NoError(err)
		s.Len(records, 1)
	})

	s.Run("missing record is not found", func() {
		_, err := s.store.Get(s.ctx, testutil.NewUserID(), id.ScopeSensorCapture)
		s.True(errors.Is(err, sentinel.ErrNotFound))
	})
}

func (s *PostgresStoreSuite) TestListExpired() {
	s.Run("returns only granted records past expiry", func() {
		now := time.Now().UTC()

		expired := s.record(testutil.NewUserID(), StatusGranted)
		past := now.Add(-24 * time.Hour)
		expired.ExpiresAt = &past
		s.Require().NoError(s.store.Save(s.ctx, expired))

		live := s.record(testutil.NewUserID(), StatusGranted)
		future := now.Add(24 * time.Hour)
		live.ExpiresAt = &future
		s.Require().NoError(s.store.Save(s.ctx, live))

		open := s.record(testutil.NewUserID(), StatusGranted)
		s.Require().NoError(s.store.Save(s.ctx, open))

		records, err := s.store.ListExpired(s.ctx, now)
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal(expired.UserID, records[0].UserID)
	})
}

func (s *PostgresStoreSuite) TestAppendAudit() {
	s.Run("writes a trail row per event", func() {
		userID := testutil.NewUserID()
		event := audit.Event{
			Category:    audit.ActionConsentGranted.Category(),
			Timestamp:   time.Now().UTC(),
			SubjectType: audit.SubjectUser,
			Subject:     userID.String(),
			Action:      string(audit.ActionConsentGranted),
			Scope:       id.ScopeDataCollection.String(),
			NewStatus:   string(StatusGranted),
		}
		s.Require().NoError(s.store.AppendAudit(s.ctx, event))

		var count int
		err := s.postgres.DB.QueryRowContext(s.ctx,
			"SELECT COUNT(*) FROM audit_events WHERE subject = $1", userID.String()).Scan(&count)
		s.Require().NoError(err)
		s.Equal(1, count)
	})
}

func (s *PostgresStoreSuite) TestTx() {
	s.Run("rolls back the consent write when the audit write fails", func() {
		tx := NewPostgresTx(s.postgres.DB)
		userID := testutil.NewUserID()

		err := tx.RunInTx(s.ctx, userID, func(store Store) error {
			if err := store.Save(s.ctx, s.record(userID, StatusGranted)); err != nil {
				return err
			}
			return errors.New("boom")
		})
		s.Require().Error(err)

		_, err = s.store.Get(s.ctx, userID, id.ScopeDataCollection)
		s.True(errors.Is(err, sentinel.ErrNotFound))
	})
}
