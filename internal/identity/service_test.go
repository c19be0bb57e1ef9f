package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	id "tessera/pkg/domain"
	"tessera/pkg/platform/sentinel"
	"tessera/pkg/testutil"
)

type IdentityServiceSuite struct {
	suite.Suite
	service *Service
	ctx     context.Context
}

func (s *IdentityServiceSuite) SetupTest() {
	s.service = NewService(NewInMemoryStore(), WithLogger(testutil.DiscardLogger()))
	s.ctx = context.Background()
}

func TestIdentityServiceSuite(t *testing.T) {
	suite.Run(t, new(IdentityServiceSuite))
}

func (s *IdentityServiceSuite) TestResolve() {
	s.Run("mints a participant ID on first use", func() {
		userID := testutil.NewUserID()
		participantID, err := s.service.Resolve(s.ctx, userID)
		s.Require().NoError(err)
		s.False(participantID.IsNil())
	})

	s.Run("resolution is stable across calls", func() {
		userID := testutil.NewUserID()
		first, err := s.service.Resolve(s.ctx, userID)
		s.Require().NoError(err)
		second, err := s.service.Resolve(s.ctx, userID)
		s.Require().NoError(err)
		s.Equal(first, second)
	})

	s.Run("distinct users get distinct participant IDs", func() {
		first, err := s.service.Resolve(s.ctx, testutil.NewUserID())
		s.Require().NoError(err)
		second, err := s.service.Resolve(s.ctx, testutil.NewUserID())
		s.Require().NoError(err)
		s.NotEqual(first, second)
	})

	s.Run("participant ID shares no bytes with the user ID", func() {
		userID := testutil.NewUserID()
		participantID, err := s.service.Resolve(s.ctx, userID)
		s.Require().NoError(err)
		s.NotEqual(userID.String(), participantID.String())
	})
}

func (s *IdentityServiceSuite) TestLookup() {
	s.Run("does not create a mapping", func() {
		_, err := s.service.Lookup(s.ctx, testutil.NewUserID())
		s.Require().Error(err)
		s.True(errors.Is(err, sentinel.ErrNotFound))
	})

	s.Run("returns the existing mapping", func() {
		userID := testutil.NewUserID()
		minted, err := s.service.Resolve(s.ctx, userID)
		s.Require().NoError(err)
		found, err := s.service.Lookup(s.ctx, userID)
		s.Require().NoError(err)
		s.Equal(minted, found)
	})
}

func (s *IdentityServiceSuite) TestConcurrentResolve() {
	s.Run("racing resolvers observe one mapping", func() {
		userID := testutil.NewUserID()
		results := make(chan id.ParticipantID, 8)
		for i := 0; i < 8; i++ {
			go func() {
				participantID, err := s.service.Resolve(s.ctx, userID)
				s.NoError(err)
				results <- participantID
			}()
		}
		first := <-results
		for i := 1; i < 8; i++ {
			s.Equal(first, <-results)
		}
	})
}
