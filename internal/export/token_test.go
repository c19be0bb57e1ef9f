package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
)

type TokenServiceSuite struct {
	suite.Suite
	tokens *TokenService
}

func (s *TokenServiceSuite) SetupTest() {
	s.tokens = NewTokenService("test-signing-key", time.Hour)
}

func TestTokenServiceSuite(t *testing.T) {
	suite.Run(t, new(TokenServiceSuite))
}

func (s *TokenServiceSuite) TestMintAndVerify() {
	s.Run("round-trips the agreement scope", func() {
		agreementID := id.NewAgreementID()
		token, err := s.tokens.Mint(agreementID)
		s.Require().NoError(err)

		verified, err := s.tokens.Verify(token)
		s.Require().NoError(err)
		s.Equal(agreementID, verified)
	})

	s.Run("rejects a token signed with another key", func() {
		other := NewTokenService("different-key", time.Hour)
		token, err := other.Mint(id.NewAgreementID())
		s.Require().NoError(err)

		_, err = s.tokens.Verify(token)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))
	})

	s.Run("rejects an expired token", func() {
		expired := NewTokenService("test-signing-key", -time.Minute)
		token, err := expired.Mint(id.NewAgreementID())
		s.Require().NoError(err)

		_, err = s.tokens.Verify(token)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))
		s.Contains(err.Error(), "expired")
	})

	s.Run("rejects garbage", func() {
		_, err := s.tokens.Verify("not.a.token")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))
	})
}
