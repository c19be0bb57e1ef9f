package secrets

import (
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "tessera/pkg/domain-errors"
)

type SecretsSuite struct {
	suite.Suite
}

func TestSecretsSuite(t *testing.T) {
	suite.Run(t, new(SecretsSuite))
}

func (s *SecretsSuite) TestGenerate() {
	s.Run("secrets are non-empty and unique", func() {
		first, err := Generate()
		s.Require().NoError(err)
		second, err := Generate()
		s.Require().NoError(err)
		s.NotEmpty(first)
		s.NotEqual(first, second)
	})
}

func (s *SecretsSuite) TestHashAndVerify() {
	s.Run("round-trips a generated secret", func() {
		secret, err := Generate()
		s.Require().NoError(err)
		hash, err := Hash(secret)
		s.Require().NoError(err)
		s.NotEqual(secret, hash)
		s.NoError(Verify(secret, hash))
	})

	s.Run("empty secret cannot be hashed", func() {
		_, err := Hash("")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("mismatched secret fails verification", func() {
		hash, err := Hash("correct-secret")
		s.Require().NoError(err)
		err = Verify("wrong-secret", hash)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
