package export

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
)

const (
	tokenIssuer   = "tessera"
	tokenAudience = "partner-export"
)

// Claims carries the agreement a partner token is scoped to.
type Claims struct {
	AgreementID string `json:"agreement_id"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies short-lived partner export-access tokens.
// Partners trade their agreement credential for a token, then present it on
// every download or metadata read.
type TokenService struct {
	signingKey []byte
	ttl        time.Duration
}

// NewTokenService builds the token service over an HS256 signing key.
func NewTokenService(signingKey string, ttl time.Duration) *TokenService {
	return &TokenService{signingKey: []byte(signingKey), ttl: ttl}
}

// Mint issues a token scoped to one agreement.
func (s *TokenService) Mint(agreementID id.AgreementID) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AgreementID: agreementID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Audience:  []string{tokenAudience},
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// Verify validates a token and returns the agreement it is scoped to.
func (s *TokenService) Verify(tokenString string) (id.AgreementID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithAudience(tokenAudience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return id.AgreementID{}, dErrors.New(dErrors.CodeAccessDenied, "token has expired")
		}
		return id.AgreementID{}, dErrors.New(dErrors.CodeAccessDenied, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return id.AgreementID{}, dErrors.New(dErrors.CodeAccessDenied, "invalid token claims")
	}
	return id.ParseAgreementID(claims.AgreementID)
}
