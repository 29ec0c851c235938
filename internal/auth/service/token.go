package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/smallbiznis/tasklane/internal/auth/domain"
)

const (
	audienceSession       = "session"
	audienceVerifyEmail   = "verify_email"
	audiencePasswordReset = "password_reset"
)

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	// Fingerprint pins a reset token to the password hash it was issued
	// against, so it stops working once the password changes.
	Fingerprint string `json:"pwd,omitempty"`
	jwt.RegisteredClaims
}

func (s *Service) issue(userID snowflake.ID, audience string, ttl time.Duration, claims tokenClaims) (string, time.Time, error) {
	now := s.clock.Now()
	expiresAt := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    s.issuer,
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *Service) parse(raw, audience string) (*tokenClaims, snowflake.ID, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, 0, domain.ErrTokenExpired
		}
		return nil, 0, domain.ErrInvalidToken
	}

	userID, err := snowflake.ParseString(claims.Subject)
	if err != nil {
		return nil, 0, domain.ErrInvalidToken
	}
	return claims, userID, nil
}

func fingerprint(hash *string) string {
	if hash == nil {
		return ""
	}
	sum := sha256.Sum256([]byte(*hash))
	return hex.EncodeToString(sum[:8])
}
