package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const scopeIssuer = "portfolio-admin"

// ScopeSigner issues and validates the signed scope cookie value. The scope
// id names the browser's slot in the credential store.
type ScopeSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewScopeSigner builds a signer. A non-positive ttl falls back to 30 days.
func NewScopeSigner(secret string, ttl time.Duration, now func() time.Time) *ScopeSigner {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &ScopeSigner{secret: []byte(secret), ttl: ttl, now: now}
}

// Issue mints a fresh scope and its signed token.
func (s *ScopeSigner) Issue() (scope, token string, expiresAt time.Time, err error) {
	now := s.now()
	scope = uuid.NewString()
	expiresAt = now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    scopeIssuer,
		Subject:   scope,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return scope, token, expiresAt, nil
}

// Parse validates a scope token and returns the scope id.
func (s *ScopeSigner) Parse(token string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(scopeIssuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)

	claims := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}); err != nil {
		return "", err
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", errors.New("scope token subject is not a scope id")
	}
	return claims.Subject, nil
}
