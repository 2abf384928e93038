// Package auth issues and checks the credentials used by the web app.
//
// FLOW:
//  1. POST /auth/cookie/login with email + password (or the GitHub callback)
//  2. The service verifies the password with bcrypt and asks TokenService
//     for a JWT whose subject is the user id
//  3. The JWT goes into an HttpOnly cookie (CookieOptions.Set)
//  4. On later requests the Authenticator middleware reads the cookie,
//     validates the JWT, loads the user and puts it in the request context
//
// The token is stateless: logging out only removes the cookie, and a copied
// token stays valid until it expires (one hour by default).
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "htmx-starter"
	tokenAudience = "htmx-starter:auth"

	// DefaultTokenLifetime matches the cookie Max-Age.
	DefaultTokenLifetime = time.Hour
)

// TokenService signs and verifies HS256 access tokens.
type TokenService struct {
	secret   []byte
	lifetime time.Duration
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; a zero lifetime falls back to DefaultTokenLifetime.
func NewTokenService(secret string, lifetime time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	return &TokenService{secret: []byte(secret), lifetime: lifetime}, nil
}

// Lifetime is how long issued tokens stay valid.
func (s *TokenService) Lifetime() time.Duration { return s.lifetime }

// Generate issues a token for userID with the configured lifetime.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, s.lifetime)
}

// GenerateWithDuration issues a token that expires after d. Negative
// durations produce already-expired tokens, which the tests rely on.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot issue a token without a subject")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    tokenIssuer,
		Audience:  jwt.ClaimStrings{tokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, algorithm, issuer, audience and expiry, and
// returns the user id stored in the subject.
//
// ALGORITHM PINNING:
// WithValidMethods rejects "none" and asymmetric algorithms, so a token
// cannot pick its own verification method.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	var claims jwt.RegisteredClaims

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", errors.New("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("auth: token has no subject")
	}

	return claims.Subject, nil
}
