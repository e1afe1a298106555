// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidSession = errors.New("invalid session token")

// SessionClaims identifies the player a session belongs to.
type SessionClaims struct {
	jwt.RegisteredClaims
	User string `json:"u"`
}

// SessionIssuer signs and parses HS256 session tokens.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionIssuer creates an issuer. An empty secret is replaced by a
// random one, which invalidates sessions on restart.
func NewSessionIssuer(secret string, ttl time.Duration) (*SessionIssuer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating session secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SessionIssuer{secret: key, ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for the given normalized player name.
func (s *SessionIssuer) Issue(uniqueName string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		User: uniqueName,
	})
	return token.SignedString(s.secret)
}

// Parse validates a token and returns the player name it was issued for.
func (s *SessionIssuer) Parse(tokenString string) (string, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if !token.Valid {
		return "", ErrInvalidSession
	}
	return claims.User, nil
}
