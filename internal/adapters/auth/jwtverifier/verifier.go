package jwtverifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"certivax/internal/ports/auth"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenEmpty   = errors.New("token is empty")
	ErrMissingSub   = errors.New("token missing sub claim")
	ErrNoSigningKey = errors.New("jwt signing key is required")
)

// Verifier valida tokens HS256 firmados con una clave compartida; el claim
// "sub" es el principal.
type Verifier struct {
	key    []byte
	issuer string
	now    func() time.Time
}

var _ auth.AuthVerifier = (*Verifier)(nil)

func New(signingKey, issuer string) (*Verifier, error) {
	if signingKey == "" {
		return nil, ErrNoSigningKey
	}
	return &Verifier{key: []byte(signingKey), issuer: issuer, now: time.Now}, nil
}

func (v *Verifier) Verify(_ context.Context, token string) (auth.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, ErrTokenEmpty
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("verify jwt: %w", err)
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return auth.Claims{}, ErrMissingSub
	}
	return auth.Claims{Principal: sub, Issuer: claims.Issuer}, nil
}

// Sign emite un token para principal. Lo usan los tests y el tooling de desarrollo.
func (v *Verifier) Sign(principal string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   principal,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
}
