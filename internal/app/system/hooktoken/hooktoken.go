// Package hooktoken issues and verifies the HS256 bearer tokens that
// authenticate calls to the completion webhook.
package hooktoken

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer and audience stamped on every token.
const (
	Issuer   = "boardhub"
	Audience = "completion-webhook"
)

var (
	// ErrMissingToken is returned when the request has no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNoSecret is returned when the signer has no secret configured.
	ErrNoSecret = errors.New("webhook secret not configured")
)

// Claims identify the caller of the webhook.
type Claims struct {
	jwt.RegisteredClaims
}

// Signer issues and verifies webhook tokens with a shared secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// New creates a Signer. An empty secret disables the webhook: every
// verification fails with ErrNoSecret.
func New(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// Enabled reports whether a secret is configured.
func (s *Signer) Enabled() bool { return len(s.secret) > 0 }

// Issue creates a token for subject valid for ttl.
func (s *Signer) Issue(subject string, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a token string.
func (s *Signer) Verify(raw string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, ErrNoSecret
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// FromRequest extracts and verifies the bearer token on r.
func (s *Signer) FromRequest(r *http.Request) (*Claims, error) {
	h := r.Header.Get("Authorization")
	scheme, raw, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return nil, ErrMissingToken
	}
	return s.Verify(strings.TrimSpace(raw))
}
