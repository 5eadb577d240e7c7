// Package auth mints and verifies the bearer tokens that guard the admin endpoints.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminSubject is the "sub" claim carried by admin tokens.
const AdminSubject = "admin"

var ErrDisabled = errors.New("admin tokens are disabled")

// Issuer signs HS256 tokens with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration // 0 => tokens never expire
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Enabled reports whether a secret is configured.
func (i *Issuer) Enabled() bool {
	return len(i.secret) > 0
}

// CreateJWT creates a signed token with "sub" = subject and, when a ttl is set, an expiry.
func (i *Issuer) CreateJWT(subject string) (string, error) {
	if !i.Enabled() {
		return "", ErrDisabled
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
	}
	if i.ttl != 0 {
		claims["exp"] = now.Add(i.ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// AuthenticateJWT verifies a token string and returns its "sub" claim.
func (i *Issuer) AuthenticateJWT(tokenString string) (string, error) {
	if !i.Enabled() {
		return "", ErrDisabled
	}
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}

	sub, err := t.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return sub, nil
}
