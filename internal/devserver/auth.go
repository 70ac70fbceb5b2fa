package devserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Tokens are parent-scoped; every device of a family presents the same
	// subject.
	tokenLifetime = 24 * time.Hour
	clockSkew     = 2 * time.Minute
	minSecretLen  = 32
)

var (
	ErrWeakSecret   = errors.New("token secret must be at least 32 characters")
	ErrInvalidToken = errors.New("invalid token")
)

type accessClaims struct {
	ParentID string `json:"pid"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies the dev server's HMAC bearer tokens.
type TokenService struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewTokenService creates a token service. The secret must be long enough to
// resist brute force; short secrets are rejected outright rather than
// silently accepted.
func NewTokenService(secret string, now func() time.Time) (*TokenService, error) {
	if len(secret) < minSecretLen {
		return nil, ErrWeakSecret
	}
	if now == nil {
		now = time.Now
	}
	return &TokenService{secret: []byte(secret), lifetime: tokenLifetime, now: now}, nil
}

// Mint issues a signed token for one parent account.
func (t *TokenService) Mint(parentID string) (string, error) {
	if parentID == "" {
		return "", fmt.Errorf("parent id required")
	}
	now := t.now().UTC()
	claims := accessClaims{
		ParentID: parentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   parentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.lifetime)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify validates a token and returns the parent id it was minted for.
func (t *TokenService) Verify(tokenString string) (string, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.ParentID == "" {
		return "", ErrInvalidToken
	}
	return claims.ParentID, nil
}

// RequireAuth rejects requests without a valid bearer token. The verified
// parent id travels in the request context.
func (t *TokenService) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			respondError(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			respondError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}
		parentID, err := t.Verify(parts[1])
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withParentID(r.Context(), parentID)))
	})
}
