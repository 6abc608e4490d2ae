// Package session issues and verifies signed session credentials.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/pairchat/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "pairchat"

// Verifier validates a session credential and yields the user it was issued to.
type Verifier interface {
	Verify(ctx context.Context, credential string) (domain.UserID, error)
}

// Claims is the payload stored inside the credential.
type Claims struct {
	UserID domain.UserID `json:"id"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 credentials with a shared secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a credential signer/verifier.
func NewTokens(secret []byte, ttl time.Duration) *Tokens {
	return &Tokens{secret: secret, ttl: ttl, now: time.Now}
}

// Issue creates a signed credential for userID and returns it with its expiry.
func (t *Tokens) Issue(userID domain.UserID) (string, time.Time, error) {
	if !userID.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: cannot issue credential for user %d", domain.ErrValidation, userID)
	}
	now := t.now()
	expiresAt := now.Add(t.ttl)

	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign credential: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses the credential and checks signature, algorithm, issuer and expiry.
// Every failure is reported as domain.ErrUnauthenticated.
func (t *Tokens) Verify(_ context.Context, credential string) (domain.UserID, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return 0, fmt.Errorf("%w: credential is missing", domain.ErrUnauthenticated)
	}

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return 0, fmt.Errorf("%w: credential expired", domain.ErrUnauthenticated)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return 0, fmt.Errorf("%w: credential malformed", domain.ErrUnauthenticated)
		default:
			return 0, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, fmt.Errorf("%w: invalid credential", domain.ErrUnauthenticated)
	}
	if !claims.UserID.Valid() {
		return 0, fmt.Errorf("%w: credential carries no user", domain.ErrUnauthenticated)
	}
	return claims.UserID, nil
}

// CredentialFromRequest extracts the raw credential from the Authorization
// header, falling back to the "token" query parameter for websocket upgrades.
func CredentialFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, value, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
