// Package security verifies the access tokens issued by the backend auth service.
package security

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gymhub/backend/internal/backend"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
)

// AccessClaims holds the JWT claims of a backend access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	// Role is the database role of the session (e.g. "authenticated"), not the app role.
	Role string `json:"role"`
}

// TokenVerifier validates HS256 access tokens signed with the project JWT secret.
// It implements backend.Authenticator without a network round trip.
type TokenVerifier struct {
	secret   []byte
	audience string
}

// NewTokenVerifier returns a TokenVerifier for the given secret and expected audience.
func NewTokenVerifier(secret, audience string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), audience: audience}
}

// Validate parses and validates the access token (signature, exp, aud, sub).
func (v *TokenVerifier) Validate(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
			return v.secret, nil
		}
		return nil, ErrInvalidToken
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if v.audience != "" {
		audOk := false
		for _, a := range claims.Audience {
			if a == v.audience {
				audOk = true
				break
			}
		}
		if !audOk {
			return nil, ErrInvalidToken
		}
	}
	return claims, nil
}

// CurrentUser implements backend.Authenticator. Invalid tokens return (nil, nil).
func (v *TokenVerifier) CurrentUser(_ context.Context, accessToken string) (*backend.Identity, error) {
	claims, err := v.Validate(accessToken)
	if err != nil {
		return nil, nil
	}
	return &backend.Identity{ID: claims.Subject, Email: claims.Email}, nil
}

// Issue signs an access token for userID. Used by local tooling and tests; production
// tokens come from the auth service.
func (v *TokenVerifier) Issue(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{v.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
		Role:  "authenticated",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
