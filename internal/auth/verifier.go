package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the JWT claims carried by a session token. UserID is
// the authoritative identity; Subject is accepted as a fallback for tokens
// minted by older issuers.
type SessionClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HMAC-signed session tokens issued by the auth
// service. It implements interfaces.SessionVerifier.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier creates a verifier for tokens signed with secret.
func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

// VerifySession validates the token and returns the authenticated user id.
// Fails closed: missing, malformed, expired or mis-signed tokens all
// return an error and no identity.
func (v *JWTVerifier) VerifySession(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// IssueToken mints a session token for userID. Used by tooling and tests;
// production tokens come from the auth service with the same claims.
func (v *JWTVerifier) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
