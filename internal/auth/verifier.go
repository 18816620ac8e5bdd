// Communication Platform - Realtime Messaging Gateway
// Copyright 2026 Yab112
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Yab112/communicationplatformapp-sub000

// Package auth implements the socket handshake auth gate.
//
// Every connection must present a bearer credential before the websocket
// upgrade completes; the resolved user id is attached to the connection and
// trusted by every later room-join and broadcast decision. Validation
// happens exactly once, at handshake time.
//
// Credentials are HMAC-SHA256 JWTs issued by the web application's identity
// layer with the shared secret. The raw-user-id handshake the platform
// shipped with originally was an impersonation hole; only verifiable signed
// tokens are accepted here.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Yab112/communicationplatformapp-sub000/internal/config"
)

var (
	// ErrNoCredential is returned when the handshake carries no token.
	ErrNoCredential = errors.New("no credential presented")

	// ErrInvalidToken is returned for malformed, expired or unverifiable
	// tokens.
	ErrInvalidToken = errors.New("invalid credential token")
)

// Claims are the JWT claims the gateway understands. The user id travels in
// the "uid" claim; Subject is accepted as a fallback for tokens minted by
// older web application builds.
type Claims struct {
	UserID string `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates handshake credentials.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier from the security configuration.
// The secret is required and must be at least 32 characters; Config.Validate
// enforces the same bound so this only fails when wired up by hand.
func NewTokenVerifier(cfg *config.SecurityConfig) (*TokenVerifier, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but was empty")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(cfg.JWTSecret))
	}
	return &TokenVerifier{secret: []byte(cfg.JWTSecret)}, nil
}

// Verify validates a token string and returns the authenticated user id.
// Signature, expiry and not-before are all checked; tokens signed with an
// unexpected algorithm are rejected outright (algorithm confusion guard).
func (v *TokenVerifier) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrNoCredential
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", fmt.Errorf("%w: token carries no user id", ErrInvalidToken)
	}
	return userID, nil
}

// Issue mints a token for the given user id. The gateway itself never issues
// credentials in production (identity is the web application's job); this
// exists for local development tooling and tests.
func (v *TokenVerifier) Issue(userID string, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// CredentialFromRequest extracts the bearer token from a handshake request.
// A Bearer Authorization header wins; otherwise the "token" query parameter
// is used, because browser WebSocket clients cannot set request headers.
// Non-Bearer schemes (proxy-injected Basic auth and the like) are ignored
// rather than suppressing the query fallback.
func CredentialFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
