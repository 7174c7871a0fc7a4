package api

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Domain error taxonomy. Repositories and services translate store-level
// failures into these sentinels; the transport layer maps them to status
// codes. ErrUnauthenticated deliberately covers both "unknown identifier"
// and "wrong password" so callers cannot probe for account existence, and
// ErrInvalidToken covers both missing and expired tokens for the same
// reason.
var (
	ErrNotFound         = errors.New("requested item not found")
	ErrConflict         = errors.New("identity with this email or username already exists")
	ErrUnauthenticated  = errors.New("invalid credentials")
	ErrEmailNotVerified = errors.New("email address has not been verified")
	ErrAccountDisabled  = errors.New("account is deactivated")
	ErrInvalidToken     = errors.New("token is invalid or has expired")
	ErrInternal         = errors.New("internal failure")
)

// Claims are the custom claims embedded in the session JWT.
type Claims struct {
	UserID               string `json:"uid"`
	Role                 string `json:"rol"`
	jwt.RegisteredClaims        // ExpiresAt, IssuedAt, Subject, Issuer, Audience.
}

// Response is a generic envelope for simple success/error payloads.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
