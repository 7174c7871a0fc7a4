package auth

import (
	"time"

	"github.com/google/uuid"
)

// Identity is the authoritative account record. Tokens and their expiries
// are embedded here, one active token per kind at a time; the projection
// store mirrors a subset of these fields and is never authoritative.
type Identity struct {
	ID             uuid.UUID         `json:"id"`
	Name           string            `json:"name"`
	Surname        string            `json:"surname"`
	Username       string            `json:"username"`
	Email          string            `json:"email"`
	Phone          *string           `json:"phone,omitempty"`
	ProfilePicture *string           `json:"profile_picture,omitempty"`
	PasswordHash   string            `json:"-"`
	Active         bool              `json:"active"`
	Verification   VerificationState `json:"-"`
	Reset          ResetState        `json:"-"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// VerificationState is the embedded email-verification token state.
// A token is usable only while present, unexpired, and not yet verified.
type VerificationState struct {
	Token    *string
	Expiry   *time.Time
	Verified bool
}

// ResetState is the embedded password-reset token state.
type ResetState struct {
	Token  *string
	Expiry *time.Time
}

// CreateIdentityParams carries the fields persisted at registration.
type CreateIdentityParams struct {
	Name           string
	Surname        string
	Username       string
	Email          string
	Phone          *string
	ProfilePicture *string
	PasswordHash   string
}

// RegisterRequest is the expected JSON body for registration.
type RegisterRequest struct {
	Name           string  `json:"name"`
	Surname        string  `json:"surname"`
	Username       string  `json:"username"`
	Email          string  `json:"email"`
	Password       string  `json:"password"`
	Phone          *string `json:"phone,omitempty"`
	ProfilePicture *string `json:"profile_picture,omitempty"`
}

// RegisterResponse is returned on successful registration. The created
// identity never carries secrets; the flag tells clients verification is
// still pending.
type RegisterResponse struct {
	Success                   bool      `json:"success"`
	User                      *Identity `json:"user"`
	EmailVerificationRequired bool      `json:"email_verification_required"`
	Message                   string    `json:"message,omitempty"`
}

// LoginRequest accepts either the email or the username as identifier.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// UserDetails is the minimized identity view embedded in login responses.
type UserDetails struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	ProfilePicture *string `json:"profile_picture,omitempty"`
	Role           string  `json:"role"`
}

// LoginResponse carries the session artifact and its absolute expiry.
type LoginResponse struct {
	Success   bool        `json:"success"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      UserDetails `json:"user"`
}

// EmailRequest is the body for resend-verification and forgot-password.
type EmailRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body for the password reset finalization.
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// EmailResult reports the outcome of token-driven email flows. For the
// enumeration-sensitive flows (resend, forgot) the fields always read as
// success regardless of whether the account exists.
type EmailResult struct {
	Email     string `json:"email,omitempty"`
	Verified  bool   `json:"verified,omitempty"`
	Sent      bool   `json:"sent,omitempty"`
	Initiated bool   `json:"initiated,omitempty"`
	Reset     bool   `json:"reset,omitempty"`
}
