package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

const (
	// Verification links live a day, reset links a single hour.
	VerificationTokenTTL  = 24 * time.Hour
	PasswordResetTokenTTL = time.Hour

	// Opaque tokens must be at least 40 characters; 32 random bytes hex
	// encoded gives 64.
	tokenBytes = 32

	// MinTokenLength is enforced before any store lookup so malformed
	// tokens never hit the database.
	MinTokenLength = 40

	sessionFallbackTTL = 30 * time.Minute
)

// GenerateToken produces a cryptographically random opaque token. It fails
// only when the entropy source does.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ParseExpiresIn parses a session TTL spec of the form "<integer><unit>"
// with unit in {s, m, h, d}. A missing integer, missing unit, or an
// unrecognized unit falls back to 30 minutes. The fallback is a documented
// policy: session issuance must never fail on a bad TTL spec.
func ParseExpiresIn(s string) time.Duration {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return sessionFallbackTTL
	}
	value, err := strconv.Atoi(s[:i])
	if err != nil {
		return sessionFallbackTTL
	}

	switch s[i:] {
	case "s":
		return time.Duration(value) * time.Second
	case "m":
		return time.Duration(value) * time.Minute
	case "h":
		return time.Duration(value) * time.Hour
	case "d":
		return time.Duration(value) * 24 * time.Hour
	default:
		return sessionFallbackTTL
	}
}
