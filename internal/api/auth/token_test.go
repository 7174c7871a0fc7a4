package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpiresIn(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{"seconds", "45s", 45 * time.Second},
		{"minutes", "15m", 15 * time.Minute},
		{"hours", "2h", 2 * time.Hour},
		{"days", "7d", 7 * 24 * time.Hour},
		{"single digit", "1h", time.Hour},
		{"multi digit", "120m", 120 * time.Minute},
		{"empty falls back", "", sessionFallbackTTL},
		{"unknown unit falls back", "10w", sessionFallbackTTL},
		{"missing unit falls back", "30", sessionFallbackTTL},
		{"missing number falls back", "h", sessionFallbackTTL},
		{"garbage falls back", "soon", sessionFallbackTTL},
		{"negative falls back", "-5m", sessionFallbackTTL},
		{"trailing junk falls back", "30mm", sessionFallbackTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseExpiresIn(tt.input))
		})
	}
}

func TestParseExpiresIn_FallbackIsThirtyMinutes(t *testing.T) {
	assert.Equal(t, 30*time.Minute, sessionFallbackTTL)
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(token), MinTokenLength)
	assert.Regexp(t, "^[0-9a-f]+$", token)
}

func TestGenerateToken_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		token, err := GenerateToken()
		require.NoError(t, err)
		if _, dup := seen[token]; dup {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = struct{}{}
	}
}
