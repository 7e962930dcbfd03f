package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9300, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ProbeTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTP.FetchTimeout)
	assert.Equal(t, 2*time.Second, cfg.Guards.HostQPSInterval)
	assert.Equal(t, 3, cfg.Guards.DiversityFloor)
	assert.Equal(t, 600, cfg.Scanner.MinContentLength)
	assert.Equal(t, float64(60), cfg.Scanner.HighConfidenceThreshold)
	// The reprocess cooldown is configurable, never hardcoded; the default
	// is only a default.
	assert.Equal(t, 24*time.Hour, cfg.Scanner.ReprocessCooldown)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9400")
	t.Setenv("GUARD_DIVERSITY_FLOOR", "5")
	t.Setenv("GUARD_HOST_QPS_INTERVAL", "500ms")
	t.Setenv("SCANNER_REPROCESS_COOLDOWN", "48h")
	t.Setenv("SCANNER_HIGH_CONFIDENCE_THRESHOLD", "75")
	t.Setenv("GUARD_DOMINANT_DOMAIN", "en.bigpedia.org")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9400, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Guards.DiversityFloor)
	assert.Equal(t, 500*time.Millisecond, cfg.Guards.HostQPSInterval)
	assert.Equal(t, 48*time.Hour, cfg.Scanner.ReprocessCooldown)
	assert.Equal(t, float64(75), cfg.Scanner.HighConfidenceThreshold)
	assert.Equal(t, "en.bigpedia.org", cfg.Guards.DominantDomain)
}

func TestLoad_InvalidEnv(t *testing.T) {
	tests := map[string]struct {
		key   string
		value string
	}{
		"non-numeric port":       {"SERVER_PORT", "not-a-port"},
		"bad duration":           {"HTTP_FETCH_TIMEOUT", "fast"},
		"bad float":              {"GUARD_CONTESTED_RATIO", "one third"},
		"bad bool":               {"AUDIT_ENABLED", "yep"},
		"bad retry max attempts": {"RETRY_MAX_ATTEMPTS", "3.5"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_ValidationRejectsOutOfRange(t *testing.T) {
	tests := map[string]struct {
		key   string
		value string
	}{
		"port too large":            {"SERVER_PORT", "70000"},
		"contested ratio above one": {"GUARD_CONTESTED_RATIO", "1.5"},
		"share threshold zero":      {"GUARD_DOMINANT_SHARE_THRESHOLD", "0"},
		"zero content floor":        {"SCANNER_MIN_CONTENT_LENGTH", "0"},
		"threshold above 100":       {"SCANNER_HIGH_CONFIDENCE_THRESHOLD", "150"},
		"backoff factor below one":  {"RETRY_BACKOFF_FACTOR", "0.5"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
