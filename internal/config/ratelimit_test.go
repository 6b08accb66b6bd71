package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadRateLimitConfigDefaults(t *testing.T) {
	for _, k := range []string{
		"RATE_LIMIT_ENABLED", "RATE_LIMIT_CAPACITY", "RATE_LIMIT_REFILL_TOKENS",
		"RATE_LIMIT_REFILL_INTERVAL", "RATE_LIMIT_TTL", "RATE_LIMIT_KEY_STRATEGY",
		"RATE_LIMIT_PREFIX", "RATE_LIMIT_DEBUG", "RATE_LIMIT_BURST", "RATE_LIMIT_REFILL_EVERY",
	} {
		t.Setenv(k, "")
	}

	cfg := LoadRateLimitConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 60, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, time.Second, cfg.RefillInterval)
	assert.Equal(t, "ip_user_route", cfg.KeyStrategy)
	assert.Equal(t, "rl", cfg.Prefix)
	assert.False(t, cfg.Debug)
	// TTL is forced to at least 5x the refill interval.
	assert.GreaterOrEqual(t, cfg.TTL, 5*cfg.RefillInterval)
}

func TestLoadRateLimitConfigBurstOverridesCapacity(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "200")
	defer t.Setenv("RATE_LIMIT_BURST", "")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 200, cfg.Capacity)
}

func TestLoadRateLimitConfigRefillEverySetsTokenBucketToOnePerInterval(t *testing.T) {
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "10s")
	defer t.Setenv("RATE_LIMIT_REFILL_EVERY", "")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 10*time.Second, cfg.RefillInterval)
}

func TestEnvBoolRecognizesCommonSpellings(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "TRUE": true, "yes": true, "on": true,
		"0": false, "false": false, "FALSE": false, "no": false, "off": false,
	}
	for raw, want := range cases {
		t.Setenv("RATE_LIMIT_DEBUG_TEST", raw)
		assert.Equal(t, want, envBool("RATE_LIMIT_DEBUG_TEST", !want), "raw=%q", raw)
	}
}

func TestEnvBoolDefaultsOnUnrecognizedValue(t *testing.T) {
	t.Setenv("RATE_LIMIT_DEBUG_TEST", "maybe")
	assert.Equal(t, true, envBool("RATE_LIMIT_DEBUG_TEST", true))
}
