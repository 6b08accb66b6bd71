package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadCacheConfigDefaults(t *testing.T) {
	for _, k := range []string{"CACHE_ENABLED", "CACHE_METHODS", "CACHE_TTL", "CACHE_KEY_STRATEGY", "CACHE_PREFIX", "CACHE_MAX_BODY_BYTES"} {
		t.Setenv(k, "")
	}

	cfg := LoadCacheConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, map[string]bool{"GET": true}, cfg.Methods)
	assert.Equal(t, 30*time.Second, cfg.TTL)
	assert.Equal(t, "route_query", cfg.KeyStrategy)
	assert.Equal(t, "cache", cfg.Prefix)
	assert.Equal(t, 1048576, cfg.MaxBodyBytes)
}

func TestParseMethodsUppercasesAndTrims(t *testing.T) {
	m := parseMethods(" get , head,,post ")
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true, "POST": true}, m)
}

func TestLoadCacheConfigDisabled(t *testing.T) {
	t.Setenv("CACHE_ENABLED", "false")
	defer t.Setenv("CACHE_ENABLED", "")

	cfg := LoadCacheConfig()
	assert.False(t, cfg.Enabled)
}
