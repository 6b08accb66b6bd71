package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnvIntDefaultsWhenUnsetOrInvalid(t *testing.T) {
	t.Setenv("MAX_SEATS_PER_BOOKING_TEST", "")
	assert.Equal(t, 7, envInt("MAX_SEATS_PER_BOOKING_TEST", 7))

	t.Setenv("MAX_SEATS_PER_BOOKING_TEST", "not-a-number")
	assert.Equal(t, 7, envInt("MAX_SEATS_PER_BOOKING_TEST", 7))

	t.Setenv("MAX_SEATS_PER_BOOKING_TEST", "12")
	assert.Equal(t, 12, envInt("MAX_SEATS_PER_BOOKING_TEST", 7))
}

func TestEnvDurDefaultsWhenUnsetOrInvalid(t *testing.T) {
	t.Setenv("SELECTION_TTL_TEST", "")
	assert.Equal(t, 5*time.Minute, envDur("SELECTION_TTL_TEST", 5*time.Minute))

	t.Setenv("SELECTION_TTL_TEST", "bogus")
	assert.Equal(t, 5*time.Minute, envDur("SELECTION_TTL_TEST", 5*time.Minute))

	t.Setenv("SELECTION_TTL_TEST", "45s")
	assert.Equal(t, 45*time.Second, envDur("SELECTION_TTL_TEST", 5*time.Minute))
}

func TestEnvCSVSplitsAndTrimsEmpties(t *testing.T) {
	t.Setenv("CORS_ORIGINS_TEST", "")
	assert.Equal(t, []string{"*"}, envCSV("CORS_ORIGINS_TEST", []string{"*"}))

	t.Setenv("CORS_ORIGINS_TEST", "https://a.test,https://b.test")
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, envCSV("CORS_ORIGINS_TEST", nil))

	t.Setenv("CORS_ORIGINS_TEST", "https://a.test,,https://b.test,")
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, envCSV("CORS_ORIGINS_TEST", nil))
}

func TestGetenvDefaultsOnEmpty(t *testing.T) {
	t.Setenv("LOG_LEVEL_TEST", "")
	assert.Equal(t, "info", getenv("LOG_LEVEL_TEST", "info"))

	t.Setenv("LOG_LEVEL_TEST", "debug")
	assert.Equal(t, "debug", getenv("LOG_LEVEL_TEST", "info"))
}
