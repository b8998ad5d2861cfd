package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"APP_PORT", "CHANGEFEED_SOURCE", "QUEUE_FEED_LIMIT", "SURGE_EVENT_WINDOW", "REDIS_URL"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, "8780", cfg.Port)
	assert.Equal(t, "postgres", cfg.ChangefeedSource)
	assert.Equal(t, 20, cfg.QueueFeedLimit)
	assert.Equal(t, 2*time.Hour, cfg.SurgeEventWindow)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9000")
	t.Setenv("CHANGEFEED_SOURCE", "NATS")
	t.Setenv("QUEUE_FEED_LIMIT", "50")
	t.Setenv("GPS_TICK", "250ms")
	t.Setenv("SIMULATION_ENABLED", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://ops.example.org")
	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "nats", cfg.ChangefeedSource)
	assert.Equal(t, 50, cfg.QueueFeedLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.GPSTick)
	assert.True(t, cfg.SimulationEnabled)
	assert.Equal(t, []string{"https://ops.example.org"}, cfg.AllowedOrigins)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("LIVE_FETCH_ATTEMPTS", "many")
	t.Setenv("LIVE_FETCH_BACKOFF", "soon")
	t.Setenv("BUNDEBUG", "perhaps")

	assert.Equal(t, 3, getEnvAsInt("LIVE_FETCH_ATTEMPTS", 3))
	assert.Equal(t, time.Second, getEnvAsDuration("LIVE_FETCH_BACKOFF", time.Second))
	assert.False(t, getEnvAsBool("BUNDEBUG", false))
}
