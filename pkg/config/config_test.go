package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, ":8000", cfg.Addr)
	assert.Equal(t, "memory", cfg.Bus.Type)
	assert.Equal(t, "local", cfg.Cache.Type)
	assert.Equal(t, time.Minute, cfg.WSTicketTTL)
	assert.False(t, cfg.UsesRedis())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("BUS_TYPE", "redis")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("LOG_MAX_SIZE", "20")
	t.Setenv("SEARCH_ENABLED", "true")
	t.Setenv("API_ROUTE_RATES", "/api/alerts=120-M,/api/beneficiaries=300-M")
	t.Setenv("SMS_ALLOW_CIDRS", "54.172.60.0/23, 34.203.250.0/23")

	cfg := FromEnv()
	assert.True(t, cfg.UsesRedis())
	assert.Equal(t, 5*time.Minute, cfg.JWTAccessTTL)
	assert.Equal(t, 20, cfg.Log.MaxSize)
	assert.True(t, cfg.SearchEnabled)
	assert.Equal(t, "120-M", cfg.APIRouteRates["/api/alerts"])
	assert.Equal(t, []string{"54.172.60.0/23", "34.203.250.0/23"}, cfg.SMSAllowCIDRs)
	assert.Empty(t, cfg.RateDenyCIDRs)
}
