package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "users", cfg.DynamoTables.Users)
	assert.Equal(t, "couple_codes", cfg.DynamoTables.CoupleCodes)
	assert.Equal(t, 10*time.Minute, cfg.CoupleCodeTTL)
	assert.Equal(t, 5, cfg.LinkAttemptLimit)
	assert.Nil(t, cfg.KafkaBrokers)
	assert.Nil(t, cfg.TrustedProxies)
	assert.Equal(t, "https://securetoken.googleapis.com/v1/token", cfg.TokenEndpoint)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("COUPLE_CODE_TTL", "90s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("LINK_ATTEMPT_LIMIT", "3")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.4")

	cfg := Load()

	assert.Equal(t, 90*time.Second, cfg.CoupleCodeTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3, cfg.LinkAttemptLimit)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.4"}, cfg.TrustedProxies)
}

func TestGetEnvDuration_InvalidFallsBack(t *testing.T) {
	t.Setenv("SESSION_TTL", "tomorrow")
	assert.Equal(t, time.Hour, getEnvDuration("SESSION_TTL", time.Hour))
}
