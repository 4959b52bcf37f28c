package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("ESCROW_STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("ESCROW_ESCROW_AUTO_RELEASE_DELAY", "36h")
	t.Setenv("ESCROW_SERVER_HTTP_PORT", "9090")

	cfg := FromEnv("escrow", "stripe.secret_key", "escrow.auto_release_delay", "server.http_port", "redis.addr")

	assert.True(t, cfg.IsSet("stripe.secret_key"))
	assert.Equal(t, "sk_test_123", cfg.GetString("stripe.secret_key"))
	assert.Equal(t, 36*time.Hour, cfg.GetDuration("escrow.auto_release_delay"))
	assert.Equal(t, 9090, cfg.GetInt("server.http_port"))
	assert.False(t, cfg.IsSet("redis.addr"))
}
