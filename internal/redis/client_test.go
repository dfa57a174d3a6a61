package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/mpc-relay-go/internal/config"
)

func TestOptions(t *testing.T) {
	t.Run("discrete settings", func(t *testing.T) {
		opts, err := Options(config.RedisConfig{
			Host: "cache", Port: 6380, Username: "u", Password: "p", DB: 2, TLS: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "cache:6380", opts.Addr)
		assert.Equal(t, "u", opts.Username)
		assert.Equal(t, 2, opts.DB)
		require.NotNil(t, opts.TLSConfig)
		assert.Equal(t, "cache", opts.TLSConfig.ServerName)
	})

	t.Run("url wins", func(t *testing.T) {
		opts, err := Options(config.RedisConfig{URL: "redis://localhost:6379/3", Host: "ignored"})
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", opts.Addr)
		assert.Equal(t, 3, opts.DB)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := Options(config.RedisConfig{URL: "http://nope"})
		assert.Error(t, err)
	})
}

func TestKeys(t *testing.T) {
	cfg := config.RedisConfig{KeyPrefix: "app:", StreamKeyPrefix: "mpc:events:"}
	assert.Equal(t, "app:mpc:events:s1", StreamKey(cfg, "s1"))
	assert.Equal(t, "app:ratelimit:0xabc", RateLimitKey(cfg, "0xabc"))
}
