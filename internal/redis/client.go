package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/openclaw/mpc-relay-go/internal/config"
)

type Client struct {
	*redis.Client
}

// Options builds client options from REDIS_URL when set, otherwise from
// the discrete host/port/credential settings.
func Options(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}

	opts := &redis.Options{
		Addr:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: cfg.Host}
	}
	return opts, nil
}

// NewClient does not dial; callers Ping to learn whether Redis is reachable.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{redis.NewClient(opts)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// StreamKey is the per-session event stream key.
func StreamKey(cfg config.RedisConfig, sessionID string) string {
	return cfg.KeyPrefix + cfg.StreamKeyPrefix + sessionID
}

func RateLimitKey(cfg config.RedisConfig, actor string) string {
	return fmt.Sprintf("%sratelimit:%s", cfg.KeyPrefix, actor)
}
