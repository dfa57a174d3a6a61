package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/openclaw/mpc-relay-go/internal/config"
	redisclient "github.com/openclaw/mpc-relay-go/internal/redis"
)

const testActor = "0x1111111111111111111111111111111111111111"

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("allows requests under limit", func(t *testing.T) {
		limiter := NewRateLimiter()

		for i := 0; i < 5; i++ {
			allowed, remaining, _ := limiter.Check(ctx, "actor-1", 10)
			assert.True(t, allowed)
			assert.Equal(t, 10-i-1, remaining)
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		limiter := NewRateLimiter()

		for i := 0; i < 5; i++ {
			limiter.Check(ctx, "actor-2", 5)
		}

		allowed, remaining, _ := limiter.Check(ctx, "actor-2", 5)
		assert.False(t, allowed)
		assert.Equal(t, 0, remaining)
	})

	t.Run("tracks actors separately", func(t *testing.T) {
		limiter := NewRateLimiter()

		for i := 0; i < 5; i++ {
			limiter.Check(ctx, "actor-a", 5)
		}

		allowed, _, _ := limiter.Check(ctx, "actor-b", 5)
		assert.True(t, allowed)
	})

	t.Run("returns reset time", func(t *testing.T) {
		limiter := NewRateLimiter()
		_, _, resetAt := limiter.Check(ctx, "actor-3", 5)
		assert.Greater(t, resetAt, time.Now().Unix())
	})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("allows request without actor", func(t *testing.T) {
		handler := NewRateLimitMiddleware(NewRateLimiter(), 1).Handler(okHandler())

		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("sets rate limit headers", func(t *testing.T) {
		handler := NewRateLimitMiddleware(NewRateLimiter(), 100).Handler(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/test", nil).WithContext(WithActor(context.Background(), testActor))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "99", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("returns 429 when rate limited", func(t *testing.T) {
		handler := NewRateLimitMiddleware(NewRateLimiter(), 2).Handler(okHandler())
		ctx := WithActor(context.Background(), testActor)

		for i := 0; i < 2; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil).WithContext(ctx))
		}

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil).WithContext(ctx))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), `"code":"RATE_LIMIT_EXCEEDED"`)
	})

	t.Run("uses default limit when zero", func(t *testing.T) {
		handler := NewRateLimitMiddleware(NewRateLimiter(), 0).Handler(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/test", nil).WithContext(WithActor(context.Background(), testActor))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "600", rec.Header().Get("X-RateLimit-Limit"))
	})
}

func TestRedisRateLimiter_FailsOpen(t *testing.T) {
	client := &redisclient.Client{Client: redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})}
	defer client.Close()

	limiter := NewRedisRateLimiter(client, config.RedisConfig{KeyPrefix: "test:"})
	allowed, remaining, resetAt := limiter.Check(context.Background(), testActor, 10)

	assert.True(t, allowed)
	assert.Equal(t, 9, remaining)
	assert.Greater(t, resetAt, time.Now().Unix())
}
