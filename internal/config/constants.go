package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Redis ping timeout at startup
const RedisPingTimeout = 3 * time.Second

// Upper bound for a single retention sweep
const RetentionRunTimeout = 30 * time.Second

// Event stream settings
const (
	SSEHeartbeatInterval = 20 * time.Second
	SSEBacklogLimit      = 200
	SSEBufferSize        = 256
)

// Default rate limiting
const DefaultRateLimitPerMin = 600
