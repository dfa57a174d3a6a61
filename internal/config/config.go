package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "password",
}

type Config struct {
	Port            int    `env:"PORT" envDefault:"8080"`
	DatabaseURL     string `env:"DATABASE_URL"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	JWTSecret       string `env:"AUTH_JWT_SECRET,required"`
	RateLimitPerMin int    `env:"RATE_LIMIT_PER_MIN" envDefault:"600"`
	Retention       RetentionConfig
	Redis           RedisConfig `envPrefix:"REDIS_"`
}

// RetentionConfig holds the sweeper contract. Values are floats so that
// NaN/Inf from the environment can be detected and treated as disabled.
type RetentionConfig struct {
	MessageRetentionDays float64 `env:"MPC_MESSAGE_RETENTION_DAYS" envDefault:"7"`
	AuditRetentionDays   float64 `env:"MPC_AUDIT_RETENTION_DAYS" envDefault:"30"`
	CleanupIntervalMs    float64 `env:"MPC_CLEANUP_INTERVAL_MS" envDefault:"900000"`
}

type RedisConfig struct {
	Enabled         bool   `env:"ENABLED" envDefault:"false"`
	URL             string `env:"URL"`
	Host            string `env:"HOST" envDefault:"127.0.0.1"`
	Port            int    `env:"PORT" envDefault:"6379"`
	Username        string `env:"USERNAME"`
	Password        string `env:"PASSWORD"`
	DB              int    `env:"DB" envDefault:"0"`
	TLS             bool   `env:"TLS" envDefault:"false"`
	KeyPrefix       string `env:"KEY_PREFIX"`
	Channel         string `env:"CHANNEL" envDefault:"mpc_events"`
	InstanceID      string `env:"INSTANCE_ID"`
	StreamEnabled   bool   `env:"STREAM_ENABLED" envDefault:"false"`
	StreamOnly      bool   `env:"STREAM_ONLY" envDefault:"false"`
	StreamKeyPrefix string `env:"STREAM_KEY_PREFIX" envDefault:"mpc:events:"`
	StreamMaxLen    int64  `env:"STREAM_MAX_LEN" envDefault:"10000"`
	StreamApprox    bool   `env:"STREAM_APPROX" envDefault:"true"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// UseMemoryStore reports whether no database is configured.
func (c *Config) UseMemoryStore() bool {
	return strings.TrimSpace(c.DatabaseURL) == ""
}

// CleanupInterval returns zero when the sweeper is disabled.
func (r RetentionConfig) CleanupInterval() time.Duration {
	if !positiveFinite(r.CleanupIntervalMs) {
		return 0
	}
	return time.Duration(r.CleanupIntervalMs * float64(time.Millisecond))
}

// MessageRetention returns zero when message deletion is disabled.
func (r RetentionConfig) MessageRetention() time.Duration {
	return days(r.MessageRetentionDays)
}

// AuditRetention returns zero when audit deletion is disabled.
func (r RetentionConfig) AuditRetention() time.Duration {
	return days(r.AuditRetentionDays)
}

func days(n float64) time.Duration {
	if !positiveFinite(n) {
		return 0
	}
	return time.Duration(n * float64(24*time.Hour))
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func (c *Config) Validate(isProduction bool) error {
	if c.Redis.StreamOnly && !c.Redis.StreamEnabled {
		return fmt.Errorf("REDIS_STREAM_ONLY requires REDIS_STREAM_ENABLED=true")
	}

	if isProduction {
		if err := validateSecret("AUTH_JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}
		if c.UseMemoryStore() {
			log.Warn().Msg("DATABASE_URL is empty in production: sessions are kept in memory only")
		}
		if c.Redis.Enabled && !c.Redis.TLS && !strings.HasPrefix(c.Redis.URL, "rediss://") {
			log.Warn().Msg("redis connection is not TLS in production: consider REDIS_TLS=true or rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

// Load reads .env files (if any) and then the process environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
