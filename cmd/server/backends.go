package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/mpc-relay-go/internal/config"
	"github.com/openclaw/mpc-relay-go/internal/database"
	"github.com/openclaw/mpc-relay-go/internal/events"
	redisclient "github.com/openclaw/mpc-relay-go/internal/redis"
	"github.com/openclaw/mpc-relay-go/internal/repository"
)

// backends holds the process-wide backing services.
type backends struct {
	db    *database.DB
	store repository.Store
	redis *redisclient.Client
	bus   events.Bus
}

func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	if cfg.UseMemoryStore() {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.DBPingTimeout)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info().Msg("database connected")
	return db, nil
}

// openBackends connects the store and, when enabled, Redis. Redis failures
// are logged and never fatal.
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	rt := &backends{}

	if cfg.UseMemoryStore() {
		log.Warn().Msg("DATABASE_URL not set, using in-memory store")
		rt.store = repository.NewMemoryStore()
	} else {
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		rt.db = db
		rt.store = repository.NewPostgresStore(db.DB)
	}

	if cfg.Redis.Enabled {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("invalid redis config, continuing without redis")
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, config.RedisPingTimeout)
			if err := client.Ping(pingCtx); err != nil {
				log.Warn().Err(err).Msg("redis ping failed, events will degrade to local delivery until it recovers")
			} else {
				log.Info().Msg("redis connected")
			}
			cancel()
			rt.redis = client
		}
	}

	rt.bus = events.NewBus(cfg.Redis, rt.redis)
	return rt, nil
}

func (rt *backends) Close() {
	if rt.bus != nil {
		if err := rt.bus.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close event bus")
		}
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}
}
