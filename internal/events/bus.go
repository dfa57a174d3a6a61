package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/mpc-relay-go/internal/config"
	redisclient "github.com/openclaw/mpc-relay-go/internal/redis"
	"github.com/openclaw/mpc-relay-go/internal/util"
)

// NewBus picks the broker-backed bus when Redis is enabled and a client is
// available, and the in-process bus otherwise.
func NewBus(cfg config.RedisConfig, client *redisclient.Client) Bus {
	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = util.NewID()
	}

	if !cfg.Enabled || client == nil {
		log.Info().Str("instanceId", instanceID).Msg("mpc event bus: local")
		return NewLocalBus(instanceID)
	}

	log.Info().
		Str("instanceId", instanceID).
		Str("channel", cfg.Channel).
		Bool("streamEnabled", cfg.StreamEnabled).
		Bool("streamOnly", cfg.StreamOnly).
		Msg("mpc event bus: redis")
	return NewRedisBus(client, cfg, instanceID)
}

// StreamReader runs Bus.ReadStream in the background until Close.
type StreamReader struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func OpenStreamReader(bus Bus, sessionID, startID string, onEvent func(Record), onError func(error)) *StreamReader {
	ctx, cancel := context.WithCancel(context.Background())
	r := &StreamReader{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(r.done)
		bus.ReadStream(ctx, sessionID, startID, onEvent, onError)
	}()
	return r
}

// Close stops the reader and waits for it to exit. Safe to call twice.
func (r *StreamReader) Close() {
	r.once.Do(r.cancel)
	<-r.done
}
