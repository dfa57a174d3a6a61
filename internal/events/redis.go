package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/mpc-relay-go/internal/config"
	redisclient "github.com/openclaw/mpc-relay-go/internal/redis"
)

const (
	streamEventField     = "event"
	streamReadBlock      = 15 * time.Second
	streamReadCount      = 100
	publishTimeout       = 3 * time.Second
	resubscribeBackoff   = 2 * time.Second
	streamRetryBackoff   = time.Second
	streamLatestSentinel = "$"
)

// RedisBus fans events out through one shared pub/sub subscription and,
// optionally, appends them to a per-session stream for replay.
type RedisBus struct {
	*Hub
	client     *redisclient.Client
	cfg        config.RedisConfig
	instanceID string
	ready      atomic.Bool
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewRedisBus(client *redisclient.Client, cfg config.RedisConfig, instanceID string) *RedisBus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBus{
		Hub:        NewHub(),
		client:     client,
		cfg:        cfg,
		instanceID: instanceID,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	if cfg.StreamOnly {
		b.ready.Store(true)
		close(b.done)
		return b
	}

	go b.subscribe(ctx)
	return b
}

func (b *RedisBus) StreamOnly() bool { return b.cfg.StreamOnly }

// Ready reports whether the pub/sub subscription is established.
func (b *RedisBus) Ready() bool { return b.ready.Load() }

func (b *RedisBus) Close() error {
	b.cancel()
	<-b.done
	return nil
}

func (b *RedisBus) subscribe(ctx context.Context) {
	defer close(b.done)

	for ctx.Err() == nil {
		pubsub := b.client.Subscribe(ctx, b.cfg.Channel)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("channel", b.cfg.Channel).Msg("mpc redis subscribe failed")
			if !sleep(ctx, resubscribeBackoff) {
				return
			}
			continue
		}

		b.ready.Store(true)
		log.Info().Str("channel", b.cfg.Channel).Msg("mpc redis pubsub subscribed")

		b.relay(ctx, pubsub.Channel())

		b.ready.Store(false)
		_ = pubsub.Close()
	}
}

func (b *RedisBus) relay(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Msg("mpc redis message parse failed")
				continue
			}
			if event.SessionID == "" {
				continue
			}
			b.Deliver(event.SessionID, event)
		}
	}
}

func (b *RedisBus) Publish(ctx context.Context, sessionID string, event Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	event.SessionID = sessionID
	event.Origin = b.instanceID
	event.StreamID = ""

	if b.cfg.StreamEnabled {
		id, err := b.appendStream(ctx, sessionID, event)
		if err != nil {
			log.Warn().Err(err).Str("sessionId", sessionID).Msg("mpc stream append failed")
		} else {
			event.StreamID = id
		}
	}

	b.deliver(ctx, sessionID, event)
}

func (b *RedisBus) deliver(ctx context.Context, sessionID string, event Event) {
	if b.cfg.StreamOnly || !b.ready.Load() {
		b.Deliver(sessionID, event)
		return
	}

	payload, err := json.Marshal(event)
	if err == nil {
		err = b.client.Publish(ctx, b.cfg.Channel, payload).Err()
	}
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("mpc redis publish failed, delivering locally")
		b.Deliver(sessionID, event)
	}
}

func (b *RedisBus) appendStream(ctx context.Context, sessionID string, event Event) (string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", err
	}

	maxLen := b.cfg.StreamMaxLen
	if maxLen < 1 {
		maxLen = 1
	}

	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: redisclient.StreamKey(b.cfg, sessionID),
		MaxLen: maxLen,
		Approx: b.cfg.StreamApprox,
		Values: map[string]any{streamEventField: string(payload)},
	}).Result()
}

func (b *RedisBus) ReadBacklog(ctx context.Context, sessionID, cursor string, limit int64) ([]Record, error) {
	if !b.cfg.StreamEnabled {
		return nil, nil
	}
	if cursor == "" {
		cursor = "0"
	}
	if limit <= 0 {
		limit = streamReadCount
	}

	streams, err := b.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{redisclient.StreamKey(b.cfg, sessionID), cursor},
		Count:   limit,
		Block:   -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if rec, ok := decodeRecord(msg); ok {
				records = append(records, rec)
			}
		}
	}
	return records, nil
}

// ReadStream uses a dedicated connection so that a blocking XREAD can be
// interrupted by closing it when ctx is done.
func (b *RedisBus) ReadStream(ctx context.Context, sessionID, startID string, onEvent func(Record), onError func(error)) {
	if !b.cfg.StreamEnabled {
		return
	}

	reader := redis.NewClient(b.client.Options())
	stop := context.AfterFunc(ctx, func() { _ = reader.Close() })
	defer func() {
		stop()
		_ = reader.Close()
	}()

	key := redisclient.StreamKey(b.cfg, sessionID)
	cursor := startID
	if cursor == "" || cursor == streamLatestSentinel {
		cursor = latestID(ctx, reader, key)
	}

	for ctx.Err() == nil {
		streams, err := reader.XRead(ctx, &redis.XReadArgs{
			Streams: []string{key, cursor},
			Count:   streamReadCount,
			Block:   streamReadBlock,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if onError != nil {
				onError(err)
			}
			if !sleep(ctx, streamRetryBackoff) {
				return
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				cursor = msg.ID
				if rec, ok := decodeRecord(msg); ok {
					onEvent(rec)
				}
			}
		}
	}
}

// latestID pins "$" to a concrete id so entries appended between two
// blocking reads are not skipped.
func latestID(ctx context.Context, client *redis.Client, key string) string {
	msgs, err := client.XRevRangeN(ctx, key, "+", "-", 1).Result()
	if err != nil || len(msgs) == 0 {
		if err != nil && !errors.Is(err, redis.Nil) {
			log.Debug().Err(err).Str("stream", key).Msg("mpc stream tail lookup failed")
			return streamLatestSentinel
		}
		return "0-0"
	}
	return msgs[0].ID
}

func decodeRecord(msg redis.XMessage) (Record, bool) {
	raw, ok := msg.Values[streamEventField].(string)
	if !ok || raw == "" {
		return Record{}, false
	}
	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		log.Debug().Err(err).Str("streamId", msg.ID).Msg("mpc stream entry skipped")
		return Record{}, false
	}
	event.StreamID = msg.ID
	return Record{ID: msg.ID, Event: event}, true
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
