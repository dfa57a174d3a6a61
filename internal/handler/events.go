package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/openclaw/mpc-relay-go/internal/config"
	apperrors "github.com/openclaw/mpc-relay-go/internal/errors"
	"github.com/openclaw/mpc-relay-go/internal/events"
	"github.com/openclaw/mpc-relay-go/internal/httputil"
	"github.com/openclaw/mpc-relay-go/internal/service"
)

// EventsHandler streams a session's events over server-sent events.
type EventsHandler struct {
	sessionService *service.SessionService
	bus            events.Bus
	heartbeat      time.Duration
	bufferSize     int
	now            func() time.Time
}

func NewEventsHandler(sessionService *service.SessionService, bus events.Bus) *EventsHandler {
	return &EventsHandler{
		sessionService: sessionService,
		bus:            bus,
		heartbeat:      config.SSEHeartbeatInterval,
		bufferSize:     config.SSEBufferSize,
		now:            time.Now,
	}
}

type sseFrame struct {
	id    string
	event string
	data  []byte
}

func eventFrame(id string, event events.Event) (sseFrame, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return sseFrame{}, err
	}
	return sseFrame{id: id, event: event.Type, data: data}, nil
}

// GET /ws?sessionId=
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if sessionID == "" {
		httputil.WriteError(w, apperrors.ValidationError("Missing sessionId"))
		return
	}

	ctx := r.Context()
	if _, err := h.sessionService.GetSession(ctx, sessionID, actor); err != nil {
		httputil.WriteError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	lastEventID := strings.TrimSpace(r.Header.Get("Last-Event-ID"))
	if lastEventID == "" {
		lastEventID = strings.TrimSpace(r.URL.Query().Get("cursor"))
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("actor", actor).
		Str("lastEventId", lastEventID).
		Bool("streamOnly", h.bus.StreamOnly()).
		Msg("mpc sse connection established")

	startID, err := h.replayBacklog(ctx, w, flusher, sessionID, lastEventID)
	if err != nil {
		log.Debug().Err(err).Str("sessionId", sessionID).Msg("mpc sse backlog write failed")
		return
	}

	connected, _ := json.Marshal(map[string]any{
		"sessionId": sessionID,
		"timestamp": h.now().UnixMilli(),
	})
	if err := writeFrame(w, flusher, sseFrame{event: "connected", data: connected}); err != nil {
		return
	}

	queue := make(chan sseFrame, h.bufferSize)
	enqueue := func(frame sseFrame) {
		select {
		case queue <- frame:
		default:
			log.Warn().
				Str("sessionId", sessionID).
				Str("event", frame.event).
				Msg("mpc sse buffer full, dropping event")
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if h.bus.StreamOnly() {
		if startID == "" {
			startID = "$"
		}
		g.Go(func() error {
			h.bus.ReadStream(gctx, sessionID, startID,
				func(record events.Record) {
					frame, err := eventFrame(record.ID, record.Event)
					if err != nil {
						log.Warn().Err(err).Str("sessionId", sessionID).Msg("mpc sse event not serializable")
						return
					}
					enqueue(frame)
				},
				func(err error) {
					log.Warn().Err(err).Str("sessionId", sessionID).Msg("mpc sse stream read failed")
				},
			)
			return nil
		})
	} else {
		unsubscribe := h.bus.Subscribe(sessionID, func(event events.Event) {
			frame, err := eventFrame(event.StreamID, event)
			if err != nil {
				log.Warn().Err(err).Str("sessionId", sessionID).Msg("mpc sse event not serializable")
				return
			}
			enqueue(frame)
		})
		defer unsubscribe()
	}

	g.Go(func() error {
		return h.writeLoop(gctx, w, flusher, queue)
	})

	if err := g.Wait(); err != nil {
		log.Debug().Err(err).Str("sessionId", sessionID).Msg("mpc sse write failed, closing connection")
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("actor", actor).
		Msg("mpc sse connection closed")
}

// replayBacklog writes stream entries after lastEventID and returns the id
// the live stream should resume from.
func (h *EventsHandler) replayBacklog(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID, lastEventID string) (string, error) {
	if lastEventID == "" {
		return "", nil
	}

	records, err := h.bus.ReadBacklog(ctx, sessionID, lastEventID, config.SSEBacklogLimit)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("mpc sse backlog read failed")
		return lastEventID, nil
	}

	resume := lastEventID
	for _, record := range records {
		frame, err := eventFrame(record.ID, record.Event)
		if err != nil {
			continue
		}
		if err := writeFrame(w, flusher, frame); err != nil {
			return "", err
		}
		resume = record.ID
	}
	return resume, nil
}

// writeLoop is the only writer once the live source is attached.
func (h *EventsHandler) writeLoop(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, queue <-chan sseFrame) error {
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case frame := <-queue:
			if err := writeFrame(w, flusher, frame); err != nil {
				return err
			}

		case <-heartbeat.C:
			data, _ := json.Marshal(map[string]int64{"timestamp": h.now().UnixMilli()})
			if err := writeFrame(w, flusher, sseFrame{event: "ping", data: data}); err != nil {
				return err
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, frame sseFrame) error {
	if frame.id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", frame.id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", frame.event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", frame.data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
