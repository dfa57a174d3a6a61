package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openclaw/mpc-relay-go/internal/audit"
	"github.com/openclaw/mpc-relay-go/internal/config"
	"github.com/openclaw/mpc-relay-go/internal/handler"
	"github.com/openclaw/mpc-relay-go/internal/httputil"
	"github.com/openclaw/mpc-relay-go/internal/jobs"
	"github.com/openclaw/mpc-relay-go/internal/middleware"
	"github.com/openclaw/mpc-relay-go/internal/service"
)

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and event stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, migrate bool) error {
	rt, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if migrate && rt.db != nil {
		if err := rt.db.Migrate(ctx); err != nil {
			return err
		}
	}

	recorder := audit.NewRecorder(rt.store.AuditLogs())
	sessionService := service.NewSessionService(rt.store, recorder, rt.bus)
	messageService := service.NewMessageService(rt.store, recorder, rt.bus)
	signRequestService := service.NewSignRequestService(rt.store, recorder, rt.bus)

	var limiter middleware.Limiter = middleware.NewRateLimiter()
	if rt.redis != nil {
		limiter = middleware.NewRedisRateLimiter(rt.redis, cfg.Redis)
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(limiter, cfg.RateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction())

	sessionHandler := handler.NewSessionHandler(sessionService, messageService, signRequestService)
	eventsHandler := handler.NewEventsHandler(sessionService, rt.bus)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		store := "memory"
		if rt.db != nil {
			store = "postgres"
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"timestamp":  time.Now().UnixMilli(),
			"store":      store,
			"streamOnly": rt.bus.StreamOnly(),
		})
	})

	r.Route("/v1/mpc", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)

		// The event stream is long-lived and must not inherit the request timeout.
		r.Get("/ws", eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Use(bodyLimitMiddleware.Handler)
			r.Mount("/", sessionHandler.Routes())
		})
	})

	retentionJob := jobs.NewRetentionJob(rt.store.Messages(), rt.store.AuditLogs(), cfg.Retention)
	retentionJob.Start()
	defer retentionJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
	return nil
}
