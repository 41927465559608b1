// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/mcp-session-proxy/pkg/chat"
	"github.com/go-core-stack/mcp-session-proxy/pkg/config"
	"github.com/go-core-stack/mcp-session-proxy/pkg/metrics"
	"github.com/go-core-stack/mcp-session-proxy/pkg/proxy"
	"github.com/go-core-stack/mcp-session-proxy/pkg/session"
	"github.com/go-core-stack/mcp-session-proxy/pkg/upstream"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("invalid log level")
	}
	log.Logger = log.Level(level)

	sessions := session.New(cfg.SessionTTL, cfg.SessionMaxEntries)
	defer sessions.Close()
	metrics.RegisterSessionGauge(sessions.Len)

	client := upstream.New(cfg)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      newRouter(cfg, sessions, client),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	go func() {
		log.Info().
			Str("listen_addr", cfg.ListenAddr).
			Str("upstream", cfg.Upstream.String()).
			Msg("starting MCP session proxy")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("proxy server exited unexpectedly")
		}
	}()

	waitForShutdown(context.Background(), server, cfg.GracefulShutdownTimeout)
}

// newRouter mounts the core JSON-RPC endpoint alongside the plumbing surfaces:
// the one-shot chat endpoint, metrics, health, and the static web UI.
func newRouter(cfg config.Config, sessions *session.Table, client *upstream.Client) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept", upstream.SessionHeader},
		ExposedHeaders: []string{upstream.SessionHeader},
	}))

	r.Post("/mcp", proxy.New(sessions, client).ServeHTTP)
	r.Post("/chat", chat.New(client, cfg.ChatTool).ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))

	return r
}

func waitForShutdown(ctx context.Context, srv *http.Server, timeout time.Duration) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop

	log.Info().Msg("shutting down MCP session proxy")

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed; forcing close")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("forced close failed")
		}
	}

	log.Info().Msg("proxy stopped")
}
