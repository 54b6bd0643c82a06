package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"chat-frontend/web/internal/auth"
	"chat-frontend/web/internal/config"
	"chat-frontend/web/internal/gateway"
	"chat-frontend/web/internal/presence"
	"chat-frontend/web/internal/routeguard"
	"chat-frontend/web/internal/server"
	"chat-frontend/web/internal/session"
	telotel "chat-frontend/web/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()
	providers, err := telotel.NewProviders(ctx, cfg.OTLPEndpoint, "chat-frontend", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	emitter := telotel.NewEventEmitter(providers.LoggerProvider)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	routes := routeguard.Default()
	if paths := cfg.PublicPathList(); len(paths) > 0 {
		routes.PublicOnly = paths
	}
	if prefixes := cfg.AdminPrefixList(); len(prefixes) > 0 {
		routes.AdminPrefixes = prefixes
	}

	codec := session.NewCookieCodec(cfg.CookieDomain, cfg.CookieSecure, cfg.AccessTTL(), cfg.RefreshTTL())
	registry := session.NewRegistry()
	gw := gateway.New(cfg.BackendBaseURL, logger, emitter)
	authSvc := auth.NewService(cfg.BackendBaseURL, routes, logger, emitter)
	pm := presence.NewManager(func(st *session.Store) *presence.Scheduler {
		sender := &presence.HeartbeatSender{GW: gw, Store: st}
		return presence.NewScheduler(st, sender, cfg.Heartbeat(), logger, emitter)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.New(cfg, routes, codec, registry, gw, authSvc, pm, logger).Handler(),
	}

	go func() {
		logger.Info("frontend server listening", "addr", cfg.HTTPAddr, "backend", cfg.BackendBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	pm.StopAll()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown", "error", err)
	}
	logger.Info("stopped")
}
