package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/tricol-console/internal/apiclient"
	"github.com/stemsi/tricol-console/internal/config"
	"github.com/stemsi/tricol-console/internal/database"
	"github.com/stemsi/tricol-console/internal/handler"
	"github.com/stemsi/tricol-console/internal/logger"
	"github.com/stemsi/tricol-console/internal/model"
	"github.com/stemsi/tricol-console/internal/router"
	"github.com/stemsi/tricol-console/internal/service"
	"github.com/stemsi/tricol-console/internal/session"
	"github.com/stemsi/tricol-console/internal/transport"
	"github.com/stemsi/tricol-console/internal/validator"
	"github.com/stemsi/tricol-console/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("api", cfg.APIBaseURL).
		Str("session_backend", cfg.SessionBackend).
		Msg("Starting Tricol console")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalog, err := model.LoadCatalog(cfg.PermissionCatalogFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load permission catalog")
	}

	// ─── Session Store ─────────────────────────────────────────────────
	store, closeStore, err := database.OpenSessionStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open session store")
	}
	defer closeStore()

	// ─── Services ──────────────────────────────────────────────────────
	// Auth endpoints travel on a plain client; everything else goes
	// through the interceptor so it carries the bearer token.
	authClient := apiclient.New(cfg.APIBaseURL, nil, cfg.APITimeout)
	authService := service.NewAuthService(apiclient.NewAuthAPI(authClient), store, session.NewPublisher(), log)
	if authService.Restore(ctx) {
		log.Info().Str("user", authService.CurrentUser().Email).Msg("Session restored")
	}

	interceptor := transport.NewInterceptor(nil, authService,
		transport.WithMaxReplayBytes(cfg.MaxProxyBodyBytes),
		transport.WithLogger(log),
	)
	adminHTTP := interceptor.Client()
	adminHTTP.Timeout = cfg.APITimeout
	adminClient := apiclient.New(cfg.APIBaseURL, adminHTTP, cfg.APITimeout)
	adminUserService := service.NewAdminUserService(apiclient.NewAdminAPI(adminClient), authService, catalog, log)

	proxy, err := handler.NewProxyHandler(cfg.APIBaseURL, interceptor, cfg.MaxProxyBodyBytes, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid API base URL")
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService),
		AdminUser:     handler.NewAdminUserHandler(adminUserService),
		Screen:        handler.NewScreenHandler(authService),
		SessionStream: handler.NewSessionStreamHandler(authService, log, cfg.AllowedOrigins),
		Proxy:         proxy,
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.SessionSyncInterval > 0 {
		go worker.NewSessionSyncWorker(authService, cfg.SessionSyncInterval, log).Start(workerCtx)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, log)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// Open session streams are hijacked connections; Shutdown does not
	// wait for them.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	workerCancel()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
