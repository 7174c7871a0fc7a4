package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	database "github.com/gopinions/auth-service/app/db"
	appLogger "github.com/gopinions/auth-service/app/logger"
	"github.com/gopinions/auth-service/app/mail"
	"github.com/gopinions/auth-service/app/mongodb"
	"github.com/gopinions/auth-service/app/observability/metrics"
	"github.com/gopinions/auth-service/config"
	"github.com/gopinions/auth-service/internal/api"
	"github.com/gopinions/auth-service/internal/api/auth"
	"github.com/gopinions/auth-service/internal/api/projection"
	"github.com/gopinions/auth-service/internal/api/role"
	"github.com/gopinions/auth-service/internal/router"
)

func main() {
	// Use standard log until slog is configured, in case godotenv fails.
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found or error loading:", err)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("FATAL: Error initializing config: %v", err)
	}

	logger := setupLogger()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Observability ---
	if err := metrics.InitExporter(cfg.Metrics.Port, logger); err != nil {
		logger.Error("Failed to initialize metrics exporter", slog.Any("error", err))
		os.Exit(1)
	}
	metrics.InitAppMetrics()

	// --- Postgres (authoritative store) ---
	dbConfig, err := database.NewDatabaseConfig(&cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		os.Exit(1)
	}

	// Run migrations before initializing the main pool.
	if err := database.RunMigrations(dbConfig.ConnectionURL, logger); err != nil {
		logger.Error("Failed to run database migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if !database.WaitForDB(ctx, pool, logger) {
		logger.Error("Database not ready after waiting, exiting.")
		os.Exit(1)
	}

	// --- Mongo (read-side projection store) ---
	mongoClient, mongoDB, err := mongodb.Init(ctx, cfg.Repositories.Mongo.URI, cfg.Repositories.Mongo.Database, logger)
	if err != nil {
		logger.Error("Failed to connect to MongoDB", slog.Any("error", err))
		os.Exit(1)
	}
	defer mongodb.Close(context.Background(), mongoClient, logger)

	// --- Dependency wiring ---
	mailer := mail.NewMailer(cfg.SMTP)
	dispatcher := mail.NewDispatcher(mailer, cfg.SMTP.BaseURL, logger)
	defer dispatcher.Close()

	authRepo := auth.NewPostgresAuthRepo(pool, logger)
	roleRepo := role.NewPostgresRoleRepo(pool, logger)
	roleService := role.NewService(roleRepo, authRepo, logger)

	projectionRepo, err := projection.NewMongoProjectionRepo(ctx, mongoDB, logger)
	if err != nil {
		logger.Error("Failed to initialize projection repository", slog.Any("error", err))
		os.Exit(1)
	}
	synchronizer := projection.NewSynchronizer(projectionRepo, authRepo, logger)

	authService := auth.NewAuthService(authRepo, roleService, dispatcher, synchronizer, cfg.JWT, logger)
	authHandler := auth.NewAuthHandler(authService, logger)

	// --- Startup sequence ---
	// The projection sync runs to completion before roles are seeded and
	// the server starts, so reads never observe a half-migrated store.
	if _, err := synchronizer.Sync(ctx); err != nil {
		logger.Error("Initial projection sync failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := roleService.SeedRoles(ctx); err != nil {
		logger.Error("Failed to seed roles", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Seed.AdminEmail != "" {
		err := roleService.PromoteToRole(ctx, cfg.Seed.AdminEmail, role.AdminRole)
		switch {
		case errors.Is(err, api.ErrNotFound):
			// Admin account not registered yet; promotion happens on a
			// later restart once it exists.
			logger.Warn("Admin account not found, skipping promotion",
				slog.String("email", cfg.Seed.AdminEmail))
		case err != nil:
			logger.Error("Failed to promote admin account", slog.Any("error", err))
			os.Exit(1)
		}
	}

	synchronizer.Start(ctx, cfg.Sync.Interval)

	// --- Router setup ---
	routerConfig := &router.Config{
		AuthHandler:            authHandler,
		AuthenticateMiddleware: auth.Authenticate(logger, cfg.JWT),
		ProjectionMiddleware:   synchronizer.EnsureMiddleware,
	}
	mainRouter := router.SetupRouter(routerConfig)

	mux := chi.NewMux()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(appLogger.StructuredLogger(logger))
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.StripSlashes)
	mux.Use(middleware.Timeout(60 * time.Second))
	mux.Use(middleware.Compress(5, "application/json"))
	mux.Mount("/", mainRouter)

	// --- HTTP server ---
	serverAddress := fmt.Sprintf(":%s", cfg.Server.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddress,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("address", serverAddress))
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server ListenAndServe error", slog.Any("error", err))
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("Shutdown signal received, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server graceful shutdown failed", slog.Any("error", err))
	} else {
		logger.Info("HTTP server gracefully stopped")
	}

	logger.Info("Application shut down complete.")
}

// setupLogger configures and returns the application logger.
func setupLogger() *slog.Logger {
	var logger *slog.Logger
	env := os.Getenv("APP_ENV")

	if env == "development" || env == "" {
		tintOpts := &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		}
		logger = slog.New(tint.NewHandler(os.Stdout, tintOpts))
		log.Println("Initialized development logger (tint)")
	} else {
		jsonOpts := &slog.HandlerOptions{
			Level:     slog.LevelInfo,
			AddSource: false,
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, jsonOpts))
		log.Println("Initialized production logger (JSON)")
	}
	return logger
}
