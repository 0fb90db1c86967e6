package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"

	"github.com/clanops/roster-system/config"
	"github.com/clanops/roster-system/db"
	"github.com/clanops/roster-system/gameapi"
	"github.com/clanops/roster-system/guild"
	"github.com/clanops/roster-system/handlers"
	"github.com/clanops/roster-system/live"
	"github.com/clanops/roster-system/repositories"
	api "github.com/clanops/roster-system/routes"
	"github.com/clanops/roster-system/services"
	"github.com/clanops/roster-system/storage"
)

const sweepInterval = 30 * time.Second // How often the expiry sweep runs

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	uploader, err := storage.NewR2Uploader(storage.R2UploaderConfig{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	})
	if err != nil {
		logger.Error("failed to initialize R2 uploader", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("R2 uploader initialized")

	guildClient, err := guild.NewRESTClient(guild.RESTClientConfig{
		BaseURL:  cfg.GuildAPIBaseURL,
		BotToken: cfg.GuildBotToken,
	})
	if err != nil {
		logger.Error("failed to initialize guild client", slog.Any("error", err))
		os.Exit(1)
	}
	profiles := gameapi.NewHTTPProfileSource(cfg.GameAPIBaseURL, cfg.GameAPIToken)
	logger.Info("upstream clients initialized")

	wsHub := live.NewHub(logger)
	go wsHub.Run()
	logger.Info("live hub started")

	rosterRepo := repositories.NewPostgresRosterRepository(dbConn)
	categoryRepo := repositories.NewPostgresCategoryRepository(dbConn)
	linkRepo := repositories.NewPostgresLinkRepository(dbConn)
	settingsRepo := repositories.NewPostgresSettingsRepository(dbConn)
	logger.Info("repositories initialized")

	validator := services.NewSignupValidator(rosterRepo)
	roleSync := services.NewRoleSyncEngine(guildClient, logger)
	changelog := services.NewChangelogService(rosterRepo, settingsRepo, guildClient, logger)
	rosterService := services.NewRosterService(rosterRepo, categoryRepo, roleSync, logger)
	categoryService := services.NewCategoryService(categoryRepo)
	linkService := services.NewLinkService(linkRepo, profiles)
	settingsService := services.NewSettingsService(settingsRepo, guildClient)
	exportService := services.NewExportService(rosterRepo, categoryRepo, uploader)
	membershipService := services.NewMembershipService(
		rosterRepo,
		categoryRepo,
		linkRepo,
		profiles,
		validator,
		roleSync,
		changelog,
		wsHub,
		logger,
	)
	logger.Info("services initialized")

	// Expiry sweep: persists closed=true on rosters whose end time passed.
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		logger.Info("roster expiry sweep started", slog.Duration("interval", sweepInterval))

		// Run once immediately at startup, then on ticker
		if err := rosterService.CloseExpiredRosters(context.Background()); err != nil {
			logger.Error("sweep: initial run failed", slog.Any("error", err))
		}

		for range ticker.C {
			if err := rosterService.CloseExpiredRosters(context.Background()); err != nil {
				logger.Error("sweep: periodic run failed", slog.Any("error", err))
			}
		}
	}()

	rosterHandler := handlers.NewRosterHandler(rosterService, membershipService, exportService)
	categoryHandler := handlers.NewCategoryHandler(categoryService)
	linkHandler := handlers.NewLinkHandler(linkService)
	settingsHandler := handlers.NewSettingsHandler(settingsService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, rosterService, logger)
	logger.Info("HTTP handlers initialized")

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		[]byte(cfg.JWTSecretKey),
		rosterHandler,
		categoryHandler,
		linkHandler,
		settingsHandler,
		webSocketHandler,
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		} else {
			logger.Info("server stopped gracefully")
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}
