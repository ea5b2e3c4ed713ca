package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/csvpilot/csvpilot/internal/api"
	"github.com/csvpilot/csvpilot/internal/assistant"
	"github.com/csvpilot/csvpilot/internal/config"
	"github.com/csvpilot/csvpilot/internal/repository"
	"github.com/csvpilot/csvpilot/internal/service"
	"github.com/csvpilot/csvpilot/internal/store"
)

var (
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Initialize run-history database (sessions and artifacts are in-memory)
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	historyRepo := repository.NewHistoryRepository(db)

	// Initialize stores with their retention sweeps
	sessions := store.NewSessionStore(cfg.Retention.SessionTTL, cfg.Retention.SweepInterval, logger)
	defer sessions.Close()

	files := store.NewFileStore(cfg.Retention.FileTTL, cfg.Retention.SweepInterval, logger)
	defer files.Close()

	// Initialize remote assistant client and orchestrator
	client := assistant.NewClient(assistant.Config{
		BaseURL: cfg.Assistant.BaseURL,
		APIKey:  cfg.Assistant.APIKey,
		Model:   cfg.Assistant.Model,
		Timeout: cfg.Assistant.Timeout,
	})
	orchestrator := service.NewOrchestrator(client, cfg.Assistant.PollInterval, cfg.Assistant.PollTimeout, logger)

	analysisService := service.NewAnalysisService(sessions, files, orchestrator, historyRepo, logger)

	// Setup router
	router := api.SetupRouter(analysisService, files, api.RouterConfig{
		APIKey:         cfg.Admin.APIKey,
		AllowOrigins:   []string{"*"},
		MaxUploadBytes: cfg.Limits.MaxUploadBytes,
	}, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting CSVPilot server",
			zap.String("address", cfg.Address()),
			zap.String("assistant_base_url", cfg.Assistant.BaseURL),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
