package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fablegate/fable/internal/config"
	"github.com/fablegate/fable/internal/engine"
	"github.com/fablegate/fable/internal/handlers"
	"github.com/fablegate/fable/internal/logger"
	"github.com/fablegate/fable/internal/middleware"
	"github.com/fablegate/fable/internal/services"
	"github.com/fablegate/fable/internal/storage"
	"github.com/fablegate/fable/pkg/prompts"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg)

	log.Info("Starting Fable API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"model", cfg.AIModel)

	if cfg.AIAPIKey == "" {
		log.Warn("AI_API_KEY is not set; generation calls will fail against authenticated backends")
	}

	generator := services.NewOpenAIService(cfg.AIBaseURL, cfg.AIChatPath, cfg.AIAPIKey, cfg.AIModel, log)

	local, err := storage.NewFileStore(cfg.DataDir, log)
	if err != nil {
		log.Error("Failed to open local storage", "error", err, "dir", cfg.DataDir)
		os.Exit(1)
	}

	var remote storage.Store
	if cfg.RedisAddr != "" {
		redisStore := storage.NewRedisStore(cfg.RedisAddr, log)
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisStore.Ping(pingCtx); err != nil {
			log.Warn("Remote storage unreachable, continuing local-only", "error", err)
		} else {
			remote = redisStore
			log.Info("Remote storage connected", "addr", cfg.RedisAddr)
		}
		pingCancel()
	}
	gateway := storage.NewGateway(local, remote, log)

	sessionEngine := engine.New(engine.Config{
		Prompts: prompts.Config{
			ChoiceCount: cfg.ChoiceCount,
			Language:    cfg.Language,
			CustomModes: cfg.CustomModes,
		},
		Stream: cfg.AIStream,
		Rating: cfg.Rating,
	}, generator, gateway, log)

	loadCtx, loadCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := sessionEngine.LoadAll(loadCtx); err != nil {
		log.Error("Failed to load sessions", "error", err)
		os.Exit(1)
	}
	loadCancel()

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(gateway, log)
	mux.Handle("/health", healthHandler)

	sessionHandler := handlers.NewSessionHandler(sessionEngine, log)
	mux.Handle("/v1/sessions", sessionHandler)
	mux.Handle("/v1/sessions/", sessionHandler)

	handler := middleware.Logger(mux)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout omitted so SSE streaming is not cut off
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := gateway.Close(); err != nil {
		log.Error("Error closing storage", "error", err)
	}

	log.Info("Server exited")
}
