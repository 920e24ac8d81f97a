package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arjunyel/svix-webhooks/internal/api"
	"github.com/arjunyel/svix-webhooks/internal/config"
	"github.com/arjunyel/svix-webhooks/internal/events"
	"github.com/arjunyel/svix-webhooks/internal/logger"
	"github.com/arjunyel/svix-webhooks/internal/queue"
	"github.com/arjunyel/svix-webhooks/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")

	log := logger.Get()
	log.Info().Msg("Starting API server...")

	// Connect to Redis
	client, err := store.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	st := store.New(client, cfg.Dispatch.AttemptRetention)

	// Create dispatch queue
	dispatchQueue, err := queue.NewRedisQueue(client, &cfg.Dispatch)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create dispatch queue")
	}
	defer func() {
		if err := dispatchQueue.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close dispatch queue")
		}
	}()

	// Create DLQ
	dlq := queue.NewDLQ(client)

	// Create event publisher
	publisher := events.NewRedisPubSub(client)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event publisher")
		}
	}()

	// Create and start the retry scheduler
	scheduler := queue.NewScheduler(client, dispatchQueue)

	// Create server
	server := api.NewServer(cfg, st, dispatchQueue, dlq, publisher)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start WebSocket hub
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.Start(ctx)

	// Start scheduler
	scheduler.Start(ctx)

	// Start HTTP server
	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop scheduler
	scheduler.Stop()

	// Stop WebSocket hub
	server.Stop()

	// Shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Server stopped")
}
