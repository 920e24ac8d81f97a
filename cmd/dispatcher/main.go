package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arjunyel/svix-webhooks/internal/config"
	"github.com/arjunyel/svix-webhooks/internal/dispatch"
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
	log.Info().Msg("Starting dispatcher...")

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
	defer dispatchQueue.Close()

	// Create DLQ
	dlq := queue.NewDLQ(client)

	// Create event publisher
	publisher := events.NewRedisPubSub(client)
	defer publisher.Close()

	// Create dispatcher pool
	pool := dispatch.NewPool(&cfg.Dispatcher, &cfg.Dispatch, dispatchQueue, dlq, st, publisher)

	// Start dispatcher pool
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start dispatcher pool")
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down dispatcher...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Dispatcher.ShutdownTimeout)
	defer shutdownCancel()

	if err := pool.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Dispatcher shutdown error")
	}

	log.Info().Msg("Dispatcher stopped")
}
