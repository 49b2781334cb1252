package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"member-onboarding/internal/app"
	"member-onboarding/internal/config"
	"member-onboarding/internal/database"
	"member-onboarding/internal/router"
	"member-onboarding/internal/utils"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := utils.GetLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	var db *sqlx.DB
	if conn, err := database.NewMySQL(cfg); err != nil {
		logger.WithError(err).Warn("Failed to connect to database")
	} else {
		db = conn
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := database.Migrate(ctx, db)
		cancel()
		if err != nil {
			logger.Fatalf("Failed to apply migrations: %v", err)
		}
	}

	// Redis is optional: without it imports run inline and locks are per process.
	var redisClient *redis.Client
	if client, err := database.NewRedis(cfg); err != nil {
		logger.WithError(err).Warn("Failed to connect to Redis")
	} else {
		redisClient = client
		defer redisClient.Close()
	}

	container, err := app.New(cfg, db, redisClient, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize application: %v", err)
	}
	defer container.Close()

	server := router.New(cfg)
	router.Setup(server, container)

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		logger.Info("Gracefully shutting down...")
		_ = server.ShutdownWithTimeout(30 * time.Second)
	}()

	port := fmt.Sprintf(":%s", cfg.AppPort)
	logger.Infof("Server starting on %s", port)
	if err := server.Listen(port); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}

	logger.Info("Server exited")
}
