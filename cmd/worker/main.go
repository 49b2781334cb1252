package main

import (
	"os"
	"os/signal"
	"syscall"

	"member-onboarding/internal/app"
	"member-onboarding/internal/config"
	"member-onboarding/internal/database"
	"member-onboarding/internal/utils"
	"member-onboarding/internal/worker"

	"github.com/hibiken/asynq"
)

func main() {
	logger := utils.GetLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.NewMySQL(cfg)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisClient, err := database.NewRedis(cfg)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	container, err := app.New(cfg, db, redisClient, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize application: %v", err)
	}
	defer container.Close()

	srv := worker.NewServer(cfg, logger)

	mux := asynq.NewServeMux()
	worker.RegisterHandlers(mux, container.Onboarding, container.Retries, logger)

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		logger.Info("Gracefully shutting down worker...")
		srv.Shutdown()
	}()

	logger.Infof("Worker starting with concurrency: %d", cfg.WorkerConcurrency)
	if err := srv.Run(mux); err != nil {
		logger.Fatalf("Failed to start worker: %v", err)
	}

	logger.Info("Worker exited")
}
