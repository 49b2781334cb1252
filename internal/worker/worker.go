package worker

import (
	"context"

	"member-onboarding/internal/config"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.AsynqRedisAddr,
		Password: cfg.AsynqRedisPassword,
		DB:       cfg.AsynqRedisDB,
	}
}

// NewServer builds the asynq server. Imports run on the critical queue,
// delivery retries on default.
func NewServer(cfg *config.Config, logger *logrus.Logger) *asynq.Server {
	return asynq.NewServer(
		RedisOpt(cfg),
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queueCritical: 6,
				queueDefault:  3,
			},
			Logger: logger,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.WithFields(logrus.Fields{
					"task_type": task.Type(),
					"payload":   string(task.Payload()),
				}).WithError(err).Error("Error processing task")
			}),
		},
	)
}
