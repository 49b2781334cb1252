package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"member-onboarding/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ProgressTracker publishes live counters for a ledger while it is being
// processed. It is a cache; the ledger row stays authoritative.
type ProgressTracker interface {
	Update(ctx context.Context, ledgerID string, stats models.Statistics)
	Get(ctx context.Context, ledgerID string) (*models.Statistics, error)
}

type NopProgress struct{}

func (NopProgress) Update(context.Context, string, models.Statistics) {}

func (NopProgress) Get(context.Context, string) (*models.Statistics, error) { return nil, nil }

type RedisProgress struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedisProgress(client *redis.Client, logger *logrus.Logger) *RedisProgress {
	return &RedisProgress{client: client, ttl: 24 * time.Hour, logger: logger}
}

func progressKey(ledgerID string) string {
	return fmt.Sprintf("onboarding:progress:%s", ledgerID)
}

func (p *RedisProgress) Update(ctx context.Context, ledgerID string, stats models.Statistics) {
	payload, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := p.client.Set(ctx, progressKey(ledgerID), payload, p.ttl).Err(); err != nil {
		p.logger.WithField("ledger_id", ledgerID).WithError(err).Warn("Failed to cache ledger progress")
	}
}

func (p *RedisProgress) Get(ctx context.Context, ledgerID string) (*models.Statistics, error) {
	payload, err := p.client.Get(ctx, progressKey(ledgerID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stats models.Statistics
	if err := json.Unmarshal(payload, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
