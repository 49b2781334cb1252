package service

import (
	"context"
	"time"

	"member-onboarding/internal/models"
)

// ImportQueue hands a staged ledger to a background worker.
type ImportQueue interface {
	EnqueueImport(ctx context.Context, ledgerID string) error
}

// RetryScheduler arranges for an automatic delivery retry after delay.
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, memberPK int64, ch models.ChannelName, attempt int, delay time.Duration) error
}
