package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"member-onboarding/internal/models"
	"member-onboarding/internal/service"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// OnboardingTaskHandler processes queued import ledgers.
type OnboardingTaskHandler struct {
	onboarding *service.OnboardingService
	logger     *logrus.Logger
}

func NewOnboardingTaskHandler(onboarding *service.OnboardingService, logger *logrus.Logger) *OnboardingTaskHandler {
	return &OnboardingTaskHandler{onboarding: onboarding, logger: logger}
}

func (h *OnboardingTaskHandler) Handle(ctx context.Context, task *asynq.Task) error {
	var payload OnboardingPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	log := h.logger.WithField("ledger_id", payload.LedgerID)
	log.Info("Starting import processing")

	result, err := h.onboarding.Process(ctx, payload.LedgerID)
	switch {
	case errors.Is(err, models.ErrLedgerClosed):
		log.Info("Ledger already completed, skipping")
		return nil
	case errors.Is(err, models.ErrLedgerNotFound):
		return fmt.Errorf("ledger %s: %v: %w", payload.LedgerID, err, asynq.SkipRetry)
	case err != nil:
		// The ledger is left failed with its rows retained; the retry resumes it.
		return err
	}

	log.WithFields(logrus.Fields{
		"status":     result.Status,
		"successful": result.Statistics.Successful,
		"failed":     result.Statistics.Failed,
		"skipped":    result.Statistics.Skipped,
	}).Info("Import processing finished")
	return nil
}

// RetryTaskHandler runs scheduled automatic delivery retries.
type RetryTaskHandler struct {
	retries *service.RetryOrchestrator
	logger  *logrus.Logger
}

func NewRetryTaskHandler(retries *service.RetryOrchestrator, logger *logrus.Logger) *RetryTaskHandler {
	return &RetryTaskHandler{retries: retries, logger: logger}
}

func (h *RetryTaskHandler) Handle(ctx context.Context, task *asynq.Task) error {
	var payload DeliveryRetryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	log := h.logger.WithFields(logrus.Fields{
		"member_pk": payload.MemberPK,
		"channel":   payload.Channel,
		"attempt":   payload.Attempt,
	})

	outcome, err := h.retries.HandleScheduled(ctx, payload.MemberPK, payload.Channel, payload.Attempt)
	switch {
	case err == nil:
		log.WithField("status", outcome.Status).Info("Scheduled delivery retry finished")
		return nil
	case errors.Is(err, models.ErrRetryExhausted),
		errors.Is(err, models.ErrIneligible),
		errors.Is(err, models.ErrChannelUnavailable),
		errors.Is(err, models.ErrLocked):
		log.WithError(err).Info("Scheduled delivery retry dropped")
		return nil
	}
	return err
}
