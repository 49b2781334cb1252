package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"member-onboarding/internal/models"

	"github.com/hibiken/asynq"
)

// Task types
const (
	TypeOnboardingProcess = "onboarding:process"
	TypeDeliveryRetry     = "delivery:retry"
)

const (
	queueCritical = "critical"
	queueDefault  = "default"
)

type OnboardingPayload struct {
	LedgerID string `json:"ledger_id"`
}

type DeliveryRetryPayload struct {
	MemberPK int64              `json:"member_pk"`
	Channel  models.ChannelName `json:"channel"`
	Attempt  int                `json:"attempt"`
}

func NewOnboardingTask(ledgerID string) (*asynq.Task, error) {
	payload, err := json.Marshal(OnboardingPayload{LedgerID: ledgerID})
	if err != nil {
		return nil, err
	}
	// The task id makes a second enqueue of the same ledger a no-op while
	// the first is still pending.
	return asynq.NewTask(TypeOnboardingProcess, payload,
		asynq.TaskID("onboarding:"+ledgerID),
		asynq.Queue(queueCritical),
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Hour),
	), nil
}

func NewDeliveryRetryTask(memberPK int64, ch models.ChannelName, attempt int) (*asynq.Task, error) {
	payload, err := json.Marshal(DeliveryRetryPayload{MemberPK: memberPK, Channel: ch, Attempt: attempt})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDeliveryRetry, payload,
		asynq.TaskID(fmt.Sprintf("delivery:%d:%s:%d", memberPK, ch, attempt)),
		asynq.Queue(queueDefault),
		asynq.MaxRetry(0),
		asynq.Timeout(time.Minute),
	), nil
}

// Client enqueues background work. It satisfies service.ImportQueue and
// service.RetryScheduler.
type Client struct {
	client *asynq.Client
}

func NewClient(opt asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(opt)}
}

func (c *Client) EnqueueImport(ctx context.Context, ledgerID string) error {
	task, err := NewOnboardingTask(ledgerID)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func (c *Client) ScheduleRetry(ctx context.Context, memberPK int64, ch models.ChannelName, attempt int, delay time.Duration) error {
	task, err := NewDeliveryRetryTask(memberPK, ch, attempt)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.ProcessIn(delay))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func (c *Client) Close() error {
	return c.client.Close()
}
