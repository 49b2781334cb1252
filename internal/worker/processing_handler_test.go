package worker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"member-onboarding/internal/models"
	"member-onboarding/internal/notifier"
	"member-onboarding/internal/repository/memory"
	"member-onboarding/internal/service"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type services struct {
	ledgers    *memory.LedgerStore
	onboarding *service.OnboardingService
	retries    *service.RetryOrchestrator
	logger     *logrus.Logger
}

func newServices() services {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	members := memory.NewMemberStore()
	ledgers := memory.NewLedgerStore()
	credentials := service.NewCredentialManager(service.BcryptHasher{Cost: bcrypt.MinCost}, 12, time.Hour)
	provisioner := service.NewProvisioner(members, logger)
	dispatcher := service.NewDispatcher(members, provisioner, notifier.NewDevNotifier(models.ChannelSMS, logger), nil, service.DispatcherConfig{}, logger)
	retries := service.NewRetryOrchestrator(members, ledgers, credentials, provisioner, dispatcher, service.NewLocalLocker(),
		service.BackoffPolicy{Base: time.Second, MaxAttempts: 3}, time.Minute, logger)
	onboarding := service.NewOnboardingService(members, ledgers, credentials, provisioner, dispatcher, service.OnboardingOptions{Retries: retries}, logger)
	return services{ledgers: ledgers, onboarding: onboarding, retries: retries, logger: logger}
}

func TestOnboardingTaskProcessesLedger(t *testing.T) {
	s := newServices()
	ledger, err := s.onboarding.Stage(context.Background(), models.ConfirmRequest{
		Filename: "members.csv",
		Content:  []byte("member_id,name,phone_number\nM-1,Ana,+15550000001\n"),
	})
	if err != nil {
		t.Fatal(err)
	}

	task, err := NewOnboardingTask(ledger.ID)
	if err != nil {
		t.Fatal(err)
	}
	handler := NewOnboardingTaskHandler(s.onboarding, s.logger)
	if err := handler.Handle(context.Background(), task); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	stored, _ := s.ledgers.FindByID(context.Background(), ledger.ID)
	if stored.Status != models.LedgerCompleted || stored.Successful != 1 || stored.SMSSent != 1 {
		t.Fatalf("ledger = %+v", stored)
	}

	// A redelivered task for a completed ledger is acknowledged.
	if err := handler.Handle(context.Background(), task); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
}

func TestOnboardingTaskSkipsRetryForUnknownLedger(t *testing.T) {
	s := newServices()
	task, _ := NewOnboardingTask("missing")
	err := NewOnboardingTaskHandler(s.onboarding, s.logger).Handle(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}

	bad := asynq.NewTask(TypeOnboardingProcess, []byte("{"))
	if err := NewOnboardingTaskHandler(s.onboarding, s.logger).Handle(context.Background(), bad); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("malformed payload: %v", err)
	}
}

func TestRetryTaskDropsIneligibleMember(t *testing.T) {
	s := newServices()
	task, err := NewDeliveryRetryTask(404, models.ChannelSMS, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewRetryTaskHandler(s.retries, s.logger).Handle(context.Background(), task); err != nil {
		t.Fatalf("unknown member should be dropped, got %v", err)
	}
}
