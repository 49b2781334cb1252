package worker

import (
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"member-onboarding/internal/service"
)

func RegisterHandlers(mux *asynq.ServeMux, onboarding *service.OnboardingService, retries *service.RetryOrchestrator, logger *logrus.Logger) {
	mux.HandleFunc(TypeOnboardingProcess, NewOnboardingTaskHandler(onboarding, logger).Handle)
	mux.HandleFunc(TypeDeliveryRetry, NewRetryTaskHandler(retries, logger).Handle)
}
