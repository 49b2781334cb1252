// Package app wires configuration into the stores, channels and services
// shared by the web server and the worker.
package app

import (
	"fmt"

	"member-onboarding/internal/config"
	"member-onboarding/internal/events"
	"member-onboarding/internal/fieldcodec"
	"member-onboarding/internal/models"
	"member-onboarding/internal/notifier"
	"member-onboarding/internal/repository"
	"member-onboarding/internal/repository/memory"
	"member-onboarding/internal/service"
	"member-onboarding/internal/worker"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Container struct {
	Config *config.Config
	Logger *logrus.Logger

	Members service.MemberStore
	Ledgers service.LedgerStore

	Onboarding *service.OnboardingService
	Retries    *service.RetryOrchestrator
	Recovery   *service.RecoveryService
	MemberSvc  *service.MemberService
	Activation *service.ActivationService
	Excel      *service.ExcelService

	events events.Publisher
	jobs   *worker.Client
}

// New builds the container. A nil db falls back to in-memory stores and a
// nil redis client to in-process locks with inline processing; both are
// only accepted in development.
func New(cfg *config.Config, db *sqlx.DB, rdb *redis.Client, logger *logrus.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger, Excel: service.NewExcelService()}

	if db != nil {
		codec, err := fieldcodec.FromKey(cfg.FieldEncryptionKey)
		if err != nil {
			return nil, err
		}
		c.Members = repository.NewMemberRepository(db, codec)
		c.Ledgers = repository.NewLedgerRepository(db, codec)
	} else {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("database connection is required in %s", cfg.AppEnv)
		}
		logger.Warn("No database connection, using in-memory stores")
		c.Members = memory.NewMemberStore()
		c.Ledgers = memory.NewLedgerStore()
	}

	hasher, err := service.NewPasswordHasher(cfg.CredentialHasher, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	credentials := service.NewCredentialManager(hasher, cfg.TempSecretLength, cfg.TempSecretTTL)
	provisioner := service.NewProvisioner(c.Members, logger)

	sms, email := channels(cfg, logger)
	dispatcher := service.NewDispatcher(c.Members, provisioner, sms, email, service.DispatcherConfig{
		SMSConcurrency:     cfg.SMSConcurrency,
		EmailConcurrency:   cfg.EmailConcurrency,
		SMSRatePerSecond:   cfg.SMSRatePerSecond,
		EmailRatePerSecond: cfg.EmailRatePerSecond,
		SendTimeout:        cfg.SendTimeout,
		OrganizationName:   cfg.OrganizationName,
		ActivationURL:      cfg.ActivationURL,
	}, logger)

	c.events = publisher(cfg, logger)

	var (
		locker   service.Locker
		progress service.ProgressTracker
		queue    service.ImportQueue
	)
	if rdb != nil {
		locker = service.NewRedisLocker(rdb)
		progress = service.NewRedisProgress(rdb, logger)
		c.jobs = worker.NewClient(worker.RedisOpt(cfg))
		queue = c.jobs
	} else {
		logger.Warn("Redis not connected, using in-process locks and inline processing")
		locker = service.NewLocalLocker()
		progress = service.NopProgress{}
	}

	c.Retries = service.NewRetryOrchestrator(c.Members, c.Ledgers, credentials, provisioner, dispatcher, locker,
		service.BackoffPolicy{
			Base:        cfg.RetryBaseInterval,
			Max:         cfg.RetryMaxInterval,
			MaxAttempts: cfg.RetryMaxAttempts,
		}, cfg.LockTTL, logger)
	c.Retries.SetEvents(c.events)
	if c.jobs != nil {
		c.Retries.SetScheduler(c.jobs)
	}

	c.Onboarding = service.NewOnboardingService(c.Members, c.Ledgers, credentials, provisioner, dispatcher, service.OnboardingOptions{
		Concurrency: cfg.WorkerConcurrency,
		Queue:       queue,
		Retries:     c.Retries,
		Progress:    progress,
		Events:      c.events,
	}, logger)
	c.Recovery = service.NewRecoveryService(c.Members, c.Ledgers)
	c.MemberSvc = service.NewMemberService(c.Members)
	c.Activation = service.NewActivationService(c.Members, credentials, provisioner, c.events, logger)

	return c, nil
}

// channels picks a provider per channel. Development falls back to
// log-only channels; elsewhere a missing SMS provider records every send
// as failed and a missing email provider disables the backup channel.
func channels(cfg *config.Config, logger *logrus.Logger) (sms, email notifier.Channel) {
	switch {
	case cfg.SMSGatewayURL != "":
		sms = notifier.NewSMSGateway(cfg.SMSGatewayURL, cfg.SMSGatewayAPIKey, cfg.SMSSender)
	case cfg.IsDevelopment():
		sms = notifier.NewDevNotifier(models.ChannelSMS, logger)
	default:
		logger.Error("SMS_GATEWAY_URL is not set, SMS delivery will fail")
	}

	switch {
	case cfg.MailerSendAPIKey != "":
		email = notifier.NewMailerSend(cfg.MailerSendAPIKey, cfg.MailFromName, cfg.MailFromEmail)
	case cfg.SMTPHost != "":
		email = notifier.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.MailFromEmail, cfg.SMTPUsername, cfg.SMTPPassword)
	case cfg.IsDevelopment():
		email = notifier.NewDevNotifier(models.ChannelEmail, logger)
	default:
		logger.Warn("No email provider configured, backup channel disabled")
	}
	return sms, email
}

func publisher(cfg *config.Config, logger *logrus.Logger) events.Publisher {
	if cfg.NATSURL == "" {
		return events.Nop{}
	}
	p, err := events.NewNATSPublisher(cfg.NATSURL, logger)
	if err != nil {
		logger.WithError(err).Warn("Events disabled")
		return events.Nop{}
	}
	return p
}

// Close releases the job client and drains the event connection.
func (c *Container) Close() error {
	var firstErr error
	if c.jobs != nil {
		if err := c.jobs.Close(); err != nil {
			firstErr = err
		}
	}
	if err := c.events.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
