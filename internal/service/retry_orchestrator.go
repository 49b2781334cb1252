package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"member-onboarding/internal/events"
	"member-onboarding/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type RetryMode string

const (
	RetryAutomatic RetryMode = "automatic"
	RetryManual    RetryMode = "manual"
)

const bulkConcurrency = 4

// RetryOrchestrator replays deliveries for members that already exist.
// Every retry and resend issues a fresh temporary secret, so work on one
// member and channel is serialized through the Locker.
type RetryOrchestrator struct {
	members     MemberStore
	ledgers     LedgerStore
	credentials *CredentialManager
	provisioner *Provisioner
	dispatcher  *Dispatcher
	locker      Locker
	policy      BackoffPolicy
	lockTTL     time.Duration
	scheduler   RetryScheduler
	events      events.Publisher
	logger      *logrus.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewRetryOrchestrator(
	members MemberStore,
	ledgers LedgerStore,
	credentials *CredentialManager,
	provisioner *Provisioner,
	dispatcher *Dispatcher,
	locker Locker,
	policy BackoffPolicy,
	lockTTL time.Duration,
	logger *logrus.Logger,
) *RetryOrchestrator {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &RetryOrchestrator{
		members:     members,
		ledgers:     ledgers,
		credentials: credentials,
		provisioner: provisioner,
		dispatcher:  dispatcher,
		locker:      locker,
		policy:      policy,
		lockTTL:     lockTTL,
		events:      events.Nop{},
		logger:      logger,
		sleep:       sleepContext,
		now:         time.Now,
	}
}

// SetScheduler enables durable scheduling of automatic retries.
func (o *RetryOrchestrator) SetScheduler(s RetryScheduler) {
	o.scheduler = s
}

func (o *RetryOrchestrator) SetEvents(p events.Publisher) {
	if p != nil {
		o.events = p
	}
}

func (o *RetryOrchestrator) Policy() BackoffPolicy {
	return o.policy
}

// Retry performs one retry. Automatic retries wait for the backoff delay
// and stop once the attempt budget is used; manual retries send at once.
func (o *RetryOrchestrator) Retry(ctx context.Context, memberPK int64, ch models.ChannelName, mode RetryMode) (models.RetryOutcome, error) {
	return o.retry(ctx, memberPK, ch, mode, mode == RetryAutomatic)
}

// RunAutomatic retries until a send succeeds or the budget is exhausted.
func (o *RetryOrchestrator) RunAutomatic(ctx context.Context, memberPK int64, ch models.ChannelName) (models.RetryOutcome, error) {
	for {
		outcome, err := o.Retry(ctx, memberPK, ch, RetryAutomatic)
		if err != nil || outcome.Status != models.RetryFailed {
			return outcome, err
		}
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}
	}
}

// HandleScheduled runs a retry whose delay was already served by the job
// queue and schedules the next one if it fails.
func (o *RetryOrchestrator) HandleScheduled(ctx context.Context, memberPK int64, ch models.ChannelName, attempt int) (models.RetryOutcome, error) {
	outcome, err := o.retry(ctx, memberPK, ch, RetryAutomatic, false)
	if err != nil {
		return outcome, err
	}
	if outcome.Status == models.RetryFailed {
		o.ScheduleAutomatic(ctx, memberPK, ch, outcome.Attempt+1)
	}
	return outcome, nil
}

// ScheduleAutomatic queues the given retry attempt after its backoff delay.
// Without a scheduler automatic retries only run through RunAutomatic.
func (o *RetryOrchestrator) ScheduleAutomatic(ctx context.Context, memberPK int64, ch models.ChannelName, attempt int) {
	if o.scheduler == nil || attempt > o.policy.MaxAttempts {
		return
	}
	delay := o.policy.Delay(attempt)
	log := o.logger.WithFields(logrus.Fields{
		"member_pk": memberPK,
		"channel":   ch,
		"attempt":   attempt,
		"delay":     delay.String(),
	})
	if err := o.scheduler.ScheduleRetry(ctx, memberPK, ch, attempt, delay); err != nil {
		log.WithError(err).Error("Failed to schedule delivery retry")
		return
	}
	log.Info("Delivery retry scheduled")
}

func (o *RetryOrchestrator) retry(ctx context.Context, memberPK int64, ch models.ChannelName, mode RetryMode, wait bool) (models.RetryOutcome, error) {
	outcome := models.RetryOutcome{MemberID: memberPK, Channel: ch}
	log := o.logger.WithFields(logrus.Fields{
		"member_pk": memberPK,
		"channel":   ch,
		"mode":      mode,
	})

	m, err := o.members.FindByID(ctx, memberPK)
	if err != nil {
		return skipped(outcome, err), ineligible(err)
	}
	outcome.Activation = m.ActivationStatus
	if err := o.dispatcher.Eligible(m, ch); err != nil {
		return skipped(outcome, err), err
	}

	if mode == RetryAutomatic {
		used := m.RetryCount(ch)
		if o.policy.Exhausted(used) {
			updated, terr := o.provisioner.Transition(ctx, memberPK, func(s models.ActivationStatus) (models.ActivationStatus, error) {
				return s.MarkDeliveryFailed(ch)
			})
			if terr == nil && updated != nil {
				outcome.Activation = updated.ActivationStatus
			}
			log.WithField("attempts", used).Warn("Automatic retries exhausted")
			outcome.Status = models.RetryFailed
			outcome.Attempt = used
			outcome.Reason = models.ErrRetryExhausted.Error()
			return outcome, models.ErrRetryExhausted
		}
		if wait {
			if err := o.sleep(ctx, o.policy.Delay(used+1)); err != nil {
				return skipped(outcome, err), err
			}
		}
	}

	unlock, err := o.locker.TryLock(ctx, memberLockKey(memberPK), o.lockTTL)
	if err != nil {
		return skipped(outcome, err), err
	}
	defer unlock()

	attempt, err := o.members.RecordRetryAttempt(ctx, memberPK, ch, o.now().UTC())
	if err != nil {
		outcome.Status = models.RetryFailed
		outcome.Reason = err.Error()
		return outcome, fmt.Errorf("failed to record retry attempt: %w", err)
	}
	outcome.Attempt = attempt

	delivery, m, err := o.reissueAndSend(ctx, memberPK, ch, false)
	if err != nil {
		if errors.Is(err, models.ErrIneligible) || errors.Is(err, models.ErrInvalidTransition) {
			return skipped(outcome, err), err
		}
		outcome.Status = models.RetryFailed
		outcome.Reason = err.Error()
		return outcome, err
	}
	outcome.Delivery = delivery
	outcome.Activation = m.ActivationStatus

	if delivery.OK {
		outcome.Status = models.RetrySucceeded
		log.WithField("attempt", attempt).Info("Delivery retry succeeded")
	} else {
		outcome.Status = models.RetryFailed
		outcome.Reason = delivery.Error
		log.WithField("attempt", attempt).Warn("Delivery retry failed")
		o.publish(ctx, events.DeliveryFailed, events.DeliveryFailedEvent{
			MemberPK: memberPK,
			Channel:  string(ch),
			Reason:   delivery.Error,
			Attempt:  attempt,
			At:       delivery.At,
		})
	}
	return outcome, nil
}

// Resend issues a new temporary secret and sends it on ch as a fresh
// delivery. Once the message is accepted the previous secret is invalidated
// and the channel's retry counter is reset.
func (o *RetryOrchestrator) Resend(ctx context.Context, memberPK int64, ch models.ChannelName) (models.RetryOutcome, error) {
	outcome := models.RetryOutcome{MemberID: memberPK, Channel: ch}

	m, err := o.members.FindByID(ctx, memberPK)
	if err != nil {
		return skipped(outcome, err), ineligible(err)
	}
	outcome.Activation = m.ActivationStatus
	if err := o.dispatcher.Eligible(m, ch); err != nil {
		return skipped(outcome, err), err
	}

	unlock, err := o.locker.TryLock(ctx, memberLockKey(memberPK), o.lockTTL)
	if err != nil {
		return skipped(outcome, err), err
	}
	defer unlock()

	delivery, m, err := o.reissueAndSend(ctx, memberPK, ch, true)
	if err != nil {
		if errors.Is(err, models.ErrIneligible) || errors.Is(err, models.ErrInvalidTransition) {
			return skipped(outcome, err), err
		}
		outcome.Status = models.RetryFailed
		outcome.Reason = err.Error()
		return outcome, err
	}
	outcome.Delivery = delivery
	outcome.Activation = m.ActivationStatus

	if delivery.OK {
		outcome.Status = models.RetrySucceeded
	} else {
		outcome.Status = models.RetryFailed
		outcome.Reason = delivery.Error
	}

	o.publish(ctx, events.CredentialResent, events.CredentialResentEvent{
		MemberPK: memberPK,
		Channel:  string(ch),
		At:       delivery.At,
	})
	o.logger.WithFields(logrus.Fields{
		"member_pk": memberPK,
		"channel":   ch,
		"ok":        delivery.OK,
	}).Info("Temporary secret resent")
	return outcome, nil
}

// reissueAndSend issues a new secret and delivers it on one channel. The
// new secret replaces the stored one only once the provider accepted the
// message, so a failed attempt leaves the previous secret usable. The caller
// holds the member lock.
func (o *RetryOrchestrator) reissueAndSend(ctx context.Context, memberPK int64, ch models.ChannelName, fresh bool) (*models.ChannelOutcome, *models.Member, error) {
	m, err := o.members.FindByID(ctx, memberPK)
	if err != nil {
		return nil, nil, ineligible(err)
	}
	if _, err := m.ActivationStatus.Reissue(); err != nil {
		return nil, m, fmt.Errorf("%w: %v", models.ErrIneligible, err)
	}

	cred, err := o.credentials.Issue()
	if err != nil {
		return nil, m, err
	}
	// The message shows the new expiry; the stored one is untouched until commit.
	expires := cred.ExpiresAt
	m.TempSecretExpiresAt = &expires

	delivery, err := o.dispatcher.DeliverThen(ctx, m, ch, cred.Plaintext, fresh, func(ctx context.Context) (*models.Member, error) {
		return o.provisioner.RotateSecret(ctx, memberPK, cred)
	})
	if err != nil {
		return nil, m, err
	}

	if m.ImportLedgerID != nil {
		var counts models.ChannelCounts
		counts.Record(delivery)
		if err := o.ledgers.AddChannelCounts(context.WithoutCancel(ctx), *m.ImportLedgerID, counts); err != nil {
			o.logger.WithFields(logrus.Fields{
				"member_pk": memberPK,
				"ledger_id": *m.ImportLedgerID,
			}).WithError(err).Error("Failed to update ledger channel counters")
		}
	}
	return delivery, m, nil
}

// Redeliver sends one new secret on every channel the member can receive
// on. It serves members whose initial notification never went out. The
// secret is stored once, after the first accepted message.
func (o *RetryOrchestrator) Redeliver(ctx context.Context, memberPK int64) (models.DeliveryReport, error) {
	var report models.DeliveryReport

	unlock, err := o.locker.TryLock(ctx, memberLockKey(memberPK), o.lockTTL)
	if err != nil {
		return report, err
	}
	defer unlock()

	m, err := o.members.FindByID(ctx, memberPK)
	if err != nil {
		return report, ineligible(err)
	}
	if _, err := m.ActivationStatus.Reissue(); err != nil {
		return report, fmt.Errorf("%w: %v", models.ErrIneligible, err)
	}

	cred, err := o.credentials.Issue()
	if err != nil {
		return report, err
	}
	expires := cred.ExpiresAt
	m.TempSecretExpiresAt = &expires

	stored := false
	commit := func(ctx context.Context) (*models.Member, error) {
		if stored {
			return nil, nil
		}
		updated, err := o.provisioner.RotateSecret(ctx, memberPK, cred)
		if err == nil {
			stored = true
		}
		return updated, err
	}

	// Email goes first so that when both fail the sms marker is the one kept.
	for _, ch := range []models.ChannelName{models.ChannelEmail, models.ChannelSMS} {
		if o.dispatcher.Eligible(m, ch) != nil {
			continue
		}
		outcome, err := o.dispatcher.DeliverThen(ctx, m, ch, cred.Plaintext, false, commit)
		if err != nil {
			continue
		}
		if ch == models.ChannelEmail {
			report.Email = outcome
		} else {
			report.SMS = outcome
		}
	}

	o.logger.WithFields(logrus.Fields{
		"member_pk": memberPK,
		"stored":    stored,
	}).Info("Temporary secret redelivered")
	return report, nil
}

// BulkRetry runs a manual retry for each member independently.
func (o *RetryOrchestrator) BulkRetry(ctx context.Context, memberPKs []int64, ch models.ChannelName) models.BulkOutcome {
	return o.bulk(ctx, memberPKs, ch, func(ctx context.Context, pk int64) (models.RetryOutcome, error) {
		return o.Retry(ctx, pk, ch, RetryManual)
	})
}

// BulkResend resends to each member independently.
func (o *RetryOrchestrator) BulkResend(ctx context.Context, memberPKs []int64, ch models.ChannelName) models.BulkOutcome {
	return o.bulk(ctx, memberPKs, ch, func(ctx context.Context, pk int64) (models.RetryOutcome, error) {
		return o.Resend(ctx, pk, ch)
	})
}

func (o *RetryOrchestrator) bulk(ctx context.Context, memberPKs []int64, ch models.ChannelName, run func(context.Context, int64) (models.RetryOutcome, error)) models.BulkOutcome {
	results := make([]models.RetryOutcome, len(memberPKs))

	var g errgroup.Group
	g.SetLimit(bulkConcurrency)
	for i, pk := range memberPKs {
		i, pk := i, pk
		g.Go(func() error {
			outcome, err := run(ctx, pk)
			if err != nil && outcome.Reason == "" {
				outcome.Reason = err.Error()
			}
			if outcome.Status == "" {
				outcome.Status = models.RetryFailed
			}
			results[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	total := models.BulkOutcome{Channel: ch, Results: make([]models.RetryOutcome, 0, len(results))}
	for _, r := range results {
		total.Add(r)
	}
	return total
}

// RetryStatus reports delivery bookkeeping per channel. It never writes.
func (o *RetryOrchestrator) RetryStatus(ctx context.Context, memberPK int64) (*models.RetryStatus, error) {
	m, err := o.members.FindByID(ctx, memberPK)
	if err != nil {
		return nil, err
	}

	status := &models.RetryStatus{MemberID: m.ID}
	channels := []models.ChannelName{models.ChannelSMS}
	if m.HasEmail() {
		channels = append(channels, models.ChannelEmail)
	}
	for _, ch := range channels {
		status.Channels = append(status.Channels, models.ChannelRetryStatus{
			Channel:          ch,
			RetryCount:       m.RetryCount(ch),
			LastRetryAt:      m.LastRetryAt(ch),
			SentAt:           m.SentAt(ch),
			ActivationStatus: m.ActivationStatus,
		})
	}
	return status, nil
}

func (o *RetryOrchestrator) publish(ctx context.Context, subject string, payload interface{}) {
	if err := o.events.Publish(ctx, subject, payload); err != nil {
		o.logger.WithField("subject", subject).WithError(err).Warn("Failed to publish event")
	}
}

func skipped(outcome models.RetryOutcome, err error) models.RetryOutcome {
	outcome.Status = models.RetrySkipped
	outcome.Reason = err.Error()
	return outcome
}

func ineligible(err error) error {
	if errors.Is(err, models.ErrMemberNotFound) {
		return fmt.Errorf("%w: %w", models.ErrIneligible, err)
	}
	return err
}
