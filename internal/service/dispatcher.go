package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"member-onboarding/internal/models"
	"member-onboarding/internal/notifier"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

type DispatcherConfig struct {
	SMSConcurrency     int
	EmailConcurrency   int
	SMSRatePerSecond   float64
	EmailRatePerSecond float64
	SendTimeout        time.Duration
	OrganizationName   string
	ActivationURL      string
}

// channelGate bounds how hard one provider is driven.
type channelGate struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

func newChannelGate(concurrency int, perSecond float64) *channelGate {
	if concurrency < 1 {
		concurrency = 1
	}
	g := &channelGate{sem: semaphore.NewWeighted(int64(concurrency))}
	if perSecond > 0 {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return g
}

// Dispatcher sends activation notifications and records each channel's
// outcome on the member. Channels are independent: a failure on one never
// blocks or rewrites the other.
type Dispatcher struct {
	members     MemberStore
	provisioner *Provisioner
	channels    map[models.ChannelName]notifier.Channel
	gates       map[models.ChannelName]*channelGate
	templates   MessageTemplates
	timeout     time.Duration
	logger      *logrus.Logger
	now         func() time.Time
}

// NewDispatcher wires the primary SMS channel and an optional email
// channel; a nil email channel disables the backup path.
func NewDispatcher(members MemberStore, provisioner *Provisioner, sms, email notifier.Channel, cfg DispatcherConfig, logger *logrus.Logger) *Dispatcher {
	d := &Dispatcher{
		members:     members,
		provisioner: provisioner,
		channels:    map[models.ChannelName]notifier.Channel{},
		gates:       map[models.ChannelName]*channelGate{},
		templates: MessageTemplates{
			Organization:  cfg.OrganizationName,
			ActivationURL: cfg.ActivationURL,
		},
		timeout: cfg.SendTimeout,
		logger:  logger,
		now:     time.Now,
	}
	if d.timeout <= 0 {
		d.timeout = 10 * time.Second
	}
	if sms != nil {
		d.channels[models.ChannelSMS] = sms
		d.gates[models.ChannelSMS] = newChannelGate(cfg.SMSConcurrency, cfg.SMSRatePerSecond)
	}
	if email != nil {
		d.channels[models.ChannelEmail] = email
		d.gates[models.ChannelEmail] = newChannelGate(cfg.EmailConcurrency, cfg.EmailRatePerSecond)
	}
	return d
}

func (d *Dispatcher) HasChannel(ch models.ChannelName) bool {
	_, ok := d.channels[ch]
	return ok
}

// Eligible reports why m cannot receive a message on ch, or nil.
func (d *Dispatcher) Eligible(m *models.Member, ch models.ChannelName) error {
	if !d.HasChannel(ch) {
		return fmt.Errorf("%w: %s", models.ErrChannelUnavailable, ch)
	}
	if m.ActivationStatus == models.StatusActivated {
		return fmt.Errorf("%w: member already activated", models.ErrIneligible)
	}
	if ch == models.ChannelEmail && !m.HasEmail() {
		return fmt.Errorf("%w: member has no email address", models.ErrIneligible)
	}
	return nil
}

// Deliver sends the initial notification on the primary channel and, when
// the member has an email address, on the backup channel. Both sends run
// concurrently.
func (d *Dispatcher) Deliver(ctx context.Context, m *models.Member, plaintext string) models.DeliveryReport {
	var (
		report models.DeliveryReport
		wg     sync.WaitGroup
	)

	if d.HasChannel(models.ChannelSMS) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report.SMS = d.send(ctx, m, models.ChannelSMS, plaintext)
		}()
	}
	if m.HasEmail() && d.HasChannel(models.ChannelEmail) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report.Email = d.send(ctx, m, models.ChannelEmail, plaintext)
		}()
	}
	wg.Wait()

	if report.SMS == nil {
		// The primary channel is mandatory; a missing provider is a failure.
		report.SMS = &models.ChannelOutcome{
			Channel: models.ChannelSMS,
			Error:   models.ErrChannelUnavailable.Error(),
			At:      d.now().UTC(),
		}
	}

	// Email is recorded first so that when both fail the primary channel's
	// marker is the one left on the member.
	if report.Email != nil {
		d.record(ctx, m, report.Email, false)
	}
	d.record(ctx, m, report.SMS, false)
	return report
}

// DeliverOn sends a single channel message. It is used by retry and resend.
func (d *Dispatcher) DeliverOn(ctx context.Context, m *models.Member, ch models.ChannelName, plaintext string, resetRetries bool) (*models.ChannelOutcome, error) {
	return d.DeliverThen(ctx, m, ch, plaintext, resetRetries, nil)
}

// DeliverThen is DeliverOn with a commit step that runs only after the
// provider accepted the message and before the outcome is recorded. A
// failing commit turns the outcome into a failure.
func (d *Dispatcher) DeliverThen(ctx context.Context, m *models.Member, ch models.ChannelName, plaintext string, resetRetries bool, commit func(context.Context) (*models.Member, error)) (*models.ChannelOutcome, error) {
	if err := d.Eligible(m, ch); err != nil {
		return nil, err
	}
	outcome := d.send(ctx, m, ch, plaintext)
	if outcome.OK && commit != nil {
		updated, err := commit(context.WithoutCancel(ctx))
		if err != nil {
			d.logger.WithFields(logrus.Fields{
				"member_pk": m.ID,
				"channel":   ch,
			}).WithError(err).Error("Delivered secret could not be stored")
			outcome.OK = false
			outcome.Error = err.Error()
		} else if updated != nil {
			m.ActivationStatus = updated.ActivationStatus
		}
	}
	d.record(ctx, m, outcome, resetRetries)
	return outcome, nil
}

func (d *Dispatcher) send(ctx context.Context, m *models.Member, ch models.ChannelName, plaintext string) *models.ChannelOutcome {
	outcome := &models.ChannelOutcome{Channel: ch}
	ref, err := d.sendThroughGate(ctx, m, ch, plaintext)
	outcome.At = d.now().UTC()
	if err != nil {
		outcome.Error = err.Error()
		d.logger.WithFields(logrus.Fields{
			"member_pk": m.ID,
			"member_id": m.MemberID,
			"channel":   ch,
		}).WithError(err).Warn("Notification delivery failed")
		return outcome
	}
	outcome.OK = true
	outcome.ProviderRef = ref
	return outcome
}

func (d *Dispatcher) sendThroughGate(ctx context.Context, m *models.Member, ch models.ChannelName, plaintext string) (string, error) {
	channel, ok := d.channels[ch]
	if !ok {
		return "", models.ErrChannelUnavailable
	}
	gate := d.gates[ch]

	if err := gate.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer gate.sem.Release(1)

	if gate.limiter != nil {
		if err := gate.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	msg := d.templates.Render(ch, m, plaintext)
	return channel.Send(sendCtx, msg)
}

// record writes the channel's bookkeeping. It runs detached from ctx so an
// outcome that already happened is never lost to cancellation.
func (d *Dispatcher) record(ctx context.Context, m *models.Member, outcome *models.ChannelOutcome, resetRetries bool) {
	ctx = context.WithoutCancel(ctx)
	log := d.logger.WithFields(logrus.Fields{
		"member_pk": m.ID,
		"channel":   outcome.Channel,
	})

	if outcome.OK {
		if err := d.members.RecordChannelSent(ctx, m.ID, outcome.Channel, outcome.At, resetRetries); err != nil {
			log.WithError(err).Error("Failed to record delivery timestamp")
		}
		ch := outcome.Channel
		updated, err := d.provisioner.Transition(ctx, m.ID, func(s models.ActivationStatus) (models.ActivationStatus, error) {
			return s.MarkDeliverySucceeded(ch)
		})
		d.applyStatus(m, updated, err, log)
		return
	}

	ch := outcome.Channel
	updated, err := d.provisioner.Transition(ctx, m.ID, func(s models.ActivationStatus) (models.ActivationStatus, error) {
		return s.MarkDeliveryFailed(ch)
	})
	d.applyStatus(m, updated, err, log)
}

func (d *Dispatcher) applyStatus(m, updated *models.Member, err error, log *logrus.Entry) {
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			// Member was activated while the message was in flight.
			log.WithError(err).Info("Delivery status not recorded")
		} else {
			log.WithError(err).Error("Failed to record delivery status")
		}
	}
	if updated != nil {
		m.ActivationStatus = updated.ActivationStatus
	}
}

// MessageTemplates renders activation messages. The plaintext secret is
// only ever placed in the message body.
type MessageTemplates struct {
	Organization  string
	ActivationURL string
}

func (t MessageTemplates) Render(ch models.ChannelName, m *models.Member, plaintext string) notifier.Message {
	expires := "24 hours"
	if m.TempSecretExpiresAt != nil {
		expires = m.TempSecretExpiresAt.UTC().Format("2006-01-02 15:04 UTC")
	}

	if ch == models.ChannelEmail {
		subject := fmt.Sprintf("Activate your %s account", t.Organization)
		text := fmt.Sprintf("Hi %s,\n\nAn account has been created for member ID %s.\nTemporary password: %s\nIt is valid until %s.\n\nActivate your account at %s",
			m.Name, m.MemberID, plaintext, expires, t.ActivationURL)
		html := fmt.Sprintf(`
		<h2>Welcome to %s</h2>
		<p>Hi %s,</p>
		<p>An account has been created for member ID <strong>%s</strong>.</p>
		<p>Your temporary password is <strong style="font-size: 18px;">%s</strong></p>
		<p>It is valid until %s.</p>
		<p><a href="%s" style="background-color: #4CAF50; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Activate Account</a></p>
	`, t.Organization, m.Name, m.MemberID, plaintext, expires, t.ActivationURL)
		return notifier.Message{
			To:        m.EmailAddress(),
			Name:      m.Name,
			Subject:   subject,
			Text:      text,
			HTML:      html,
			Reference: m.MemberID,
		}
	}

	return notifier.Message{
		To:        m.Phone,
		Name:      m.Name,
		Text:      fmt.Sprintf("%s: member ID %s. Temporary password %s, valid until %s. Activate at %s", t.Organization, m.MemberID, plaintext, expires, t.ActivationURL),
		Reference: m.MemberID,
	}
}
