package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"member-onboarding/internal/models"
	"member-onboarding/internal/notifier"
	"member-onboarding/internal/repository/memory"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var errProviderDown = errors.New("provider unavailable")

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeChannel records messages and fails on demand.
type fakeChannel struct {
	name models.ChannelName

	mu         sync.Mutex
	failFirst  int
	alwaysFail bool
	calls      int
	sent       []notifier.Message
}

func newFakeChannel(name models.ChannelName) *fakeChannel {
	return &fakeChannel{name: name}
}

func (f *fakeChannel) Name() models.ChannelName { return f.name }

func (f *fakeChannel) Send(ctx context.Context, msg notifier.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.alwaysFail || f.calls <= f.failFirst {
		return "", errProviderDown
	}
	f.sent = append(f.sent, msg)
	return string(f.name) + "-ref", nil
}

func (f *fakeChannel) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeChannel) Sent() []notifier.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notifier.Message(nil), f.sent...)
}

type fakeScheduler struct {
	mu     sync.Mutex
	queued []scheduledRetry
}

type scheduledRetry struct {
	memberPK int64
	channel  models.ChannelName
	attempt  int
	delay    time.Duration
}

func (f *fakeScheduler) ScheduleRetry(_ context.Context, memberPK int64, ch models.ChannelName, attempt int, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, scheduledRetry{memberPK, ch, attempt, delay})
	return nil
}

func (f *fakeScheduler) Queued() []scheduledRetry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scheduledRetry(nil), f.queued...)
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []interface{}
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Count(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

// harness wires every service over the in-memory stores.
type harness struct {
	members     *memory.MemberStore
	ledgers     *memory.LedgerStore
	sms         *fakeChannel
	email       *fakeChannel
	credentials *CredentialManager
	provisioner *Provisioner
	dispatcher  *Dispatcher
	locker      *LocalLocker
	retries     *RetryOrchestrator
	onboarding  *OnboardingService
	activation  *ActivationService
	events      *recordingPublisher
	sleeps      []time.Duration
}

var testPolicy = BackoffPolicy{Base: time.Second, Max: 10 * time.Second, MaxAttempts: 3}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := quietLogger()

	h := &harness{
		members: memory.NewMemberStore(),
		ledgers: memory.NewLedgerStore(),
		sms:     newFakeChannel(models.ChannelSMS),
		email:   newFakeChannel(models.ChannelEmail),
		locker:  NewLocalLocker(),
		events:  &recordingPublisher{},
	}
	h.credentials = NewCredentialManager(BcryptHasher{Cost: bcrypt.MinCost}, 12, time.Hour)
	h.provisioner = NewProvisioner(h.members, logger)
	h.dispatcher = NewDispatcher(h.members, h.provisioner, h.sms, h.email, DispatcherConfig{
		SMSConcurrency:   4,
		EmailConcurrency: 4,
		SendTimeout:      time.Second,
		OrganizationName: "Test Club",
		ActivationURL:    "https://example.test/activate",
	}, logger)
	h.retries = NewRetryOrchestrator(h.members, h.ledgers, h.credentials, h.provisioner, h.dispatcher, h.locker, testPolicy, time.Minute, logger)
	h.retries.SetEvents(h.events)

	var sleepMu sync.Mutex
	h.retries.sleep = func(_ context.Context, d time.Duration) error {
		sleepMu.Lock()
		defer sleepMu.Unlock()
		h.sleeps = append(h.sleeps, d)
		return nil
	}

	h.onboarding = NewOnboardingService(h.members, h.ledgers, h.credentials, h.provisioner, h.dispatcher, OnboardingOptions{
		Concurrency: 4,
		Retries:     h.retries,
		Events:      h.events,
	}, logger)
	h.activation = NewActivationService(h.members, h.credentials, h.provisioner, h.events, logger)
	return h
}

// seedMember stores a pending member holding a freshly issued secret and
// returns the secret's plaintext.
func (h *harness) seedMember(t *testing.T, memberID, phone, email string) (*models.Member, string) {
	t.Helper()
	cred, err := h.credentials.Issue()
	if err != nil {
		t.Fatalf("issue credential: %v", err)
	}
	row := models.MemberRow{MemberID: memberID, Name: "Member " + memberID, Phone: phone, Email: email}
	m, err := h.provisioner.Provision(context.Background(), row, "", cred)
	if err != nil {
		t.Fatalf("provision %s: %v", memberID, err)
	}
	return m, cred.Plaintext
}

func (h *harness) member(t *testing.T, pk int64) *models.Member {
	t.Helper()
	m, err := h.members.FindByID(context.Background(), pk)
	if err != nil {
		t.Fatalf("find member %d: %v", pk, err)
	}
	return m
}

func (h *harness) setStatus(t *testing.T, pk int64, status models.ActivationStatus) {
	t.Helper()
	m := h.member(t, pk)
	m.ActivationStatus = status
	h.members.Put(m)
}

func csvFile(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

// secretIn pulls the temporary password out of a rendered email body.
func secretIn(t *testing.T, text string) string {
	t.Helper()
	const marker = "Temporary password: "
	i := strings.Index(text, marker)
	if i < 0 {
		t.Fatalf("no secret in message %q", text)
	}
	rest := text[i+len(marker):]
	if j := strings.IndexByte(rest, '\n'); j >= 0 {
		rest = rest[:j]
	}
	return rest
}
