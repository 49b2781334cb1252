package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"member-onboarding/internal/events"
	"member-onboarding/internal/models"

	"github.com/sirupsen/logrus"
)

const minPasswordLength = 8

// ActivationService exchanges a valid temporary secret for a permanent
// password. Expiry is detected here, lazily, when the secret is presented.
type ActivationService struct {
	members     MemberStore
	credentials *CredentialManager
	provisioner *Provisioner
	events      events.Publisher
	logger      *logrus.Logger
	now         func() time.Time
}

func NewActivationService(members MemberStore, credentials *CredentialManager, provisioner *Provisioner, publisher events.Publisher, logger *logrus.Logger) *ActivationService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &ActivationService{
		members:     members,
		credentials: credentials,
		provisioner: provisioner,
		events:      publisher,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *ActivationService) Activate(ctx context.Context, memberID, tempSecret, newPassword string) (*models.Member, error) {
	if len(newPassword) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", models.ErrInvalidCredential, minPasswordLength)
	}

	m, err := s.members.FindByMemberID(ctx, memberID)
	if errors.Is(err, models.ErrMemberNotFound) {
		return nil, models.ErrInvalidCredential
	}
	if err != nil {
		return nil, err
	}

	if m.ActivationStatus == models.StatusActivated || m.TempSecretUsedAt != nil {
		return nil, models.ErrTokenConsumed
	}

	now := s.now()
	if m.TempSecretExpired(now) {
		if _, err := s.provisioner.ExpireIfDue(ctx, m); err != nil {
			s.logger.WithField("member_pk", m.ID).WithError(err).Warn("Failed to mark temporary secret expired")
		}
		return nil, models.ErrTokenExpired
	}

	if !s.credentials.Verify(m, tempSecret) {
		return nil, models.ErrInvalidCredential
	}

	passwordHash, err := s.credentials.HashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	ok, err := s.members.Activate(ctx, m.ID, *m.TempSecretHash, passwordHash, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to activate member: %w", err)
	}
	if !ok {
		// The secret was rotated or used between verification and update.
		return nil, models.ErrTokenConsumed
	}

	if err := s.events.Publish(ctx, events.MemberActivated, events.MemberActivatedEvent{
		MemberPK: m.ID,
		MemberID: m.MemberID,
		At:       now.UTC(),
	}); err != nil {
		s.logger.WithError(err).Warn("Failed to publish activation event")
	}
	s.logger.WithField("member_pk", m.ID).Info("Member activated")

	return s.members.FindByID(ctx, m.ID)
}
