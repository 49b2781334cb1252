package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"member-onboarding/internal/models"

	"github.com/sirupsen/logrus"
)

const maxTransitionAttempts = 5

// Provisioner creates member accounts and owns every activation status
// change after creation.
type Provisioner struct {
	members MemberStore
	logger  *logrus.Logger
	now     func() time.Time
}

func NewProvisioner(members MemberStore, logger *logrus.Logger) *Provisioner {
	return &Provisioner{members: members, logger: logger, now: time.Now}
}

// Provision inserts a pending member holding cred. A unique key violation
// surfaces as models.ErrDuplicateIdentity.
func (p *Provisioner) Provision(ctx context.Context, row models.MemberRow, ledgerID string, cred Credential) (*models.Member, error) {
	hash := cred.Hash
	expires := cred.ExpiresAt
	m := &models.Member{
		MemberID:            row.MemberID,
		Name:                row.Name,
		Phone:               row.Phone,
		TempSecretHash:      &hash,
		TempSecretExpiresAt: &expires,
		ActivationStatus:    models.StatusPendingActivation,
	}
	if row.Email != "" {
		email := row.Email
		m.Email = &email
	}
	if ledgerID != "" {
		id := ledgerID
		m.ImportLedgerID = &id
	}

	if err := p.members.Create(ctx, m); err != nil {
		if errors.Is(err, models.ErrDuplicateIdentity) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create member %s: %w", row.MemberID, err)
	}
	return m, nil
}

// Transition applies fn to the member's current status and stores the
// result with a compare-and-set, reloading and retrying when another
// writer got there first. The member as last read is returned.
func (p *Provisioner) Transition(ctx context.Context, memberPK int64, fn func(models.ActivationStatus) (models.ActivationStatus, error)) (*models.Member, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		m, err := p.members.FindByID(ctx, memberPK)
		if err != nil {
			return nil, err
		}
		next, err := fn(m.ActivationStatus)
		if err != nil {
			return m, err
		}
		if next == m.ActivationStatus {
			return m, nil
		}
		ok, err := p.members.CompareAndSetStatus(ctx, memberPK, m.ActivationStatus, next)
		if err != nil {
			return m, fmt.Errorf("failed to update activation status: %w", err)
		}
		if ok {
			p.logger.WithFields(logrus.Fields{
				"member_pk": memberPK,
				"from":      m.ActivationStatus,
				"to":        next,
			}).Debug("Activation status changed")
			m.ActivationStatus = next
			return m, nil
		}
	}
	return nil, fmt.Errorf("activation status of member %d kept changing: %w", memberPK, models.ErrInvalidTransition)
}

// InvalidateSecret clears the member's temporary secret.
func (p *Provisioner) InvalidateSecret(ctx context.Context, memberPK int64) error {
	if err := p.members.ReplaceTempSecret(ctx, memberPK, nil, nil); err != nil {
		return fmt.Errorf("failed to invalidate temporary secret: %w", err)
	}
	return nil
}

// RotateSecret invalidates the current temporary secret, stores cred in its
// place and moves an expired member back to pending. Activated members are
// rejected before anything is written.
func (p *Provisioner) RotateSecret(ctx context.Context, memberPK int64, cred Credential) (*models.Member, error) {
	m, err := p.members.FindByID(ctx, memberPK)
	if err != nil {
		return nil, err
	}
	if _, err := m.ActivationStatus.Reissue(); err != nil {
		return m, err
	}

	if err := p.InvalidateSecret(ctx, memberPK); err != nil {
		return m, err
	}
	hash := cred.Hash
	expires := cred.ExpiresAt
	if err := p.members.ReplaceTempSecret(ctx, memberPK, &hash, &expires); err != nil {
		return m, fmt.Errorf("failed to store temporary secret: %w", err)
	}

	m, err = p.Transition(ctx, memberPK, models.ActivationStatus.Reissue)
	if err != nil {
		return m, err
	}
	m.TempSecretHash = &hash
	m.TempSecretExpiresAt = &expires
	m.TempSecretUsedAt = nil
	return m, nil
}

// ExpireIfDue lazily moves a member whose temporary secret has lapsed to
// token_expired. It reports whether the member is expired.
func (p *Provisioner) ExpireIfDue(ctx context.Context, m *models.Member) (bool, error) {
	if !m.TempSecretExpired(p.now()) || m.ActivationStatus == models.StatusActivated {
		return false, nil
	}
	updated, err := p.Transition(ctx, m.ID, models.ActivationStatus.Expire)
	if err != nil {
		return true, err
	}
	m.ActivationStatus = updated.ActivationStatus
	return true, nil
}
