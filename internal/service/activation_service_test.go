package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"member-onboarding/internal/events"
	"member-onboarding/internal/models"
)

func TestActivateConsumesSecret(t *testing.T) {
	h := newHarness(t)
	m, plain := h.seedMember(t, "M-1", "+15550000001", "")

	activated, err := h.activation.Activate(context.Background(), "M-1", plain, "a-new-password")
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if activated.ActivationStatus != models.StatusActivated || activated.PasswordHash == nil {
		t.Fatalf("member = %+v", activated)
	}
	if activated.TempSecretHash != nil || activated.TempSecretUsedAt == nil {
		t.Error("temporary secret should be consumed")
	}
	ok, err := h.credentials.hasher.Compare(*activated.PasswordHash, "a-new-password")
	if err != nil || !ok {
		t.Error("permanent password does not verify")
	}
	if h.events.Count(events.MemberActivated) != 1 {
		t.Error("expected an activation event")
	}

	if _, err := h.activation.Activate(context.Background(), "M-1", plain, "another-password"); !errors.Is(err, models.ErrTokenConsumed) {
		t.Errorf("replay: %v", err)
	}
	if _, err := h.retries.Resend(context.Background(), m.ID, models.ChannelSMS); !errors.Is(err, models.ErrIneligible) {
		t.Errorf("resend after activation: %v", err)
	}
}

func TestActivateRejectsExpiredSecret(t *testing.T) {
	h := newHarness(t)
	m, plain := h.seedMember(t, "M-1", "+15550000001", "")
	stored := h.member(t, m.ID)
	past := time.Now().Add(-time.Minute)
	stored.TempSecretExpiresAt = &past
	h.members.Put(stored)

	if _, err := h.activation.Activate(context.Background(), "M-1", plain, "a-new-password"); !errors.Is(err, models.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if got := h.member(t, m.ID).ActivationStatus; got != models.StatusTokenExpired {
		t.Errorf("status = %s", got)
	}

	// A resend moves the member back to pending with a usable secret.
	if _, err := h.retries.Resend(context.Background(), m.ID, models.ChannelSMS); err != nil {
		t.Fatal(err)
	}
	if got := h.member(t, m.ID).ActivationStatus; got != models.StatusPendingActivation {
		t.Errorf("status after resend = %s", got)
	}
}

func TestActivateRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	_, plain := h.seedMember(t, "M-1", "+15550000001", "")

	cases := []struct {
		name     string
		memberID string
		secret   string
		password string
	}{
		{"short password", "M-1", plain, "short"},
		{"wrong secret", "M-1", plain + "x", "a-new-password"},
		{"unknown member", "M-404", plain, "a-new-password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.activation.Activate(context.Background(), tc.memberID, tc.secret, tc.password)
			if !errors.Is(err, models.ErrInvalidCredential) {
				t.Fatalf("expected ErrInvalidCredential, got %v", err)
			}
		})
	}
}
