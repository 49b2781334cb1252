package models

import (
	"errors"
	"testing"
	"time"
)

func TestActivationStatusTransitions(t *testing.T) {
	tests := []struct {
		from    ActivationStatus
		to      ActivationStatus
		allowed bool
	}{
		{StatusPendingActivation, StatusActivated, true},
		{StatusPendingActivation, StatusSMSFailed, true},
		{StatusPendingActivation, StatusEmailFailed, true},
		{StatusPendingActivation, StatusTokenExpired, true},
		{StatusSMSFailed, StatusPendingActivation, true},
		{StatusEmailFailed, StatusSMSFailed, true},
		{StatusTokenExpired, StatusPendingActivation, true},
		{StatusTokenExpired, StatusActivated, false},
		{StatusActivated, StatusPendingActivation, false},
		{StatusActivated, StatusSMSFailed, false},
		{StatusActivated, StatusActivated, true},
	}

	for _, tt := range tests {
		got, err := tt.from.Transition(tt.to)
		if tt.allowed {
			if err != nil {
				t.Errorf("%s -> %s: unexpected error %v", tt.from, tt.to, err)
			}
			if got != tt.to {
				t.Errorf("%s -> %s: got %s", tt.from, tt.to, got)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s -> %s: expected ErrInvalidTransition, got %v", tt.from, tt.to, err)
		}
		if got != tt.from {
			t.Errorf("%s -> %s: rejected transition changed state to %s", tt.from, tt.to, got)
		}
	}
}

func TestUnknownStatusRejected(t *testing.T) {
	if _, err := ParseActivationStatus("archived"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	var s ActivationStatus
	if err := s.Scan([]byte("archived")); err == nil {
		t.Fatal("expected Scan to reject unknown status")
	}
	if err := s.Scan("sms_failed"); err != nil || s != StatusSMSFailed {
		t.Fatalf("Scan(sms_failed) = %v, %v", s, err)
	}
}

func TestDeliveryMarkersAreChannelScoped(t *testing.T) {
	status, err := StatusPendingActivation.MarkDeliveryFailed(ChannelSMS)
	if err != nil || status != StatusSMSFailed {
		t.Fatalf("sms failure: got %s, %v", status, err)
	}

	// An email success must not clear the SMS failure marker.
	status, err = status.MarkDeliverySucceeded(ChannelEmail)
	if err != nil || status != StatusSMSFailed {
		t.Fatalf("email success: got %s, %v", status, err)
	}

	status, err = status.MarkDeliverySucceeded(ChannelSMS)
	if err != nil || status != StatusPendingActivation {
		t.Fatalf("sms success: got %s, %v", status, err)
	}

	if _, err := StatusActivated.MarkDeliverySucceeded(ChannelSMS); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("delivery on activated member: expected ErrInvalidTransition, got %v", err)
	}
}

func TestTempSecretExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(24 * time.Hour)
	m := &Member{TempSecretExpiresAt: &expiry}

	if m.TempSecretExpired(now) {
		t.Error("secret should be valid right after issuance")
	}
	if !m.TempSecretExpired(expiry) {
		t.Error("secret should be expired at the expiry instant")
	}

	hash := "permanent"
	m.PasswordHash = &hash
	if m.TempSecretExpired(expiry.Add(time.Hour)) {
		t.Error("member with a permanent password never reports expiry")
	}
}
