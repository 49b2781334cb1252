package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// ActivationStatus is the closed set of states a provisioned member moves
// through. Values are only changed through the transition methods below.
type ActivationStatus string

const (
	StatusPendingActivation ActivationStatus = "pending_activation"
	StatusActivated         ActivationStatus = "activated"
	StatusSMSFailed         ActivationStatus = "sms_failed"
	StatusEmailFailed       ActivationStatus = "email_failed"
	StatusTokenExpired      ActivationStatus = "token_expired"
)

var allowedTransitions = map[ActivationStatus][]ActivationStatus{
	StatusPendingActivation: {StatusActivated, StatusSMSFailed, StatusEmailFailed, StatusTokenExpired},
	StatusSMSFailed:         {StatusPendingActivation, StatusEmailFailed, StatusActivated, StatusTokenExpired},
	StatusEmailFailed:       {StatusPendingActivation, StatusSMSFailed, StatusActivated, StatusTokenExpired},
	StatusTokenExpired:      {StatusPendingActivation},
	StatusActivated:         {},
}

// ParseActivationStatus converts a stored or user supplied value.
func ParseActivationStatus(s string) (ActivationStatus, error) {
	status := ActivationStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown activation status %q", s)
	}
	return status, nil
}

func (s ActivationStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

func (s ActivationStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s ActivationStatus) CanTransitionTo(next ActivationStatus) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Transition returns next if the move is allowed. Moving to the current
// state is a no-op and always allowed, except out of an unknown state.
func (s ActivationStatus) Transition(next ActivationStatus) (ActivationStatus, error) {
	if !s.Valid() || !next.Valid() {
		return s, fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, s, next)
	}
	if s == next {
		return s, nil
	}
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}

// MarkDeliveryFailed records a failed send on ch.
func (s ActivationStatus) MarkDeliveryFailed(ch ChannelName) (ActivationStatus, error) {
	return s.Transition(FailedStatusFor(ch))
}

// MarkDeliverySucceeded clears the failure marker belonging to ch. Markers
// owned by the other channel are left untouched.
func (s ActivationStatus) MarkDeliverySucceeded(ch ChannelName) (ActivationStatus, error) {
	if s == FailedStatusFor(ch) {
		return s.Transition(StatusPendingActivation)
	}
	if s == StatusActivated {
		return s, fmt.Errorf("%w: delivery to activated member", ErrInvalidTransition)
	}
	return s, nil
}

// Activate is the only way into the terminal state.
func (s ActivationStatus) Activate() (ActivationStatus, error) {
	return s.Transition(StatusActivated)
}

func (s ActivationStatus) Expire() (ActivationStatus, error) {
	return s.Transition(StatusTokenExpired)
}

// Reissue moves an expired member back to pending when a new temporary
// secret is sent. Other non-terminal states keep their delivery markers.
func (s ActivationStatus) Reissue() (ActivationStatus, error) {
	if s == StatusTokenExpired {
		return s.Transition(StatusPendingActivation)
	}
	if s == StatusActivated {
		return s, fmt.Errorf("%w: member already activated", ErrInvalidTransition)
	}
	return s, nil
}

// FailedStatusFor maps a channel to its failure marker.
func FailedStatusFor(ch ChannelName) ActivationStatus {
	if ch == ChannelEmail {
		return StatusEmailFailed
	}
	return StatusSMSFailed
}

// Scan rejects values outside the closed set.
func (s *ActivationStatus) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		return fmt.Errorf("activation status is NULL")
	default:
		return fmt.Errorf("unsupported activation status type %T", src)
	}
	parsed, err := ParseActivationStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s ActivationStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown activation status %q", string(s))
	}
	return string(s), nil
}

type Member struct {
	ID       int64   `db:"id" json:"id"`
	MemberID string  `db:"member_id" json:"member_id"`
	Name     string  `db:"name" json:"name"`
	Phone    string  `db:"phone_number" json:"phone_number"`
	Email    *string `db:"email" json:"email,omitempty"`

	TempSecretHash      *string    `db:"temp_secret_hash" json:"-"`
	TempSecretExpiresAt *time.Time `db:"temp_secret_expires_at" json:"temp_secret_expires_at,omitempty"`
	TempSecretUsedAt    *time.Time `db:"temp_secret_used_at" json:"temp_secret_used_at,omitempty"`
	PasswordHash        *string    `db:"password_hash" json:"-"`
	PasswordChangedAt   *time.Time `db:"password_changed_at" json:"password_changed_at,omitempty"`

	ActivationStatus ActivationStatus `db:"activation_status" json:"activation_status"`

	SMSSentAt        *time.Time `db:"sms_sent_at" json:"sms_sent_at,omitempty"`
	SMSRetryCount    int        `db:"sms_retry_count" json:"sms_retry_count"`
	SMSLastRetryAt   *time.Time `db:"sms_last_retry_at" json:"sms_last_retry_at,omitempty"`
	EmailSentAt      *time.Time `db:"email_sent_at" json:"email_sent_at,omitempty"`
	EmailRetryCount  int        `db:"email_retry_count" json:"email_retry_count"`
	EmailLastRetryAt *time.Time `db:"email_last_retry_at" json:"email_last_retry_at,omitempty"`

	ImportLedgerID *string   `db:"import_ledger_id" json:"import_ledger_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// HasEmail reports whether the backup channel applies to this member.
func (m *Member) HasEmail() bool {
	return m.Email != nil && *m.Email != ""
}

func (m *Member) EmailAddress() string {
	if m.Email == nil {
		return ""
	}
	return *m.Email
}

// TempSecretExpired reports whether the temporary secret is past its
// expiry. A member that already set a permanent password never expires.
func (m *Member) TempSecretExpired(now time.Time) bool {
	if m.PasswordHash != nil {
		return false
	}
	if m.TempSecretExpiresAt == nil {
		return true
	}
	return !now.Before(*m.TempSecretExpiresAt)
}

// Channel bookkeeping accessors keep callers from switching on the channel.
func (m *Member) SentAt(ch ChannelName) *time.Time {
	if ch == ChannelEmail {
		return m.EmailSentAt
	}
	return m.SMSSentAt
}

func (m *Member) RetryCount(ch ChannelName) int {
	if ch == ChannelEmail {
		return m.EmailRetryCount
	}
	return m.SMSRetryCount
}

func (m *Member) LastRetryAt(ch ChannelName) *time.Time {
	if ch == ChannelEmail {
		return m.EmailLastRetryAt
	}
	return m.SMSLastRetryAt
}

// MemberFilter drives the admin member list.
type MemberFilter struct {
	Status   string `json:"status,omitempty"`
	Search   string `json:"search,omitempty"`
	LedgerID string `json:"ledger_id,omitempty"`
	Page     int    `json:"page,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	OrderBy  string `json:"order_by,omitempty"`
	OrderDir string `json:"order_dir,omitempty"`
}

// MemberListItem is the masked projection returned by list endpoints.
type MemberListItem struct {
	ID               int64            `json:"id"`
	MemberID         string           `json:"member_id"`
	Name             string           `json:"name"`
	Phone            string           `json:"phone_number"`
	Email            string           `json:"email,omitempty"`
	ActivationStatus ActivationStatus `json:"activation_status"`
	SMSSentAt        *time.Time       `json:"sms_sent_at,omitempty"`
	EmailSentAt      *time.Time       `json:"email_sent_at,omitempty"`
	ImportLedgerID   *string          `json:"import_ledger_id,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

type ChannelRetryStatus struct {
	Channel          ChannelName      `json:"channel"`
	RetryCount       int              `json:"retry_count"`
	LastRetryAt      *time.Time       `json:"last_retry_at,omitempty"`
	SentAt           *time.Time       `json:"sent_at,omitempty"`
	ActivationStatus ActivationStatus `json:"activation_status"`
}

type RetryStatus struct {
	MemberID int64                `json:"member_id"`
	Channels []ChannelRetryStatus `json:"channels"`
}

// IdentitySet is a lookup of identity values already taken in the store.
type IdentitySet struct {
	MemberIDs map[string]*Member
	Phones    map[string]*Member
	Emails    map[string]*Member
}

func NewIdentitySet() IdentitySet {
	return IdentitySet{
		MemberIDs: map[string]*Member{},
		Phones:    map[string]*Member{},
		Emails:    map[string]*Member{},
	}
}

func (s IdentitySet) Add(m *Member) {
	s.MemberIDs[m.MemberID] = m
	s.Phones[m.Phone] = m
	if m.HasEmail() {
		s.Emails[*m.Email] = m
	}
}
