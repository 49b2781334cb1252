package models

import (
	"fmt"
	"time"
)

type ChannelName string

const (
	ChannelSMS   ChannelName = "sms"
	ChannelEmail ChannelName = "email"
)

func ParseChannel(s string) (ChannelName, error) {
	switch ChannelName(s) {
	case ChannelSMS, ChannelEmail:
		return ChannelName(s), nil
	}
	return "", fmt.Errorf("%w: unknown channel %q", ErrIneligible, s)
}

// ChannelOutcome is the result of one send on one channel.
type ChannelOutcome struct {
	Channel     ChannelName `json:"channel"`
	OK          bool        `json:"ok"`
	ProviderRef string      `json:"provider_ref,omitempty"`
	Error       string      `json:"error,omitempty"`
	At          time.Time   `json:"at"`
}

// DeliveryReport holds the outcome of each channel attempted for a member.
// Email is nil when the backup channel was not attempted.
type DeliveryReport struct {
	SMS   *ChannelOutcome `json:"sms,omitempty"`
	Email *ChannelOutcome `json:"email,omitempty"`
}

func (r DeliveryReport) Outcomes() []*ChannelOutcome {
	var out []*ChannelOutcome
	if r.SMS != nil {
		out = append(out, r.SMS)
	}
	if r.Email != nil {
		out = append(out, r.Email)
	}
	return out
}

// ChannelCounts are per-channel deltas folded into a ledger.
type ChannelCounts struct {
	SMSSent     int `db:"sms_sent" json:"sms_sent"`
	SMSFailed   int `db:"sms_failed" json:"sms_failed"`
	EmailSent   int `db:"email_sent" json:"email_sent"`
	EmailFailed int `db:"email_failed" json:"email_failed"`
}

func (c *ChannelCounts) Record(o *ChannelOutcome) {
	if o == nil {
		return
	}
	switch {
	case o.Channel == ChannelSMS && o.OK:
		c.SMSSent++
	case o.Channel == ChannelSMS:
		c.SMSFailed++
	case o.Channel == ChannelEmail && o.OK:
		c.EmailSent++
	default:
		c.EmailFailed++
	}
}

func (c *ChannelCounts) Add(other ChannelCounts) {
	c.SMSSent += other.SMSSent
	c.SMSFailed += other.SMSFailed
	c.EmailSent += other.EmailSent
	c.EmailFailed += other.EmailFailed
}

func (c ChannelCounts) IsZero() bool {
	return c == ChannelCounts{}
}

// RetryOutcome is the per-member result of a retry or resend.
type RetryOutcome struct {
	MemberID   int64            `json:"member_id"`
	Channel    ChannelName      `json:"channel"`
	Status     string           `json:"status"` // succeeded, failed, skipped
	Attempt    int              `json:"attempt,omitempty"`
	Delivery   *ChannelOutcome  `json:"delivery,omitempty"`
	Activation ActivationStatus `json:"activation_status,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

const (
	RetrySucceeded = "succeeded"
	RetryFailed    = "failed"
	RetrySkipped   = "skipped"
)

// BulkOutcome aggregates per-member outcomes of a bulk retry or resend.
type BulkOutcome struct {
	Channel   ChannelName    `json:"channel"`
	Attempted int            `json:"attempted"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Skipped   int            `json:"skipped"`
	Results   []RetryOutcome `json:"results"`
}

func (b *BulkOutcome) Add(o RetryOutcome) {
	b.Results = append(b.Results, o)
	switch o.Status {
	case RetrySucceeded:
		b.Attempted++
		b.Succeeded++
	case RetryFailed:
		b.Attempted++
		b.Failed++
	default:
		b.Skipped++
	}
}
