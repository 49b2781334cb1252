package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type NATSPublisher struct {
	conn   *nats.Conn
	logger *logrus.Logger
}

func NewNATSPublisher(url string, logger *logrus.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("member-onboarding"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn, logger: logger}, nil
}

func (n *NATSPublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	n.logger.WithFields(logrus.Fields{
		"subject": subject,
		"data":    string(payload),
	}).Debug("Publishing event")

	return n.conn.Publish(subject, payload)
}

func (n *NATSPublisher) Close() error {
	return n.conn.Drain()
}

// Nop discards events when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, interface{}) error { return nil }
func (Nop) Close() error                                       { return nil }

// Event subjects
const (
	LedgerCompleted   = "onboarding.ledger.completed"
	LedgerFailed      = "onboarding.ledger.failed"
	MemberProvisioned = "onboarding.member.provisioned"
	MemberActivated   = "onboarding.member.activated"
	DeliveryFailed    = "onboarding.delivery.failed"
	CredentialResent  = "onboarding.credential.resent"
)

// Event payloads. Plaintext secrets never appear in events.
type LedgerFinishedEvent struct {
	LedgerID    string    `json:"ledger_id"`
	Status      string    `json:"status"`
	TotalRows   int       `json:"total_rows"`
	Successful  int       `json:"successful"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	FinishedAt  time.Time `json:"finished_at"`
	Description string    `json:"description,omitempty"`
}

type MemberProvisionedEvent struct {
	MemberPK int64     `json:"member_pk"`
	MemberID string    `json:"member_id"`
	LedgerID string    `json:"ledger_id,omitempty"`
	At       time.Time `json:"at"`
}

type MemberActivatedEvent struct {
	MemberPK int64     `json:"member_pk"`
	MemberID string    `json:"member_id"`
	At       time.Time `json:"at"`
}

type DeliveryFailedEvent struct {
	MemberPK int64     `json:"member_pk"`
	Channel  string    `json:"channel"`
	Reason   string    `json:"reason"`
	Attempt  int       `json:"attempt"`
	At       time.Time `json:"at"`
}

type CredentialResentEvent struct {
	MemberPK int64     `json:"member_pk"`
	Channel  string    `json:"channel"`
	At       time.Time `json:"at"`
}
