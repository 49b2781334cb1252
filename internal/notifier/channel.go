package notifier

import (
	"context"
	"errors"

	"member-onboarding/internal/models"
)

// ErrNotConfigured is returned by a channel whose provider settings are missing.
var ErrNotConfigured = errors.New("notifier not configured")

// Message is a rendered notification ready for a provider.
type Message struct {
	To        string
	Name      string
	Subject   string
	Text      string
	HTML      string
	Reference string
}

// Channel delivers a message through one provider and returns the
// provider's reference for the accepted message.
type Channel interface {
	Name() models.ChannelName
	Send(ctx context.Context, msg Message) (string, error)
}
