package notifier

import (
	"context"
	"fmt"
	"time"

	"member-onboarding/internal/models"

	"github.com/sirupsen/logrus"
)

// DevNotifier logs messages instead of sending them. It stands in for a
// channel whose provider is not configured in development.
type DevNotifier struct {
	channel models.ChannelName
	logger  *logrus.Logger
}

func NewDevNotifier(channel models.ChannelName, logger *logrus.Logger) *DevNotifier {
	return &DevNotifier{channel: channel, logger: logger}
}

func (d *DevNotifier) Name() models.ChannelName {
	return d.channel
}

func (d *DevNotifier) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := fmt.Sprintf("dev-%s-%d", d.channel, time.Now().UnixNano())
	d.logger.WithFields(logrus.Fields{
		"channel":   d.channel,
		"to":        msg.To,
		"subject":   msg.Subject,
		"reference": msg.Reference,
		"body":      msg.Text,
	}).Info("[DEV NOTIFY] message not sent to a provider")
	return ref, nil
}
