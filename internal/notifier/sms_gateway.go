package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"member-onboarding/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SMSGateway posts messages to an HTTP SMS gateway.
type SMSGateway struct {
	url            string
	apiKey         string
	sender         string
	defaultTimeout time.Duration
}

type smsRequest struct {
	To        string `json:"to"`
	From      string `json:"from"`
	Message   string `json:"message"`
	Reference string `json:"reference,omitempty"`
}

type smsResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error"`
}

func NewSMSGateway(url, apiKey, sender string) *SMSGateway {
	return &SMSGateway{
		url:            strings.TrimRight(strings.TrimSpace(url), "/"),
		apiKey:         apiKey,
		sender:         sender,
		defaultTimeout: 10 * time.Second,
	}
}

func (g *SMSGateway) Name() models.ChannelName {
	return models.ChannelSMS
}

func (g *SMSGateway) Send(ctx context.Context, msg Message) (string, error) {
	if g.url == "" {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(msg.To) == "" {
		return "", fmt.Errorf("empty recipient phone number")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	timeout := g.defaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return "", context.DeadlineExceeded
		}
	}

	agent := fiber.Post(g.url + "/messages")
	agent.Set(fiber.HeaderAuthorization, "Bearer "+g.apiKey)
	agent.JSON(smsRequest{
		To:        msg.To,
		From:      g.sender,
		Message:   msg.Text,
		Reference: msg.Reference,
	})
	agent.Timeout(timeout)
	if err := agent.Parse(); err != nil {
		return "", fmt.Errorf("failed to build sms request: %w", err)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return "", fmt.Errorf("sms gateway request failed: %w", errs[0])
	}

	var res smsResponse
	_ = json.Unmarshal(body, &res)

	if code < 200 || code >= 300 {
		reason := res.Error
		if reason == "" {
			reason = strings.TrimSpace(string(body))
		}
		return "", fmt.Errorf("sms gateway error: status=%d body=%s", code, reason)
	}
	if res.MessageID == "" {
		return "", fmt.Errorf("sms gateway accepted message without an id")
	}
	return res.MessageID, nil
}
