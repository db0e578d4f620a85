package mail

import (
	"context"
	"errors"
	"strings"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/whistl-app/whistl-backend/pkg/config"
)

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

type Client struct {
	mg   mailgun.Mailgun
	from string
}

var errMailgunNotConfigured = errors.New("mailgun api key and domain are required")

// NewClient creates a Mailgun-backed sender from config.
func NewClient(cfg config.MailgunConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.Domain) == "" {
		return nil, errMailgunNotConfigured
	}
	from := strings.TrimSpace(cfg.DefaultFrom)
	if from == "" {
		from = "no-reply@" + cfg.Domain
	}
	return &Client{
		mg:   mailgun.NewMailgun(cfg.Domain, cfg.APIKey),
		from: from,
	}, nil
}

func (c *Client) Send(ctx context.Context, msg Message) error {
	if c == nil || c.mg == nil {
		return errMailgunNotConfigured
	}
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("recipient address required")
	}
	m := c.mg.NewMessage(c.from, msg.Subject, msg.Body, msg.To)
	_, _, err := c.mg.Send(ctx, m)
	return err
}
