package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Message is a single outbound email.
type Message struct {
	ToEmail          string
	ToName           string
	Subject          string
	PlainTextContent string
	HTMLContent      string
}

// Sender is the surface the notification dispatcher depends on.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Client sends transactional mail through SendGrid.
type Client struct {
	sg        *sendgrid.Client
	fromEmail string
	fromName  string
}

// NewClient builds the SendGrid mailer from configuration.
func NewClient(ctx context.Context, cfg config.SendgridConfig, logg *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	fromEmail := strings.TrimSpace(cfg.DefaultFrom)
	if fromEmail == "" {
		return nil, errors.New("sendgrid from email is required")
	}

	if logg != nil {
		logg.Info(ctx, "sendgrid client initialized")
	}

	return &Client{
		sg:        sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  cfg.FromName,
	}, nil
}

// Send delivers a single message. SendGrid treats 2xx as accepted.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if c == nil || c.sg == nil {
		return errors.New("mailer not initialized")
	}
	if strings.TrimSpace(msg.ToEmail) == "" {
		return errors.New("recipient email is required")
	}

	from := mail.NewEmail(c.fromName, c.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	plain := msg.PlainTextContent
	if plain == "" {
		plain = msg.Subject
	}
	html := msg.HTMLContent
	if html == "" {
		html = plain
	}
	email := mail.NewSingleEmail(from, msg.Subject, to, plain, html)

	resp, err := c.sg.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d", resp.StatusCode)
	}
	return nil
}
