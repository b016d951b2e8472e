// Package email sends alert emails through the SendGrid v3 mail API. With no
// API key configured the client degrades to logging the message body, which
// keeps local development working without a provider account.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"podium-coach/config"

	"github.com/sirupsen/logrus"
)

// Delivery statuses recorded in the email ledger
const (
	StatusSent   = "sent"
	StatusLogged = "logged"
	StatusError  = "error"
)

// SendGrid v3 mail/send wire types
type mailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type personalization struct {
	To []mailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             mailAddress       `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
}

// Client delivers plain-text mail via SendGrid
type Client struct {
	cfg  config.EmailConfig
	http *http.Client
	log  *logrus.Entry
}

// NewClient creates an email client from configuration
func NewClient(cfg config.EmailConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  logrus.WithField("component", "email"),
	}
}

// Send delivers a plain-text message and returns the delivery status. Send
// never returns an error: delivery failures are folded into the status so
// callers can record the attempt either way.
func (c *Client) Send(ctx context.Context, to, subject, body string) string {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		c.log.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Info("no mail API key configured, logging message instead")
		c.log.Info(body)
		return StatusLogged
	}

	wire := mailSendRequest{
		Personalizations: []personalization{{To: []mailAddress{{Email: to}}}},
		From:             mailAddress{Email: c.cfg.FromEmail, Name: c.cfg.FromName},
		Subject:          subject,
		Content:          []mailContent{{Type: "text/plain", Value: body}},
	}

	if err := c.post(ctx, wire); err != nil {
		c.log.WithError(err).WithField("to", to).Error("mail delivery failed")
		return StatusError
	}

	c.log.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("mail sent")
	return StatusSent
}

func (c *Client) post(ctx context.Context, wire mailSendRequest) error {
	payload, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}

	base := strings.TrimRight(c.cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.sendgrid.com"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v3/mail/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("post: mail API returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
