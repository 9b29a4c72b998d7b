// Package slack posts role-change notifications to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	"github.com/target/cqrs-monitor/internal/ports"
)

var _ ports.RoleChangeNotifier = (*Client)(nil)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client delivers role-change notifications to a Slack webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	retryLimit int
	client     *http.Client
}

// NewClient builds a Slack webhook client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		webhookURL: webhookURL,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   fallbackString(strings.TrimSpace(cfg.Username), "cqrs-monitor"),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     hc,
	}, nil
}

// NotifyRoleChange posts a formatted message to Slack.
func (c *Client) NotifyRoleChange(ctx context.Context, change domainauth.RoleChange) error {
	body, err := json.Marshal(c.formatMessage(change))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		err = c.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < attempts-1 {
			// Linear backoff between attempts.
			timer := time.NewTimer(time.Duration(attempt+1) * 200 * time.Millisecond)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return lastErr
}

func (c *Client) formatMessage(change domainauth.RoleChange) map[string]any {
	at := change.At
	if at.IsZero() {
		at = time.Now()
	}

	text := strings.Builder{}
	if change.Kind == domainauth.ChangeBootstrap {
		text.WriteString("*Initial admin claimed*\n")
	} else {
		text.WriteString("*Role changed*\n")
	}
	appendSlackField(&text, "Account", accountLabel(change.TargetEmail, change.TargetUID))
	appendSlackField(&text, "Previous role", string(change.PreviousRole))
	appendSlackField(&text, "New role", string(change.NewRole))
	if change.Kind != domainauth.ChangeBootstrap {
		appendSlackField(&text, "Changed by", accountLabel(change.ActorEmail, change.ActorUID))
	}
	text.WriteString("• Timestamp: ")
	text.WriteString(at.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func accountLabel(email, uid string) string {
	email = escapeSlackText(strings.TrimSpace(email))
	uid = escapeSlackText(strings.TrimSpace(uid))
	switch {
	case email != "" && uid != "":
		return fmt.Sprintf("%s (%s)", email, uid)
	case email != "":
		return email
	default:
		return uid
	}
}

func fallbackString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return fmt.Errorf("read slack error response: %w", readErr)
		}
		return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain slack response body: %w", err)
	}
	return nil
}

func escapeSlackText(value string) string {
	if value == "" {
		return ""
	}
	return strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	).Replace(value)
}

func appendSlackField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• ")
	text.WriteString(label)
	text.WriteString(": ")
	text.WriteString(value)
	text.WriteByte('\n')
}
