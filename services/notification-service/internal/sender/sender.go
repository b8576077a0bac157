// Package sender delivers WhatsApp messages through a configured provider.
package sender

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Message is one outgoing WhatsApp text. Link is the wa.me link carrying the
// same text, for providers that hand delivery to a person.
type Message struct {
	To   string `json:"to"`
	Body string `json:"body"`
	Link string `json:"link"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
	ProviderID() string
}

// ErrPermanent marks a rejection that retrying will not fix, such as a bad
// number or a revoked token.
var ErrPermanent = errors.New("permanent send failure")

// Config selects and configures a provider. Mode is "webhook" or "noop".
type Config struct {
	Mode         string
	WebhookURL   string
	WebhookToken string
	Timeout      time.Duration
}

// New builds the provider named by cfg.Mode. An unknown mode is an error so a
// typo does not silently drop every message.
func New(cfg Config) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", "noop":
		return NoopSender{}, nil
	case "webhook":
		if strings.TrimSpace(cfg.WebhookURL) == "" {
			return nil, errors.New("webhook mode needs WHATSAPP_WEBHOOK_URL")
		}
		return NewWebhookSender(cfg.WebhookURL, cfg.WebhookToken, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown whatsapp mode %q", cfg.Mode)
	}
}

// WebhookSender posts each message as JSON to a relay that talks to the
// WhatsApp provider.
type WebhookSender struct {
	url    string
	token  string
	client *http.Client
}

func NewWebhookSender(url, token string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSender{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *WebhookSender) ProviderID() string { return "whatsapp-webhook" }

func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("whatsapp webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	if resp.StatusCode/100 == 4 && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusRequestTimeout {
		return errors.Join(ErrPermanent, err)
	}
	return err
}

// NoopSender accepts every message. Links still get stored, so the studio can
// send them by hand.
type NoopSender struct{}

func (NoopSender) ProviderID() string { return "whatsapp-noop" }

func (NoopSender) Send(context.Context, Message) error { return nil }
