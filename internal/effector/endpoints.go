// Package effector executes planned mitigation actions against external
// security systems. Every external system is an optional webhook target:
// when one is not configured the corresponding action takes the
// "simulated" path, which is a designed outcome for demo and offline
// operation, not a failure.
package effector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aegis-secops/aegis/internal/defense"
	"go.uber.org/zap"
)

// Endpoints holds the optional webhook URLs of the external effector
// systems. An empty URL means the system is unconfigured.
type Endpoints struct {
	// Firewall receives block and rule-change requests.
	Firewall string

	// WAF receives web application firewall rule updates.
	WAF string

	// SecurityGateway receives DDoS protection activation requests.
	SecurityGateway string

	// EmailSecurity receives sender/domain blocking requests.
	EmailSecurity string
}

// webhookClient posts JSON payloads to effector webhooks with a bounded
// retry. It is shared by all handlers of one Executor.
type webhookClient struct {
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
	logger     *zap.Logger
}

func newWebhookClient(timeout time.Duration, attempts int, backoff time.Duration, logger *zap.Logger) *webhookClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &webhookClient{
		httpClient: &http.Client{Timeout: timeout},
		attempts:   attempts,
		backoff:    backoff,
		logger:     logger,
	}
}

// post delivers payload to url, retrying with exponential backoff.
func (c *webhookClient) post(ctx context.Context, url string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	delay := c.backoff
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}

		lastErr = c.doPost(ctx, url, body)
		if lastErr == nil {
			return nil
		}
		c.logger.Warn("effector webhook failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
	}
	return lastErr
}

func (c *webhookClient) doPost(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// FirewallWebhook adapts the firewall webhook endpoint to the
// defense.FirewallCaller interface consumed by the Guard.
type FirewallWebhook struct {
	url    string
	client *webhookClient
}

// NewFirewallWebhook creates a FirewallCaller posting to url.
func NewFirewallWebhook(url string, timeout time.Duration, logger *zap.Logger) *FirewallWebhook {
	return &FirewallWebhook{
		url:    url,
		client: newWebhookClient(timeout, 0, 0, logger),
	}
}

// BlockIP implements defense.FirewallCaller.
func (f *FirewallWebhook) BlockIP(ctx context.Context, ip string) error {
	return f.client.post(ctx, f.url, map[string]any{
		"action":    "block",
		"ip":        ip,
		"reason":    "Automated threat mitigation",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ApplyRule implements defense.FirewallCaller.
func (f *FirewallWebhook) ApplyRule(ctx context.Context, rule defense.Rule) error {
	return f.client.post(ctx, f.url, map[string]any{
		"action":    "apply_rule",
		"rule":      rule,
		"reason":    "Automated threat mitigation",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
