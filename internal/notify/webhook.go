package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// AlertEvent is the JSON payload posted to the alert webhook.
type AlertEvent struct {
	Threat    string    `json:"threat"`
	RiskScore float64   `json:"risk_score"`
	Urgency   string    `json:"urgency"`
	Timestamp time.Time `json:"timestamp"`
}

// WebhookAlerter posts HMAC-signed alert events to a single webhook URL,
// retrying with backoff on failure.
type WebhookAlerter struct {
	url        string
	secret     string
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
	logger     *zap.Logger
}

// NewWebhookAlerter creates a WebhookAlerter. secret may be empty, in
// which case deliveries are unsigned.
func NewWebhookAlerter(url, secret string, logger *zap.Logger) *WebhookAlerter {
	return &WebhookAlerter{
		url:        url,
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		attempts:   3,
		backoff:    time.Second,
		logger:     logger,
	}
}

// SetRetry overrides the delivery retry policy.
func (w *WebhookAlerter) SetRetry(attempts int, backoff time.Duration) {
	if attempts > 0 {
		w.attempts = attempts
	}
	w.backoff = backoff
}

// Deliver posts event to the webhook, retrying with exponential backoff.
// It reports whether any attempt succeeded.
func (w *WebhookAlerter) Deliver(ctx context.Context, event AlertEvent) bool {
	body, err := json.Marshal(event)
	if err != nil {
		w.logger.Error("alert webhook: marshal event", zap.Error(err))
		return false
	}

	delay := w.backoff
	for attempt := 1; attempt <= w.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return false
			}
			delay *= 2
		}

		if err := w.post(ctx, body); err == nil {
			return true
		} else {
			w.logger.Warn("alert webhook: delivery failed",
				zap.String("url", w.url),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
	}
	return false
}

// post performs a single signed HTTP POST delivery.
func (w *WebhookAlerter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		req.Header.Set("X-Aegis-Signature", signPayload(body, w.secret))
	}

	resp, err := w.httpClient.Do(req)
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

// signPayload computes an HMAC-SHA256 signature.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
