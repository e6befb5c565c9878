package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aegis-secops/aegis/internal/scoring"
	"go.uber.org/zap"
)

// MetricsRecorder is an optional callback recording alert outcomes per
// channel ("email" or "webhook").
type MetricsRecorder func(channel string, success bool)

// Notifier fans out a threat alert to email recipients and an alert
// webhook. Both channels are best effort and never block a mitigation
// run on failure.
type Notifier struct {
	email       EmailSender
	webhook     *WebhookAlerter
	recipients  []string
	minSeverity scoring.Severity
	onMetrics   MetricsRecorder
	logger      *zap.Logger
}

// NewNotifier creates a Notifier. email and webhook are each optional;
// recipients are the email addresses alerted for every qualifying threat.
func NewNotifier(email EmailSender, webhook *WebhookAlerter, recipients []string, logger *zap.Logger) *Notifier {
	return &Notifier{
		email:       email,
		webhook:     webhook,
		recipients:  recipients,
		minSeverity: scoring.SeverityMedium,
		logger:      logger,
	}
}

// SetMinSeverity sets the tier below which alerts are suppressed.
func (n *Notifier) SetMinSeverity(s scoring.Severity) {
	if s.Valid() {
		n.minSeverity = s
	}
}

// SetMetricsRecorder configures the metrics callback.
func (n *Notifier) SetMetricsRecorder(fn MetricsRecorder) {
	n.onMetrics = fn
}

// Alert dispatches the threat alert over every configured channel.
// urgency is the severity tier of the originating threat; alerts below
// the configured minimum are suppressed. groups names the audience
// (e.g. security-team, management) and is carried in the message body.
func (n *Notifier) Alert(ctx context.Context, threatName string, riskScore float64, urgency string, groups []string) {
	if scoring.Severity(urgency).Rank() < n.minSeverity.Rank() {
		n.logger.Debug("alert suppressed below minimum severity",
			zap.String("threat", threatName),
			zap.String("urgency", urgency),
		)
		return
	}

	n.SendEmailAlert(ctx, threatName, riskScore, urgency, groups)
	n.SendWebhookAlert(ctx, threatName, riskScore, urgency)
}

// SendEmailAlert emails every configured recipient. It reports whether
// all deliveries succeeded.
func (n *Notifier) SendEmailAlert(ctx context.Context, threatName string, riskScore float64, urgency string, groups []string) bool {
	if n.email == nil || len(n.recipients) == 0 {
		return false
	}

	msg := Message{
		Subject: fmt.Sprintf("[%s] Threat detected: %s", strings.ToUpper(urgency), threatName),
		Body: fmt.Sprintf(
			"Threat: %s\nRisk Score: %.2f\nUrgency: %s\nAudience: %s\nDetected At: %s\n",
			threatName, riskScore, urgency,
			strings.Join(groups, ", "),
			time.Now().UTC().Format(time.RFC3339),
		),
		Urgency: urgency,
	}

	ok := true
	for _, to := range n.recipients {
		if err := n.email.Send(ctx, to, msg); err != nil {
			n.logger.Warn("alert email failed",
				zap.String("to", to),
				zap.String("threat", threatName),
				zap.Error(err),
			)
			ok = false
		}
	}
	if n.onMetrics != nil {
		n.onMetrics("email", ok)
	}
	return ok
}

// SendWebhookAlert posts the alert to the configured webhook. It reports
// whether delivery succeeded.
func (n *Notifier) SendWebhookAlert(ctx context.Context, threatName string, riskScore float64, urgency string) bool {
	if n.webhook == nil {
		return false
	}

	ok := n.webhook.Deliver(ctx, AlertEvent{
		Threat:    threatName,
		RiskScore: riskScore,
		Urgency:   urgency,
		Timestamp: time.Now().UTC(),
	})
	if n.onMetrics != nil {
		n.onMetrics("webhook", ok)
	}
	return ok
}
