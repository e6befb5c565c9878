package notify

import (
	"context"

	"go.uber.org/zap"
)

// NoopSender logs alert messages to zap instead of delivering them.
// Use in development or when SMTP is not configured.
type NoopSender struct {
	logger *zap.Logger
}

// NewNoopSender creates a NoopSender backed by the given logger.
func NewNoopSender(logger *zap.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

// Send logs the message and returns nil.
func (n *NoopSender) Send(_ context.Context, to string, msg Message) error {
	n.logger.Info("alert email (noop — not sent)",
		zap.String("to", to),
		zap.String("subject", msg.Subject),
		zap.String("urgency", msg.Urgency),
		zap.String("body", msg.Body),
	)
	return nil
}
