// Package ingest feeds the mitigation engine from external threat
// sources. The Kafka consumer lets scored threats flow in from an OSINT
// collection pipeline without touching the HTTP API.
package ingest

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aegis-secops/aegis/internal/engine"
	"github.com/aegis-secops/aegis/internal/plan"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Config holds Kafka consumer settings.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer reads threat messages from a Kafka topic and submits each to
// the engine. Malformed messages are logged and skipped; a mitigation
// failure never stops consumption.
type Consumer struct {
	reader *kafka.Reader
	engine *engine.Engine
	logger *zap.Logger
}

// NewConsumer creates a Consumer.
func NewConsumer(cfg Config, eng *engine.Engine, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
			GroupID: cfg.GroupID,
		}),
		engine: eng,
		logger: logger,
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("kafka threat consumer started")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var t plan.Threat
		if err := json.Unmarshal(msg.Value, &t); err != nil {
			c.logger.Warn("discarding malformed threat message",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			continue
		}

		if _, err := c.engine.Mitigate(ctx, t); err != nil {
			c.logger.Warn("ingested threat rejected",
				zap.String("threat_type", t.Type),
				zap.Error(err),
			)
		}
	}
}

// Close releases the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
