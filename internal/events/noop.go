package events

import (
	"context"

	"go.uber.org/zap"
)

// NoopPublisher logs events to zap instead of delivering them.
// Use in development or when no Kafka brokers are configured.
type NoopPublisher struct {
	logger *zap.Logger
}

// NewNoopPublisher creates a NoopPublisher backed by the given logger.
func NewNoopPublisher(logger *zap.Logger) *NoopPublisher {
	return &NoopPublisher{logger: logger}
}

// Publish logs the event and returns nil.
func (n *NoopPublisher) Publish(_ context.Context, event Event) error {
	n.logger.Info("event not published (noop)",
		zap.String("type", event.Type),
		zap.Any("payload", event.Payload),
	)
	return nil
}

var _ Publisher = (*NoopPublisher)(nil)
