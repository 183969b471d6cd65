package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// LogoutHandler applies a logout event received from another instance
type LogoutHandler func(ctx context.Context, event LogoutEvent) error

// Listener consumes logout events published by other instances
type Listener struct {
	subscriber message.Subscriber
	topic      string
	origin     string
	logger     *zap.Logger
}

// NewListener creates a listener that skips events published under origin
func NewListener(subscriber message.Subscriber, origin string, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		subscriber: subscriber,
		topic:      LogoutTopic,
		origin:     origin,
		logger:     logger,
	}
}

// Run blocks, dispatching events to handle until ctx is cancelled
func (l *Listener) Run(ctx context.Context, handle LogoutHandler) error {
	messages, err := l.subscriber.Subscribe(ctx, l.topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", l.topic, err)
	}

	for msg := range messages {
		if msg.Metadata.Get(originKey) == l.origin {
			msg.Ack()
			continue
		}

		var event LogoutEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			// A malformed payload will never decode, do not redeliver it
			l.logger.Warn("dropping malformed logout event", zap.String("message_id", msg.UUID), zap.Error(err))
			msg.Ack()
			continue
		}

		if err := handle(ctx, event); err != nil {
			l.logger.Error("failed to apply logout event", zap.String("message_id", msg.UUID), zap.Error(err))
			msg.Nack()
			continue
		}
		msg.Ack()
	}

	return nil
}
