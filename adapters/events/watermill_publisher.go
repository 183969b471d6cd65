package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/panadero/core"
)

// LogoutTopic is where logout events are published
const LogoutTopic = "panadero.logout"

// originKey is the message metadata key naming the publishing instance
const originKey = "origin"

// RevokedKey is one revocation carried by a logout event
type RevokedKey struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LogoutEvent represents a logout event
type LogoutEvent struct {
	Subject string       `json:"subject"`
	Revoked []RevokedKey `json:"revoked"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
	origin    string
}

// NewWatermillPublisher creates a new Watermill publisher; origin identifies this instance
func NewWatermillPublisher(publisher message.Publisher, origin string) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     LogoutTopic,
		origin:    origin,
	}
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, subject string, revoked []core.Revocation) error {
	event := LogoutEvent{Subject: subject}
	for _, r := range revoked {
		event.Revoked = append(event.Revoked, RevokedKey{Key: r.Key, ExpiresAt: r.ExpiresAt})
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(originKey, p.origin)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
