package ports

import (
	"context"

	"github.com/layer-3/panadero/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishLogout(ctx context.Context, subject string, revoked []core.Revocation) error
}
