package ports

import (
	"context"
	"time"

	"github.com/layer-3/panadero/core"
)

// Store interface for token invalidation (the revocation set).
// Re-invalidating a token never shortens its entry. ConsumeToken adds the entry
// only if no live one exists and reports whether this call added it.
type Store interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)
	ConsumeToken(ctx context.Context, tokenID string, expiry time.Duration) (bool, error)
}

// CredentialStore persists credential records.
// Lookups return core.ErrNotFound on a miss and CreateCredential returns
// core.ErrEmailTaken when the email is already registered.
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred *core.Credential) error
	GetCredential(ctx context.Context, id string) (*core.Credential, error)
	GetCredentialByEmail(ctx context.Context, email string) (*core.Credential, error)
	UpdateTwoFactor(ctx context.Context, id string, enabled bool, secret string) error
}
