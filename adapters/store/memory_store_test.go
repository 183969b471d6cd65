package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/panadero/core"
)

func TestMemoryStoreInvalidateToken(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	revoked, err := s.IsTokenInvalidated(ctx, "jti:1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.InvalidateToken(ctx, "jti:1", time.Hour))
	revoked, err = s.IsTokenInvalidated(ctx, "jti:1")
	require.NoError(t, err)
	assert.True(t, revoked)

	// Revoking again with a shorter TTL keeps the longer one
	require.NoError(t, s.InvalidateToken(ctx, "jti:1", -time.Second))
	revoked, err = s.IsTokenInvalidated(ctx, "jti:1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestMemoryStoreConsumeToken(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	won, err := s.ConsumeToken(ctx, "jti:1", time.Hour)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.ConsumeToken(ctx, "jti:1", time.Hour)
	require.NoError(t, err)
	assert.False(t, won)

	revoked, err := s.IsTokenInvalidated(ctx, "jti:1")
	require.NoError(t, err)
	assert.True(t, revoked)

	// An expired entry can be consumed again
	require.NoError(t, s.InvalidateToken(ctx, "jti:2", -time.Second))
	won, err = s.ConsumeToken(ctx, "jti:2", time.Hour)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestMemoryStoreConsumeTokenConcurrently(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.ConsumeToken(ctx, "jti:1", time.Hour)
			assert.NoError(t, err)
			if won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
}

func TestMemoryStorePurgeExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.InvalidateToken(ctx, "expired", -time.Minute))
	require.NoError(t, s.InvalidateToken(ctx, "live", time.Hour))

	revoked, err := s.IsTokenInvalidated(ctx, "expired")
	require.NoError(t, err)
	assert.False(t, revoked)

	assert.Equal(t, 1, s.PurgeExpired())
	assert.Equal(t, 0, s.PurgeExpired())

	revoked, err = s.IsTokenInvalidated(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestMemoryStoreCredentials(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	cred := &core.Credential{ID: "u1", Name: "Ana", Email: "ana@x.com", PasswordHash: "hash"}
	require.NoError(t, s.CreateCredential(ctx, cred))
	require.ErrorIs(t, s.CreateCredential(ctx, &core.Credential{ID: "u2", Email: "ana@x.com"}), core.ErrEmailTaken)

	// Emails are compared exactly as stored
	require.NoError(t, s.CreateCredential(ctx, &core.Credential{ID: "u3", Email: "Ana@x.com"}))

	got, err := s.GetCredentialByEmail(ctx, "ana@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	// Returned values are copies
	got.Name = "changed"
	again, err := s.GetCredential(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", again.Name)

	_, err = s.GetCredential(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetCredentialByEmail(ctx, "nobody@x.com")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestMemoryStoreUpdateTwoFactor(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateCredential(ctx, &core.Credential{ID: "u1", Email: "ana@x.com"}))
	require.NoError(t, s.UpdateTwoFactor(ctx, "u1", true, "SECRET"))

	got, err := s.GetCredential(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.TwoFactorEnabled)
	assert.Equal(t, "SECRET", got.TwoFactorSecret)

	require.ErrorIs(t, s.UpdateTwoFactor(ctx, "missing", true, "x"), core.ErrNotFound)
}
