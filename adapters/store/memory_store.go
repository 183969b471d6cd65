package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/panadero/core"
)

// MemoryStore is an in-memory implementation of the revocation and credential stores.
// Credentials are indexed by id and by email.
type MemoryStore struct {
	invalidatedTokens map[string]time.Time
	credentials       map[string]*core.Credential
	byEmail           map[string]string
	mu                sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invalidatedTokens: make(map[string]time.Time),
		credentials:       make(map[string]*core.Credential),
		byEmail:           make(map[string]string),
	}
}

// InvalidateToken marks a token as invalidated
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiryTime := time.Now().Add(expiry)
	// Re-revoking never shortens an existing entry.
	if existing, ok := s.invalidatedTokens[tokenID]; ok && existing.After(expiryTime) {
		return nil
	}
	s.invalidatedTokens[tokenID] = expiryTime

	return nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiryTime, exists := s.invalidatedTokens[tokenID]
	if !exists {
		return false, nil
	}

	// Check if the token invalidation has expired
	if time.Now().After(expiryTime) {
		return false, nil
	}

	return true, nil
}

// ConsumeToken invalidates a token unless a live entry already exists
func (s *MemoryStore) ConsumeToken(ctx context.Context, tokenID string, expiry time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.invalidatedTokens[tokenID]; ok && !now.After(existing) {
		return false, nil
	}
	s.invalidatedTokens[tokenID] = now.Add(expiry)

	return true, nil
}

// PurgeExpired drops invalidation records whose tokens have expired anyway
// and returns how many were removed.
func (s *MemoryStore) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, expiryTime := range s.invalidatedTokens {
		if now.After(expiryTime) {
			delete(s.invalidatedTokens, id)
			removed++
		}
	}
	return removed
}

// StartJanitor purges expired invalidation records every interval until ctx is done
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.PurgeExpired()
			}
		}
	}()
}

// CreateCredential stores a new credential, rejecting duplicate emails
func (s *MemoryStore) CreateCredential(ctx context.Context, cred *core.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[cred.Email]; taken {
		return core.ErrEmailTaken
	}

	stored := *cred
	s.credentials[cred.ID] = &stored
	s.byEmail[cred.Email] = cred.ID
	return nil
}

// GetCredential returns a copy of the credential with the given id
func (s *MemoryStore) GetCredential(ctx context.Context, id string) (*core.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *cred
	return &out, nil
}

// GetCredentialByEmail returns a copy of the credential registered with email
func (s *MemoryStore) GetCredentialByEmail(ctx context.Context, email string) (*core.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *s.credentials[id]
	return &out, nil
}

// UpdateTwoFactor sets the second-factor fields of a credential
func (s *MemoryStore) UpdateTwoFactor(ctx context.Context, id string, enabled bool, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[id]
	if !ok {
		return core.ErrNotFound
	}
	cred.TwoFactorEnabled = enabled
	cred.TwoFactorSecret = secret
	return nil
}
