package client

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/layer-3/panadero/core"
)

// State is the client-observed position in the login flow
type State int

const (
	Anonymous State = iota
	PendingTwoFactor
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case PendingTwoFactor:
		return "pending_two_factor"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Session is the login state of one client. The storage is the source of
// truth, so sessions sharing a storage observe each other's transitions.
type Session struct {
	storage Storage
	now     func() time.Time

	// mu serializes transitions made through this session
	mu sync.Mutex

	listenersMu sync.Mutex
	listeners   map[int]func()
	nextID      int

	unsubscribe func()
}

// NewSession restores whatever state storage holds and starts watching it for
// logouts made elsewhere. Close releases the watch.
func NewSession(storage Storage) (*Session, error) {
	s := &Session{
		storage:   storage,
		now:       time.Now,
		listeners: make(map[int]func()),
	}

	unsubscribe, err := storage.Subscribe(s.onStorageChange)
	if err != nil {
		return nil, fmt.Errorf("watching session storage: %w", err)
	}
	s.unsubscribe = unsubscribe
	return s, nil
}

// Close stops watching the storage; the persisted state is kept
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	return nil
}

// State derives the login state from storage
func (s *Session) State() State {
	if s.AccessToken() != "" {
		return Authenticated
	}
	if s.get(KeyRequires2FA) == "true" && s.TempToken() != "" {
		return PendingTwoFactor
	}
	return Anonymous
}

func (s *Session) AccessToken() string  { return s.get(KeyAuthToken) }
func (s *Session) RefreshToken() string { return s.get(KeyRefreshToken) }
func (s *Session) TempToken() string    { return s.get(KeyTempToken) }

// User returns the cached profile of the authenticated user
func (s *Session) User() (core.Profile, bool) {
	raw := s.get(KeyUser)
	if raw == "" {
		return core.Profile{}, false
	}
	var profile core.Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return core.Profile{}, false
	}
	return profile, true
}

// BeginTwoFactor records the temporary token of a login waiting for its code
func (s *Session) BeginTwoFactor(tempToken string) error {
	if tempToken == "" {
		return fmt.Errorf("temporary token is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Delete(KeyAuthToken, KeyRefreshToken, KeyUser); err != nil {
		return err
	}
	if err := s.storage.Set(KeyTempToken, tempToken); err != nil {
		return err
	}
	return s.storage.Set(KeyRequires2FA, "true")
}

// Authenticate stores a completed login and drops any pending challenge
func (s *Session) Authenticate(tokens core.TokenPair, user core.Profile) error {
	if tokens.AccessToken == "" {
		return fmt.Errorf("access token is empty")
	}

	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Set(KeyUser, string(userJSON)); err != nil {
		return err
	}
	if err := s.storage.Set(KeyRefreshToken, tokens.RefreshToken); err != nil {
		return err
	}
	// The access token is written last; its presence is what marks the session authenticated
	if err := s.storage.Set(KeyAuthToken, tokens.AccessToken); err != nil {
		return err
	}
	return s.storage.Delete(KeyRequires2FA, KeyTempToken)
}

// UpdateTokens replaces the tokens after a refresh. A response without a
// refresh token keeps the current one.
func (s *Session) UpdateTokens(tokens core.TokenPair) error {
	if tokens.AccessToken == "" {
		return fmt.Errorf("access token is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tokens.RefreshToken != "" {
		if err := s.storage.Set(KeyRefreshToken, tokens.RefreshToken); err != nil {
			return err
		}
	}
	return s.storage.Set(KeyAuthToken, tokens.AccessToken)
}

// Logout clears the stored state and writes the logout timestamp that other
// sessions on the same storage react to
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Delete(KeyAuthToken, KeyRefreshToken, KeyUser, KeyRequires2FA, KeyTempToken); err != nil {
		return err
	}
	return s.storage.Set(KeyLogout, strconv.FormatInt(s.now().UnixMilli(), 10))
}

// OnLogout registers fn to run whenever a logout is written to the storage,
// by this session or another one. fn must not call back into Session transitions.
func (s *Session) OnLogout(fn func()) (cancel func()) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Session) onStorageChange(key string) {
	if key != KeyLogout {
		return
	}

	s.listenersMu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (s *Session) get(key string) string {
	v, ok, err := s.storage.Get(key)
	if err != nil || !ok {
		return ""
	}
	return v
}
