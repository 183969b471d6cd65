package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/panadero/core"
)

func newSession(t *testing.T, storage Storage) *Session {
	t.Helper()
	s, err := NewSession(storage)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionTransitions(t *testing.T) {
	s := newSession(t, NewMemoryStorage())
	assert.Equal(t, Anonymous, s.State())

	require.NoError(t, s.BeginTwoFactor("temp"))
	assert.Equal(t, PendingTwoFactor, s.State())
	assert.Equal(t, "temp", s.TempToken())

	user := core.Profile{ID: "u1", Name: "Ana", Email: "ana@x.com"}
	require.NoError(t, s.Authenticate(core.TokenPair{AccessToken: "a1", RefreshToken: "r1"}, user))
	assert.Equal(t, Authenticated, s.State())
	assert.Empty(t, s.TempToken())

	got, ok := s.User()
	require.True(t, ok)
	assert.Equal(t, user, got)

	require.NoError(t, s.UpdateTokens(core.TokenPair{AccessToken: "a2"}))
	assert.Equal(t, "a2", s.AccessToken())
	assert.Equal(t, "r1", s.RefreshToken())

	require.NoError(t, s.Logout())
	assert.Equal(t, Anonymous, s.State())
	_, ok = s.User()
	assert.False(t, ok)
}

func TestSessionRestoresFromStorage(t *testing.T) {
	storage := NewMemoryStorage()
	first := newSession(t, storage)
	require.NoError(t, first.Authenticate(core.TokenPair{AccessToken: "a1", RefreshToken: "r1"}, core.Profile{ID: "u1"}))
	require.NoError(t, first.Close())

	second := newSession(t, storage)
	assert.Equal(t, Authenticated, second.State())
	assert.Equal(t, "r1", second.RefreshToken())
}

func TestSessionRejectsEmptyTokens(t *testing.T) {
	s := newSession(t, NewMemoryStorage())
	require.Error(t, s.BeginTwoFactor(""))
	require.Error(t, s.Authenticate(core.TokenPair{}, core.Profile{}))
	require.Error(t, s.UpdateTokens(core.TokenPair{}))
}

func TestLogoutReachesSessionsOnSharedFiles(t *testing.T) {
	dir := t.TempDir()

	storeA, err := NewFileStorage(dir)
	require.NoError(t, err)
	storeB, err := NewFileStorage(dir)
	require.NoError(t, err)
	t.Cleanup(func() {
		storeA.Close()
		storeB.Close()
	})

	a := newSession(t, storeA)
	b := newSession(t, storeB)

	require.NoError(t, a.Authenticate(core.TokenPair{AccessToken: "a1", RefreshToken: "r1"}, core.Profile{ID: "u1"}))
	assert.Equal(t, Authenticated, b.State())

	notified := make(chan struct{}, 4)
	b.OnLogout(func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})

	require.NoError(t, a.Logout())

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("logout was not observed through the shared directory")
	}
	assert.Equal(t, Anonymous, b.State())
}

func TestMemoryStorageSubscribers(t *testing.T) {
	m := NewMemoryStorage()

	var seen []string
	cancel, err := m.Subscribe(func(key string) { seen = append(seen, key) })
	require.NoError(t, err)

	require.NoError(t, m.Set("a", "1"))
	require.NoError(t, m.Delete("a", "missing"))
	cancel()
	require.NoError(t, m.Set("b", "2"))

	assert.Equal(t, []string{"a", "a"}, seen)
}

func TestFileStorageRoundTrip(t *testing.T) {
	f, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	_, ok, err := f.Get(KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.Set(KeyAuthToken, "token"))
	v, ok, err := f.Get(KeyAuthToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "token", v)

	require.NoError(t, f.Delete(KeyAuthToken, KeyTempToken))
	_, ok, err = f.Get(KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, ok)
}
