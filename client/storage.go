package client

import (
	"sync"
)

// Persistence keys shared by every session using the same storage
const (
	KeyAuthToken    = "authToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
	KeyRequires2FA  = "requires2FA"
	KeyTempToken    = "tempToken"
	KeyLogout       = "logout"
)

// Storage is a string key/value store shared between sessions.
// Subscribers are told which key changed, including changes made by other writers.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(keys ...string) error
	Subscribe(fn func(key string)) (cancel func(), err error)
}

// MemoryStorage is an in-process Storage; sessions built on the same
// instance behave like browser tabs sharing local storage.
type MemoryStorage struct {
	mu          sync.RWMutex
	values      map[string]string
	subscribers map[int]func(string)
	nextID      int
}

// NewMemoryStorage creates an empty storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		values:      make(map[string]string),
		subscribers: make(map[int]func(string)),
	}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()

	m.notify(key)
	return nil
}

func (m *MemoryStorage) Delete(keys ...string) error {
	m.mu.Lock()
	var removed []string
	for _, key := range keys {
		if _, ok := m.values[key]; ok {
			delete(m.values, key)
			removed = append(removed, key)
		}
	}
	m.mu.Unlock()

	for _, key := range removed {
		m.notify(key)
	}
	return nil
}

func (m *MemoryStorage) Subscribe(fn func(key string)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subscribers[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}, nil
}

// notify runs outside the lock so subscribers may read or write the storage
func (m *MemoryStorage) notify(key string) {
	m.mu.RLock()
	fns := make([]func(string), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(key)
	}
}
