package store

import (
	"context"
	"sync"

	"github.com/teslashibe/voicecore/pkg/backend"
)

// MemoryCredentials keeps credentials in a map.
type MemoryCredentials struct {
	mu   sync.RWMutex
	keys map[backend.ID]string
}

// NewMemoryCredentials creates a store seeded with initial.
func NewMemoryCredentials(initial map[backend.ID]string) *MemoryCredentials {
	keys := make(map[backend.ID]string, len(initial))
	for id, k := range initial {
		keys[id] = k
	}
	return &MemoryCredentials{keys: keys}
}

func (m *MemoryCredentials) Get(_ context.Context, id backend.ID) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keys[id]
	if !ok {
		return "", ErrNotFound
	}
	return k, nil
}

func (m *MemoryCredentials) Save(_ context.Context, id backend.ID, credential string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[id] = credential
	return nil
}

func (m *MemoryCredentials) Delete(_ context.Context, id backend.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, id)
	return nil
}

// MemorySettings keeps preferences in memory.
type MemorySettings struct {
	mu    sync.RWMutex
	prefs Preferences
}

// NewMemorySettings creates settings starting from p.
func NewMemorySettings(p Preferences) *MemorySettings {
	return &MemorySettings{prefs: p}
}

func (m *MemorySettings) Load(context.Context) (Preferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prefs, nil
}

func (m *MemorySettings) Update(_ context.Context, fn func(*Preferences)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.prefs)
	return nil
}

var (
	_ Credentials = (*MemoryCredentials)(nil)
	_ Settings    = (*MemorySettings)(nil)
)
