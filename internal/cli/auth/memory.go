package auth

import "sync"

// MemoryStore keeps credentials in process memory. Used by tests and by
// callers embedding several session stores in one process.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

// NewMemoryStore returns an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string)}
}

func (m *MemoryStore) SaveToken(scope, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[getKeyringKey(scope)] = token
	return nil
}

func (m *MemoryStore) LoadToken(scope string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[getKeyringKey(scope)]
	if !ok {
		return "", ErrNotFound
	}
	return token, nil
}

func (m *MemoryStore) DeleteToken(scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, getKeyringKey(scope))
	return nil
}
