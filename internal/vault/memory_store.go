package vault

import (
	"context"
	"sync"
	"time"
)

type identityKey struct {
	kind Kind
	hash string
}

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu         sync.Mutex
	identities map[identityKey]*Identity
}

// NewMemoryStore creates a new in-memory identity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{identities: make(map[identityKey]*Identity)}
}

func (m *MemoryStore) Bump(ctx context.Context, kind Kind, hash string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := identityKey{kind: kind, hash: hash}
	id, ok := m.identities[key]
	if !ok {
		m.identities[key] = &Identity{
			Kind:      kind,
			Hash:      hash,
			SeenCount: 1,
			LastSeen:  time.Now().UTC(),
		}
		return 0, nil
	}

	prior := id.SeenCount
	id.SeenCount++
	id.LastSeen = time.Now().UTC()
	return prior, nil
}

func (m *MemoryStore) Get(ctx context.Context, kind Kind, hash string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.identities[identityKey{kind: kind, hash: hash}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *id
	return &cp, nil
}
