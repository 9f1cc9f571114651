package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string]*Event
}

// NewMemoryStore creates a new in-memory admission store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]*Event)}
}

func (m *MemoryStore) Admit(ctx context.Context, eventID, topic, shopID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[eventID]; ok {
		return true, nil
	}
	m.events[eventID] = &Event{
		EventID:    eventID,
		Topic:      topic,
		ShopID:     shopID,
		ReceivedAt: time.Now().UTC(),
	}
	return false, nil
}

func (m *MemoryStore) MarkProcessed(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[eventID]
	if !ok {
		return ErrNotFound
	}
	if ev.ProcessedAt == nil {
		now := time.Now().UTC()
		ev.ProcessedAt = &now
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, eventID string) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ev
	return &cp, nil
}
