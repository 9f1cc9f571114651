package risk

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Kenny3D1/fraudpop/internal/idgen"
	"github.com/Kenny3D1/fraudpop/internal/pagination"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	risks    map[string]*OrderRisk       // shopID|orderID → risk
	evidence map[string][]*EvidenceEntry // shopID|orderID → entries, oldest first
	captures map[string][]*DeviceCapture // shopID|orderID → captures, oldest first
}

// NewMemoryStore creates an in-memory risk store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		risks:    make(map[string]*OrderRisk),
		evidence: make(map[string][]*EvidenceEntry),
		captures: make(map[string][]*DeviceCapture),
	}
}

func key(shopID, orderID string) string { return shopID + "|" + orderID }

func (s *MemoryStore) Upsert(ctx context.Context, r *OrderRisk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cp := *r
	cp.Reasons = append([]string(nil), r.Reasons...)
	cp.UpdatedAt = now

	if prev, ok := s.risks[key(r.ShopID, r.OrderID)]; ok {
		cp.ID = prev.ID
		cp.CreatedAt = prev.CreatedAt
	} else {
		if cp.ID == "" {
			cp.ID = idgen.New()
		}
		cp.CreatedAt = now
	}
	if cp.Writeback == "" {
		cp.Writeback = WritebackPending
	}
	s.risks[key(r.ShopID, r.OrderID)] = &cp
	return nil
}

func (s *MemoryStore) SetWriteback(ctx context.Context, shopID, orderID string, status WritebackStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.risks[key(shopID, orderID)]
	if !ok {
		return ErrNotFound
	}
	r.Writeback = status
	r.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, shopID, orderID string) (*OrderRisk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.risks[key(shopID, orderID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	cp.Reasons = append([]string(nil), r.Reasons...)
	return &cp, nil
}

func (s *MemoryStore) ListByShop(ctx context.Context, shopID string, limit int, cursor *pagination.Cursor) ([]*OrderRisk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*OrderRisk
	for _, r := range s.risks {
		if r.ShopID != shopID || !cursor.Before(r.UpdatedAt, r.ID) {
			continue
		}
		cp := *r
		cp.Reasons = append([]string(nil), r.Reasons...)
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) AppendEvidence(ctx context.Context, e *EvidenceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	if cp.ID == "" {
		cp.ID = idgen.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	k := key(e.ShopID, e.OrderID)
	s.evidence[k] = append(s.evidence[k], &cp)
	return nil
}

func (s *MemoryStore) ListEvidence(ctx context.Context, shopID, orderID string) ([]*EvidenceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.evidence[key(shopID, orderID)]
	result := make([]*EvidenceEntry, len(entries))
	for i, e := range entries {
		cp := *e
		result[i] = &cp
	}
	return result, nil
}

func (s *MemoryStore) RecordCapture(ctx context.Context, c *DeviceCapture) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	if cp.ID == "" {
		cp.ID = idgen.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	k := key(c.ShopID, c.OrderID)
	s.captures[k] = append(s.captures[k], &cp)
	return nil
}

func (s *MemoryStore) LatestCapture(ctx context.Context, shopID, orderID string) (*DeviceCapture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	captures := s.captures[key(shopID, orderID)]
	if len(captures) == 0 {
		return nil, ErrNotFound
	}
	cp := *captures[len(captures)-1]
	return &cp, nil
}
