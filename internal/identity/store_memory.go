package identity

import (
	"context"
	"sync"
	"time"

	id "tessera/pkg/domain"
	"tessera/pkg/platform/sentinel"
)

// InMemoryStore keeps mappings in a map guarded by a mutex. Create-if-absent
// is atomic under the write lock.
type InMemoryStore struct {
	mu       sync.RWMutex
	mappings map[id.UserID]*Mapping
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{mappings: make(map[id.UserID]*Mapping)}
}

func (s *InMemoryStore) Find(_ context.Context, userID id.UserID) (*Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if mapping, ok := s.mappings[userID]; ok {
		clone := *mapping
		return &clone, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Create(_ context.Context, mapping *Mapping) (*Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.mappings[mapping.UserID]; ok {
		clone := *existing
		return &clone, nil
	}
	clone := *mapping
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	s.mappings[mapping.UserID] = &clone
	out := clone
	return &out, nil
}
