package memory

import (
	"context"
	"sort"
	"sync"

	audit "tessera/pkg/platform/audit"
)

type subjectKey struct {
	subjectType audit.SubjectType
	subject     string
}

// InMemoryStore keeps the trail in per-subject slices. A single mutex
// serializes appends, which trivially satisfies per-subject ordering; the
// trail is insert-only so entries are never rewritten.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[subjectKey][]audit.Event
	order  []audit.Event // global arrival order for ListRecent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[subjectKey][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := subjectKey{event.SubjectType, event.Subject}
	s.events[key] = append(s.events[key], event)
	s.order = append(s.order, event)
	return nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subjectType audit.SubjectType, subject string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[subjectKey{subjectType, subject}]...), nil
}

// ListRecent returns the most recent N events across all subjects, newest
// first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := append([]audit.Event{}, s.order...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// Clear drops all events; test helper.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[subjectKey][]audit.Event)
	s.order = nil
}
