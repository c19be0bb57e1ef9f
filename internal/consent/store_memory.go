package consent

import (
	"context"
	"sync"
	"time"

	id "tessera/pkg/domain"
	"tessera/pkg/platform/audit"
	"tessera/pkg/platform/sentinel"
)

type consentKey struct {
	userID id.UserID
	scope  id.ConsentScope
}

// InMemoryStore keeps one live record per (user, scope). It favors clarity
// over performance; the Tx layer provides per-user serialization on top.
type InMemoryStore struct {
	mu       sync.RWMutex
	consents map[consentKey]*Consent
	trail    audit.Store
}

// NewInMemoryStore builds a store writing audit entries to the given trail.
func NewInMemoryStore(trail audit.Store) *InMemoryStore {
	return &InMemoryStore{consents: make(map[consentKey]*Consent), trail: trail}
}

func (s *InMemoryStore) Get(_ context.Context, userID id.UserID, scope id.ConsentScope) (*Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.consents[consentKey{userID, scope}]; ok {
		clone := *record
		return &clone, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]*Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []*Consent
	for key, record := range s.consents {
		if key.userID == userID {
			clone := *record
			records = append(records, &clone)
		}
	}
	return records, nil
}

func (s *InMemoryStore) Save(_ context.Context, consent *Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *consent
	s.consents[consentKey{consent.UserID, consent.Scope}] = &clone
	return nil
}

func (s *InMemoryStore) ListExpired(_ context.Context, now time.Time) ([]*Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var expired []*Consent
	for _, record := range s.consents {
		if record.Status == StatusGranted && record.ExpiresAt != nil && !now.Before(*record.ExpiresAt) {
			clone := *record
			expired = append(expired, &clone)
		}
	}
	return expired, nil
}

func (s *InMemoryStore) AppendAudit(ctx context.Context, event audit.Event) error {
	return s.trail.Append(ctx, event)
}

// shardedTx serializes consent mutations per user with sharded mutexes,
// closing the read-modify-write race without a single global lock.
const numShards = 128

type shardedTx struct {
	shards [numShards]sync.Mutex
	store  Store
}

// NewMemoryTx wraps a store with per-user sharded locking.
func NewMemoryTx(store Store) Tx {
	return &shardedTx{store: store}
}

func (t *shardedTx) RunInTx(ctx context.Context, userID id.UserID, fn func(store Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	shard := hashID(userID.String()) % numShards
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(t.store)
}

// hashID uses FNV-1a for even shard distribution.
func hashID(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
