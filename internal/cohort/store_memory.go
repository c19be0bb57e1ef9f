package cohort

import (
	"context"
	"sync"

	id "tessera/pkg/domain"
	"tessera/pkg/platform/audit"
	"tessera/pkg/platform/sentinel"
)

type memberKey struct {
	cohortID      id.CohortID
	participantID id.ParticipantID
}

// InMemoryStore keeps cohorts and members in maps. The Tx layer provides
// per-cohort serialization on top.
type InMemoryStore struct {
	mu      sync.RWMutex
	cohorts map[id.CohortID]*Cohort
	members map[memberKey]*Member
	trail   audit.Store
}

// NewInMemoryStore builds a store writing audit entries to the given trail.
func NewInMemoryStore(trail audit.Store) *InMemoryStore {
	return &InMemoryStore{
		cohorts: make(map[id.CohortID]*Cohort),
		members: make(map[memberKey]*Member),
		trail:   trail,
	}
}

func (s *InMemoryStore) CreateCohort(_ context.Context, cohort *Cohort) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cohorts[cohort.ID]; ok {
		return sentinel.ErrConflict
	}
	clone := *cohort
	s.cohorts[cohort.ID] = &clone
	return nil
}

func (s *InMemoryStore) GetCohort(_ context.Context, cohortID id.CohortID) (*Cohort, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cohort, ok := s.cohorts[cohortID]; ok {
		clone := *cohort
		return &clone, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) SaveCohort(_ context.Context, cohort *Cohort) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *cohort
	s.cohorts[cohort.ID] = &clone
	return nil
}

func (s *InMemoryStore) DeleteCohort(_ context.Context, cohortID id.CohortID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cohorts[cohortID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.cohorts, cohortID)
	for key := range s.members {
		if key.cohortID == cohortID {
			delete(s.members, key)
		}
	}
	return nil
}

func (s *InMemoryStore) ListCohorts(_ context.Context) ([]*Cohort, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var cohorts []*Cohort
	for _, cohort := range s.cohorts {
		clone := *cohort
		cohorts = append(cohorts, &clone)
	}
	return cohorts, nil
}

func (s *InMemoryStore) UpsertMember(_ context.Context, member *Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *member
	s.members[memberKey{member.CohortID, member.ParticipantID}] = &clone
	return nil
}

func (s *InMemoryStore) GetMember(_ context.Context, cohortID id.CohortID, participantID id.ParticipantID) (*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if member, ok := s.members[memberKey{cohortID, participantID}]; ok {
		clone := *member
		return &clone, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) DeleteMember(_ context.Context, cohortID id.CohortID, participantID id.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey{cohortID, participantID}
	if _, ok := s.members[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.members, key)
	return nil
}

func (s *InMemoryStore) ListMembers(_ context.Context, cohortID id.CohortID) ([]*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var members []*Member
	for key, member := range s.members {
		if key.cohortID == cohortID {
			clone := *member
			members = append(members, &clone)
		}
	}
	return members, nil
}

func (s *InMemoryStore) AppendAudit(ctx context.Context, event audit.Event) error {
	return s.trail.Append(ctx, event)
}

// shardedTx serializes cohort mutations per cohort with sharded mutexes.
const numShards = 128

type shardedTx struct {
	shards [numShards]sync.Mutex
	store  Store
}

// NewMemoryTx wraps a store with per-cohort sharded locking.
func NewMemoryTx(store Store) Tx {
	return &shardedTx{store: store}
}

func (t *shardedTx) RunInTx(ctx context.Context, cohortID id.CohortID, fn func(store Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	shard := hashID(cohortID.String()) % numShards
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
