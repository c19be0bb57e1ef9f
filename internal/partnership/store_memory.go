package partnership

import (
	"context"
	"sync"

	id "tessera/pkg/domain"
	"tessera/pkg/platform/audit"
	"tessera/pkg/platform/sentinel"
)

// InMemoryStore keeps requests and agreements in maps; the Tx layer provides
// per-subject serialization on top.
type InMemoryStore struct {
	mu         sync.RWMutex
	requests   map[id.PartnershipRequestID]*Request
	agreements map[id.AgreementID]*Agreement
	trail      audit.Store
}

// NewInMemoryStore builds a store writing audit entries to the given trail.
func NewInMemoryStore(trail audit.Store) *InMemoryStore {
	return &InMemoryStore{
		requests:   make(map[id.PartnershipRequestID]*Request),
		agreements: make(map[id.AgreementID]*Agreement),
		trail:      trail,
	}
}

func (s *InMemoryStore) CreateRequest(_ context.Context, request *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[request.ID]; ok {
		return sentinel.ErrConflict
	}
	s.requests[request.ID] = cloneRequest(request)
	return nil
}

func (s *InMemoryStore) GetRequest(_ context.Context, requestID id.PartnershipRequestID) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if request, ok := s.requests[requestID]; ok {
		return cloneRequest(request), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) SaveRequest(_ context.Context, request *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[request.ID] = cloneRequest(request)
	return nil
}

func (s *InMemoryStore) ListRequests(_ context.Context) ([]*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var requests []*Request
	for _, request := range s.requests {
		requests = append(requests, cloneRequest(request))
	}
	return requests, nil
}

func (s *InMemoryStore) CreateAgreement(_ context.Context, agreement *Agreement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agreements[agreement.ID]; ok {
		return sentinel.ErrConflict
	}
	s.agreements[agreement.ID] = cloneAgreement(agreement)
	return nil
}

func (s *InMemoryStore) GetAgreement(_ context.Context, agreementID id.AgreementID) (*Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if agreement, ok := s.agreements[agreementID]; ok {
		return cloneAgreement(agreement), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) SaveAgreement(_ context.Context, agreement *Agreement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agreements[agreement.ID] = cloneAgreement(agreement)
	return nil
}

func (s *InMemoryStore) ListAgreements(_ context.Context) ([]*Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var agreements []*Agreement
	for _, agreement := range s.agreements {
		agreements = append(agreements, cloneAgreement(agreement))
	}
	return agreements, nil
}

func (s *InMemoryStore) AppendAudit(ctx context.Context, event audit.Event) error {
	return s.trail.Append(ctx, event)
}

func cloneRequest(request *Request) *Request {
	clone := *request
	return &clone
}

func cloneAgreement(agreement *Agreement) *Agreement {
	clone := *agreement
	clone.AllowedElements = append([]string{}, agreement.AllowedElements...)
	clone.AllowedFormats = append([]string{}, agreement.AllowedFormats...)
	clone.AuditLog = append([]LogEntry{}, agreement.AuditLog...)
	return &clone
}

// shardedTx serializes governance mutations per subject key.
const numShards = 128

type shardedTx struct {
	shards [numShards]sync.Mutex
	store  Store
}

// NewMemoryTx wraps a store with per-subject sharded locking.
func NewMemoryTx(store Store) Tx {
	return &shardedTx{store: store}
}

func (t *shardedTx) RunInTx(ctx context.Context, subject string, fn func(store Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	shard := hashID(subject) % numShards
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
