package quality

import (
	"context"
	"sync"
	"time"

	"tessera/internal/platform/metrics"
	id "tessera/pkg/domain"
	"tessera/pkg/platform/sentinel"
)

// Store upserts whole scores keyed by participant; partial patches are not
// part of the contract.
type Store interface {
	Upsert(ctx context.Context, score Score) error
	// Get returns the latest score, or sentinel.ErrNotFound.
	Get(ctx context.Context, participantID id.ParticipantID) (Score, error)
}

// Service wraps the pure scorer with persistence and metrics.
type Service struct {
	store   Store
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source; tests pin it.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs the scoring service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Recalculate scores the series and upserts the result for the participant.
// The previous score is replaced wholesale.
func (s *Service) Recalculate(ctx context.Context, participantID id.ParticipantID, points []SignalPoint, expectedRate float64) (Score, error) {
	score := Calculate(points, expectedRate, s.now())
	score.ParticipantID = participantID
	if err := s.store.Upsert(ctx, score); err != nil {
		return Score{}, err
	}
	s.metrics.ObserveQualityScore(float64(score.OverallScore))
	return score, nil
}

// Latest returns the stored score for a participant.
func (s *Service) Latest(ctx context.Context, participantID id.ParticipantID) (Score, error) {
	return s.store.Get(ctx, participantID)
}

// LatestOverall returns just the overall score; enrollment pins it on the
// member record.
func (s *Service) LatestOverall(ctx context.Context, participantID id.ParticipantID) (int, error) {
	score, err := s.store.Get(ctx, participantID)
	if err != nil {
		return 0, err
	}
	return score.OverallScore, nil
}

// InMemoryStore keeps the latest score per participant.
type InMemoryStore struct {
	mu     sync.RWMutex
	scores map[id.ParticipantID]Score
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{scores: make(map[id.ParticipantID]Score)}
}

func (s *InMemoryStore) Upsert(_ context.Context, score Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[score.ParticipantID] = score
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, participantID id.ParticipantID) (Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if score, ok := s.scores[participantID]; ok {
		return score, nil
	}
	return Score{}, sentinel.ErrNotFound
}
