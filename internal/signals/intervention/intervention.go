// Package intervention records intervention lifecycle markers under
// intervention_tracking consent. Marker presence feeds cohort criteria and
// export flags; the marker text itself never leaves this package.
package intervention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "tessera/pkg/domain"
)

// Kind labels where in its lifecycle an intervention marker sits.
type Kind string

const (
	KindStarted   Kind = "started"
	KindAdjusted  Kind = "adjusted"
	KindCompleted Kind = "completed"
	KindStopped   Kind = "stopped"
)

// Marker is one raw intervention signal.
type Marker struct {
	Kind       Kind
	Label      string
	OccurredAt time.Time
}

// Profile is the de-identified aggregation of a participant's markers. Only
// counts and timing survive; labels are dropped.
type Profile struct {
	ParticipantID id.ParticipantID
	TotalMarkers  int
	HasMarkers    bool
	ByKind        map[Kind]int
	FirstMarkerAt time.Time
	LastMarkerAt  time.Time
}

// ConsentChecker gates recording on the intervention_tracking scope.
type ConsentChecker interface {
	HasActiveConsent(ctx context.Context, userID id.UserID, scope id.ConsentScope) (bool, error)
}

// IdentityResolver swaps the user identity for the opaque participant ID.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID id.UserID) (id.ParticipantID, error)
}

// Store persists raw markers per participant.
type Store interface {
	Append(ctx context.Context, participantID id.ParticipantID, marker Marker) error
	List(ctx context.Context, participantID id.ParticipantID) ([]Marker, error)
}

// Service is the consent-gated recorder.
type Service struct {
	store    Store
	consent  ConsentChecker
	identity IdentityResolver
	logger   *slog.Logger
}

// NewService constructs the intervention recorder.
func NewService(store Store, consent ConsentChecker, identity IdentityResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, consent: consent, identity: identity, logger: logger}
}

// Record stores one marker for a consenting user; missing consent is a
// silent no-op.
func (s *Service) Record(ctx context.Context, userID id.UserID, marker Marker) error {
	ok, err := s.consent.HasActiveConsent(ctx, userID, id.ScopeInterventionTracking)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	participantID, err := s.identity.Resolve(ctx, userID)
	if err != nil {
		return err
	}
	if marker.OccurredAt.IsZero() {
		marker.OccurredAt = time.Now()
	}
	return s.store.Append(ctx, participantID, marker)
}

// ProfileFor aggregates the participant's markers.
func (s *Service) ProfileFor(ctx context.Context, participantID id.ParticipantID) (*Profile, error) {
	markers, err := s.store.List(ctx, participantID)
	if err != nil {
		return nil, err
	}
	return Aggregate(participantID, markers), nil
}

// ProfileForUser aggregates only while intervention_tracking consent is
// active; otherwise it returns nil.
func (s *Service) ProfileForUser(ctx context.Context, userID id.UserID) (*Profile, error) {
	ok, err := s.consent.HasActiveConsent(ctx, userID, id.ScopeInterventionTracking)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	participantID, err := s.identity.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ProfileFor(ctx, participantID)
}

// Aggregate is the pure reduction from markers to a profile.
func Aggregate(participantID id.ParticipantID, markers []Marker) *Profile {
	profile := &Profile{
		ParticipantID: participantID,
		TotalMarkers:  len(markers),
		HasMarkers:    len(markers) > 0,
		ByKind:        make(map[Kind]int),
	}
	for i, marker := range markers {
		profile.ByKind[marker.Kind]++
		if i == 0 || marker.OccurredAt.Before(profile.FirstMarkerAt) {
			profile.FirstMarkerAt = marker.OccurredAt
		}
		if i == 0 || marker.OccurredAt.After(profile.LastMarkerAt) {
			profile.LastMarkerAt = marker.OccurredAt
		}
	}
	return profile
}

// InMemoryStore keeps marker streams per participant.
type InMemoryStore struct {
	mu      sync.RWMutex
	markers map[id.ParticipantID][]Marker
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{markers: make(map[id.ParticipantID][]Marker)}
}

func (s *InMemoryStore) Append(_ context.Context, participantID id.ParticipantID, marker Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[participantID] = append(s.markers[participantID], marker)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, participantID id.ParticipantID) ([]Marker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Marker{}, s.markers[participantID]...), nil
}
