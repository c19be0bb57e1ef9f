// Package engagement records app engagement events under data_collection
// consent and aggregates them into a de-identified profile. Events are keyed
// by participant ID from the moment they are stored; the user identity never
// persists here.
package engagement

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "tessera/pkg/domain"
)

// EventType labels one kind of engagement.
type EventType string

const (
	EventSessionStart     EventType = "session_start"
	EventFeatureUsed      EventType = "feature_used"
	EventReflectionLogged EventType = "reflection_logged"
	EventContentViewed    EventType = "content_viewed"
)

// Event is one raw engagement signal.
type Event struct {
	Type       EventType
	Feature    string
	OccurredAt time.Time
}

// Profile is the de-identified aggregation of a participant's engagement
// stream.
type Profile struct {
	ParticipantID id.ParticipantID
	TotalEvents   int
	ActiveDays    int
	FirstEventAt  time.Time
	LastEventAt   time.Time
	ByType        map[EventType]int
}

// ConsentChecker gates recording on the data_collection scope.
type ConsentChecker interface {
	HasActiveConsent(ctx context.Context, userID id.UserID, scope id.ConsentScope) (bool, error)
}

// IdentityResolver swaps the user identity for the opaque participant ID.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID id.UserID) (id.ParticipantID, error)
}

// Store persists raw events per participant.
type Store interface {
	Append(ctx context.Context, participantID id.ParticipantID, event Event) error
	List(ctx context.Context, participantID id.ParticipantID) ([]Event, error)
}

// Service is the consent-gated recorder.
type Service struct {
	store    Store
	consent  ConsentChecker
	identity IdentityResolver
	logger   *slog.Logger
}

// NewService constructs the engagement recorder.
func NewService(store Store, consent ConsentChecker, identity IdentityResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, consent: consent, identity: identity, logger: logger}
}

// Record stores one event for a consenting user. Missing consent is a silent
// no-op, not an error: capture must never pressure the consent decision.
func (s *Service) Record(ctx context.Context, userID id.UserID, event Event) error {
	ok, err := s.consent.HasActiveConsent(ctx, userID, id.ScopeDataCollection)
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
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	return s.store.Append(ctx, participantID, event)
}

// ProfileFor aggregates the participant's stream.
func (s *Service) ProfileFor(ctx context.Context, participantID id.ParticipantID) (*Profile, error) {
	events, err := s.store.List(ctx, participantID)
	if err != nil {
		return nil, err
	}
	return Aggregate(participantID, events), nil
}

// ProfileForUser resolves the user and aggregates only while the
// data_collection consent is still active; otherwise it returns nil.
func (s *Service) ProfileForUser(ctx context.Context, userID id.UserID) (*Profile, error) {
	ok, err := s.consent.HasActiveConsent(ctx, userID, id.ScopeDataCollection)
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

// Aggregate is the pure reduction from a raw stream to a profile.
func Aggregate(participantID id.ParticipantID, events []Event) *Profile {
	profile := &Profile{
		ParticipantID: participantID,
		TotalEvents:   len(events),
		ByType:        make(map[EventType]int),
	}
	days := make(map[string]bool)
	for i, event := range events {
		profile.ByType[event.Type]++
		days[event.OccurredAt.UTC().Format("2006-01-02")] = true
		if i == 0 || event.OccurredAt.Before(profile.FirstEventAt) {
			profile.FirstEventAt = event.OccurredAt
		}
		if i == 0 || event.OccurredAt.After(profile.LastEventAt) {
			profile.LastEventAt = event.OccurredAt
		}
	}
	profile.ActiveDays = len(days)
	return profile
}

// InMemoryStore keeps event streams per participant.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.ParticipantID][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.ParticipantID][]Event)}
}

func (s *InMemoryStore) Append(_ context.Context, participantID id.ParticipantID, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[participantID] = append(s.events[participantID], event)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, participantID id.ParticipantID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[participantID]...), nil
}
