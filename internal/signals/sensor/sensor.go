// Package sensor records proxy readings from wearables and phones under
// sensor_capture consent. Readings double as the signal series behind
// quality scoring.
package sensor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tessera/internal/quality"
	id "tessera/pkg/domain"
)

// Metric labels what a reading measures.
type Metric string

const (
	MetricSteps     Metric = "steps"
	MetricSleep     Metric = "sleep_minutes"
	MetricHeartRate Metric = "heart_rate"
)

// Reading is one raw sensor proxy signal.
type Reading struct {
	Source     string // device class, e.g. wearable or phone
	Metric     Metric
	Value      float64
	CapturedAt time.Time
}

// Profile is the de-identified aggregation of a participant's readings.
type Profile struct {
	ParticipantID  id.ParticipantID
	TotalReadings  int
	ActiveDays     int
	FirstReadingAt time.Time
	LastReadingAt  time.Time
	ByMetric       map[Metric]int
}

// ConsentChecker gates recording on the sensor_capture scope.
type ConsentChecker interface {
	HasActiveConsent(ctx context.Context, userID id.UserID, scope id.ConsentScope) (bool, error)
}

// IdentityResolver swaps the user identity for the opaque participant ID.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID id.UserID) (id.ParticipantID, error)
}

// Store persists raw readings per participant.
type Store interface {
	Append(ctx context.Context, participantID id.ParticipantID, reading Reading) error
	List(ctx context.Context, participantID id.ParticipantID) ([]Reading, error)
}

// Service is the consent-gated recorder.
type Service struct {
	store    Store
	consent  ConsentChecker
	identity IdentityResolver
	logger   *slog.Logger
}

// NewService constructs the sensor recorder.
func NewService(store Store, consent ConsentChecker, identity IdentityResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, consent: consent, identity: identity, logger: logger}
}

// Record stores one reading for a consenting user; missing consent is a
// silent no-op.
func (s *Service) Record(ctx context.Context, userID id.UserID, reading Reading) error {
	ok, err := s.consent.HasActiveConsent(ctx, userID, id.ScopeSensorCapture)
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
	if reading.CapturedAt.IsZero() {
		reading.CapturedAt = time.Now()
	}
	return s.store.Append(ctx, participantID, reading)
}

// ProfileFor aggregates the participant's readings.
func (s *Service) ProfileFor(ctx context.Context, participantID id.ParticipantID) (*Profile, error) {
	readings, err := s.store.List(ctx, participantID)
	if err != nil {
		return nil, err
	}
	return Aggregate(participantID, readings), nil
}

// ProfileForUser aggregates only while sensor_capture consent is active;
// otherwise it returns nil.
func (s *Service) ProfileForUser(ctx context.Context, userID id.UserID) (*Profile, error) {
	ok, err := s.consent.HasActiveConsent(ctx, userID, id.ScopeSensorCapture)
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

// SignalSeries projects the readings into the point series quality scoring
// consumes.
func (s *Service) SignalSeries(ctx context.Context, participantID id.ParticipantID) ([]quality.SignalPoint, error) {
	readings, err := s.store.List(ctx, participantID)
	if err != nil {
		return nil, err
	}
	points := make([]quality.SignalPoint, len(readings))
	for i, reading := range readings {
		points[i] = quality.SignalPoint{Timestamp: reading.CapturedAt, Value: reading.Value}
	}
	return points, nil
}

// Aggregate is the pure reduction from readings to a profile.
func Aggregate(participantID id.ParticipantID, readings []Reading) *Profile {
	profile := &Profile{
		ParticipantID: participantID,
		TotalReadings: len(readings),
		ByMetric:      make(map[Metric]int),
	}
	days := make(map[string]bool)
	for i, reading := range readings {
		profile.ByMetric[reading.Metric]++
		days[reading.CapturedAt.UTC().Format("2006-01-02")] = true
		if i == 0 || reading.CapturedAt.Before(profile.FirstReadingAt) {
			profile.FirstReadingAt = reading.CapturedAt
		}
		if i == 0 || reading.CapturedAt.After(profile.LastReadingAt) {
			profile.LastReadingAt = reading.CapturedAt
		}
	}
	profile.ActiveDays = len(days)
	return profile
}

// InMemoryStore keeps reading streams per participant.
type InMemoryStore struct {
	mu       sync.RWMutex
	readings map[id.ParticipantID][]Reading
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{readings: make(map[id.ParticipantID][]Reading)}
}

func (s *InMemoryStore) Append(_ context.Context, participantID id.ParticipantID, reading Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[participantID] = append(s.readings[participantID], reading)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, participantID id.ParticipantID) ([]Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Reading{}, s.readings[participantID]...), nil
}
