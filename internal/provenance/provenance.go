// Package provenance records where each data point came from and every later
// modification. Histories only grow; nothing here is mutated in place.
package provenance

import (
	"context"
	"sync"
	"time"

	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
	"tessera/pkg/platform/sentinel"
)

// SourceType labels how a data point was captured.
type SourceType string

const (
	SourceManualEntry SourceType = "manual_entry"
	SourceSensorProxy SourceType = "sensor_proxy"
	SourceImport      SourceType = "import"
	SourceDerived     SourceType = "derived"
)

// ChangeKind labels one entry in a modification history.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Modification is one append-only history entry.
type Modification struct {
	Kind       ChangeKind
	OccurredAt time.Time
	Field      string
	Note       string
}

// Record is the capture context of one data point plus its growing
// modification history.
type Record struct {
	DataPointID    id.DataPointID
	ParticipantID  id.ParticipantID
	SourceType     SourceType
	CapturedAt     time.Time
	DeviceType     string
	AppVersion     string
	TimezoneOffset int // minutes east of UTC at capture time
	History        []Modification
}

// Store persists provenance records. AppendModification must be atomic per
// data point so concurrent edits cannot drop history entries.
type Store interface {
	Create(ctx context.Context, record *Record) error
	// Get returns a record, or sentinel.ErrNotFound.
	Get(ctx context.Context, dataPointID id.DataPointID) (*Record, error)
	AppendModification(ctx context.Context, dataPointID id.DataPointID, mod Modification) error
	ListByParticipant(ctx context.Context, participantID id.ParticipantID) ([]*Record, error)
}

// Tracker is the provenance API consumed by quality scoring and export
// metadata.
type Tracker struct {
	store Store
}

// NewTracker constructs a Tracker.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// RecordCapture creates the provenance record for a newly captured data
// point, seeding its history with the create entry.
func (t *Tracker) RecordCapture(ctx context.Context, record *Record) error {
	if record.DataPointID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "data point id is required")
	}
	if record.CapturedAt.IsZero() {
		record.CapturedAt = time.Now()
	}
	record.History = []Modification{{Kind: ChangeCreate, OccurredAt: record.CapturedAt}}
	return t.store.Create(ctx, record)
}

// RecordModification appends one history entry to an existing record.
func (t *Tracker) RecordModification(ctx context.Context, dataPointID id.DataPointID, mod Modification) error {
	if mod.OccurredAt.IsZero() {
		mod.OccurredAt = time.Now()
	}
	return t.store.AppendModification(ctx, dataPointID, mod)
}

// History returns the full modification history of a data point.
func (t *Tracker) History(ctx context.Context, dataPointID id.DataPointID) ([]Modification, error) {
	record, err := t.store.Get(ctx, dataPointID)
	if err != nil {
		return nil, err
	}
	return record.History, nil
}

// SourcesForParticipant returns the distinct capture sources seen for a
// participant; export metadata records them alongside the package.
func (t *Tracker) SourcesForParticipant(ctx context.Context, participantID id.ParticipantID) ([]SourceType, error) {
	records, err := t.store.ListByParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	seen := make(map[SourceType]bool)
	var sources []SourceType
	for _, record := range records {
		if !seen[record.SourceType] {
			seen[record.SourceType] = true
			sources = append(sources, record.SourceType)
		}
	}
	return sources, nil
}

// SourceLabels is SourcesForParticipant as plain strings for callers outside
// this package.
func (t *Tracker) SourceLabels(ctx context.Context, participantID id.ParticipantID) ([]string, error) {
	sources, err := t.SourcesForParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(sources))
	for i, source := range sources {
		labels[i] = string(source)
	}
	return labels, nil
}

// InMemoryStore guards records with a mutex; history appends happen under the
// write lock so they are atomic per data point.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.DataPointID]*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.DataPointID]*Record)}
}

func (s *InMemoryStore) Create(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.DataPointID]; ok {
		return sentinel.ErrConflict
	}
	clone := cloneRecord(record)
	s.records[record.DataPointID] = clone
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, dataPointID id.DataPointID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[dataPointID]; ok {
		return cloneRecord(record), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) AppendModification(_ context.Context, dataPointID id.DataPointID, mod Modification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[dataPointID]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.History = append(record.History, mod)
	return nil
}

func (s *InMemoryStore) ListByParticipant(_ context.Context, participantID id.ParticipantID) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []*Record
	for _, record := range s.records {
		if record.ParticipantID == participantID {
			records = append(records, cloneRecord(record))
		}
	}
	return records, nil
}

func cloneRecord(record *Record) *Record {
	clone := *record
	clone.History = append([]Modification{}, record.History...)
	return &clone
}
