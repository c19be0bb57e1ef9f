package identity

import (
	"context"
	"errors"
	"log/slog"

	id "tessera/pkg/domain"
	"tessera/pkg/platform/sentinel"
)

// Store persists mappings. Create must be atomic create-if-absent: when two
// callers race on the same user, exactly one mapping wins and both observe it.
type Store interface {
	// Find returns the mapping for a user, or sentinel.ErrNotFound.
	Find(ctx context.Context, userID id.UserID) (*Mapping, error)
	// Create stores the mapping unless one already exists, in which case the
	// existing mapping is returned.
	Create(ctx context.Context, mapping *Mapping) (*Mapping, error)
}

// Service resolves participant IDs. It exposes only the forward direction;
// there is intentionally no API from participant ID back to user.
type Service struct {
	store  Store
	logger *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService constructs the identity mapper.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the user's stable participant ID, minting one on first use.
// The minted ID is random; nothing about it derives from the user identity.
func (s *Service) Resolve(ctx context.Context, userID id.UserID) (id.ParticipantID, error) {
	mapping, err := s.store.Find(ctx, userID)
	if err == nil {
		return mapping.ParticipantID, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return id.ParticipantID{}, err
	}

	created, err := s.store.Create(ctx, &Mapping{
		UserID:        userID,
		ParticipantID: id.NewParticipantID(),
	})
	if err != nil {
		return id.ParticipantID{}, err
	}
	return created.ParticipantID, nil
}

// Lookup returns the existing participant ID without creating one.
func (s *Service) Lookup(ctx context.Context, userID id.UserID) (id.ParticipantID, error) {
	mapping, err := s.store.Find(ctx, userID)
	if err != nil {
		return id.ParticipantID{}, err
	}
	return mapping.ParticipantID, nil
}
