package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "tessera/pkg/domain"
	"tessera/pkg/platform/sentinel"
)

// RedisStore keeps the identity mapping in Redis, physically separate from
// the research-data store. Keys carry no TTL: the mapping is permanent for
// the life of the participant.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore builds a mapping store over an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func mappingKey(userID id.UserID) string {
	return "identity:map:" + userID.String()
}

type mappingRecord struct {
	ParticipantID string    `json:"participant_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s *RedisStore) Find(ctx context.Context, userID id.UserID) (*Mapping, error) {
	raw, err := s.client.Get(ctx, mappingKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mapping: %w", err)
	}
	return decodeMapping(userID, raw)
}

// Create uses SETNX so a concurrent create for the same user resolves to a
// single winning mapping; the loser reads back the winner's record.
func (s *RedisStore) Create(ctx context.Context, mapping *Mapping) (*Mapping, error) {
	record := mappingRecord{
		ParticipantID: mapping.ParticipantID.String(),
		CreatedAt:     mapping.CreatedAt,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal mapping: %w", err)
	}

	set, err := s.client.SetNX(ctx, mappingKey(mapping.UserID), raw, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx mapping: %w", err)
	}
	if set {
		out := *mapping
		out.CreatedAt = record.CreatedAt
		return &out, nil
	}
	// Lost the race: return the mapping that won.
	return s.Find(ctx, mapping.UserID)
}

func decodeMapping(userID id.UserID, raw string) (*Mapping, error) {
	var record mappingRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("unmarshal mapping: %w", err)
	}
	participantID, err := id.ParseParticipantID(record.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("stored mapping corrupt: %w", err)
	}
	return &Mapping{
		UserID:        userID,
		ParticipantID: participantID,
		CreatedAt:     record.CreatedAt,
	}, nil
}
