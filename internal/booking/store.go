package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SelectionStore persists selections in Redis, one key per patient and doctor.
type SelectionStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewSelectionStore(redisClient *redis.Client, ttl time.Duration) *SelectionStore {
	return &SelectionStore{redis: redisClient, ttl: ttl}
}

func (s *SelectionStore) key(patientID, doctorID string) string {
	return fmt.Sprintf("booking:selection:%s:%s", patientID, doctorID)
}

// Get returns the stored selection, or the initial selection when none exists.
func (s *SelectionStore) Get(ctx context.Context, patientID, doctorID string) (Selection, error) {
	data, err := s.redis.Get(ctx, s.key(patientID, doctorID)).Bytes()
	if err == redis.Nil {
		return NewSelection(), nil
	}
	if err != nil {
		return Selection{}, fmt.Errorf("booking: get selection: %w", err)
	}
	var sel Selection
	if err := json.Unmarshal(data, &sel); err != nil {
		return Selection{}, fmt.Errorf("booking: decode selection: %w", err)
	}
	return sel, nil
}

// Save stores sel and refreshes its expiry.
func (s *SelectionStore) Save(ctx context.Context, patientID, doctorID string, sel Selection) error {
	data, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("booking: encode selection: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(patientID, doctorID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("booking: save selection: %w", err)
	}
	return nil
}

func (s *SelectionStore) Clear(ctx context.Context, patientID, doctorID string) error {
	if err := s.redis.Del(ctx, s.key(patientID, doctorID)).Err(); err != nil {
		return fmt.Errorf("booking: clear selection: %w", err)
	}
	return nil
}
