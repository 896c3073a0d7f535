package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

type redisResult struct {
	Round   int      `json:"round"`
	Summary []string `json:"summary"`
}

// NewRedisStore returns a Store backed by the given Redis client, for
// deployments that want round results to survive a server restart. A
// non-positive ttl falls back to DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &redisStore{client: client, ttl: ttl}
}

func (s *redisStore) Save(ctx context.Context, roomID, round int, summary []string) error {
	payload, err := json.Marshal(redisResult{Round: round, Summary: summary})
	if err != nil {
		return fmt.Errorf("results: marshal: %w", err)
	}

	if err := s.client.Set(ctx, latestKey(roomID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("results: redis set: %w", err)
	}
	return nil
}

func (s *redisStore) Latest(ctx context.Context, roomID int) ([]string, int, bool, error) {
	raw, err := s.client.Get(ctx, latestKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("results: redis get: %w", err)
	}

	var res redisResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, 0, false, fmt.Errorf("results: unmarshal: %w", err)
	}
	return res.Summary, res.Round, true, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
