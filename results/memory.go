package results

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

type memoryStore struct {
	c *cache.Cache
}

type storedResult struct {
	round   int
	summary []string
}

// NewMemoryStore returns an in-process Store whose entries expire after ttl.
// A non-positive ttl falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &memoryStore{
		c: cache.New(ttl, ttl/2),
	}
}

func (s *memoryStore) Save(_ context.Context, roomID, round int, summary []string) error {
	cp := make([]string, len(summary))
	copy(cp, summary)
	s.c.SetDefault(latestKey(roomID), storedResult{round: round, summary: cp})
	return nil
}

func (s *memoryStore) Latest(_ context.Context, roomID int) ([]string, int, bool, error) {
	v, ok := s.c.Get(latestKey(roomID))
	if !ok {
		return nil, 0, false, nil
	}
	res := v.(storedResult)
	return res.summary, res.round, true, nil
}

func (s *memoryStore) Close() error {
	s.c.Flush()
	return nil
}

func latestKey(roomID int) string {
	return fmt.Sprintf("room:%d:latest", roomID)
}
