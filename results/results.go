// Package results stores finished-round summaries per room. Replay of missed
// frames only covers what the history ring still holds, so a client that
// reconnects after the ring wrapped past a RESULT recovers it from here
// instead. The memory backend is the default; the Redis backend keeps
// results across server restarts.
package results

import (
	"context"
	"time"
)

// Store persists round summaries keyed by room and round number.
type Store interface {
	// Save records the summary of a finished round.
	Save(ctx context.Context, roomID, round int, summary []string) error

	// Latest returns the most recent saved summary for the room and its
	// round number. found is false when the room has no stored result (or
	// it expired).
	Latest(ctx context.Context, roomID int) (summary []string, round int, found bool, err error)

	// Close releases the backend's resources.
	Close() error
}

// DefaultTTL is how long a stored result stays retrievable when the caller
// does not configure a TTL.
const DefaultTTL = 30 * time.Minute
