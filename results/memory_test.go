package results

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	t.Run("empty room has no result", func(t *testing.T) {
		_, _, found, err := store.Latest(ctx, 1)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("save and read back", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, 1, 3, []string{"Alice:90", "Bob:30", "Alice"}))

		summary, round, found, err := store.Latest(ctx, 1)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, 3, round)
		assert.Equal(t, []string{"Alice:90", "Bob:30", "Alice"}, summary)
	})

	t.Run("newer round replaces the old one", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, 1, 4, []string{"Alice:10", "Bob:110", "Bob"}))

		summary, round, found, err := store.Latest(ctx, 1)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, 4, round)
		assert.Equal(t, "Bob", summary[2])
	})

	t.Run("rooms are isolated", func(t *testing.T) {
		_, _, found, err := store.Latest(ctx, 2)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("entries expire", func(t *testing.T) {
		short := NewMemoryStore(10 * time.Millisecond)
		t.Cleanup(func() { _ = short.Close() })

		require.NoError(t, short.Save(ctx, 7, 1, []string{"x"}))
		time.Sleep(30 * time.Millisecond)

		_, _, found, err := short.Latest(ctx, 7)
		require.NoError(t, err)
		assert.False(t, found)
	})
}
