package history

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoMi7k/UPS/protocol"
)

func send(r *Ring, slot int, field string) protocol.Message {
	m := protocol.Message{Slot: slot, Kind: protocol.KindState, Fields: []string{field}}
	r.Assign(&m)
	return m
}

func TestRing_Assign(t *testing.T) {
	r := New()

	t.Run("stamps increasing sequence numbers", func(t *testing.T) {
		a := send(r, 0, "a")
		b := send(r, 1, "b")
		assert.Equal(t, 0, a.Seq)
		assert.Equal(t, 1, b.Seq)
	})

	t.Run("recorded frames are readable", func(t *testing.T) {
		m, ok := r.Lookup(0, 0)
		require.True(t, ok)
		assert.Equal(t, []string{"a"}, m.Fields)
	})

	t.Run("slotless frames consume a sequence but are not recorded", func(t *testing.T) {
		m := protocol.Message{Slot: protocol.NoSlot, Kind: protocol.KindWelcome}
		r.Assign(&m)
		assert.Equal(t, 2, m.Seq)
		_, ok := r.Lookup(protocol.NoSlot, 2)
		assert.False(t, ok)
	})

	t.Run("wraps after the ring size", func(t *testing.T) {
		r := New()
		var last protocol.Message
		for i := 0; i < protocol.RingSize+3; i++ {
			last = send(r, 0, strconv.Itoa(i))
		}
		assert.Equal(t, 2, last.Seq)
	})
}

func TestRing_Latest(t *testing.T) {
	r := New()

	t.Run("empty ring", func(t *testing.T) {
		_, ok := r.Latest(0)
		assert.False(t, ok)
	})

	t.Run("tracks the newest frame per slot", func(t *testing.T) {
		send(r, 0, "a")
		send(r, 1, "b")
		send(r, 0, "c")

		seq, ok := r.Latest(0)
		require.True(t, ok)
		assert.Equal(t, 2, seq)

		seq, ok = r.Latest(1)
		require.True(t, ok)
		assert.Equal(t, 1, seq)
	})
}

func TestRing_Missing(t *testing.T) {
	t.Run("heals a gap", func(t *testing.T) {
		r := New()
		for i := 0; i <= 9; i++ {
			send(r, 0, strconv.Itoa(i))
		}

		missed := r.Missing(0, 5)
		require.Len(t, missed, 4)
		for i, m := range missed {
			assert.Equal(t, 6+i, m.Seq)
			assert.Equal(t, []string{strconv.Itoa(6 + i)}, m.Fields)
		}
	})

	t.Run("client already current", func(t *testing.T) {
		r := New()
		for i := 0; i <= 9; i++ {
			send(r, 0, strconv.Itoa(i))
		}
		assert.Empty(t, r.Missing(0, 9))
	})

	t.Run("client ahead of history", func(t *testing.T) {
		r := New()
		send(r, 0, "a")
		assert.Empty(t, r.Missing(0, 200))
	})

	t.Run("nothing recorded for the slot", func(t *testing.T) {
		r := New()
		send(r, 1, "b")
		assert.Empty(t, r.Missing(0, 0))
	})

	t.Run("skips frames for other slots", func(t *testing.T) {
		r := New()
		send(r, 0, "a") // 0
		send(r, 1, "b") // 1
		send(r, 0, "c") // 2

		missed := r.Missing(0, 0)
		require.Len(t, missed, 1)
		assert.Equal(t, 2, missed[0].Seq)
	})

	t.Run("replay spans at most half the ring", func(t *testing.T) {
		r := New()
		for i := 0; i <= 129; i++ {
			send(r, 0, strconv.Itoa(i))
		}

		// Distance 127 from the latest frame is still a healable gap.
		atLimit := r.Missing(0, 2)
		require.Len(t, atLimit, 127)
		assert.Equal(t, 3, atLimit[0].Seq)
		assert.Equal(t, 129, atLimit[len(atLimit)-1].Seq)

		// One further back reads as ahead of the history under wrapped
		// distance, and nothing is resent.
		assert.Empty(t, r.Missing(0, 1))
	})

	t.Run("replays across wraparound", func(t *testing.T) {
		r := New()
		// Advance the counter close to the wrap point, then keep sending so
		// the gap spans RingSize-1 back to 0.
		for i := 0; i < protocol.RingSize-4; i++ {
			send(r, 0, "fill")
		}
		var wrapped []int
		for i := 0; i < 8; i++ {
			m := send(r, 0, "w"+strconv.Itoa(i))
			wrapped = append(wrapped, m.Seq)
		}
		assert.Equal(t, []int{251, 252, 253, 254, 0, 1, 2, 3}, wrapped)

		missed := r.Missing(0, 252)
		require.Len(t, missed, 6)
		want := []int{253, 254, 0, 1, 2, 3}
		for i, m := range missed {
			assert.Equal(t, want[i], m.Seq)
		}
	})
}

func TestRing_Overwrite(t *testing.T) {
	// Fill the ring and then some. Each extra frame lands on the index its
	// wrapped sequence number points at, evicting the oldest frame there.
	r := New()
	for i := 0; i < protocol.RingSize+3; i++ {
		send(r, 0, strconv.Itoa(i))
	}

	for seq, want := range map[int]string{0: "255", 1: "256", 2: "257"} {
		m, ok := r.Lookup(0, seq)
		require.True(t, ok)
		assert.Equal(t, []string{want}, m.Fields)
	}

	// The first untouched index still holds its original frame.
	m, ok := r.Lookup(0, 3)
	require.True(t, ok)
	assert.Equal(t, []string{"3"}, m.Fields)
}
