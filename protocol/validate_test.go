package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRaw(t *testing.T) {
	t.Run("accepts a well formed frame", func(t *testing.T) {
		frame, err := Encode(Message{Seq: 3, Slot: 1, Kind: KindCard, Fields: []string{"SA"}})
		require.NoError(t, err)
		assert.NoError(t, ValidateRaw(frame))
	})

	reason := func(t *testing.T, err error) ValidationReason {
		t.Helper()
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		return verr.Reason
	}

	t.Run("empty frame", func(t *testing.T) {
		assert.Equal(t, ReasonEmptyFrame, reason(t, ValidateRaw(nil)))
	})

	t.Run("oversized frame", func(t *testing.T) {
		data := []byte("1|" + strings.Repeat("ab", MaxFrameSize) + "\n")
		assert.Equal(t, ReasonFrameTooLarge, reason(t, ValidateRaw(data)))
	})

	t.Run("missing terminator", func(t *testing.T) {
		assert.Equal(t, ReasonMissingTerminator, reason(t, ValidateRaw([]byte("9|1|0|19"))))
	})

	t.Run("null byte", func(t *testing.T) {
		assert.Equal(t, ReasonForbiddenByte, reason(t, ValidateRaw([]byte("9|1\x000|19\n"))))
	})

	t.Run("control byte", func(t *testing.T) {
		assert.Equal(t, ReasonForbiddenByte, reason(t, ValidateRaw([]byte("9|1\x010|19\n"))))
	})

	t.Run("carriage return allowed", func(t *testing.T) {
		assert.NoError(t, ValidateRaw([]byte("9|1|0|19\r\n")))
	})

	t.Run("too few delimiters", func(t *testing.T) {
		assert.Equal(t, ReasonTooFewTokens, reason(t, ValidateRaw([]byte("9|19\n"))))
	})

	t.Run("non numeric size prefix", func(t *testing.T) {
		assert.Equal(t, ReasonBadSizePrefix, reason(t, ValidateRaw([]byte("x9|1|0|19\n"))))
	})

	t.Run("repeated byte spam", func(t *testing.T) {
		data := []byte("120|1|0|7|" + strings.Repeat("a", 110) + "\n")
		assert.Equal(t, ReasonRepeatedBytes, reason(t, ValidateRaw(data)))
	})

	t.Run("run of exactly the limit is rejected", func(t *testing.T) {
		data := []byte("111|1|0|7|" + strings.Repeat("a", 100) + "\n")
		assert.Equal(t, ReasonRepeatedBytes, reason(t, ValidateRaw(data)))
	})

	t.Run("long run below the limit passes", func(t *testing.T) {
		data := []byte("110|1|0|7|" + strings.Repeat("a", 99) + "\n")
		assert.NoError(t, ValidateRaw(data))
	})
}

func TestValidateMessage(t *testing.T) {
	valid := Message{Seq: 1, Slot: 2, Kind: KindCard, Fields: []string{"H7"}}

	t.Run("accepts a matching inbound message", func(t *testing.T) {
		assert.NoError(t, ValidateMessage(valid, 2, 3))
	})

	t.Run("accepts the handshake slot", func(t *testing.T) {
		m := Message{Slot: NoSlot, Kind: KindConnect, Fields: []string{"Alice"}}
		assert.NoError(t, ValidateMessage(m, NoSlot, 3))
	})

	t.Run("slot mismatch", func(t *testing.T) {
		assert.Error(t, ValidateMessage(valid, 1, 3))
	})

	t.Run("slot beyond room size", func(t *testing.T) {
		m := valid
		m.Slot = 3
		assert.Error(t, ValidateMessage(m, 3, 3))
	})

	t.Run("unknown kind", func(t *testing.T) {
		m := valid
		m.Kind = 99
		assert.Error(t, ValidateMessage(m, 2, 3))
	})

	t.Run("server only kind", func(t *testing.T) {
		m := valid
		m.Kind = KindYourTurn
		assert.Error(t, ValidateMessage(m, 2, 3))
	})

	t.Run("disconnect request is inbound", func(t *testing.T) {
		m := Message{Slot: 2, Kind: KindDisconnect}
		assert.NoError(t, ValidateMessage(m, 2, 3))
	})

	t.Run("field too long", func(t *testing.T) {
		m := valid
		m.Fields = []string{strings.Repeat("x", MaxFieldLen+1)}
		assert.Error(t, ValidateMessage(m, 2, 3))
	})
}

func TestSequenceContinuous(t *testing.T) {
	t.Run("exact next", func(t *testing.T) {
		assert.True(t, SequenceContinuous(6, 6))
	})

	t.Run("small gap within tolerance", func(t *testing.T) {
		assert.True(t, SequenceContinuous(13, 6))
	})

	t.Run("gap beyond tolerance", func(t *testing.T) {
		assert.False(t, SequenceContinuous(20, 6))
	})

	t.Run("wraparound is a small gap", func(t *testing.T) {
		assert.True(t, SequenceContinuous(2, RingSize-3))
	})

	t.Run("half ring apart", func(t *testing.T) {
		assert.False(t, SequenceContinuous(130, 2))
	})
}
