package session

import (
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoMi7k/UPS/history"
	"github.com/SoMi7k/UPS/logger"
	"github.com/SoMi7k/UPS/protocol"
	"github.com/SoMi7k/UPS/transport"
)

func newTestRegistry(t *testing.T, capacity int) *Registry {
	t.Helper()
	return NewRegistry(Config{
		Capacity:    capacity,
		ReplayPause: time.Millisecond,
	}, history.New(), logger.Nop())
}

// drainedConn returns a framed connection whose peer discards everything, so
// registry writes never block the test.
func drainedConn(t *testing.T) *transport.Conn {
	t.Helper()
	local, peer := net.Pipe()
	go func() { _, _ = io.Copy(io.Discard, peer) }()
	t.Cleanup(func() {
		_ = local.Close()
		_ = peer.Close()
	})
	return transport.New(local)
}

// capturedConn returns a framed connection plus a channel of the decoded
// messages its peer receives.
func capturedConn(t *testing.T) (*transport.Conn, <-chan protocol.Message) {
	t.Helper()
	local, peer := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = peer.Close()
	})

	received := make(chan protocol.Message, 64)
	go func() {
		pc := transport.New(peer)
		for {
			raw, err := pc.ReadFrame()
			if err != nil {
				close(received)
				return
			}
			if m, err := protocol.Decode(raw); err == nil {
				received <- m
			}
		}
	}()
	return transport.New(local), received
}

func TestRegistry_Authorize(t *testing.T) {
	reg := newTestRegistry(t, 3)

	alice := reg.Add(drainedConn(t), "pipe")
	bob := reg.Add(drainedConn(t), "pipe")

	t.Run("new session has no slot", func(t *testing.T) {
		assert.Equal(t, protocol.NoSlot, alice.Slot())
		assert.False(t, alice.Authorized())
	})

	t.Run("assigns the lowest free slot", func(t *testing.T) {
		slot, err := reg.Authorize(alice, "Alice")
		require.NoError(t, err)
		assert.Equal(t, 0, slot)

		slot, err = reg.Authorize(bob, "Bob")
		require.NoError(t, err)
		assert.Equal(t, 1, slot)
		assert.Equal(t, 2, reg.AuthorizedCount())
	})

	t.Run("rejects a taken nickname", func(t *testing.T) {
		late := reg.Add(drainedConn(t), "pipe")
		_, err := reg.Authorize(late, "Alice")
		assert.ErrorIs(t, err, ErrNameTaken)
		assert.False(t, late.Authorized())
	})

	t.Run("freed slot is reused", func(t *testing.T) {
		reg.DisconnectPermanently(alice, "")

		carol := reg.Add(drainedConn(t), "pipe")
		slot, err := reg.Authorize(carol, "Carol")
		require.NoError(t, err)
		assert.Equal(t, 0, slot)
	})

	t.Run("no free slot left", func(t *testing.T) {
		d := reg.Add(drainedConn(t), "pipe")
		_, err := reg.Authorize(d, "Dave")
		require.NoError(t, err)

		e := reg.Add(drainedConn(t), "pipe")
		_, err = reg.Authorize(e, "Eve")
		assert.ErrorIs(t, err, ErrNoFreeSlot)
	})
}

func TestRegistry_SweepOnce(t *testing.T) {
	cfg := Config{Capacity: 3, AuthTimeout: 10 * time.Second, ReconnectGrace: time.Minute}

	t.Run("removes unauthorized sessions after the auth timeout", func(t *testing.T) {
		reg := NewRegistry(cfg, history.New(), logger.Nop())
		idle := reg.Add(drainedConn(t), "pipe")

		reg.SweepOnce(time.Now().Add(5 * time.Second))
		assert.Len(t, reg.Sessions(), 1)

		reg.SweepOnce(time.Now().Add(11 * time.Second))
		assert.Empty(t, reg.Sessions())
		assert.False(t, idle.Connected())
	})

	t.Run("authorized pending session survives the auth timeout", func(t *testing.T) {
		reg := NewRegistry(cfg, history.New(), logger.Nop())
		s := reg.Add(drainedConn(t), "pipe")
		_, err := reg.Authorize(s, "Alice")
		require.NoError(t, err)
		reg.MarkPendingReconnect(s)

		reg.SweepOnce(time.Now().Add(11 * time.Second))
		assert.Len(t, reg.Sessions(), 1)

		reg.SweepOnce(time.Now().Add(2 * time.Minute))
		assert.Empty(t, reg.Sessions())
	})

	t.Run("connected authorized session is never swept", func(t *testing.T) {
		reg := NewRegistry(cfg, history.New(), logger.Nop())
		s := reg.Add(drainedConn(t), "pipe")
		_, err := reg.Authorize(s, "Alice")
		require.NoError(t, err)

		reg.SweepOnce(time.Now().Add(time.Hour))
		assert.Len(t, reg.Sessions(), 1)
	})
}

func TestRegistry_Reconnect(t *testing.T) {
	t.Run("replays the frames after the reported sequence", func(t *testing.T) {
		reg := newTestRegistry(t, 2)
		s := reg.Add(drainedConn(t), "pipe")
		slot, err := reg.Authorize(s, "Alice")
		require.NoError(t, err)

		for i := 0; i < 6; i++ {
			reg.SendTo(slot, protocol.KindState, strconv.Itoa(i))
		}
		reg.MarkPendingReconnect(s)
		assert.True(t, s.PendingReconnect())

		found := reg.FindDisconnected("Alice")
		require.Same(t, s, found)

		conn, received := capturedConn(t)
		require.NoError(t, reg.Reconnect(s, conn, 2))
		assert.True(t, s.Connected())

		var seqs []int
		for i := 0; i < 3; i++ {
			select {
			case m := <-received:
				seqs = append(seqs, m.Seq)
				assert.Equal(t, protocol.KindState, m.Kind)
			case <-time.After(time.Second):
				t.Fatal("replay frame not received")
			}
		}
		assert.Equal(t, []int{3, 4, 5}, seqs)
	})

	t.Run("rejects a session that is not pending", func(t *testing.T) {
		reg := newTestRegistry(t, 2)
		s := reg.Add(drainedConn(t), "pipe")
		_, err := reg.Authorize(s, "Alice")
		require.NoError(t, err)

		err = reg.Reconnect(s, drainedConn(t), 0)
		assert.ErrorIs(t, err, ErrNotPending)
	})

	t.Run("rejects after the grace period", func(t *testing.T) {
		reg := NewRegistry(Config{Capacity: 2, ReconnectGrace: time.Millisecond},
			history.New(), logger.Nop())
		s := reg.Add(drainedConn(t), "pipe")
		_, err := reg.Authorize(s, "Alice")
		require.NoError(t, err)
		reg.MarkPendingReconnect(s)

		time.Sleep(5 * time.Millisecond)
		assert.Nil(t, reg.FindDisconnected("Alice"))
		err = reg.Reconnect(s, drainedConn(t), 0)
		assert.ErrorIs(t, err, ErrGraceExpired)
	})
}

func TestRegistry_Detach(t *testing.T) {
	reg := newTestRegistry(t, 2)
	conn := drainedConn(t)
	s := reg.Add(conn, "pipe")

	reg.Detach(s)
	assert.Empty(t, reg.Sessions())

	// The socket stays open for whoever the handshake hands it to.
	assert.NoError(t, conn.WriteFrame([]byte("8|0|1|8\n")))
}

func TestRegistry_StatusBroadcasts(t *testing.T) {
	reg := newTestRegistry(t, 2)

	alice := reg.Add(drainedConn(t), "pipe")
	_, err := reg.Authorize(alice, "Alice")
	require.NoError(t, err)

	bobConn, received := capturedConn(t)
	bob := reg.Add(bobConn, "pipe")
	_, err = reg.Authorize(bob, "Bob")
	require.NoError(t, err)

	next := func(t *testing.T) protocol.Message {
		t.Helper()
		select {
		case m := <-received:
			return m
		case <-time.After(time.Second):
			t.Fatal("no status broadcast received")
			return protocol.Message{}
		}
	}

	t.Run("pending reconnect", func(t *testing.T) {
		reg.MarkPendingReconnect(alice)
		m := next(t)
		require.Equal(t, protocol.KindStatus, m.Kind)
		require.Len(t, m.Fields, 3)
		assert.Equal(t, StatusPending, m.Fields[0])
		assert.Equal(t, "Alice", m.Fields[1])
	})

	t.Run("reconnected", func(t *testing.T) {
		require.NoError(t, reg.Reconnect(alice, drainedConn(t), 0))
		m := next(t)
		require.Equal(t, protocol.KindStatus, m.Kind)
		assert.Equal(t, []string{StatusReconnected, "Alice"}, m.Fields)
	})

	t.Run("removed", func(t *testing.T) {
		reg.DisconnectPermanently(alice, "goodbye")
		m := next(t)
		require.Equal(t, protocol.KindStatus, m.Kind)
		require.Len(t, m.Fields, 3)
		assert.Equal(t, StatusRemoved, m.Fields[0])
		assert.Equal(t, "Alice", m.Fields[1])
		assert.Equal(t, "1", m.Fields[2])
	})
}

func TestRegistry_Counts(t *testing.T) {
	reg := newTestRegistry(t, 3)

	a := reg.Add(drainedConn(t), "pipe")
	_, err := reg.Authorize(a, "Alice")
	require.NoError(t, err)
	reg.Add(drainedConn(t), "pipe")

	assert.Equal(t, 2, reg.ConnectedCount())
	assert.Equal(t, 2, reg.ActiveCount())
	assert.Equal(t, 1, reg.AuthorizedCount())

	reg.MarkPendingReconnect(a)
	assert.Equal(t, 1, reg.ConnectedCount())
	assert.Equal(t, 1, reg.ActiveCount())
	assert.Equal(t, 1, reg.AuthorizedCount())

	players := reg.Players()
	assert.Equal(t, map[int]string{0: "Alice"}, players)
}
