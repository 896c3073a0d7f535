package session

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/SoMi7k/UPS/history"
	"github.com/SoMi7k/UPS/logger"
	"github.com/SoMi7k/UPS/protocol"
	"github.com/SoMi7k/UPS/transport"
)

// Status codes sent as field 0 of a STATUS broadcast.
const (
	StatusRemoved     = "1" // fields: code, nickname, connected count
	StatusPending     = "2" // fields: code, nickname, grace seconds remaining
	StatusReconnected = "3" // fields: code, nickname
)

// Config bounds a registry's capacity and timers. Zero durations fall back
// to the defaults.
type Config struct {
	// Capacity is the number of player slots, the room's required player
	// count.
	Capacity int

	// AuthTimeout is how long an unauthorized session may exist before the
	// sweep removes it. A socket that never sends a valid name is assumed
	// abandoned quickly.
	AuthTimeout time.Duration

	// ReconnectGrace is how long an authorized session may stay pending
	// reconnect before the sweep removes it permanently. Deliberately much
	// longer than AuthTimeout: removing a mid-game player forfeits state.
	ReconnectGrace time.Duration

	// ReplayPause spaces retransmitted frames so a fresh connection is not
	// overwhelmed.
	ReplayPause time.Duration
}

func (c Config) withDefaults() Config {
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if c.ReconnectGrace <= 0 {
		c.ReconnectGrace = 60 * time.Second
	}
	if c.ReplayPause <= 0 {
		c.ReplayPause = 10 * time.Millisecond
	}
	return c
}

// Registry is the per-room session list and slot pool. One lock guards every
// mutation of the list, the pool and session fields; the lock is never held
// across a socket write, so a slow send cannot block unrelated connections.
type Registry struct {
	cfg  Config
	ring *history.Ring
	log  logger.Logger

	mu       sync.Mutex
	sessions []*Session
	slots    []bool
	nextID   uint32
	auth     int
}

// NewRegistry returns an empty registry with capacity player slots, recording
// outbound traffic into ring.
func NewRegistry(cfg Config, ring *history.Ring, log logger.Logger) *Registry {
	cfg = cfg.withDefaults()
	return &Registry{
		cfg:   cfg,
		ring:  ring,
		log:   log,
		slots: make([]bool, cfg.Capacity),
	}
}

// Add registers a freshly accepted connection as an unauthorized session with
// no player slot. The real slot is allocated by Authorize.
func (r *Registry) Add(conn *transport.Conn, addr string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := time.Now()
	s := &Session{
		reg:       r,
		id:        r.nextID,
		conn:      conn,
		slot:      protocol.NoSlot,
		connected: true,
		lastSeen:  now,
		createdAt: now,
		addr:      addr,
	}
	r.sessions = append(r.sessions, s)

	r.log.Debug("session registered",
		logger.F("session", s.id), logger.F("addr", addr))
	return s
}

// Authorize checks nickname uniqueness within the room and, on success,
// allocates the lowest free player slot and marks the session authorized.
func (r *Registry) Authorize(s *Session, nickname string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, other := range r.sessions {
		if other != s && other.nickname == nickname {
			return protocol.NoSlot, ErrNameTaken
		}
	}

	slot := protocol.NoSlot
	for i, taken := range r.slots {
		if !taken {
			slot = i
			break
		}
	}
	if slot == protocol.NoSlot {
		return protocol.NoSlot, ErrNoFreeSlot
	}

	r.slots[slot] = true
	s.slot = slot
	s.nickname = nickname
	s.auth = true
	s.lastSeen = time.Now()
	r.auth++

	r.log.Info("session authorized",
		logger.F("session", s.id), logger.F("slot", slot), logger.F("nickname", nickname))
	return slot, nil
}

// DisconnectPermanently removes the session from the registry, frees its
// slot, sends the final notice when reason is non-empty, closes the socket
// and broadcasts the updated member count to the remaining sessions. Safe to
// call for a session that was already removed.
func (r *Registry) DisconnectPermanently(s *Session, reason string) {
	r.mu.Lock()
	idx := -1
	for i, other := range r.sessions {
		if other == s {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return
	}
	r.sessions = append(r.sessions[:idx], r.sessions[idx+1:]...)

	conn := s.conn
	wasAuth := s.auth
	nickname := s.nickname
	if s.slot != protocol.NoSlot {
		r.slots[s.slot] = false
	}
	if wasAuth {
		r.auth--
	}
	s.conn = nil
	s.connected = false
	s.pending = false
	remaining := strconv.Itoa(r.connectedLocked())
	r.mu.Unlock()

	if conn != nil {
		if reason != "" {
			r.write(conn, protocol.Message{
				Slot: protocol.NoSlot, Kind: protocol.KindDisconnect, Fields: []string{reason},
			})
		}
		_ = conn.Close()
	}

	r.log.Info("session removed",
		logger.F("session", s.id), logger.F("nickname", nickname), logger.F("reason", reason))

	if wasAuth {
		r.Broadcast(protocol.KindStatus, StatusRemoved, nickname, remaining)
	}
}

// Detach removes the session from the registry without touching its socket.
// Used when a handshake turns out to be a reconnect and the socket moves to
// the pending session it belongs to.
func (r *Registry) Detach(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, other := range r.sessions {
		if other == s {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			break
		}
	}
	s.conn = nil
	s.connected = false
}

// MarkPendingReconnect closes the socket and parks the session in the
// reconnect grace window without freeing its slot. The other players get a
// STATUS broadcast carrying the grace period so they know how long the game
// will wait.
func (r *Registry) MarkPendingReconnect(s *Session) {
	r.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.pending = true
	s.lastSeen = time.Now()
	nickname := s.nickname
	r.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	grace := strconv.Itoa(int(r.cfg.ReconnectGrace / time.Second))
	r.log.Info("session pending reconnect",
		logger.F("session", s.id), logger.F("nickname", nickname), logger.F("grace_s", grace))
	r.Broadcast(protocol.KindStatus, StatusPending, nickname, grace)
}

// FindDisconnected returns the pending session holding nickname whose grace
// period has not yet elapsed, or nil.
func (r *Registry) FindDisconnected(nickname string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.pending && s.nickname == nickname &&
			time.Since(s.lastSeen) < r.cfg.ReconnectGrace {
			return s
		}
	}
	return nil
}

// Reconnect swaps the new socket into a pending session and replays every
// recorded frame after lastReceived, paced by ReplayPause and in increasing
// sequence order. Frames the ring already overwrote are lost; the client
// recovers those from the next full state snapshot.
func (r *Registry) Reconnect(s *Session, conn *transport.Conn, lastReceived int) error {
	r.mu.Lock()
	if !s.pending {
		r.mu.Unlock()
		return ErrNotPending
	}
	if time.Since(s.lastSeen) >= r.cfg.ReconnectGrace {
		r.mu.Unlock()
		return ErrGraceExpired
	}

	s.conn = conn
	s.connected = true
	s.pending = false
	s.lastSeen = time.Now()
	slot := s.slot
	nickname := s.nickname
	r.mu.Unlock()

	r.BroadcastExcept(slot, protocol.KindStatus, StatusReconnected, nickname)

	missed := r.ring.Missing(slot, lastReceived)
	r.log.Info("replaying missed frames",
		logger.F("session", s.id), logger.F("slot", slot),
		logger.F("last_received", lastReceived), logger.F("count", len(missed)))

	for _, m := range missed {
		// Replayed frames keep their original sequence numbers.
		if err := r.write(conn, m); err != nil {
			return fmt.Errorf("session: replay seq %d: %w", m.Seq, err)
		}
		time.Sleep(r.cfg.ReplayPause)
	}

	return nil
}

// Touch stamps the session's liveness clock.
func (r *Registry) Touch(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.lastSeen = time.Now()
}

// SweepOnce applies both timeout policies as of now: unauthorized sessions
// older than AuthTimeout and pending sessions past ReconnectGrace are removed
// permanently. The two deadlines are independent; one never preempts the
// other. Invoked on a fixed interval by the room's background worker.
func (r *Registry) SweepOnce(now time.Time) {
	var unauth, expired []*Session

	r.mu.Lock()
	for _, s := range r.sessions {
		switch {
		case !s.auth && now.Sub(s.createdAt) >= r.cfg.AuthTimeout:
			unauth = append(unauth, s)
		case s.auth && s.pending && now.Sub(s.lastSeen) >= r.cfg.ReconnectGrace:
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()

	for _, s := range unauth {
		r.log.Warn("authorization timeout", logger.F("session", s.id), logger.F("addr", s.addr))
		r.DisconnectPermanently(s, "authorization timeout")
	}
	for _, s := range expired {
		r.log.Warn("reconnect grace elapsed", logger.F("session", s.id), logger.F("nickname", s.Nickname()))
		r.DisconnectPermanently(s, "")
	}
}

// DisconnectAll sends every connected session a final notice and removes it.
// Used on server shutdown.
func (r *Registry) DisconnectAll(reason string) {
	r.mu.Lock()
	all := make([]*Session, len(r.sessions))
	copy(all, r.sessions)
	r.mu.Unlock()

	for _, s := range all {
		r.DisconnectPermanently(s, reason)
	}
}

// SendTo sends one message to the player holding slot. The message is
// recorded into the retransmission history before the socket write.
func (r *Registry) SendTo(slot int, kind protocol.Kind, fields ...string) {
	r.mu.Lock()
	var conn *transport.Conn
	for _, s := range r.sessions {
		if s.slot == slot && s.connected {
			conn = s.conn
			break
		}
	}
	r.mu.Unlock()

	m := protocol.Message{Slot: slot, Kind: kind, Fields: fields}
	r.ring.Assign(&m)

	if conn == nil {
		r.log.Debug("send to absent player", logger.F("slot", slot), logger.F("kind", kind.String()))
		return
	}
	if err := r.write(conn, m); err != nil {
		r.log.Warn("send failed",
			logger.F("slot", slot), logger.F("kind", kind.String()), logger.F("error", err.Error()))
	}
}

// SendOn sends one message over a specific session's socket addressed to the
// session's current slot. Used during the handshake, before a slot is
// assigned; slotless frames are not recorded for retransmission.
func (r *Registry) SendOn(s *Session, kind protocol.Kind, fields ...string) {
	r.mu.Lock()
	conn := s.conn
	slot := s.slot
	r.mu.Unlock()
	if conn == nil {
		return
	}

	m := protocol.Message{Slot: slot, Kind: kind, Fields: fields}
	r.ring.Assign(&m)
	if err := r.write(conn, m); err != nil {
		r.log.Warn("send failed",
			logger.F("session", s.id), logger.F("kind", kind.String()), logger.F("error", err.Error()))
	}
}

// Broadcast sends the message to every connected session, each addressed and
// sequenced individually.
func (r *Registry) Broadcast(kind protocol.Kind, fields ...string) {
	r.BroadcastExcept(protocol.NoSlot-1, kind, fields...)
}

// BroadcastExcept broadcasts to every connected session except the one
// holding the given slot.
func (r *Registry) BroadcastExcept(exceptSlot int, kind protocol.Kind, fields ...string) {
	type target struct {
		conn *transport.Conn
		slot int
	}

	r.mu.Lock()
	targets := make([]target, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.connected && s.slot != exceptSlot {
			targets = append(targets, target{conn: s.conn, slot: s.slot})
		}
	}
	r.mu.Unlock()

	for _, t := range targets {
		m := protocol.Message{Slot: t.slot, Kind: kind, Fields: fields}
		r.ring.Assign(&m)
		if err := r.write(t.conn, m); err != nil {
			r.log.Warn("broadcast send failed",
				logger.F("slot", t.slot), logger.F("kind", kind.String()), logger.F("error", err.Error()))
		}
	}
}

// ConnectedCount returns the number of sessions with a live socket.
func (r *Registry) ConnectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectedLocked()
}

func (r *Registry) connectedLocked() int {
	n := 0
	for _, s := range r.sessions {
		if s.connected {
			n++
		}
	}
	return n
}

// ActiveCount returns the number of sessions that are connected and not
// pending reconnect. Room admission compares this against capacity.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.connected && !s.pending {
			n++
		}
	}
	return n
}

// AuthorizedCount returns how many sessions passed the nickname check and
// still hold a slot.
func (r *Registry) AuthorizedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.auth
}

// Players returns slot -> nickname for every authorized session.
func (r *Registry) Players() map[int]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	players := make(map[int]string, r.auth)
	for _, s := range r.sessions {
		if s.auth {
			players[s.slot] = s.nickname
		}
	}
	return players
}

// Sessions returns a snapshot of the current session list.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

func (r *Registry) write(conn *transport.Conn, m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return conn.WriteFrame(frame)
}
