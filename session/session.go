// Package session tracks the clients of one game room across their whole
// lifetime: registration on accept, nickname authorization and slot
// assignment, the pending-reconnect window after a network drop, permanent
// removal, and the periodic timeout sweep. It also owns the room's outbound
// send path, recording every addressed frame into the retransmission history
// before it reaches the socket.
package session

import (
	"errors"
	"time"

	"github.com/SoMi7k/UPS/transport"
)

var (
	// ErrNameTaken means another session in the room already holds the
	// requested display name.
	ErrNameTaken = errors.New("session: nickname already in use")

	// ErrNoFreeSlot means every player slot of the room is allocated.
	ErrNoFreeSlot = errors.New("session: no free player slot")

	// ErrNotPending means the session is not waiting for a reconnect.
	ErrNotPending = errors.New("session: session is not pending reconnect")

	// ErrGraceExpired means the reconnect grace period already elapsed.
	ErrGraceExpired = errors.New("session: reconnect grace period elapsed")
)

// Session is one player connection across its lifetime, including across
// network drops. All fields are guarded by the owning registry's lock; use
// the accessor methods or registry operations.
type Session struct {
	reg *Registry

	id        uint32
	conn      *transport.Conn // nil while disconnected
	slot      int             // protocol.NoSlot until authorized
	nickname  string
	connected bool
	pending   bool // disconnected, within the reconnect grace window
	auth      bool // passed the nickname uniqueness check
	lastSeen  time.Time
	createdAt time.Time
	addr      string
}

// ID returns the connection identifier assigned at registration. Stable for
// the session's lifetime, including across reconnects.
func (s *Session) ID() uint32 { return s.id }

// Slot returns the assigned player slot, or the sentinel while unauthorized.
func (s *Session) Slot() int {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	return s.slot
}

// Nickname returns the display name, empty until authorized.
func (s *Session) Nickname() string {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	return s.nickname
}

// Authorized reports whether the session passed the nickname check.
func (s *Session) Authorized() bool {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	return s.auth
}

// Connected reports whether the session currently has a live socket.
func (s *Session) Connected() bool {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	return s.connected
}

// PendingReconnect reports whether the session is inside its grace window.
func (s *Session) PendingReconnect() bool {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	return s.pending
}

// Addr returns the peer address the session registered from.
func (s *Session) Addr() string { return s.addr }
