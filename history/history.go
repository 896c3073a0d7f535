// Package history keeps the bounded ring of recently sent frames used to
// replay traffic a client missed while disconnected. The ring is indexed by
// sequence number modulo protocol.RingSize, so only the most recent RingSize
// frames across all recipients are recoverable; anything older is silently
// overwritten and must be recovered from a full state snapshot instead.
package history

import (
	"sync"

	"github.com/SoMi7k/UPS/protocol"
)

type entry struct {
	set bool
	msg protocol.Message
}

// Ring is the per-room send history. It owns the room's sequence counter:
// the send path calls Assign to stamp and record each outbound message, and
// the reconnect path reads back missed messages with Missing. Safe for
// concurrent use.
type Ring struct {
	mu    sync.Mutex
	next  int
	slots [protocol.RingSize]entry
}

// New returns an empty ring with the sequence counter at zero.
func New() *Ring {
	return &Ring{}
}

// Assign stamps m with the next sequence number and records it at the slot
// index seq mod RingSize, overwriting whatever was there. Messages addressed
// to no one (slot sentinel) still consume a sequence number but are not
// recorded, so they can never be replayed.
func (r *Ring) Assign(m *protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m.Seq = r.next
	r.next = (r.next + 1) % protocol.RingSize

	if m.Slot != protocol.NoSlot {
		r.slots[m.Seq] = entry{set: true, msg: *m}
	}
}

// Lookup returns the recorded message with sequence number seq, but only if
// it is still present and addressed to slot; history overwritten by other
// traffic reads as absent.
func (r *Ring) Lookup(slot, seq int) (protocol.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookup(slot, seq)
}

func (r *Ring) lookup(slot, seq int) (protocol.Message, bool) {
	if seq < 0 || seq >= protocol.RingSize {
		return protocol.Message{}, false
	}
	e := r.slots[seq]
	if !e.set || e.msg.Slot != slot {
		return protocol.Message{}, false
	}
	return e.msg, true
}

// Latest returns the highest sequence number recorded for slot, scanning
// backward from the current write cursor. The second return is false when
// the whole ring holds nothing for that slot.
func (r *Ring) Latest(slot int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest(slot)
}

func (r *Ring) latest(slot int) (int, bool) {
	for i := 1; i <= protocol.RingSize; i++ {
		seq := (r.next - i + protocol.RingSize) % protocol.RingSize
		if e := r.slots[seq]; e.set && e.msg.Slot == slot {
			return seq, true
		}
	}
	return 0, false
}

// Missing collects, in increasing sequence order, the recorded messages for
// slot between lastReceived (exclusive) and the latest recorded sequence
// number (inclusive), walking modulo RingSize across wraparound. Entries
// overwritten in the meantime are skipped; if the client is already current,
// or appears ahead of the history, nothing is returned.
func (r *Ring) Missing(slot, lastReceived int) []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	latest, ok := r.latest(slot)
	if !ok {
		return nil
	}

	d := (latest - lastReceived + protocol.RingSize) % protocol.RingSize
	if d == 0 || d > protocol.RingSize/2 {
		// Current, or reporting a sequence number newer than anything
		// recorded for it. Either way there is nothing sound to resend.
		return nil
	}

	missed := make([]protocol.Message, 0, d)
	for j := 1; j <= d; j++ {
		seq := (lastReceived + j) % protocol.RingSize
		if m, ok := r.lookup(slot, seq); ok {
			missed = append(missed, m)
		}
	}

	return missed
}
