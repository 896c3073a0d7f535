package server

import (
	"sync"

	"github.com/SoMi7k/UPS/transport"
)

// connTable tracks live connections by ID. It wraps sync.Map so the accept
// loop, the handlers and Stop can touch it without extra locking. The zero
// value is ready to use; connTable must not be copied after first use.
type connTable struct {
	m sync.Map
}

// Store tracks conn under id, overwriting any existing entry.
func (t *connTable) Store(id uint32, conn *transport.Conn) {
	t.m.Store(id, conn)
}

// Load returns the connection for id and whether it was present.
func (t *connTable) Load(id uint32) (*transport.Conn, bool) {
	v, found := t.m.Load(id)
	if !found {
		return nil, false
	}
	return v.(*transport.Conn), true
}

// Delete untracks id. A no-op for an id that is not in the table.
func (t *connTable) Delete(id uint32) {
	t.m.Delete(id)
}

// Range calls f for each tracked connection until f returns false. Behavior
// is undefined if the table is modified during iteration.
func (t *connTable) Range(f func(id uint32, conn *transport.Conn) bool) {
	t.m.Range(func(k, v interface{}) bool {
		return f(k.(uint32), v.(*transport.Conn))
	})
}

// Len counts the tracked connections by iterating the table.
func (t *connTable) Len() int {
	n := 0
	t.Range(func(uint32, *transport.Conn) bool {
		n++
		return true
	})
	return n
}
