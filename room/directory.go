package room

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Directory holds the fixed set of rooms created at startup and assigns
// arriving sockets to the first one with a free seat.
type Directory struct {
	rooms []*Room

	runOnce sync.Once
	wg      sync.WaitGroup
}

// NewDirectory wraps an already-built room list.
func NewDirectory(rooms []*Room) *Directory {
	return &Directory{rooms: rooms}
}

// Rooms returns the room list.
func (d *Directory) Rooms() []*Room { return d.rooms }

// FindAvailable returns the first room that can admit another player, or
// nil when every room is full.
func (d *Directory) FindAvailable() *Room {
	for _, r := range d.rooms {
		if r.CanJoin() {
			return r
		}
	}
	return nil
}

// Find returns the room with the given id, or nil.
func (d *Directory) Find(id int) *Room {
	for _, r := range d.rooms {
		if r.ID() == id {
			return r
		}
	}
	return nil
}

// Run starts every room's background worker. It may be called once; the
// workers stop when ctx is cancelled and Wait returns after they finish.
func (d *Directory) Run(ctx context.Context) {
	d.runOnce.Do(func() {
		for _, r := range d.rooms {
			d.wg.Add(1)
			go func(r *Room) {
				defer d.wg.Done()
				r.Run(ctx)
			}(r)
		}
	})
}

// Wait blocks until every room worker has exited.
func (d *Directory) Wait() { d.wg.Wait() }

// Status renders a one-line occupancy overview for the log.
func (d *Directory) Status() string {
	parts := make([]string, 0, len(d.rooms))
	for _, r := range d.rooms {
		parts = append(parts, fmt.Sprintf("room %d: %d/%d",
			r.ID(), r.Registry().ActiveCount(), r.Capacity()))
	}
	return strings.Join(parts, ", ")
}
