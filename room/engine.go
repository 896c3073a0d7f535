package room

// TurnEngine is the rules engine a room drives. The engine is deterministic
// sequential logic with no locking of its own; the room serializes every call
// through its lock, so implementations may assume single-threaded access.
type TurnEngine interface {
	// Start deals a fresh round for the given slot -> nickname players.
	Start(players map[int]string) error

	// HandFor returns the per-player payload of the dealing GAME_START
	// message: the player's own hand plus whatever the engine wants the
	// client to know about the others. Opaque to the room.
	HandFor(slot int) []string

	// ActivePlayer returns the slot whose turn it is.
	ActivePlayer() int

	// PlayCard applies a card play for slot. A rule violation is reported
	// as *MoveError; the session stays up and the player is told to retry.
	PlayCard(slot int, card string) error

	// SubmitBid applies a bid label during the bidding phase.
	SubmitBid(slot int, label string) error

	// TrickComplete reports whether the current trick has every card in and
	// is waiting for the players to acknowledge it.
	TrickComplete() bool

	// Snapshot returns the full game state as payload fields, opaque to the
	// room, suitable for a STATE message.
	Snapshot() []string

	// RoundOver reports whether the round has finished.
	RoundOver() bool

	// Result returns the finished round's summary as payload fields.
	Result() []string

	// Reset discards the round so Start can deal a new one.
	Reset()
}

// MoveError is a rejected play or bid: the rules engine refused it but the
// connection is healthy. It never crosses the network loop boundary as a
// panic; the dispatcher turns it into an INVALID notice.
type MoveError struct {
	Reason string
}

func (e *MoveError) Error() string {
	return "room: move rejected: " + e.Reason
}
