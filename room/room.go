// Package room groups the sessions of one game table with the turn engine
// that rules it. A room owns one session registry, one engine instance and
// one capacity; many rooms run in parallel, each serializing its engine
// behind its own lock. The directory hands arriving sockets to the first
// room with space.
package room

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/SoMi7k/UPS/history"
	"github.com/SoMi7k/UPS/logger"
	"github.com/SoMi7k/UPS/protocol"
	"github.com/SoMi7k/UPS/results"
	"github.com/SoMi7k/UPS/session"
)

// Config carries a room's capacity and timing knobs. Zero durations fall
// back to the defaults.
type Config struct {
	// Capacity is the required player count; the game starts exactly when
	// this many sessions are authorized.
	Capacity int

	// SweepInterval is the cadence of the timeout sweep and the
	// start/stop check.
	SweepInterval time.Duration

	// StartDelay is the pause between announcing a starting game and
	// dealing the cards, giving clients time to settle.
	StartDelay time.Duration

	// BidNotifyDelay is the pause after a bid broadcast before the active
	// player is prompted.
	BidNotifyDelay time.Duration

	// AuthTimeout and ReconnectGrace are forwarded to the session registry.
	AuthTimeout    time.Duration
	ReconnectGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 2 * time.Second
	}
	if c.StartDelay <= 0 {
		c.StartDelay = 5 * time.Second
	}
	if c.BidNotifyDelay <= 0 {
		c.BidNotifyDelay = time.Second
	}
	return c
}

// Room is one game table. The engine and the started flag are only ever
// touched under mu, so at most one worker drives the rules engine at a time.
// The trick-acknowledgement barrier has its own lock so a slow engine call
// cannot delay ack counting.
type Room struct {
	id  int
	cfg Config
	reg *session.Registry
	log logger.Logger

	store results.Store

	mu        sync.Mutex
	engine    TurnEngine
	started   bool
	suspended bool // round in progress but a player is pending reconnect
	round     int

	trickMu   sync.Mutex
	trickAcks int
}

// New builds a room with its own session registry and history ring.
func New(id int, cfg Config, engine TurnEngine, store results.Store, log logger.Logger) *Room {
	cfg = cfg.withDefaults()
	log = log.With(logger.F("room", id))

	reg := session.NewRegistry(session.Config{
		Capacity:       cfg.Capacity,
		AuthTimeout:    cfg.AuthTimeout,
		ReconnectGrace: cfg.ReconnectGrace,
	}, history.New(), log)

	return &Room{
		id:     id,
		cfg:    cfg,
		reg:    reg,
		log:    log,
		store:  store,
		engine: engine,
	}
}

// ID returns the room identifier.
func (r *Room) ID() int { return r.id }

// Capacity returns the required player count.
func (r *Room) Capacity() int { return r.cfg.Capacity }

// Registry returns the room's session registry.
func (r *Room) Registry() *session.Registry { return r.reg }

// Started reports whether a round is in progress, including while suspended
// waiting for a reconnect.
func (r *Room) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Suspended reports whether the round is paused for a pending reconnect.
func (r *Room) Suspended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.suspended
}

// CanJoin reports whether the room can admit another socket: the number of
// active (connected, non-pending) sessions is below capacity.
func (r *Room) CanJoin() bool {
	return r.reg.ActiveCount() < r.cfg.Capacity
}

// Run drives the room's background work until ctx is cancelled: the session
// timeout sweep and the game start/stop check, both on the same cadence.
func (r *Room) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.reg.SweepOnce(now)
			r.checkStartStop()
		}
	}
}

// checkStartStop drives the round state machine on every sweep tick. A drop
// mid-game suspends the round but keeps its state: the engine's deal survives
// the reconnect grace window and play resumes where it left off. The deal is
// only discarded when a seat is permanently vacated, because the round cannot
// continue without its player.
func (r *Room) checkStartStop() {
	auth := r.reg.AuthorizedCount()
	active := r.reg.ActiveCount()

	r.mu.Lock()
	started := r.started
	suspended := r.suspended
	r.mu.Unlock()

	switch {
	case !started && auth == r.cfg.Capacity && active == r.cfg.Capacity:
		r.log.Info("all players authorized, starting game")
		r.startRound(true)

	case started && auth < r.cfg.Capacity:
		r.mu.Lock()
		r.started = false
		r.suspended = false
		r.engine.Reset()
		r.mu.Unlock()
		r.resetTrickAcks()
		r.log.Info("player removed mid-game, abandoning round",
			logger.F("authorized", auth))
		r.reg.Broadcast(protocol.KindWaitLobby, strconv.Itoa(auth))

	case started && !suspended && active < r.cfg.Capacity:
		r.mu.Lock()
		r.suspended = true
		r.mu.Unlock()
		r.resetTrickAcks()
		r.log.Info("player lost mid-game, suspending",
			logger.F("authorized", auth), logger.F("active", active))
		r.reg.Broadcast(protocol.KindWait)

	case started && suspended && active == r.cfg.Capacity:
		r.resumeRound()
	}
}

// resumeRound picks the suspended round back up after everyone reconnected:
// same deal, same turn, re-synced with a fresh snapshot.
func (r *Room) resumeRound() {
	r.mu.Lock()
	r.suspended = false
	state := r.engine.Snapshot()
	active := r.engine.ActivePlayer()
	r.mu.Unlock()

	r.log.Info("all players back, resuming round")
	r.reg.Broadcast(protocol.KindState, state...)
	r.reg.SendTo(active, protocol.KindYourTurn)
}

// startRound announces the round, waits out the start delay, deals via the
// engine and distributes the per-player hands, the opening state and the
// first turn prompt.
func (r *Room) startRound(fresh bool) {
	r.mu.Lock()
	if fresh && r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.suspended = false
	r.round++
	round := r.round
	r.mu.Unlock()
	r.resetTrickAcks()

	r.reg.Broadcast(protocol.KindGameStart)
	time.Sleep(r.cfg.StartDelay)

	players := r.reg.Players()

	r.mu.Lock()
	if err := r.engine.Start(players); err != nil {
		r.started = false
		r.mu.Unlock()
		r.log.Error("engine failed to start round", logger.F("error", err.Error()))
		return
	}
	hands := make(map[int][]string, len(players))
	for slot := range players {
		hands[slot] = r.engine.HandFor(slot)
	}
	state := r.engine.Snapshot()
	active := r.engine.ActivePlayer()
	r.mu.Unlock()

	for slot, hand := range hands {
		r.reg.SendTo(slot, protocol.KindGameStart, hand...)
	}
	for slot := range players {
		r.reg.SendTo(slot, protocol.KindState, state...)
	}
	r.reg.SendTo(active, protocol.KindYourTurn)

	r.log.Info("round started", logger.F("round", round), logger.F("players", len(players)))
}

// PlayCard applies a card play and distributes the resulting state. A
// *MoveError return means the move was rejected and the caller should tell
// the player; other errors are internal.
func (r *Room) PlayCard(slot int, card string) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return &MoveError{Reason: "game is not running"}
	}
	if r.suspended {
		r.mu.Unlock()
		return &MoveError{Reason: "game is suspended"}
	}
	if err := r.engine.PlayCard(slot, card); err != nil {
		r.mu.Unlock()
		return err
	}
	state := r.engine.Snapshot()
	trickDone := r.engine.TrickComplete()
	roundOver := r.engine.RoundOver()
	active := r.engine.ActivePlayer()
	r.mu.Unlock()

	r.reg.Broadcast(protocol.KindState, state...)

	switch {
	case roundOver:
		r.finishRound()
	case trickDone:
		// The next turn prompt waits for every player to acknowledge the
		// completed trick; see AckTrick.
	default:
		r.reg.SendTo(active, protocol.KindYourTurn)
	}
	return nil
}

// SubmitBid applies a bid and, after a short pause, prompts the next active
// player.
func (r *Room) SubmitBid(slot int, label string) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return &MoveError{Reason: "game is not running"}
	}
	if r.suspended {
		r.mu.Unlock()
		return &MoveError{Reason: "game is suspended"}
	}
	if err := r.engine.SubmitBid(slot, label); err != nil {
		r.mu.Unlock()
		return err
	}
	state := r.engine.Snapshot()
	active := r.engine.ActivePlayer()
	r.mu.Unlock()

	r.reg.Broadcast(protocol.KindState, state...)
	time.Sleep(r.cfg.BidNotifyDelay)
	r.reg.SendTo(active, protocol.KindYourTurn)
	return nil
}

// AckTrick counts one player's acknowledgement of a completed trick. The
// last arrival resets the counter and prompts the trick winner, so nobody
// blocks waiting for the others.
func (r *Room) AckTrick(slot int) {
	r.trickMu.Lock()
	r.trickAcks++
	done := r.trickAcks >= r.cfg.Capacity
	if done {
		r.trickAcks = 0
	}
	r.trickMu.Unlock()

	if !done {
		return
	}

	r.mu.Lock()
	active := r.engine.ActivePlayer()
	r.mu.Unlock()

	r.log.Debug("trick acknowledged by all", logger.F("next", active))
	r.reg.SendTo(active, protocol.KindYourTurn)
}

// resetTrickAcks clears the barrier on round transitions so an ack from an
// abandoned trick cannot count toward the next round's first trick.
func (r *Room) resetTrickAcks() {
	r.trickMu.Lock()
	r.trickAcks = 0
	r.trickMu.Unlock()
}

// HandleReset processes a RESET request. "ANO" restarts the round when
// enough players are present, otherwise the requester is told to wait; any
// other label is an explicit quit and the returned flag tells the caller to
// disconnect the session.
func (r *Room) HandleReset(slot int, label string) (disconnect bool) {
	if label != "ANO" {
		return true
	}

	if r.reg.ConnectedCount() < r.cfg.Capacity {
		r.reg.SendTo(slot, protocol.KindWaitLobby, strconv.Itoa(r.reg.AuthorizedCount()))
		return false
	}

	r.mu.Lock()
	r.engine.Reset()
	r.mu.Unlock()
	r.startRound(false)
	return false
}

// SendState sends the requesting player a full state snapshot. Used after a
// reconnect to re-sync anything the frame replay could not cover.
func (r *Room) SendState(slot int) {
	r.mu.Lock()
	started := r.started
	var state []string
	if started {
		state = r.engine.Snapshot()
	}
	r.mu.Unlock()

	if started {
		r.reg.SendTo(slot, protocol.KindState, state...)
	}
}

// LatestResult returns the room's most recent stored round summary.
func (r *Room) LatestResult(ctx context.Context) ([]string, bool) {
	if r.store == nil {
		return nil, false
	}
	summary, _, found, err := r.store.Latest(ctx, r.id)
	if err != nil {
		r.log.Warn("result lookup failed", logger.F("error", err.Error()))
		return nil, false
	}
	return summary, found
}

// finishRound broadcasts the summary and stores it for later recovery.
func (r *Room) finishRound() {
	r.mu.Lock()
	summary := r.engine.Result()
	round := r.round
	r.mu.Unlock()

	r.reg.Broadcast(protocol.KindResult, summary...)

	if r.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.Save(ctx, r.id, round, summary); err != nil {
			r.log.Warn("storing round result failed", logger.F("error", err.Error()))
		}
	}

	r.log.Info("round finished", logger.F("round", round))
}
