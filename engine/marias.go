// Package engine implements the Mariáš round rules behind the room's
// turn-engine interface: dealing, the licitation bid, trick play with
// follow-suit enforcement and the end-of-round scoring.
package engine

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"

	"github.com/SoMi7k/UPS/room"
)

// The 32-card German-suited deck used by Mariáš, written as suit letter
// plus rank.
var (
	suits = []string{"H", "D", "C", "S"}
	ranks = []string{"7", "8", "9", "10", "J", "Q", "K", "A"}
)

// rankValue orders cards within a suit; higher wins the trick.
var rankValue = map[string]int{
	"7": 0, "8": 1, "9": 2, "10": 3, "J": 4, "Q": 5, "K": 6, "A": 7,
}

// cardPoints is the Mariáš count: only aces and tens score.
var cardPoints = map[string]int{"A": 10, "10": 10}

// Game modes the licitator may call.
var bids = map[string]bool{
	"HRA":   true,
	"SEDMA": true,
	"BETL":  true,
	"DURCH": true,
}

type phase int

const (
	phaseIdle phase = iota
	phaseBidding
	phasePlay
	phaseDone
)

type playedCard struct {
	slot int
	card string
}

// Marias is a single-table rules engine. It is not safe for concurrent use;
// the owning room serializes access.
type Marias struct {
	players map[int]string
	order   []int

	phase     phase
	round     int
	licitator int
	mode      string

	hands  map[int][]string
	trick  []playedCard
	active int
	points map[int]int
	tricks map[int]int
}

// New returns an engine ready for Start.
func New() *Marias {
	return &Marias{}
}

// Start deals a fresh round to the given players. The licitator rotates
// each round through the slot order.
func (m *Marias) Start(players map[int]string) error {
	if len(players) < 2 {
		return fmt.Errorf("engine: need at least 2 players, have %d", len(players))
	}

	m.players = make(map[int]string, len(players))
	m.order = m.order[:0]
	for slot, nick := range players {
		m.players[slot] = nick
		m.order = append(m.order, slot)
	}
	sort.Ints(m.order)

	deck := make([]string, 0, len(suits)*len(ranks))
	for _, s := range suits {
		for _, r := range ranks {
			deck = append(deck, s+r)
		}
	}
	rand.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	perHand := len(deck) / len(m.order)
	m.hands = make(map[int][]string, len(m.order))
	for i, slot := range m.order {
		hand := append([]string(nil), deck[i*perHand:(i+1)*perHand]...)
		sort.Strings(hand)
		m.hands[slot] = hand
	}

	m.licitator = m.order[m.round%len(m.order)]
	m.round++
	m.mode = ""
	m.trick = m.trick[:0]
	m.points = make(map[int]int, len(m.order))
	m.tricks = make(map[int]int, len(m.order))
	m.active = m.licitator
	m.phase = phaseBidding
	return nil
}

// HandFor returns a copy of the slot's current hand.
func (m *Marias) HandFor(slot int) []string {
	return append([]string(nil), m.hands[slot]...)
}

// ActivePlayer returns the slot expected to act next.
func (m *Marias) ActivePlayer() int { return m.active }

// SubmitBid records the licitator's mode call and opens trick play.
func (m *Marias) SubmitBid(slot int, label string) error {
	if m.phase != phaseBidding {
		return &room.MoveError{Reason: "no bid expected now"}
	}
	if slot != m.licitator {
		return &room.MoveError{Reason: "only the licitator may bid"}
	}
	label = strings.ToUpper(strings.TrimSpace(label))
	if !bids[label] {
		return &room.MoveError{Reason: "unknown bid " + label}
	}
	m.mode = label
	m.phase = phasePlay
	m.active = m.licitator
	return nil
}

// PlayCard validates and applies one card play. Rejections come back as
// *room.MoveError; the game state is untouched on error.
func (m *Marias) PlayCard(slot int, card string) error {
	if m.phase != phasePlay {
		return &room.MoveError{Reason: "no card expected now"}
	}
	if slot != m.active {
		return &room.MoveError{Reason: "not your turn"}
	}
	card = strings.ToUpper(strings.TrimSpace(card))
	if !validCard(card) {
		return &room.MoveError{Reason: "unknown card " + card}
	}
	idx := indexOf(m.hands[slot], card)
	if idx < 0 {
		return &room.MoveError{Reason: "card not in hand"}
	}
	if len(m.trick) > 0 && len(m.trick) < len(m.order) {
		lead := suitOf(m.trick[0].card)
		if suitOf(card) != lead && hasSuit(m.hands[slot], lead) {
			return &room.MoveError{Reason: "must follow suit " + lead}
		}
	}

	if len(m.trick) == len(m.order) {
		// Previous trick stays visible until the next lead.
		m.trick = m.trick[:0]
	}

	m.hands[slot] = append(m.hands[slot][:idx], m.hands[slot][idx+1:]...)
	m.trick = append(m.trick, playedCard{slot: slot, card: card})

	if len(m.trick) == len(m.order) {
		winner := m.trickWinner()
		m.tricks[winner]++
		for _, pc := range m.trick {
			m.points[winner] += cardPoints[rankOf(pc.card)]
		}
		m.active = winner
		if len(m.hands[winner]) == 0 {
			m.phase = phaseDone
		}
		return nil
	}

	m.active = m.nextAfter(slot)
	return nil
}

// TrickComplete reports whether the trick on the table is full.
func (m *Marias) TrickComplete() bool {
	return m.phase == phasePlay && len(m.trick) == len(m.order)
}

// RoundOver reports whether every card has been played.
func (m *Marias) RoundOver() bool { return m.phase == phaseDone }

// Snapshot renders the shared table state: phase, mode, active slot, trick
// on the table and per-player trick counts. Hands stay private.
func (m *Marias) Snapshot() []string {
	out := []string{
		m.phaseName(),
		m.mode,
		strconv.Itoa(m.active),
	}
	cards := make([]string, len(m.trick))
	for i, pc := range m.trick {
		cards[i] = strconv.Itoa(pc.slot) + ":" + pc.card
	}
	out = append(out, strings.Join(cards, " "))
	for _, slot := range m.order {
		out = append(out, fmt.Sprintf("%d=%d", slot, m.tricks[slot]))
	}
	return out
}

// Result renders the round summary: per-player points and the winner's
// nickname. Under BETL and DURCH the licitator wins by taking no tricks or
// every trick respectively; otherwise the highest count wins.
func (m *Marias) Result() []string {
	out := make([]string, 0, len(m.order)+1)
	best, bestPts := -1, -1
	for _, slot := range m.order {
		out = append(out, fmt.Sprintf("%s:%d", m.players[slot], m.points[slot]))
		if m.points[slot] > bestPts {
			best, bestPts = slot, m.points[slot]
		}
	}

	winner := best
	switch m.mode {
	case "BETL":
		if m.tricks[m.licitator] == 0 {
			winner = m.licitator
		} else {
			winner = m.nextAfter(m.licitator)
		}
	case "DURCH":
		total := 0
		for _, n := range m.tricks {
			total += n
		}
		if m.tricks[m.licitator] == total {
			winner = m.licitator
		} else {
			winner = m.nextAfter(m.licitator)
		}
	}
	out = append(out, m.players[winner])
	return out
}

// Reset drops all round state; the next Start deals again with the
// licitator rotation preserved.
func (m *Marias) Reset() {
	m.phase = phaseIdle
	m.hands = nil
	m.trick = nil
	m.mode = ""
}

func (m *Marias) phaseName() string {
	switch m.phase {
	case phaseBidding:
		return "BIDDING"
	case phasePlay:
		return "PLAY"
	case phaseDone:
		return "DONE"
	default:
		return "IDLE"
	}
}

func (m *Marias) nextAfter(slot int) int {
	for i, s := range m.order {
		if s == slot {
			return m.order[(i+1)%len(m.order)]
		}
	}
	return m.order[0]
}

func (m *Marias) trickWinner() int {
	lead := suitOf(m.trick[0].card)
	best := m.trick[0]
	for _, pc := range m.trick[1:] {
		if suitOf(pc.card) == lead && rankValue[rankOf(pc.card)] > rankValue[rankOf(best.card)] {
			best = pc
		}
	}
	return best.slot
}

func validCard(card string) bool {
	if len(card) < 2 {
		return false
	}
	suit := suitOf(card)
	rank := rankOf(card)
	if suit != "H" && suit != "D" && suit != "C" && suit != "S" {
		return false
	}
	_, ok := rankValue[rank]
	return ok
}

func suitOf(card string) string { return card[:1] }

func rankOf(card string) string { return card[1:] }

func indexOf(hand []string, card string) int {
	for i, c := range hand {
		if c == card {
			return i
		}
	}
	return -1
}

func hasSuit(hand []string, suit string) bool {
	for _, c := range hand {
		if suitOf(c) == suit {
			return true
		}
	}
	return false
}
