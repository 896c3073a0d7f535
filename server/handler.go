package server

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/SoMi7k/UPS/logger"
	"github.com/SoMi7k/UPS/protocol"
	"github.com/SoMi7k/UPS/room"
	"github.com/SoMi7k/UPS/session"
	"github.com/SoMi7k/UPS/transport"
)

// rejectPause gives a rejected client time to read the final notice before
// the socket closes under it.
const rejectPause = 100 * time.Millisecond

// handler drives one connection from accept to teardown: room admission, the
// welcome frame, the connect or reconnect handshake and then the dispatch
// loop. Reads block in this goroutine; all writes go through the room's
// session registry.
type handler struct {
	srv  *Server
	id   uint32
	conn *transport.Conn
	log  logger.Logger

	rm   *room.Room
	sess *session.Session

	expectSeq int
	haveSeq   bool
}

func (h *handler) run() {
	rm := h.srv.Rooms.FindAvailable()
	if rm == nil {
		h.log.Warn("no room available, rejecting")
		h.reject("all rooms are full")
		return
	}
	h.rm = rm
	h.log = h.log.With(logger.F("room", rm.ID()))

	reg := rm.Registry()
	h.sess = reg.Add(h.conn, h.conn.RemoteAddr())
	reg.SendOn(h.sess, protocol.KindWelcome,
		strconv.Itoa(protocol.NoSlot), strconv.Itoa(rm.ID()), strconv.Itoa(rm.Capacity()))

	h.readLoop()
}

// reject is the path for sockets that never get a session: a final notice,
// a short pause and the close.
func (h *handler) reject(reason string) {
	frame, err := protocol.Encode(protocol.Message{
		Slot:   protocol.NoSlot,
		Kind:   protocol.KindDisconnect,
		Fields: []string{reason},
	})
	if err == nil {
		_ = h.conn.WriteFrame(frame)
		time.Sleep(rejectPause)
	}
	_ = h.conn.Close()
}

func (h *handler) readLoop() {
	reg := h.rm.Registry()

	for {
		raw, err := h.conn.ReadFrame()
		if err != nil {
			h.onReadError(err)
			return
		}

		if err := protocol.ValidateRaw(raw); err != nil {
			h.log.Warn("frame failed validation", logger.F("error", err.Error()))
			reg.DisconnectPermanently(h.sess, "protocol violation: "+validationDetail(err))
			return
		}

		m, err := protocol.Decode(raw)
		if err != nil {
			// Undecodable data gets no reply; the sender is not speaking
			// our protocol.
			h.log.Warn("malformed frame", logger.F("error", err.Error()))
			reg.DisconnectPermanently(h.sess, "")
			return
		}

		if err := protocol.ValidateMessage(m, h.sess.Slot(), h.rm.Capacity()); err != nil {
			h.log.Warn("message failed validation",
				logger.F("kind", m.Kind.String()), logger.F("error", err.Error()))
			reg.DisconnectPermanently(h.sess, "protocol violation: "+validationDetail(err))
			return
		}

		h.checkSequence(m.Seq)
		reg.Touch(h.sess)

		if done := h.dispatch(m); done {
			return
		}
	}
}

// checkSequence tracks the client's sequence counter across frames. A jump
// beyond the tolerance is logged and tolerated: the client heals gaps itself
// by requesting a replay on reconnect.
func (h *handler) checkSequence(seq int) {
	if h.haveSeq && !protocol.SequenceContinuous(seq, h.expectSeq) {
		h.log.Warn("sequence discontinuity",
			logger.F("got", seq), logger.F("expected", h.expectSeq))
	}
	h.haveSeq = true
	h.expectSeq = (seq + 1) % protocol.RingSize
}

// dispatch routes one validated message. A true return ends the connection's
// read loop. Panics out of the rules engine are contained here so one bad
// move cannot take the worker down.
func (h *handler) dispatch(m protocol.Message) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("panic while handling message",
				logger.F("kind", m.Kind.String()), logger.F("panic", r))
			h.sendInvalid("internal error")
		}
	}()

	switch m.Kind {
	case protocol.KindConnect:
		return h.onConnect(m)
	case protocol.KindReconnect:
		return h.onReconnect(m)
	case protocol.KindDisconnect:
		h.log.Info("client requested disconnect")
		h.rm.Registry().DisconnectPermanently(h.sess, "goodbye")
		return true
	}

	// An unidentified socket gets exactly one chance to say who it is;
	// any other kind ends the connection.
	if !h.sess.Authorized() {
		h.log.Warn("game message before identification", logger.F("kind", m.Kind.String()))
		h.rm.Registry().DisconnectPermanently(h.sess, "identify first")
		return true
	}

	switch m.Kind {
	case protocol.KindHeartbeat:
		h.rm.Registry().SendOn(h.sess, protocol.KindPong)
	case protocol.KindCard:
		h.onMove(h.rm.PlayCard(h.sess.Slot(), field(m, 0)))
	case protocol.KindBidding:
		h.onMove(h.rm.SubmitBid(h.sess.Slot(), field(m, 0)))
	case protocol.KindTrick:
		h.rm.AckTrick(h.sess.Slot())
	case protocol.KindReset:
		if h.rm.HandleReset(h.sess.Slot(), field(m, 0)) {
			h.rm.Registry().DisconnectPermanently(h.sess, "goodbye")
			return true
		}
	}
	return false
}

// onConnect runs the nickname handshake. On success the client learns its
// slot; when the table is still short of players it is told how many seats
// are filled.
func (h *handler) onConnect(m protocol.Message) bool {
	if h.sess.Authorized() {
		h.sendInvalid("already authorized")
		return false
	}

	reg := h.rm.Registry()
	nickname := field(m, 0)
	if nickname == "" {
		h.sendInvalid("empty nickname")
		return false
	}

	slot, err := reg.Authorize(h.sess, nickname)
	switch {
	case errors.Is(err, session.ErrNameTaken):
		h.log.Warn("nickname conflict", logger.F("nickname", nickname))
		reg.DisconnectPermanently(h.sess, "nickname already taken")
		return true
	case errors.Is(err, session.ErrNoFreeSlot):
		reg.DisconnectPermanently(h.sess, "room is full")
		return true
	case err != nil:
		reg.DisconnectPermanently(h.sess, "authorization failed")
		return true
	}

	h.log = h.log.With(logger.F("slot", slot), logger.F("nickname", nickname))
	reg.SendOn(h.sess, protocol.KindAuthorize, strconv.Itoa(slot))
	reg.Broadcast(protocol.KindClientData, roster(reg.Players())...)

	if n := reg.AuthorizedCount(); n < h.rm.Capacity() {
		reg.SendTo(slot, protocol.KindWaitLobby, strconv.Itoa(n))
	}
	return false
}

// roster renders slot:nickname pairs in slot order for a CLIENT_DATA
// broadcast.
func roster(players map[int]string) []string {
	slots := make([]int, 0, len(players))
	for slot := range players {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	fields := make([]string, 0, len(slots))
	for _, slot := range slots {
		fields = append(fields, strconv.Itoa(slot)+":"+players[slot])
	}
	return fields
}

// onReconnect reattaches the socket to a pending session of the same
// nickname, replays the frames the client reports missing and re-syncs the
// game state.
func (h *handler) onReconnect(m protocol.Message) bool {
	if h.sess.Authorized() {
		h.sendInvalid("already authorized")
		return false
	}

	reg := h.rm.Registry()
	nickname := field(m, 0)
	lastReceived, err := strconv.Atoi(field(m, 1))
	if nickname == "" || err != nil || lastReceived < 0 || lastReceived >= protocol.RingSize {
		reg.DisconnectPermanently(h.sess, "bad reconnect request")
		return true
	}

	old := reg.FindDisconnected(nickname)
	if old == nil {
		h.log.Warn("no pending session to reconnect", logger.F("nickname", nickname))
		reg.DisconnectPermanently(h.sess, "no session to resume")
		return true
	}

	// The socket moves to the session it belongs to; the placeholder
	// created at accept goes away without touching the socket.
	reg.Detach(h.sess)
	if err := reg.Reconnect(old, h.conn, lastReceived); err != nil {
		h.log.Warn("reconnect failed", logger.F("error", err.Error()))
		h.reject("reconnect failed")
		return true
	}
	h.sess = old
	slot := old.Slot()
	h.log = h.log.With(logger.F("slot", slot), logger.F("nickname", nickname))
	h.log.Info("session resumed")

	reg.SendTo(slot, protocol.KindReconnect, strconv.Itoa(slot))
	h.rm.SendState(slot)

	if !h.rm.Started() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if summary, ok := h.rm.LatestResult(ctx); ok {
			reg.SendTo(slot, protocol.KindResult, summary...)
		}
		cancel()
	}
	return false
}

// onMove reports a game action's outcome to the player. Rejected moves come
// back as INVALID with the reason; internal failures are only logged.
func (h *handler) onMove(err error) {
	if err == nil {
		return
	}
	var moveErr *room.MoveError
	if errors.As(err, &moveErr) {
		h.sendInvalid(moveErr.Reason)
		return
	}
	h.log.Error("game action failed", logger.F("error", err.Error()))
}

func (h *handler) sendInvalid(reason string) {
	h.rm.Registry().SendOn(h.sess, protocol.KindInvalid, reason)
}

// onReadError decides the drop policy when the socket dies: an authorized
// player goes into the reconnect grace window, anyone else is removed
// outright.
func (h *handler) onReadError(err error) {
	reg := h.rm.Registry()
	if h.sess.Authorized() && h.sess.Connected() {
		h.log.Info("connection lost, holding seat", logger.F("error", err.Error()))
		reg.MarkPendingReconnect(h.sess)
		return
	}
	h.log.Debug("connection closed", logger.F("error", err.Error()))
	reg.DisconnectPermanently(h.sess, "")
}

func field(m protocol.Message, i int) string {
	if i < len(m.Fields) {
		return m.Fields[i]
	}
	return ""
}

func validationDetail(err error) string {
	var verr *protocol.ValidationError
	if errors.As(err, &verr) {
		return verr.Detail
	}
	return err.Error()
}
