// Package protocol implements the wire format spoken between the Mariáš game
// server and its clients: a pipe-delimited text frame with a decimal length
// prefix, a wrapping sequence number, the addressed player slot, a message
// kind and a variable number of payload fields. The package also provides the
// pre-decode and post-decode validation checks the server runs on every
// inbound frame.
package protocol

import "errors"

const (
	// Delimiter separates the header tokens and payload fields of a frame.
	Delimiter = '|'
	// Terminator ends every frame.
	Terminator = '\n'

	// MaxFrameSize is the largest encoded frame the server accepts or emits,
	// in bytes, including the size prefix and the terminator.
	MaxFrameSize = 256

	// RingSize is the modulus of the sequence number space. Sequence numbers
	// wrap to 0 after RingSize-1, and the retransmission history keeps at
	// most RingSize frames.
	RingSize = 255

	// MaxFieldLen is the largest accepted payload field, in bytes.
	MaxFieldLen = 1000

	// NoSlot is the sentinel slot of a session that has not yet been
	// authorized, and of frames with no addressed recipient.
	NoSlot = -1
)

// Kind identifies the type of a message. The numeric values are part of the
// wire format and must not be reordered.
type Kind int

const (
	// Server -> client.
	KindStatus     Kind = 1  // membership change: removed / pending reconnect / reconnected
	KindWelcome    Kind = 2  // first frame after accept: slot, room id, required players
	KindState      Kind = 3  // full game state snapshot
	KindGameStart  Kind = 4  // round is starting; second send carries the deal
	KindResult     Kind = 5  // finished round summary
	KindDisconnect Kind = 6  // final notice before close; also the client's disconnect request
	KindClientData Kind = 7  // per-player data refresh
	KindYourTurn   Kind = 8  // addressed player is now the active player
	KindWaitLobby  Kind = 9  // waiting for more players; field 0 = authorized count
	KindWait       Kind = 10 // game suspended (player pending reconnect)
	KindInvalid    Kind = 11 // rejected move; field 0 = reason
	KindAuthorize  Kind = 12 // nickname accepted; field 0 = assigned slot

	// Both directions.
	KindReconnect Kind = 13 // client: nickname + last received seq; server: confirmation

	// Client -> server.
	KindConnect    Kind = 14 // field 0 = nickname
	KindCard       Kind = 15 // field 0 = card token
	KindTrick      Kind = 16 // acknowledgement of a completed trick
	KindBidding    Kind = 17 // field 0 = bid label
	KindReset      Kind = 18 // field 0 = "ANO" to restart, anything else quits
	KindHeartbeat  Kind = 19 // liveness check
	KindPong       Kind = 20 // server reply to a heartbeat
)

// Known reports whether k is one of the enumerated message kinds.
func (k Kind) Known() bool {
	return k >= KindStatus && k <= KindPong
}

// Inbound reports whether k is a kind a client is allowed to send.
// DISCONNECT doubles as the explicit disconnect request; the remaining
// server-to-client kinds arriving inbound are a validation failure.
func (k Kind) Inbound() bool {
	return k == KindDisconnect || (k >= KindReconnect && k <= KindHeartbeat)
}

// String returns the symbolic name of the kind for logs.
func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "STATUS"
	case KindWelcome:
		return "WELCOME"
	case KindState:
		return "STATE"
	case KindGameStart:
		return "GAME_START"
	case KindResult:
		return "RESULT"
	case KindDisconnect:
		return "DISCONNECT"
	case KindClientData:
		return "CLIENT_DATA"
	case KindYourTurn:
		return "YOUR_TURN"
	case KindWaitLobby:
		return "WAIT_LOBBY"
	case KindWait:
		return "WAIT"
	case KindInvalid:
		return "INVALID"
	case KindAuthorize:
		return "AUTHORIZE"
	case KindReconnect:
		return "RECONNECT"
	case KindConnect:
		return "CONNECT"
	case KindCard:
		return "CARD"
	case KindTrick:
		return "TRICK"
	case KindBidding:
		return "BIDDING"
	case KindReset:
		return "RESET"
	case KindHeartbeat:
		return "HEARTBEAT"
	case KindPong:
		return "PONG"
	default:
		return "UNKNOWN"
	}
}

// Message is the unit of communication. Seq wraps modulo RingSize; Slot is
// the player slot the message is addressed to or from, or NoSlot. Fields are
// order-significant opaque tokens that must not contain the delimiter, the
// terminator or a null byte.
type Message struct {
	Seq    int
	Slot   int
	Kind   Kind
	Fields []string
}

// ErrMalformedFrame is returned by Decode when the raw bytes cannot be parsed
// as a frame at all. The peer's framing is untrustworthy at that point, so
// callers tear the session down without a reply.
var ErrMalformedFrame = errors.New("protocol: malformed frame")
