package protocol

import (
	"fmt"
	"strings"
)

// spamRunLimit is the anti-spam heuristic: a frame body with this many or
// more identical consecutive bytes is rejected before decoding.
const spamRunLimit = 100

// seqTolerance is how far an observed sequence number may drift from the
// expected next value (modulo RingSize) before the gap is reported as
// suspicious. Gaps within the tolerance occur normally after packet loss and
// are healed by retransmission, not by dropping the connection.
const seqTolerance = 8

// ValidationReason classifies why a frame failed validation.
type ValidationReason int

const (
	ReasonEmptyFrame ValidationReason = iota + 1
	ReasonFrameTooLarge
	ReasonMissingTerminator
	ReasonTooFewTokens
	ReasonForbiddenByte
	ReasonBadSizePrefix
	ReasonRepeatedBytes
	ReasonWrongSlot
	ReasonUnknownKind
	ReasonNotInbound
	ReasonFieldTooLong
)

// ValidationError reports a well-formed but semantically invalid frame. The
// peer gets a disconnect notice carrying Detail before the session is torn
// down.
type ValidationError struct {
	Reason ValidationReason
	Detail string
}

func (e *ValidationError) Error() string {
	return "protocol: invalid frame: " + e.Detail
}

func invalid(reason ValidationReason, format string, args ...any) error {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ValidateRaw runs the pre-decode checks on a received frame: bounds, framing
// bytes, character set, a parseable size prefix and the repeated-byte spam
// heuristic. It returns a *ValidationError describing the first failed check.
func ValidateRaw(data []byte) error {
	if len(data) == 0 {
		return invalid(ReasonEmptyFrame, "empty frame")
	}
	if len(data) > MaxFrameSize {
		return invalid(ReasonFrameTooLarge, "frame of %d bytes exceeds maximum %d", len(data), MaxFrameSize)
	}
	if data[len(data)-1] != Terminator {
		return invalid(ReasonMissingTerminator, "frame does not end with the terminator")
	}

	delims := 0
	var last byte
	run := 0
	for _, b := range data {
		switch {
		case b == Delimiter:
			delims++
		case b == 0:
			return invalid(ReasonForbiddenByte, "frame contains a null byte")
		case b < 0x20 && b != Terminator && b != '\r':
			return invalid(ReasonForbiddenByte, "frame contains control byte 0x%02x", b)
		}

		if b == last {
			run++
			if run >= spamRunLimit {
				return invalid(ReasonRepeatedBytes, "%d or more repeated bytes", spamRunLimit)
			}
		} else {
			last = b
			run = 1
		}
	}

	if delims < 2 {
		return invalid(ReasonTooFewTokens, "frame has %d delimiters, need at least 2", delims)
	}

	sizeToken, _, _ := strings.Cut(string(data), string(Delimiter))
	if sizeToken == "" || !allDigits(sizeToken) {
		return invalid(ReasonBadSizePrefix, "size prefix %q is not a non-negative integer", sizeToken)
	}

	return nil
}

// ValidateMessage runs the post-decode checks on a parsed message against the
// connection it arrived on: the sender slot must match the assigned slot and
// fit the room, the kind must be one a client may send, and every payload
// field must respect the length and character-set bounds.
func ValidateMessage(m Message, expectedSlot, requiredPlayers int) error {
	if m.Slot != expectedSlot {
		return invalid(ReasonWrongSlot, "sender slot %d does not match assigned slot %d", m.Slot, expectedSlot)
	}
	if m.Slot >= requiredPlayers {
		return invalid(ReasonWrongSlot, "sender slot %d out of range for %d players", m.Slot, requiredPlayers)
	}
	if !m.Kind.Known() {
		return invalid(ReasonUnknownKind, "unknown message kind %d", int(m.Kind))
	}
	if !m.Kind.Inbound() {
		return invalid(ReasonNotInbound, "kind %s is not valid client to server", m.Kind)
	}

	total := 0
	for i, f := range m.Fields {
		if len(f) > MaxFieldLen {
			return invalid(ReasonFieldTooLong, "field %d is %d bytes, maximum %d", i, len(f), MaxFieldLen)
		}
		if strings.ContainsAny(f, "|\n\x00") {
			return invalid(ReasonForbiddenByte, "field %d contains a reserved byte", i)
		}
		total += len(f)
	}
	if total > MaxFrameSize {
		return invalid(ReasonFrameTooLarge, "payload of %d bytes exceeds maximum frame size", total)
	}

	return nil
}

// SequenceContinuous reports whether got is within seqTolerance of the
// expected next sequence number, accounting for wraparound. A false result is
// suspicious but non-fatal: the caller logs it and keeps the connection.
func SequenceContinuous(got, expected int) bool {
	d := (got - expected + RingSize) % RingSize
	if d > RingSize/2 {
		d = RingSize - d
	}
	return d <= seqTolerance
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
