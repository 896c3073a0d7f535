package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Encode serializes m into a frame:
//
//	SIZE '|' SEQ '|' SLOT '|' KIND ('|' FIELD)* '\n'
//
// SIZE is the total byte length of the frame including its own decimal digits
// and the delimiter that follows them. Encode fails if any field contains the
// delimiter, the terminator or a null byte, or if the encoded frame would
// exceed MaxFrameSize.
func Encode(m Message) ([]byte, error) {
	for i, f := range m.Fields {
		if strings.ContainsAny(f, "|\n\x00") {
			return nil, fmt.Errorf("protocol: field %d contains a reserved byte", i)
		}
	}

	parts := make([]string, 0, 3+len(m.Fields))
	parts = append(parts,
		strconv.Itoa(m.Seq),
		strconv.Itoa(m.Slot),
		strconv.Itoa(int(m.Kind)),
	)
	parts = append(parts, m.Fields...)

	content := strings.Join(parts, string(Delimiter)) + string(Terminator)
	size := frameSize(len(content))

	frame := strconv.Itoa(size) + string(Delimiter) + content
	if len(frame) > MaxFrameSize {
		return nil, fmt.Errorf("protocol: frame of %d bytes exceeds maximum %d", len(frame), MaxFrameSize)
	}

	return []byte(frame), nil
}

// frameSize finds the total frame length n satisfying
// n == len(itoa(n)) + 1 + contentLen, so the size prefix accounts for its own
// digits. The fixed point is reached in at most two steps.
func frameSize(contentLen int) int {
	n := contentLen + 2
	for {
		total := len(strconv.Itoa(n)) + 1 + contentLen
		if total == n {
			return n
		}
		n = total
	}
}

// Decode parses a frame into a Message. The frame must contain at least the
// four header tokens (size, sequence number, slot, kind) with parseable
// numeric values; any remaining tokens become payload fields. Failures are
// reported as ErrMalformedFrame and never panic past the caller.
func Decode(data []byte) (Message, error) {
	s := strings.TrimRight(string(data), "\r\n")
	if s == "" {
		return Message{}, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}

	parts := strings.Split(s, string(Delimiter))
	if len(parts) < 4 {
		return Message{}, fmt.Errorf("%w: %d header tokens, need 4", ErrMalformedFrame, len(parts))
	}

	size, err := strconv.Atoi(parts[0])
	if err != nil || size < 0 {
		return Message{}, fmt.Errorf("%w: bad size prefix %q", ErrMalformedFrame, parts[0])
	}

	seq, err := strconv.Atoi(parts[1])
	if err != nil || seq < 0 || seq >= RingSize {
		return Message{}, fmt.Errorf("%w: bad sequence number %q", ErrMalformedFrame, parts[1])
	}

	slot, err := strconv.Atoi(parts[2])
	if err != nil || slot < NoSlot {
		return Message{}, fmt.Errorf("%w: bad slot %q", ErrMalformedFrame, parts[2])
	}

	kind, err := strconv.Atoi(parts[3])
	if err != nil || kind < 0 || kind > 255 {
		return Message{}, fmt.Errorf("%w: bad kind %q", ErrMalformedFrame, parts[3])
	}

	m := Message{
		Seq:  seq,
		Slot: slot,
		Kind: Kind(kind),
	}
	if len(parts) > 4 {
		m.Fields = parts[4:]
	}

	return m, nil
}
