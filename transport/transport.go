// Package transport wraps a net.Conn with the byte-level framing the
// protocol needs: terminator-delimited reads bounded by the maximum frame
// size, and serialized whole-frame writes.
package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/SoMi7k/UPS/protocol"
)

// ErrFrameTooLong is returned by ReadFrame when the peer sends more than
// MaxFrameSize bytes without a terminator.
var ErrFrameTooLong = errors.New("transport: frame exceeds maximum size")

// Conn is a framed connection. Reads are expected from a single goroutine
// (the per-connection worker); writes are serialized internally so broadcast
// and unicast paths may interleave safely.
type Conn struct {
	nc net.Conn
	r  *bufio.Reader

	wmu    sync.Mutex
	closed sync.Once
}

// New wraps nc. The read buffer is sized to hold exactly one maximum frame,
// so an unterminated flood fails fast instead of growing memory.
func New(nc net.Conn) *Conn {
	return &Conn{
		nc: nc,
		r:  bufio.NewReaderSize(nc, protocol.MaxFrameSize),
	}
}

// ReadFrame blocks until a full terminator-ended frame arrives and returns it
// including the terminator. A zero-length read from the peer surfaces as
// io.EOF; a frame longer than MaxFrameSize fails with ErrFrameTooLong.
func (c *Conn) ReadFrame() ([]byte, error) {
	frame, err := c.r.ReadSlice(protocol.Terminator)
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return nil, ErrFrameTooLong
		}
		return nil, err
	}
	return bytes.Clone(frame), nil
}

// WriteFrame writes one encoded frame as a single write call, so delivery
// order to this socket is exactly the order of WriteFrame calls.
func (c *Conn) WriteFrame(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	n, err := c.nc.Write(frame)
	if err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("transport: short write: %d of %d bytes", n, len(frame))
	}
	return nil
}

// Close closes the underlying socket. Closing unblocks a pending ReadFrame
// with an error, which the worker treats as a disconnect; it is safe to call
// more than once.
func (c *Conn) Close() error {
	var err error
	c.closed.Do(func() {
		err = c.nc.Close()
	})
	return err
}

// RemoteAddr returns the peer address for logs.
func (c *Conn) RemoteAddr() string {
	if addr := c.nc.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
