// Package server owns the TCP listener and the per-connection workers. Each
// accepted socket gets a goroutine that runs the handshake against a room and
// then the message dispatch loop until the socket dies or the client leaves.
package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/SoMi7k/UPS/logger"
	"github.com/SoMi7k/UPS/room"
	"github.com/SoMi7k/UPS/transport"
)

// Server accepts connections and delegates each one to a handler goroutine.
// Live connections are tracked by ID so Stop can tear down sockets that are
// still mid-handshake. The accept loop runs in a goroutine and supports
// graceful stop.
type Server struct {
	Logger   logger.Logger
	Name     string
	Addr     string
	Rooms    *room.Directory
	Listener net.Listener
	Running  atomic.Bool

	conns  connTable
	connID atomic.Uint32

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New builds a server serving the given room directory.
func New(name, addr string, rooms *room.Directory, log logger.Logger) *Server {
	return &Server{
		Logger: log,
		Name:   name,
		Addr:   addr,
		Rooms:  rooms,
	}
}

// Start binds to Addr and begins the accept loop in a goroutine. It also
// starts every room's background worker. It is safe to call only when the
// server is not already running.
//
// Returns:
//   - An error if the server is already running or if listening on Addr fails
func (s *Server) Start() error {
	if s.Running.Load() {
		s.Logger.Error("server already running")
		return fmt.Errorf("server %s already running", s.Name)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.Logger.Error("server failed to start", logger.F("error", err.Error()))
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	s.Listener = ln
	s.Running.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.group, ctx = errgroup.WithContext(ctx)

	s.Rooms.Run(ctx)
	s.group.Go(s.acceptLoop)

	s.Logger.Info(fmt.Sprintf("%s server started", s.Name), logger.F("addr", s.Addr))
	return nil
}

// Stop stops the server: it closes the listener, disconnects every session
// with a final notice, tears down any socket still mid-handshake and waits
// for all workers to exit. Safe to call when the server is not running.
func (s *Server) Stop() {
	if !s.Running.Load() {
		s.Logger.Info(fmt.Sprintf("%s server not running", s.Name))
		return
	}

	s.Running.Store(false)
	if s.Listener != nil {
		_ = s.Listener.Close()
	}
	s.cancel()

	for _, r := range s.Rooms.Rooms() {
		r.Registry().DisconnectAll("server shutting down")
	}
	s.conns.Range(func(id uint32, conn *transport.Conn) bool {
		_ = conn.Close()
		return true
	})

	_ = s.group.Wait()
	s.Rooms.Wait()

	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name))
}

// acceptLoop accepts incoming connections until the server is stopped. Each
// connection is assigned an ID, tracked, and handed to a handler goroutine.
func (s *Server) acceptLoop() error {
	for s.Running.Load() {
		nc, err := s.Listener.Accept()
		if err != nil {
			if !s.Running.Load() {
				return nil
			}

			s.Logger.Error(fmt.Sprintf("%s server accept error", s.Name), logger.F("error", err.Error()))
			continue
		}

		id := s.connID.Add(1)
		conn := transport.New(nc)
		s.conns.Store(id, conn)

		s.group.Go(func() error {
			defer s.conns.Delete(id)
			h := &handler{
				srv:  s,
				id:   id,
				conn: conn,
				log:  s.Logger.With(logger.F("conn", id), logger.F("addr", conn.RemoteAddr())),
			}
			h.run()
			return nil
		})
	}
	return nil
}

// ConnCount returns the number of sockets currently tracked.
func (s *Server) ConnCount() int {
	return s.conns.Len()
}
