package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
)

// Server accepts line protocol connections and dispatches every line
// they send. Each connection is served by its own goroutine.
type Server struct {
	log        *slog.Logger
	dispatcher *Dispatcher
	maxLine    int

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func NewServer(log *slog.Logger, dispatcher *Dispatcher, maxLine int) *Server {
	return &Server{
		log:        log,
		dispatcher: dispatcher,
		maxLine:    maxLine,
		conns:      make(map[net.Conn]struct{}),
	}
}

// ListenAndServe listens on the TCP address and calls Serve
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections until ctx is cancelled or the listener
// fails. On cancellation the listener and all open connections are
// closed and Serve waits for their goroutines before returning nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("Listening for lines", "address", ln.Addr().String())

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
			s.closeAll()
		case <-stop:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			_ = ln.Close()
			s.closeAll()
			s.wg.Wait()
			return fmt.Errorf("accept failed: %w", err)
		}

		s.track(conn)
		if ctx.Err() != nil {
			// closeAll may already have run
			_ = conn.Close()
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)

	log := s.log.With("conn", uuid.NewString(), "remote", conn.RemoteAddr().String())
	d := s.dispatcher.WithLogger(log)
	log.Debug("Connection accepted")

	lr := NewLineReader(conn, s.maxLine)
	for lr.Scan() {
		if err := d.Dispatch(lr.Line()); err != nil {
			log.Warn("Line rejected", "error", err)
		}
	}

	if err := lr.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Warn("Connection read failed", "error", err)
		return
	}
	log.Debug("Connection closed")
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}
