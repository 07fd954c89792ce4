package collector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"go.uber.org/atomic"

	"github.com/Monika731/SecureEVoting/protocol"
)

// Server runs the collector's voting endpoint: a blocking dispatcher that
// accepts connections and spawns one worker per connection. It keeps
// accepting until the close signal is observed, then shuts the listener and
// drains in-flight workers.
type Server struct {
	collector *Collector
	log       *slog.Logger

	stopping  atomic.Bool
	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup

	mu sync.Mutex
	ln net.Listener
}

// NewServer wraps a collector with its TCP dispatcher.
func NewServer(c *Collector) *Server {
	return &Server{
		collector: c,
		log:       c.log,
		closeCh:   make(chan struct{}),
	}
}

// ListenAndServe accepts voter connections on the configured address until
// voting is closed (via a CLOSE frame, RequestClose, or context
// cancellation), then drains workers and returns.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.collector.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.collector.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on a caller-provided listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.log.Info("collector accepting votes", "addr", ln.Addr().String())

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		s.acceptLoop(ln)
	}()

	select {
	case <-ctx.Done():
		s.collector.Close()
	case <-s.closeCh:
	}

	s.stopping.Store(true)
	ln.Close()
	<-acceptDone
	s.wg.Wait()
	s.log.Info("accept loop stopped, in-flight connections drained")
	return nil
}

// Addr returns the bound listener address, for tests and diagnostics.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// RequestClose triggers the accepting-to-aggregating transition from outside
// the wire protocol (admin HTTP route, operator signal).
func (s *Server) RequestClose() {
	s.collector.Close()
	s.closeOnce.Do(func() { close(s.closeCh) })
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopping.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error("accept failed", "err", err)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn processes one inbound connection: a single request frame and a
// single response. A malformed frame drops only this connection; shared
// state is untouched.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	line, err := protocol.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		s.log.Warn("dropping connection: unreadable frame", "remote", conn.RemoteAddr().String(), "err", err)
		return
	}

	switch protocol.ClassifyFrame(line) {
	case protocol.FrameClose:
		s.handleClose(conn)
	case protocol.FrameBallot:
		s.handleBallot(conn, line)
	case protocol.FrameShareRequest:
		s.handleShareRequest(conn, line)
	case protocol.FrameAggregate:
		// Peer aggregates arrive on the dedicated exchange endpoint, never
		// on the voting port.
		s.log.Warn("dropping connection: aggregate frame on voting port", "remote", conn.RemoteAddr().String())
	default:
		s.log.Warn("dropping connection: malformed frame", "remote", conn.RemoteAddr().String(), "frame", line)
	}
}

func (s *Server) handleClose(conn net.Conn) {
	first := s.collector.Close()
	if err := protocol.WriteFrame(conn, protocol.ClosedResponse); err != nil {
		s.log.Warn("failed to acknowledge close", "err", err)
	}
	if first {
		s.closeOnce.Do(func() { close(s.closeCh) })
	}
}

func (s *Server) handleBallot(conn net.Conn, line string) {
	ballot, err := protocol.ParseBallot(line)
	if err != nil {
		// No acknowledgment is sent and the ledger is untouched; the
		// exact-count gate surfaces the missing ballot at aggregation time.
		s.log.Warn("dropping connection: malformed ballot", "remote", conn.RemoteAddr().String(), "err", err)
		return
	}

	token, err := s.collector.HandleBallot(ballot)
	if err != nil {
		s.log.Warn("ballot rejected", "err", err)
		return
	}
	if err := protocol.WriteFrame(conn, protocol.FormatAck(token)); err != nil {
		s.log.Warn("failed to acknowledge ballot", "err", err)
	}
}

func (s *Server) handleShareRequest(conn net.Conn, line string) {
	voterID, err := protocol.ParseShareRequest(line)
	if err != nil {
		s.log.Warn("dropping connection: malformed share request", "remote", conn.RemoteAddr().String(), "err", err)
		return
	}

	partial, pair, err := s.collector.HandleShareRequest(voterID)
	if err != nil {
		s.log.Warn("share request rejected", "voter", voterID, "err", err)
		return
	}
	if err := protocol.WriteFrame(conn, protocol.FormatShareResponse(partial, pair)); err != nil {
		s.log.Warn("failed to send share response", "voter", voterID, "err", err)
	}
}
