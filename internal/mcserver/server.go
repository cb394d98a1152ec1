// Package mcserver implements the TCP listener side of the mock PLC: one
// goroutine per accepted connection, each reading and dispatching MC frames
// sequentially, against a shared mc.Dispatcher.
package mcserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mcplc/internal/mc"
)

// State is the server's atomic lifecycle, the same CompareAndSwap pattern
// used throughout this module for goroutine-owning components.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Stats are the server-wide counters exposed through internal/metrics.
type Stats struct {
	StartTime         time.Time
	ConnectionsTotal  atomic.Uint64
	ConnectionsActive atomic.Int64
	RequestCount      atomic.Uint64
	ErrorCount        atomic.Uint64
	BytesReceived     atomic.Uint64
	BytesSent         atomic.Uint64
}

// Option configures a Server at construction, mirroring the teacher's
// functional-option Slave construction.
type Option func(*Server)

// WithMaxConnections bounds the number of connections handled concurrently.
// Beyond this, new connections are accepted and immediately closed.
func WithMaxConnections(n int) Option {
	return func(s *Server) { s.maxConnections = n }
}

// WithLogger sets the base logger; a "component":"mcserver" field is added.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger.With(zap.String("component", "mcserver")) }
}

// Server is a TCP listener bound to one address, speaking one frame family,
// dispatching every decoded request to a shared mc.Dispatcher.
type Server struct {
	addr           string
	family         mc.Family
	dispatcher     *mc.Dispatcher
	maxConnections int
	logger         *zap.Logger

	state    atomic.Int32
	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	Stats Stats
}

// NewServer builds a server for addr (host:port), speaking family, handing
// every decoded request to dispatcher.
func NewServer(addr string, family mc.Family, dispatcher *mc.Dispatcher, opts ...Option) *Server {
	s := &Server{
		addr:           addr,
		family:         family,
		dispatcher:     dispatcher,
		maxConnections: 256,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Start binds the listener and spawns the accept loop. ctx cancellation
// closes every open connection; the accept loop itself ends when Stop
// closes the listener.
func (s *Server) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return fmt.Errorf("mcserver: already running")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.state.Store(int32(StateStopped))
		return fmt.Errorf("mcserver: listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.Stats.StartTime = time.Now()
	s.state.Store(int32(StateRunning))

	s.logger.Info("listener bound", zap.String("addr", ln.Addr().String()), zap.String("family", s.family.String()))

	s.wg.Add(1)
	go s.acceptLoop(runCtx)
	return nil
}

// Stop cancels the accept loop, closes the listener, and waits (bounded)
// for every in-flight connection handler to return.
func (s *Server) Stop() error {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("timed out waiting for connections to close")
	}

	s.state.Store(int32(StateStopped))
	s.logger.Info("server stopped", zap.Uint64("total_connections", s.Stats.ConnectionsTotal.Load()))
	return nil
}

// State reports the server's current lifecycle state.
func (s *Server) State() State { return State(s.state.Load()) }

// Addr returns the bound listener address, valid once Start has succeeded.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	sem := make(chan struct{}, s.maxConnections)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.logger.Debug("accept error", zap.Error(err))
				return
			}
		}

		select {
		case sem <- struct{}{}:
		default:
			s.logger.Warn("max connections reached, dropping connection", zap.String("remote", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}

		s.Stats.ConnectionsTotal.Add(1)
		s.Stats.ConnectionsActive.Add(1)
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer func() { <-sem }()
			defer s.Stats.ConnectionsActive.Add(-1)
			s.handleConn(ctx, c)
		}(conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	connID := uuid.NewString()
	logger := s.logger.With(zap.String("conn_id", connID), zap.String("remote", conn.RemoteAddr().String()))
	logger.Info("connection opened")

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-closed:
		}
	}()
	defer conn.Close()

	headerLen := s.family.HeaderLen()
	for {
		header := make([]byte, headerLen)
		if _, err := io.ReadFull(conn, header); err != nil {
			if err != io.EOF {
				logger.Debug("connection read error", zap.Error(err))
			}
			return
		}
		s.Stats.BytesReceived.Add(uint64(headerLen))

		dataLen, err := mc.PeekDataLength(header, s.family)
		if err != nil {
			logger.Debug("malformed header, closing connection", zap.Error(err))
			return
		}

		body := make([]byte, dataLen)
		if len(body) > 0 {
			if _, err := io.ReadFull(conn, body); err != nil {
				logger.Debug("connection read error", zap.Error(err))
				return
			}
		}
		s.Stats.BytesReceived.Add(uint64(len(body)))

		full := append(header, body...)
		req, err := mc.DecodeRequest(full, s.family)
		if err != nil {
			s.Stats.ErrorCount.Add(1)
			ec, isEndCoded := err.(mc.EndCoded)
			if !isEndCoded {
				logger.Debug("unrecoverable frame error, closing connection", zap.Error(err))
				return
			}
			logger.Debug("frame decode error, replying with end code", zap.Error(err))
			out := mc.EncodeReply(&mc.Reply{Family: s.family, EndCode: ec.EndCode()})
			if _, werr := conn.Write(out); werr != nil {
				logger.Debug("connection write error", zap.Error(werr))
				return
			}
			s.Stats.BytesSent.Add(uint64(len(out)))
			continue
		}

		s.Stats.RequestCount.Add(1)
		rep := s.dispatcher.Handle(req)
		if rep.EndCode != mc.EndOK {
			s.Stats.ErrorCount.Add(1)
		}
		out := mc.EncodeReply(rep)
		if _, err := conn.Write(out); err != nil {
			logger.Debug("connection write error", zap.Error(err))
			return
		}
		s.Stats.BytesSent.Add(uint64(len(out)))
	}
}
