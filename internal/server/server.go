// Package server accepts TCP connections and runs one framed request per
// connection through the dispatcher.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/user/skyd/internal/dispatch"
	"github.com/user/skyd/internal/protocol"
	"github.com/user/skyd/internal/status"
	"github.com/user/skyd/internal/types"
)

const tracerName = "github.com/user/skyd/internal/server"

var (
	ErrNotRunning     = errors.New("server is not running")
	ErrAlreadyRunning = errors.New("server is already running")
)

type State int32

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type Config struct {
	RootPath    string
	Host        string
	Port        int
	Backlog     int
	Workers     int
	MaxBodySize uint32
	// ReadTimeout bounds reading one request. Zero waits indefinitely.
	ReadTimeout time.Duration
}

// Stats is a snapshot of the server's counters.
type Stats struct {
	State         string    `json:"state"`
	Addr          string    `json:"addr,omitempty"`
	RootPath      string    `json:"root_path"`
	StartedAt     time.Time `json:"started_at,omitzero"`
	Connections   int64     `json:"connections"`
	Active        int64     `json:"active"`
	Requests      int64     `json:"requests"`
	Failures      int64     `json:"failures"`
	FramingErrors int64     `json:"framing_errors"`
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// Server owns the listening socket. It is created stopped.
type Server struct {
	cfg      Config
	registry *dispatch.Registry
	logger   *slog.Logger
	tracer   trace.Tracer

	mu        sync.Mutex
	state     State
	listener  net.Listener
	startedAt time.Time

	wg sync.WaitGroup

	connections   atomic.Int64
	active        atomic.Int64
	requests      atomic.Int64
	failures      atomic.Int64
	framingErrors atomic.Int64
}

func New(cfg Config, registry *dispatch.Registry, opts ...Option) *Server {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = protocol.DefaultMaxBodySize
	}
	s := &Server{
		cfg:      cfg,
		registry: registry,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		state:    StateStopped,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the listening address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds and listens on the configured address. Any failure leaves the
// server stopped with no socket held.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return ErrAlreadyRunning
	}
	if s.cfg.Port <= 0 || s.cfg.Port > 65535 {
		s.stopLocked()
		return fmt.Errorf("invalid port %d", s.cfg.Port)
	}

	ln, err := listen(s.cfg.Host, s.cfg.Port, s.cfg.Backlog)
	if err != nil {
		s.stopLocked()
		return fmt.Errorf("listen on %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}

	s.listener = ln
	s.state = StateRunning
	s.startedAt = time.Now()
	s.logger.Info("server listening", "addr", ln.Addr().String(), "root_path", s.cfg.RootPath, "backlog", s.cfg.Backlog, "workers", s.cfg.Workers)
	return nil
}

// Stop closes the listener if one is open. It is safe to call repeatedly.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasRunning := s.state == StateRunning
	err := s.stopLocked()
	if wasRunning {
		s.logger.Info("server stopped")
	}
	return err
}

func (s *Server) stopLocked() error {
	var err error
	if s.listener != nil {
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = fmt.Errorf("close listener: %w", cerr)
		}
		s.listener = nil
	}
	s.state = StateStopped
	return err
}

// Accept blocks until a client connects. It returns ErrNotRunning when the
// server is stopped, including when Stop interrupts a pending Accept.
func (s *Server) Accept() (net.Conn, error) {
	s.mu.Lock()
	ln := s.listener
	running := s.state == StateRunning
	s.mu.Unlock()

	if !running || ln == nil {
		return nil, ErrNotRunning
	}
	conn, err := ln.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrNotRunning
		}
		return nil, fmt.Errorf("accept: %w", err)
	}
	return conn, nil
}

// Serve accepts connections until the server is stopped or ctx is done, then
// waits for in-flight connections. With one worker each connection is
// handled to completion before the next Accept.
func (s *Server) Serve(ctx context.Context) error {
	if s.State() != StateRunning {
		return ErrNotRunning
	}
	stop := context.AfterFunc(ctx, func() { s.Stop() })
	defer stop()

	// In-flight requests finish even when ctx is cancelled.
	connCtx := context.WithoutCancel(ctx)

	workers := max(s.cfg.Workers, 1)
	sem := semaphore.NewWeighted(int64(workers))

	var delay time.Duration
	for {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		conn, err := s.Accept()
		if err != nil {
			sem.Release(1)
			if errors.Is(err, ErrNotRunning) {
				break
			}
			delay = nextDelay(delay)
			s.logger.Warn("accept failed", "error", err, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		delay = 0

		if workers == 1 {
			s.HandleConn(connCtx, conn)
			sem.Release(1)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer sem.Release(1)
			s.HandleConn(connCtx, conn)
		}()
	}

	s.wg.Wait()
	return nil
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

// HandleConn reads one request from conn, dispatches it, writes the response
// and closes conn. A framing error drops the connection without a response.
// The returned error is the framing, dispatch or write error, if any.
func (s *Server) HandleConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	s.connections.Add(1)
	s.active.Add(1)
	defer s.active.Add(-1)

	id := types.NewConnID()
	logger := s.logger.With("conn_id", id, "remote", conn.RemoteAddr().String())

	ctx, span := s.tracer.Start(ctx, "skyd.conn",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("skyd.conn_id", string(id))),
	)
	defer span.End()

	if s.cfg.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			logger.Warn("set read deadline", "error", err)
		}
	}

	msg, err := protocol.ReadMessage(conn, s.cfg.MaxBodySize)
	if err != nil {
		s.framingErrors.Add(1)
		logger.Warn("dropping connection", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "framing error")
		return err
	}
	s.requests.Add(1)
	logger = logger.With("type", msg.Header.Type.String())
	span.SetAttributes(attribute.String("skyd.type", msg.Header.Type.String()))

	derr := s.registry.Dispatch(ctx, msg)
	resp := &protocol.Response{
		Status:  status.CodeOf(derr),
		Message: status.PublicMessage(derr),
	}
	if derr != nil {
		s.failures.Add(1)
		span.RecordError(derr)
		span.SetStatus(codes.Error, resp.Status.String())
		logger.Warn("request failed", "status", resp.Status.String(), "error", derr)
	} else {
		logger.Debug("request handled", "status", resp.Status.String())
	}

	if err := protocol.WriteResponse(conn, msg.Header.Type, resp); err != nil {
		logger.Warn("write response", "error", err)
		return errors.Join(derr, err)
	}
	return derr
}

// Stats returns a snapshot of the server counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		State:     s.state.String(),
		RootPath:  s.cfg.RootPath,
		StartedAt: s.startedAt,
	}
	if s.listener != nil {
		st.Addr = s.listener.Addr().String()
	}
	s.mu.Unlock()

	st.Connections = s.connections.Load()
	st.Active = s.active.Load()
	st.Requests = s.requests.Load()
	st.Failures = s.failures.Load()
	st.FramingErrors = s.framingErrors.Load()
	return st
}
