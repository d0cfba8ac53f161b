// Package server wires the RADIUS engine together: UDP and RadSec
// listeners, the request pipeline, request deduplication, the backend
// dispatcher, the accounting tracker and the management boundary.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vitalvas/radiusd/pkg/auth"
	"github.com/vitalvas/radiusd/pkg/coa"
	"github.com/vitalvas/radiusd/pkg/dedup"
	"github.com/vitalvas/radiusd/pkg/log"
	"github.com/vitalvas/radiusd/pkg/packet"
	"github.com/vitalvas/radiusd/pkg/session"
)

// ErrSessionNotFound is returned by Disconnect for unknown session ids
var ErrSessionNotFound = errors.New("session not found")

// Server is the RADIUS engine
type Server struct {
	cfg     *Config
	clients *ClientTable

	dispatcher *auth.Dispatcher
	tracker    *session.Tracker
	dedupTable *dedup.Table
	coaClient  *coa.Client

	logger log.Logger
	stats  statCounters

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// worker pool tokens; taking one admits a request
	workers chan struct{}

	mu        sync.Mutex
	udpConns  []*net.UDPConn
	radsecLis net.Listener
	started   bool
}

// Option customizes server construction
type Option func(*Server)

// WithServerLogger sets the server logger
func WithServerLogger(logger log.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionSink sets the accounting sink
func WithSessionSink(sink session.Sink) Option {
	return func(s *Server) {
		s.tracker = session.NewTracker(sink, s.logger)
	}
}

// New builds a server from configuration
func New(cfg *Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clients, err := NewClientTable(cfg.Clients)
	if err != nil {
		return nil, fmt.Errorf("build client table: %w", err)
	}

	backends, err := cfg.BuildBackends()
	if err != nil {
		return nil, fmt.Errorf("build backends: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		clients: clients,
		logger:  log.NewLoggerWithLevel(cfg.LogLevel),
		workers: make(chan struct{}, cfg.Workers),
	}

	for _, opt := range opts {
		opt(s)
	}

	dispatcher, err := auth.NewDispatcher(backends,
		auth.WithBackendTimeout(cfg.RequestTimeout()),
		auth.WithDispatcherLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}
	s.dispatcher = dispatcher

	if s.tracker == nil {
		s.tracker = session.NewTracker(session.NewMemorySink(), s.logger)
	}

	s.dedupTable = dedup.NewTable(cfg.RequestTimeout())
	s.coaClient = coa.NewClient(coa.WithLogger(s.logger))

	for i := 0; i < cfg.Workers; i++ {
		s.workers <- struct{}{}
	}

	return s, nil
}

// Start binds all listeners and begins serving. A bind failure tears
// everything down and is returned to the caller.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	listeners := []struct {
		port int
		kind listenerKind
	}{
		{s.cfg.AuthPort, listenerAuth},
		{s.cfg.AcctPort, listenerAcct},
		{s.cfg.CoAPort, listenerCoA},
	}

	for _, spec := range listeners {
		conn, err := s.bindUDP(spec.port)
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("bind %s listener: %w", spec.kind, err)
		}

		s.mu.Lock()
		s.udpConns = append(s.udpConns, conn)
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveUDP(conn, spec.kind)
	}

	if s.cfg.RadSecPort != 0 {
		lis, err := s.bindRadSec()
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("bind radsec listener: %w", err)
		}

		s.mu.Lock()
		s.radsecLis = lis
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveRadSec(lis)
	}

	s.logger.Infof("radius server started: auth=%d acct=%d coa=%d workers=%d",
		s.cfg.AuthPort, s.cfg.AcctPort, s.cfg.CoAPort, s.cfg.Workers)

	return nil
}

// Stop halts intake and drains in-flight work. Workers still running
// after the shutdown timeout are abandoned.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info("radius server stopping")

	s.cancel()
	s.closeListeners()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("radius server drained cleanly")
	case <-time.After(s.cfg.ShutdownTimeout()):
		s.logger.Warn("shutdown timeout reached, abandoning in-flight requests")
	}

	s.dedupTable.Close()
	return nil
}

// Sessions returns a snapshot of active accounting sessions
func (s *Server) Sessions() []session.Record {
	return s.tracker.Active()
}

// Stats returns a snapshot of server counters
func (s *Server) Stats() Stats {
	return s.stats.snapshot()
}

// Disconnect terminates an active session by driving a
// Disconnect-Request against the session's NAS.
func (s *Server) Disconnect(ctx context.Context, sessionID string) (coa.Result, error) {
	rec, ok := s.tracker.Find(sessionID)
	if !ok {
		return coa.Result{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	client, ok := s.clients.Lookup(rec.NASIPAddress)
	if !ok {
		return coa.Result{}, fmt.Errorf("no client entry for NAS %s", rec.NASIPAddress)
	}

	nasAddr := net.JoinHostPort(rec.NASIPAddress.String(), fmt.Sprintf("%d", client.CoAPort))

	attrs := []*packet.Attribute{
		packet.NewStringAttribute(packet.AttrUserName, rec.Username),
		packet.NewStringAttribute(packet.AttrAcctSessionID, rec.SessionID),
		packet.NewIPAttribute(packet.AttrNASIPAddress, rec.NASIPAddress),
	}

	return s.coaClient.Disconnect(ctx, nasAddr, client.Secret, attrs)
}

func (s *Server) bindUDP(port int) (*net.UDPConn, error) {
	addr := &net.UDPAddr{
		IP:   net.ParseIP(s.cfg.BindAddress),
		Port: port,
	}
	return net.ListenUDP("udp", addr)
}

func (s *Server) closeListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conn := range s.udpConns {
		conn.Close()
	}
	s.udpConns = nil

	if s.radsecLis != nil {
		s.radsecLis.Close()
		s.radsecLis = nil
	}
}

// listenerAddr reports the bound address of a listener, for callers
// that bind port 0.
func (s *Server) listenerAddr(index int) net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index >= len(s.udpConns) {
		return nil
	}
	return s.udpConns[index].LocalAddr()
}
