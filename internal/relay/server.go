package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	"github.com/luciancaetano/drc"
	"github.com/luciancaetano/drc/internal/logging"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Server accepts connections and relays every message to all other clients.
// It implements drc.RelayServer.
type Server struct {
	cfg         Config
	log         *logrus.Entry
	registry    *Registry
	broadcaster *Broadcaster
	metrics     *Metrics

	// handlers tracks the accept loop, connection handlers and write pumps.
	handlers conc.WaitGroup

	mu       sync.RWMutex
	running  bool
	listener net.Listener
}

// New creates a relay server. It does not bind until Start is called.
func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.RateLimitConfig == nil {
		cfg.RateLimitConfig = NoRateLimit()
	}

	log := cfg.Logger.WithField("component", "relay")
	registry := NewRegistry()
	metrics := NewMetrics()

	return &Server{
		cfg:         cfg,
		log:         log,
		registry:    registry,
		broadcaster: NewBroadcaster(registry, log, metrics),
		metrics:     metrics,
	}, nil
}

// Start binds the configured address and accepts connections in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return drc.ErrServerAlreadyRunning
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("%w %s: %w", drc.ErrBindFailure, s.cfg.Addr, err)
	}
	s.listener = ln
	s.running = true

	s.log.WithField("addr", ln.Addr().String()).Info("Listening")
	s.handlers.Go(func() {
		s.acceptLoop(ln)
	})
	return nil
}

// Stop closes the listener and every client connection, then waits for all
// handlers to return or for ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	var err error
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}

	for _, c := range s.registry.Snapshot() {
		c.closeWithReason(drc.ReasonShutdown)
		// Cuts short a slow consumer's final flush.
		c.transport.Close()
	}

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Relay stopped")
	case <-ctx.Done():
		err = multierr.Append(err, fmt.Errorf("waiting for connection handlers: %w", ctx.Err()))
	}
	return err
}

// Attach starts a connection handler for a transport accepted elsewhere,
// such as the WebSocket bridge.
func (s *Server) Attach(t Transport) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Holding the read lock orders this Add before Stop's Wait.
	if !s.running {
		return drc.ErrServerNotRunning
	}
	s.handlers.Go(func() {
		s.serve(t)
	})
	return nil
}

// Addr returns the bound address, or nil when the server is not running.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ClientCount returns the number of registered clients.
func (s *Server) ClientCount() int {
	return s.registry.Len()
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) isRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) acceptLoop(ln net.Listener) {
	retry := newAcceptBackOff()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !s.isRunning() {
				return
			}
			delay := retry.NextBackOff()
			s.metrics.acceptErrors.Inc()
			s.log.WithError(err).Warnf("Failed to accept connection, retrying in %v", delay)
			time.Sleep(delay)
			continue
		}
		retry.Reset()

		s.log.WithField("client_id", conn.RemoteAddr().String()).Trace("New connection")
		if err := s.Attach(NewStreamTransport(conn, s.cfg.MaxFrameSize)); err != nil {
			conn.Close()
			return
		}
	}
}

// newAcceptBackOff never gives up; the accept loop only ends with the listener.
func newAcceptBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = minAcceptDelay
	b.MaxInterval = maxAcceptDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
