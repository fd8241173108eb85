package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/luciancaetano/drc"
	"github.com/luciancaetano/drc/internal/logging"
	"github.com/luciancaetano/drc/internal/relay"
	"github.com/luciancaetano/drc/internal/websocket"
)

type RelayConfig = relay.Config
type RateLimitConfig = relay.RateLimitConfig
type CheckOriginFn = websocket.CheckOriginFn
type OnConnectFn = relay.OnConnectFn
type OnDisconnectFn = relay.OnDisconnectFn

// Config configures the relay and its optional HTTP surface.
type Config struct {
	RelayConfig

	// HTTPAddr enables the HTTP surface (/ws, /metrics, /healthz) when set.
	HTTPAddr string
	// CheckOrigin validates WebSocket origins. Use AllOrigins() to allow all (dev only).
	CheckOrigin CheckOriginFn
}

// DefaultConfig returns a relay on 0.0.0.0:6969 with the HTTP surface disabled.
func DefaultConfig() Config {
	return Config{RelayConfig: relay.DefaultConfig()}
}

// AllOrigins returns a checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return relay.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return relay.NoRateLimit()
}

// Server is the relay together with its HTTP surface. It implements drc.RelayServer.
type Server struct {
	cfg   Config
	relay *relay.Server
	log   *logrus.Entry

	mu           sync.RWMutex
	httpServer   *http.Server
	httpListener net.Listener
}

var _ drc.RelayServer = (*Server)(nil)

// New creates a server from cfg. Nothing is bound until Start.
//
// Example:
//
//	cfg := server.DefaultConfig()
//	cfg.Addr = ":6969"
//	cfg.HTTPAddr = ":8080"
//	cfg.CheckOrigin = server.AllOrigins()
//	srv, err := server.New(cfg)
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	r, err := relay.New(cfg.RelayConfig)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:   cfg,
		relay: r,
		log:   cfg.Logger.WithField("component", "http"),
	}, nil
}

// Start binds the relay and, if configured, the HTTP surface.
func (s *Server) Start(ctx context.Context) error {
	if err := s.relay.Start(ctx); err != nil {
		return err
	}
	if s.cfg.HTTPAddr == "" {
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.HTTPAddr)
	if err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return multierr.Append(
			fmt.Errorf("%w %s: %w", drc.ErrBindFailure, s.cfg.HTTPAddr, err),
			s.relay.Stop(stopCtx),
		)
	}

	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.httpListener = ln
	s.mu.Unlock()

	s.log.WithField("addr", ln.Addr().String()).Info("HTTP surface listening")
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("HTTP surface stopped")
		}
	}()
	return nil
}

// Stop shuts the HTTP surface down, then stops the relay.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.httpListener = nil
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = multierr.Append(err, srv.Shutdown(ctx))
	}
	return multierr.Append(err, s.relay.Stop(ctx))
}

// Addr returns the relay's bound TCP address.
func (s *Server) Addr() net.Addr {
	return s.relay.Addr()
}

// HTTPAddr returns the HTTP surface's bound address, or nil when disabled.
func (s *Server) HTTPAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.httpListener == nil {
		return nil
	}
	return s.httpListener.Addr()
}

// ClientCount returns the number of connected clients over all transports.
func (s *Server) ClientCount() int {
	return s.relay.ClientCount()
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Handle("/ws", websocket.NewBridge(s.relay, s.cfg.CheckOrigin, s.cfg.MaxFrameSize, logrus.NewEntry(s.cfg.Logger))).
		Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.relay.Metrics().Gatherer(), promhttp.HandlerOpts{})).
		Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).
		Methods(http.MethodGet)
	return r
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(healthResponse{Status: "ok", Clients: s.ClientCount()}); err != nil {
		s.log.WithError(err).Debug("Failed to write health response")
	}
}
