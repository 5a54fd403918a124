// Package server exposes the query runtime over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/csvquerygenie/genie/internal/logger"
	"github.com/csvquerygenie/genie/internal/runtime"
	"github.com/csvquerygenie/genie/internal/store"
)

// Default configuration values
const (
	DefaultListenAddress   = "127.0.0.1:8000"
	DefaultMaxBodyBytes    = 10 << 20
	DefaultTimeout         = 60 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Common errors
var (
	ErrNilExecutor    = errors.New("server requires an executor")
	ErrAlreadyRunning = errors.New("server already running")
)

// Config holds the HTTP server settings.
type Config struct {
	// ListenAddress is the TCP address to bind; port 0 picks a free port
	ListenAddress string
	// MaxBodyBytes caps request bodies; larger bodies get 413
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    RateLimitConfig
	// HeaderRow is the default header line for uploaded CSV text
	HeaderRow int
}

func (c Config) withDefaults() Config {
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultTimeout
	}
	if c.HeaderRow <= 0 {
		c.HeaderRow = 1
	}
	return c
}

// Server is the HTTP API. Create it with New, serve with Start.
type Server struct {
	cfg      Config
	executor *runtime.Executor
	store    *store.MemoryStore
	limiter  *rateLimiter
	router   chi.Router

	mu           sync.RWMutex
	httpServer   *http.Server
	actualAddr   string
	running      bool
	shutdownOnce sync.Once
}

// New builds a server around executor. A nil st gets a default store.
func New(cfg Config, executor *runtime.Executor, st *store.MemoryStore) (*Server, error) {
	if executor == nil {
		return nil, ErrNilExecutor
	}
	if st == nil {
		st = store.NewMemoryStore(store.DefaultMaxEntries, store.DefaultTTL)
	}
	s := &Server{
		cfg:      cfg.withDefaults(),
		executor: executor,
		store:    st,
	}
	s.limiter = newRateLimiter(s.cfg.RateLimit)
	s.router = s.routes()
	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves until ctx is canceled or serving
// fails, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		logger.WithComponent("server").Error("failed to start server",
			"listen_address", s.cfg.ListenAddress,
			"error", err.Error(),
		)
		return fmt.Errorf("starting listener: %w", err)
	}
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.actualAddr = listener.Addr().String()
	s.running = true
	srv := s.httpServer
	s.mu.Unlock()

	log := logger.WithComponent("server")
	log.Info("server started", "address", listener.Addr().String())

	// served is closed when Serve returns, including after Close.
	served := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(served)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			log.Info("server shutdown requested")
		case <-served:
		}
		return s.shutdown()
	})
	return g.Wait()
}

// Close stops the server if it is running and releases the rate limiter.
func (s *Server) Close() error {
	err := s.shutdown()
	s.limiter.Stop()
	return err
}

func (s *Server) shutdown() error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			return
		}
		s.running = false
		srv := s.httpServer
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		log := logger.WithComponent("server")
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("server shutdown error", "error", err.Error())
			shutdownErr = fmt.Errorf("shutting down server: %w", err)
			return
		}
		s.limiter.Stop()
		log.Info("server stopped")
	})
	return shutdownErr
}

// Address returns the bound address, useful with port 0. Empty until Start.
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actualAddr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
