package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"example.com/streamserver/internal/config"
	"example.com/streamserver/internal/logger"
	"example.com/streamserver/internal/util"
)

// Server owns the loopback listener and the HTTP machinery in front of a
// request handler. net/http serves each accepted connection on its own
// goroutine; there is no worker pool and, unless max_connections is set, no
// admission limit.
type Server struct {
	cfg     *config.Config
	log     *logger.Logger
	handler http.Handler

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
}

// NewServer creates a new Server instance. cfg must already be validated.
func NewServer(cfg *config.Config, lg *logger.Logger, handler http.Handler) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	return &Server{cfg: cfg, log: lg, handler: handler}, nil
}

// Listen binds the listening socket. It is called implicitly by Serve but
// may be called first to learn the bound address (port 0 picks a free port).
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := util.CreateLoopbackListener(s.cfg.Server.Host, s.cfg.Server.Port, s.cfg.Server.MaxConnections)
	if err != nil {
		if util.IsAddrInUse(err) {
			s.log.Error("Socket error: address already in use", logger.LogFields{"address": s.cfg.Address()})
		}
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Handler returns the full handler chain: access logging and, when enabled,
// cleartext HTTP/2 upgrade support.
func (s *Server) Handler() http.Handler {
	h := AccessLog(s.handler, s.log)
	if s.cfg.Server.EnableH2C {
		h = h2c.NewHandler(h, &http2.Server{})
	}
	return h
}

// Serve accepts connections until ctx is cancelled, then closes the listener
// and gives in-flight requests the configured grace period before cutting
// them off. A clean shutdown returns nil.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	ln := s.listener
	srv := &http.Server{
		Handler:  s.Handler(),
		ErrorLog: log.New(errorLogWriter{log: s.log}, "", 0),
	}
	s.httpServer = srv
	s.mu.Unlock()

	s.log.Info(fmt.Sprintf("Server running at http://%s/ serving files from %s", ln.Addr(), s.cfg.Files.Root), logger.LogFields{
		"max_connections": s.cfg.Server.MaxConnections,
		"h2c":             s.cfg.Server.EnableH2C,
		"chunk_size":      humanize.IBytes(uint64(s.cfg.Files.ChunkSize)),
	})

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server...", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("Graceful shutdown timed out, closing remaining connections", logger.LogFields{"error": err.Error()})
		_ = srv.Close()
	}
	<-serveErr
	return nil
}
