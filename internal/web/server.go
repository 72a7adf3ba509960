// pattern: Imperative Shell

package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"treetop/internal/hub"
	"treetop/internal/logging"
	"treetop/internal/registry"
)

// Server serves the pull-based snapshot API and hands the push channel
// off to the hub. Every endpoint is a read; mutations happen elsewhere.
type Server struct {
	httpServer *http.Server
	registry   *registry.Registry
	hub        *hub.Hub
	logger     *logging.ScopedLogger
	addr       string
	listener   net.Listener
}

// Config holds web server configuration.
type Config struct {
	Bind string
	Port int
}

// New creates a web server over the given registry and hub.
func New(cfg Config, reg *registry.Registry, h *hub.Hub, logProvider logging.LoggerProvider) *Server {
	logger := logProvider.For("web")
	addr := fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port)

	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		registry: reg,
		hub:      h,
		logger:   logger,
		addr:     addr,
	}

	// Method-qualified patterns reject every other verb with 405.
	mux.HandleFunc("GET /api/workspaces", s.handleWorkspaces)
	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("/ws", h.HandleWebSocket)

	return s
}

// Listen binds the server to its configured address and returns the
// listener. The two-step Listen/Serve split lets callers learn the bound
// address (port 0 in tests) before Serve blocks.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("web server listen: %w", err)
	}
	s.listener = ln
	return ln, nil
}

// Serve accepts connections on the listener. Blocks until the server
// stops.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("web server started", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Start is a convenience that calls Listen then Serve.
func (s *Server) Start() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Addr returns the address the server is listening on. Only valid after
// Listen or Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("web server shutting down")
	return s.httpServer.Shutdown(ctx)
}
