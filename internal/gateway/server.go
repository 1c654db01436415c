// Package gateway is the HTTP and WebSocket surface of agentcored,
// binding the agent loop, session store, skill registry, and event bus
// to the external interfaces spec.md §6 names. Grounded on
// internal/gateway/http_server.go's single net/http.ServeMux wiring
// (promhttp on /metrics, a dedicated /healthz, one handler per route)
// and internal/gateway/ws_control_plane.go's WS upgrade handler,
// adapted to this spec's fixed route and message set rather than the
// teacher's gRPC-backed control plane + web UI mount.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentcore/runtime/internal/agent"
	"github.com/agentcore/runtime/internal/config"
	"github.com/agentcore/runtime/internal/eventbus"
	"github.com/agentcore/runtime/internal/metrics"
	"github.com/agentcore/runtime/internal/sessions"
)

// Server wires every dependency the HTTP/WS surface needs. All fields
// are set before Start except Config, which handleConfigReload swaps
// under mu.
type Server struct {
	mu         sync.Mutex
	Config     *config.Config
	ConfigPath string

	Sessions sessions.Store
	Runtime  *agent.Runtime
	Bus      *eventbus.Bus
	Router   *eventbus.Router
	Metrics  *metrics.Metrics
	Log      *slog.Logger

	// AdminAuth guards mutating HTTP endpoints; nil or disabled means
	// open access (spec.md §6.1: "when set").
	AdminAuth *AdminAuth
	// GatewayAuth guards the WS upgrade; nil or disabled means open.
	GatewayAuth *AdminAuth

	httpServer *http.Server
}

// NewServer builds a Server. Call Start to begin listening.
func NewServer(cfg *config.Config, configPath string, sessions sessions.Store, runtime *agent.Runtime, bus *eventbus.Bus, router *eventbus.Router, m *metrics.Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		Config:     cfg,
		ConfigPath: configPath,
		Sessions:   sessions,
		Runtime:    runtime,
		Bus:        bus,
		Router:     router,
		Metrics:    m,
		Log:        log.With("component", "gateway"),
	}
}

// Mux builds the request router. Exposed separately from Start so
// tests can exercise handlers with httptest.NewServer(srv.Mux()).
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.Handle("POST /chat", s.guardMutating(http.HandlerFunc(s.handleChat)))
	mux.HandleFunc("GET /stream/{session_id}", s.handleStream)
	mux.HandleFunc("GET /history/{session_id}", s.handleHistory)
	mux.Handle("POST /stop/{session_id}", s.guardMutating(http.HandlerFunc(s.handleStop)))
	mux.Handle("POST /v1/chat/completions", s.guardMutating(http.HandlerFunc(s.handleOpenAICompletions)))

	mux.HandleFunc("GET /config", s.handleConfigGet)
	mux.Handle("POST /config", s.guardMutating(http.HandlerFunc(s.handleConfigReload)))
	mux.HandleFunc("GET /config/{section}", s.handleConfigSectionGet)
	mux.Handle("POST /config/{section}", s.guardMutating(http.HandlerFunc(s.handleConfigReload)))
	mux.Handle("POST /config/reload", s.guardMutating(http.HandlerFunc(s.handleConfigReload)))

	if s.Config == nil || s.Config.Gateway.Enabled {
		mux.HandleFunc("GET /ws", s.handleWS)
	}

	return s.withMetrics(mux)
}

// guardMutating wraps a mutating handler with admin-token enforcement
// when AdminAuth is configured.
func (s *Server) guardMutating(next http.Handler) http.Handler {
	if s.AdminAuth == nil || !s.AdminAuth.Enabled() {
		return next
	}
	return s.AdminAuth.Middleware(next)
}

// withMetrics records HTTPRequestDuration for every request, grounded
// on internal/observability/metrics.go's RecordHTTPRequest call shape.
func (s *Server) withMetrics(next http.Handler) http.Handler {
	if s.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Metrics.RecordHTTPRequest(r.Method, r.Pattern, fmt.Sprintf("%d", rec.status), time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Start begins listening on Config.Server.Host:Port until ctx is
// cancelled. Grounded on internal/gateway/http_server.go's
// listen-then-Serve-in-a-goroutine shape.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Log.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()
	return nil
}
