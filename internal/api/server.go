// Package api provides the local HTTP API: engine status, pause control,
// Prometheus metrics and a websocket feed of status changes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"airtouch/internal/engine"
)

// StatusSource reports the latest engine status. *engine.Orchestrator
// implements it.
type StatusSource interface {
	Status() engine.Status
}

// Pauser forwards a pause request to the frame loop.
type Pauser func(paused bool)

// Server provides the HTTP API
type Server struct {
	addr     string
	token    string
	status   StatusSource
	pause    Pauser
	gatherer prometheus.Gatherer
	log      *zap.Logger
	wsMgr    *WSManager
}

// NewServer creates a new API server listening on addr. gatherer may be nil
// to disable /metrics.
func NewServer(addr, token string, status StatusSource, pause Pauser, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		addr:     addr,
		token:    token,
		status:   status,
		pause:    pause,
		gatherer: gatherer,
		log:      log.Named("api"),
	}
	s.wsMgr = newWSManager(s)
	return s
}

// Handler returns the routed, authenticated handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/pause", s.handlePause)
	mux.HandleFunc("/ws", s.wsMgr.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return s.authMiddleware(s.recoverMiddleware(mux))
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.wsMgr.start(hubCtx)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.log.Info("Starting API server", zap.Stringer("addr", ln.Addr()))

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("API server stopped", zap.Error(err))
		return err
	}
	return nil
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error("Recovered panic in handler", zap.Any("panic", err), zap.String("path", r.URL.Path))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks API token if configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("Request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))

		// Skip auth for health check
		if r.URL.Path == "/health" || s.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		authorized := r.Header.Get("Authorization") == "Bearer "+s.token
		// Browsers cannot set headers on a websocket handshake.
		if !authorized && r.URL.Path == "/ws" {
			authorized = r.URL.Query().Get("token") == s.token
		}
		if !authorized {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.status.Status())
}

// handlePause handles POST /api/pause?paused=true|false. The request is
// applied by the frame loop, so the response only acknowledges it.
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	paused, err := strconv.ParseBool(r.URL.Query().Get("paused"))
	if err != nil {
		http.Error(w, "Missing or invalid paused parameter", http.StatusBadRequest)
		return
	}
	if s.pause == nil {
		http.Error(w, "Pause not supported", http.StatusNotImplemented)
		return
	}

	s.log.Info("Pause requested", zap.Bool("paused", paused), zap.String("remote", r.RemoteAddr))
	s.pause(paused)
	writeJSON(w, http.StatusAccepted, map[string]bool{"paused": paused})
}

// handleHealth handles GET /health (for monitoring)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// BroadcastStatus sends a status snapshot to every websocket client.
func (s *Server) BroadcastStatus(st engine.Status) {
	s.wsMgr.BroadcastStatus(st)
}

// BroadcastKeyboardToggle tells websocket clients the toggle gesture fired.
func (s *Server) BroadcastKeyboardToggle(session string, count uint64) {
	s.wsMgr.BroadcastKeyboardToggle(session, count)
}
