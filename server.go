package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kylin1zhang/voicecap/internal/audio"
	"github.com/kylin1zhang/voicecap/internal/config"
	"github.com/kylin1zhang/voicecap/internal/recorder"
	"github.com/kylin1zhang/voicecap/internal/server"
)

// statusPushInterval is how often the recorder status is pushed to
// connected clients.
const statusPushInterval = 3 * time.Second

// Server is the HTTP server exposing the WebSocket control plane.
type Server struct {
	config   *config.Config
	recorder *recorder.Recorder
	hub      *server.Hub
	commands *server.CommandHandler
	version  *VersionChecker
	stopCh   chan struct{}
}

// NewServer returns a Server wired to the given recorder and resolver.
func NewServer(cfg *config.Config, rec *recorder.Recorder, resolver *audio.Resolver) *Server {
	hub := server.NewHub()
	return &Server{
		config:   cfg,
		recorder: rec,
		hub:      hub,
		commands: server.NewCommandHandler(cfg, rec, resolver, hub),
		version:  NewVersionChecker(),
		stopCh:   make(chan struct{}),
	}
}

// wsStatus is the periodic status push payload.
type wsStatus struct {
	Type     string          `json:"type"` // always "status"
	Recorder recorder.Status `json:"recorder"`
	Version  VersionInfo     `json:"version"`
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.commands.ServeWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)

	return securityHeaders(mux)
}

// Start starts the HTTP server and the status push loop.
func (s *Server) Start() *http.Server {
	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(s.config.Port),
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.pushStatusLoop()

	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return httpServer
}

// Stop halts background goroutines. The HTTP server itself is shut
// down by the caller.
func (s *Server) Stop() {
	s.version.Stop()
	close(s.stopCh)
}

// pushStatusLoop broadcasts recorder status to all clients on a fixed
// interval so UIs stay current without polling.
func (s *Server) pushStatusLoop() {
	ticker := time.NewTicker(statusPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.hub.Broadcast(wsStatus{
				Type:     "status",
				Recorder: s.recorder.Status(),
				Version:  s.version.Info(),
			})
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		slog.Debug("health write error", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := wsStatus{
		Type:     "status",
		Recorder: s.recorder.Status(),
		Version:  s.version.Info(),
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode status", "error", err)
	}
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
