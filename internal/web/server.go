// Package web provides the chat API HTTP server.
package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/relaychat/relay/internal/catalog"
	"github.com/relaychat/relay/internal/prefs"
	"github.com/relaychat/relay/internal/web/handlers"
)

// Server is the chat API HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
}

// ServerConfig contains configuration for creating a Server.
type ServerConfig struct {
	Logger       *slog.Logger
	Orchestrator handlers.TurnRunner
	Registry     *catalog.Registry
	Prefs        *prefs.Store
	CookieSecret []byte // Required: 32+ byte HMAC secret
	IsDev        bool   // Optional: allows cookies over plain HTTP
}

// NewServer creates a server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(cfg.CookieSecret) < 32 {
		return nil, errors.New("cookie secret must be at least 32 bytes")
	}
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}

	mux := http.NewServeMux()
	sessions := handlers.NewSessions(cfg.CookieSecret, cfg.IsDev)

	chatHandler := handlers.NewChat(handlers.ChatConfig{
		Logger:       cfg.Logger,
		Orchestrator: cfg.Orchestrator,
		Sessions:     sessions,
	})
	toolsHandler := handlers.NewTools(handlers.ToolsConfig{
		Logger:   cfg.Logger,
		Registry: cfg.Registry,
		Prefs:    cfg.Prefs,
		Sessions: sessions,
	})

	// Health check routes (no middleware, for Docker/K8s probes)
	handlers.NewHealth().RegisterRoutes(mux)

	mux.HandleFunc("POST /api/chat", chatHandler.Send)
	mux.HandleFunc("DELETE /api/chat", chatHandler.Delete)
	mux.HandleFunc("GET /api/tools", toolsHandler.List)
	mux.HandleFunc("PUT /api/tools", toolsHandler.Update)

	return &Server{mux: mux, logger: cfg.Logger}, nil
}

// ServeHTTP implements http.Handler with the middleware stack
// Recovery -> Logging -> Routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.setSecurityHeaders(w)

	var handler http.Handler = s.mux
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RecoveryMiddleware(s.logger)(handler)
	handler.ServeHTTP(w, r)
}

// setSecurityHeaders applies baseline security headers.
func (s *Server) setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
}

// Handler returns the server as an http.Handler for mounting.
func (s *Server) Handler() http.Handler {
	return s
}
