// Package dashboard serves a local web API over the app context, the
// module registry, doctor checks and the prompt log.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/railsplan/railsplan/internal/ai"
	"github.com/railsplan/railsplan/internal/appcontext"
	"github.com/railsplan/railsplan/internal/doctor"
	"github.com/railsplan/railsplan/internal/modules"
)

// DefaultAddr binds the dashboard to loopback only
const DefaultAddr = "127.0.0.1:4040"

// Config wires a dashboard Server
type Config struct {
	Addr      string
	AppRoot   string
	Extractor *appcontext.Extractor
	Installer *modules.Installer
	Doctor    *doctor.Doctor
	PromptLog *ai.PromptLog

	// NewAssistant builds the assistant behind /api/chat. Nil answers 503.
	NewAssistant func(ctx context.Context) (*ai.Assistant, error)

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	Logger *zap.Logger
}

// Server is the dashboard HTTP server
type Server struct {
	cfg        Config
	router     chi.Router
	hub        *EventHub
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	logger     *zap.Logger
}

// New creates a dashboard server. Routes are mounted immediately; nothing
// listens until Start.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.Installer == nil {
		cfg.Installer = modules.NewInstaller(modules.Config{AppRoot: cfg.AppRoot, Logger: cfg.Logger, Out: io.Discard})
	}
	if cfg.Extractor == nil {
		cfg.Extractor = appcontext.NewExtractor(
			appcontext.WithLogger(cfg.Logger),
			appcontext.WithModuleSource(cfg.Installer.Registry()),
		)
	}
	if cfg.Doctor == nil {
		cfg.Doctor = doctor.New(doctor.Config{
			AppRoot:   cfg.AppRoot,
			Installer: cfg.Installer,
			Extractor: cfg.Extractor,
			Logger:    cfg.Logger,
		})
	}
	if cfg.PromptLog == nil {
		cfg.PromptLog = ai.NewPromptLog(cfg.AppRoot)
	}

	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		hub:    NewEventHub(cfg.Logger),
		logger: cfg.Logger,
	}
	s.routes()

	// WriteTimeout stays zero: /api/events holds its connection open and
	// chat requests wait on the provider.
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Hub returns the event hub clients of /api/events subscribe to
func (s *Server) Hub() *EventHub {
	return s.hub
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			s.logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("dur", time.Since(start)))
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/context", s.handleContext)
		r.Post("/context/refresh", s.handleContextRefresh)
		r.Get("/modules", s.handleModules)
		r.Post("/modules/{name}/{action}", s.handleModuleAction)
		r.Get("/doctor", s.handleDoctor)
		r.Get("/prompts", s.handlePrompts)
		r.Post("/chat", s.handleChat)
		r.Get("/events", s.hub.HandleWebSocket)
	})
}

// Start listens on the configured address and serves until Shutdown
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.logger.Info("dashboard listening", zap.String("addr", listener.Addr().String()))
	return s.httpServer.Serve(listener)
}

// Shutdown stops accepting requests, disconnects event clients and waits
// for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server's network address
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		s.logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
