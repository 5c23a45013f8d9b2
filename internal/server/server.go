// Package server provides the HTTP and WebSocket API for kotae.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/hyperjump/kotae/internal/auth"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Asker answers questions; *search.Engine implements it.
type Asker interface {
	Ask(ctx context.Context, question string) *models.ChatAnswer
}

// Ingester indexes uploaded documents; *indexer.Indexer implements it.
type Ingester interface {
	IndexDocument(ctx context.Context, r io.Reader, sourceName string) (*models.IndexResult, error)
}

// Server is the HTTP server for the kotae API.
type Server struct {
	engine   Asker
	indexer  Ingester
	sessions *session.Registry
	auth     auth.Authenticator
	config   *config.Config
	ledger   storage.Ledger
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	upgrader websocket.Upgrader
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithLedger exposes recent ingests on /reports and ledger counts on /status.
func WithLedger(l storage.Ledger) Option {
	return func(s *Server) { s.ledger = l }
}

// WithGatherer serves the collectors of g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine Asker,
	idx Ingester,
	sessions *session.Registry,
	authenticator auth.Authenticator,
	cfg *config.Config,
	opts ...Option,
) *Server {
	s := &Server{
		engine:   engine,
		indexer:  idx,
		sessions: sessions,
		auth:     authenticator,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if base := s.config.Server.BasePath; base != "" && base != "/" {
		r.Route(base, s.routes)
	} else {
		s.routes(r)
	}
	return r
}

func (s *Server) routes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		// Hijacked connections must not run under the request timeout.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			if d := s.config.Server.RequestTimeout; d > 0 {
				r.Use(middleware.Timeout(d))
			}
			r.Post("/chat", s.handleChat)
			r.Get("/status", s.handleStatus)

			r.Group(func(r chi.Router) {
				r.Use(s.requireRole(s.config.Auth.ElevatedRole))
				r.Post("/index-report", s.handleIndexReport)
				r.Get("/reports", s.handleReports)
			})
		})
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr), zap.String("base_path", s.config.Server.BasePath))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server and closes live sessions.
func (s *Server) Stop(ctx context.Context) error {
	s.sessions.CloseAll()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.auth.Authenticate(r)
		if err != nil {
			s.logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.Error(err))
			s.respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

func (s *Server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.FromContext(r.Context())
			if p == nil {
				s.respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !p.HasRole(role) {
				s.respondError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// checkOrigin admits same-origin and non-browser clients plus the CORS allow-list.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.config.Server.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return "http://"+r.Host == origin || "https://"+r.Host == origin
}
