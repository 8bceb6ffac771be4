package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/notetree/internal/config"
	"github.com/dgallion1/notetree/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for the document store.
type Server struct {
	router  chi.Router
	store   *store.Store
	sweeper *store.Sweeper
	limiter *Limiter
	log     *slog.Logger
	cfg     config.Config
}

// NewServer creates and configures the HTTP server. sweeper may be nil.
func NewServer(st *store.Store, sweeper *store.Sweeper, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		store:   st,
		sweeper: sweeper,
		limiter: NewLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.RateLimitBurst),
		log:     log,
		cfg:     cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.limiter.Close()
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware([]byte(s.cfg.AuthSecret), s.log))
		r.Use(RateLimit(s.limiter))
		if s.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		}

		r.Route("/api/categories/{category}", func(r chi.Router) {
			r.Get("/tree", s.handleTree)
			r.Post("/folders", s.handleCreateFolder)
			r.Post("/notes", s.handleCreateNote)
			r.Post("/documents", s.handleUpload)
		})

		r.Route("/api/nodes/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetNode)
			r.Delete("/", s.handleDelete)
			r.Get("/content", s.handleGetContent)
			r.Put("/content", s.handleUpdateContent)
			r.Get("/outline", s.handleOutline)
			r.Post("/rename", s.handleRename)
			r.Post("/move", s.handleMove)
		})

		r.Get("/api/stats", s.handleStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
