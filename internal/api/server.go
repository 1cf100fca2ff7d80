// Package api provides the HTTP API over the catalog: book listing, search,
// and scan triggers.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/voiceapp/voice-scanner/internal/ratelimit"
	"github.com/voiceapp/voice-scanner/internal/scanner"
	"github.com/voiceapp/voice-scanner/internal/search"
	"github.com/voiceapp/voice-scanner/internal/store"
	"github.com/voiceapp/voice-scanner/internal/validation"
)

// Scanner is the part of the library scanner the API drives.
type Scanner interface {
	Scan(ctx context.Context, opts scanner.ScanOptions) (*scanner.ScanResult, error)
	State() scanner.State
	LastResult() *scanner.ScanResult
}

// Options configures the HTTP server.
type Options struct {
	// AllowedOrigins enables CORS for these browser origins. Empty disables CORS.
	AllowedOrigins []string
	// ScanLimiter limits scan triggers per client address. Nil disables it.
	ScanLimiter *ratelimit.KeyedRateLimiter
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	catalog   store.Catalog
	scanner   Scanner
	index     *search.Index
	validator *validation.Validator
	router    *chi.Mux
	logger    *slog.Logger
	limiter   *ratelimit.KeyedRateLimiter

	// background is the parent of scans started without waiting. It outlives
	// the request that started them.
	background context.Context
}

// NewServer creates a new HTTP server with all routes configured. Scans
// started in the background are cancelled when ctx is done.
func NewServer(ctx context.Context, catalog store.Catalog, sc Scanner, index *search.Index, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		catalog:    catalog,
		scanner:    sc,
		index:      index,
		validator:  validation.New(),
		router:     chi.NewRouter(),
		logger:     logger,
		limiter:    opts.ScanLimiter,
		background: ctx,
	}

	s.setupMiddleware(opts)
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware(opts Options) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/books", func(r chi.Router) {
			r.Get("/", s.handleListBooks)
			r.Get("/{id}", s.handleGetBook)
		})

		r.Get("/search", s.handleSearch)

		r.Route("/scan", func(r chi.Router) {
			r.Get("/", s.handleScanStatus)
			r.With(s.scanRateLimit).Post("/", s.handleTriggerScan)
		})
	})
}
