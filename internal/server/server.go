package server

import (
	"log/slog"
	"net/http"

	"github.com/claude/ironvow/internal/continuity"
	"github.com/claude/ironvow/internal/session"
	"github.com/claude/ironvow/internal/storage"
	"github.com/go-chi/chi/v5"
	"tailscale.com/client/local"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	db        *storage.DB
	processor *session.Processor
	lifecycle *session.Controller
	analyzer  *continuity.Analyzer
	log       *slog.Logger
	apiKey    string
	ts        *local.Client
	router    chi.Router
}

// New creates a new Server with all routes configured.
func New(db *storage.DB, processor *session.Processor, lifecycle *session.Controller, analyzer *continuity.Analyzer, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		db:        db,
		processor: processor,
		lifecycle: lifecycle,
		analyzer:  analyzer,
		log:       log,
		apiKey:    apiKey,
		router:    chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetTailscale switches identity resolution from the dev fallback to
// Tailscale WhoIs lookups.
func (s *Server) SetTailscale(lc *local.Client) {
	s.ts = lc
}

// MountMCP mounts the MCP transport handler under /mcp, behind the same
// identity middleware as the REST API.
func (s *Server) MountMCP(h http.Handler) {
	s.router.Mount("/mcp", h)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)
	s.router.Use(s.identity)

	// Legacy history ingest (API key required)
	s.router.Route("/api/v1/ingest", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/legacy", s.handleLegacyIngest)
	})

	// Session API (identity from tsnet, dev fallback otherwise)
	s.router.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleStartSession)
		r.Get("/", s.handleListSessions)
		r.Get("/{id}", s.handleGetSession)
		r.Delete("/{id}", s.handleDeleteSession)
		r.Post("/{id}/batch", s.handleApplyBatch)
		r.Post("/{id}/finish", s.handleFinishSession)
		r.Put("/{id}/seal", s.handleSealSession)
		r.Get("/{id}/continuity", s.handleContinuity)
	})

	// Standalone scoring for tooling and tests
	s.router.Post("/api/v1/devotion/preview", s.handleDevotionPreview)

	s.router.Get("/api/v1/me", s.handleMe)
}
