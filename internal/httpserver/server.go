package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/blackmichael/crossfeed/internal/config"
	"github.com/blackmichael/crossfeed/internal/domain"
	"github.com/blackmichael/crossfeed/internal/httpserver/mw"
	"github.com/blackmichael/crossfeed/internal/logger"
	"github.com/blackmichael/crossfeed/internal/richtext"
)

// TimelineReader serves the merged timeline. *domain.TimelineService
// implements it.
type TimelineReader interface {
	FeedURIs() []string
	GetTimeline(ctx context.Context, limit int, cursor string) (*domain.TimelinePage, error)
	GetFeedSkeleton(ctx context.Context, feedURI string, limit int, cursor string) (*domain.FeedSkeleton, error)
}

// DraftStore persists composer drafts. GetDraft returns (nil, nil) for an
// unknown ID.
type DraftStore interface {
	SaveDraft(ctx context.Context, id string, draft richtext.Draft) error
	GetDraft(ctx context.Context, id string) (*richtext.Draft, error)
}

// Deps are the collaborators the handlers use. Metrics and Resolver may be
// nil.
type Deps struct {
	Timeline TimelineReader
	Drafts   DraftStore
	Metrics  http.Handler
	Resolver richtext.HandleResolver
}

// Server is the HTTP server that serves the feed generator XRPC endpoints and
// the timeline and composer API.
type Server struct {
	cfg        *config.Config
	deps       Deps
	logger     logger.Logger
	router     chi.Router
	httpServer *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(cfg *config.Config, deps Deps, log logger.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(mw.Log(log))

	r.Get("/health", s.handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Get("/.well-known/did.json", s.handleDIDDoc)
	r.Get("/xrpc/app.bsky.feed.describeFeedGenerator", s.handleDescribeFeedGenerator)
	r.Get("/xrpc/app.bsky.feed.getFeedSkeleton", s.handleGetFeedSkeleton)

	r.Route("/api", func(r chi.Router) {
		r.Get("/timeline", s.handleGetTimeline)
		r.Post("/compose/preview", s.handleComposePreview)
		r.Put("/drafts/{id}", s.handlePutDraft)
		r.Get("/drafts/{id}", s.handleGetDraft)
	})

	s.router = r
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", logger.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}
