// Package api exposes the HTTP surface: ingest, query, corpus, health.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/pagedex/internal/config"
	"github.com/dgallion1/pagedex/internal/ingest"
	"github.com/dgallion1/pagedex/internal/llm"
	"github.com/dgallion1/pagedex/internal/retrieval"
	"github.com/dgallion1/pagedex/internal/stats"
	"github.com/dgallion1/pagedex/internal/store"
)

// EmbeddingProber reports whether the embedding service is reachable.
type EmbeddingProber interface {
	Healthy(ctx context.Context) bool
}

// Server is the HTTP API server.
type Server struct {
	router    chi.Router
	ingestor  *ingest.Orchestrator
	retriever *retrieval.Orchestrator
	store     *store.Store
	llm       *llm.Client
	embedding EmbeddingProber
	stats     *stats.Recorder
	log       *slog.Logger
	cfg       config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(ingestor *ingest.Orchestrator, retriever *retrieval.Orchestrator,
	st *store.Store, llmClient *llm.Client, embedding EmbeddingProber,
	rec *stats.Recorder, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		ingestor:  ingestor,
		retriever: retriever,
		store:     st,
		llm:       llmClient,
		embedding: embedding,
		stats:     rec,
		log:       log,
		cfg:       cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)
	r.Post("/ingest", s.handleIngest)
	r.Post("/query", s.handleQuery)
	r.Get("/corpus", s.handleCorpus)
	r.Delete("/corpus/{docID}", s.handleDeleteDocument)
	r.Get("/stats", s.handleStats)

	s.router = r
}

func jsonResponse(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonResponse(w, code, map[string]string{"error": msg})
}
