package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/pagedex/internal/api"
	"github.com/dgallion1/pagedex/internal/config"
	"github.com/dgallion1/pagedex/internal/embed"
	"github.com/dgallion1/pagedex/internal/ingest"
	"github.com/dgallion1/pagedex/internal/llm"
	"github.com/dgallion1/pagedex/internal/pdftext"
	"github.com/dgallion1/pagedex/internal/retrieval"
	"github.com/dgallion1/pagedex/internal/stats"
	"github.com/dgallion1/pagedex/internal/store"
	"github.com/dgallion1/pagedex/internal/token"
	"github.com/dgallion1/pagedex/internal/tree"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize storage and adapters.
	st, err := store.Open(cfg.DatabasePath, cfg.EmbeddingDim)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	tok, err := token.NewTiktoken()
	if err != nil {
		log.Error("failed to load tokenizer", "error", err)
		os.Exit(1)
	}

	rec := stats.NewRecorder(512)
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMRetries, cfg.LLMTimeout, rec, log)
	embedder, err := embed.NewClient(cfg.EmbeddingURL, cfg.EmbeddingModel, cfg.EmbeddingDim, cfg.EmbeddingTimeout, rec, log)
	if err != nil {
		log.Error("failed to create embedding client", "error", err)
		os.Exit(1)
	}

	// Initialize pipelines.
	extractor := &pdftext.Extractor{FallbackPdftotext: cfg.PDFFallbackPdftotext}
	builder := tree.NewBuilder(llmClient, tok, cfg, log)
	enricher := tree.NewEnricher(llmClient, tok, log)
	ingestor := ingest.NewOrchestrator(st, extractor, builder, enricher, embedder, tok, cfg, log)
	retriever := retrieval.NewOrchestrator(st, llmClient, embedder, tok, cfg, log)

	// Initialize HTTP server.
	srv := api.NewServer(ingestor, retriever, st, llmClient, embedder, rec, log, cfg)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     srv,
		ReadTimeout: 30 * time.Second,
		// Ingest runs inside the request; give it room.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		llmClient.Close()
	}()

	log.Info("starting pagedex", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
