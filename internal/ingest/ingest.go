// Package ingest sequences the document pipeline: PDF → tree → enrichment →
// chunks → embeddings → storage.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/pagedex/internal/chunker"
	"github.com/dgallion1/pagedex/internal/config"
	"github.com/dgallion1/pagedex/internal/embed"
	"github.com/dgallion1/pagedex/internal/store"
	"github.com/dgallion1/pagedex/internal/token"
	"github.com/dgallion1/pagedex/internal/tree"
)

// DuplicateError reports an existing document for the same
// (ticker, fiscal_year, doc_type) key.
type DuplicateError struct {
	DocID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("document already exists (doc_id %s); use force to overwrite", e.DocID)
}

// ValidationError reports bad caller input. It is never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// PageExtractor turns a PDF file into per-page text.
type PageExtractor interface {
	Pages(path string) ([]string, error)
}

// Request describes one document to ingest. Ticker, fiscal year, and doc
// type fall back to filename parsing when unset.
type Request struct {
	PDFPath    string
	Filename   string
	Company    string
	Ticker     string
	FiscalYear int
	DocType    string
	Force      bool
}

// Result is the outcome of an ingest.
type Result struct {
	DocID         string `json:"doc_id"`
	Status        string `json:"status"`
	ChunksCreated int    `json:"chunks_created"`
	NodeCount     int    `json:"node_count"`
	PageCount     int    `json:"page_count"`
	Message       string `json:"message,omitempty"`
}

// Orchestrator runs the ingest pipeline.
type Orchestrator struct {
	store     *store.Store
	extractor PageExtractor
	builder   *tree.Builder
	enricher  *tree.Enricher
	embedder  embed.Embedder
	tok       token.Counter
	cfg       config.Config
	log       *slog.Logger
}

func NewOrchestrator(st *store.Store, extractor PageExtractor, builder *tree.Builder,
	enricher *tree.Enricher, embedder embed.Embedder, tok token.Counter,
	cfg config.Config, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     st,
		extractor: extractor,
		builder:   builder,
		enricher:  enricher,
		embedder:  embedder,
		tok:       tok,
		cfg:       cfg,
		log:       log,
	}
}

// Ingest runs the full pipeline for one PDF. Duplicates are rejected unless
// Force is set, in which case the prior document is deleted first. Any
// failure after the processing row exists leaves status=failed with the
// error message.
func (o *Orchestrator) Ingest(ctx context.Context, req Request) (Result, error) {
	if req.Filename == "" {
		req.Filename = filepath.Base(req.PDFPath)
	}

	// Resolve metadata: explicit fields win, the filename fills the rest.
	parsed := ParseFilename(req.Filename)
	if req.Ticker == "" && parsed != nil {
		req.Ticker = parsed.Ticker
	}
	if req.FiscalYear == 0 && parsed != nil {
		req.FiscalYear = parsed.FiscalYear
	}
	if req.DocType == "" {
		if parsed != nil {
			req.DocType = parsed.DocType
		} else {
			req.DocType = "20-F"
		}
	}
	if req.Ticker == "" || req.FiscalYear == 0 {
		return Result{}, &ValidationError{Message: "could not determine ticker/fiscal_year from arguments or filename"}
	}
	if req.Company == "" {
		return Result{}, &ValidationError{Message: "company is required"}
	}

	existing, err := o.store.FindByKey(ctx, req.Ticker, req.FiscalYear, req.DocType)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		if !req.Force {
			return Result{DocID: existing.ID, Status: existing.Status},
				&DuplicateError{DocID: existing.ID}
		}
		if _, err := o.store.Delete(ctx, existing.ID); err != nil {
			return Result{}, fmt.Errorf("delete existing document: %w", err)
		}
		o.log.Info("deleted existing document for re-ingest", "doc_id", existing.ID)
	}

	docID := uuid.NewString()
	log := o.log.With("doc_id", docID, "filename", req.Filename)

	destPath, err := o.savePDF(req.PDFPath, docID)
	if err != nil {
		return Result{}, err
	}

	if err := o.store.InsertProcessing(ctx, store.Document{
		ID:              docID,
		Company:         req.Company,
		Ticker:          req.Ticker,
		FiscalYear:      req.FiscalYear,
		DocType:         req.DocType,
		Filename:        req.Filename,
		IngestTimestamp: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return Result{}, err
	}

	res, err := o.process(ctx, docID, destPath, log)
	if err != nil {
		log.Error("ingest failed", "error", err)
		if markErr := o.store.MarkFailed(ctx, docID, err.Error()); markErr != nil {
			log.Error("failed to record ingest failure", "error", markErr)
		}
		return Result{DocID: docID, Status: store.StatusFailed, Message: err.Error()}, err
	}
	log.Info("ingest complete", "nodes", res.NodeCount, "chunks", res.ChunksCreated, "pages", res.PageCount)
	return res, nil
}

func (o *Orchestrator) process(ctx context.Context, docID, pdfPath string, log *slog.Logger) (Result, error) {
	pages, err := o.extractor.Pages(pdfPath)
	if err != nil {
		return Result{}, err
	}
	log.Info("extracted pages", "pages", len(pages))

	roots, err := o.builder.Build(ctx, pages)
	if err != nil {
		return Result{}, err
	}
	log.Info("built tree", "nodes", tree.Count(roots))

	o.enricher.Enrich(ctx, roots, pages)

	flat := tree.Flatten(roots)
	totalTokens := 0
	for _, n := range flat {
		totalTokens += o.tok.Count(n.Text)
	}

	chunkCfg := chunker.Config{
		MaxTokens: o.cfg.ChunkMaxTokens,
		Overlap:   o.cfg.ChunkOverlapTokens,
		MinTokens: o.cfg.ChunkMinTokens,
	}
	var chunks []store.Chunk
	for _, n := range flat {
		for idx, piece := range chunker.Split(n.Text, chunkCfg, o.tok) {
			chunks = append(chunks, store.Chunk{
				NodeID:     n.NodeID,
				ChunkIndex: idx,
				Content:    piece.Content,
				TokenCount: piece.TokenCount,
				StartPage:  n.StartIndex,
				EndPage:    n.EndIndex,
			})
		}
	}
	log.Info("chunked nodes", "chunks", len(chunks))

	if err := o.embedChunks(ctx, chunks); err != nil {
		return Result{}, err
	}

	art, err := artifacts(roots)
	if err != nil {
		return Result{}, err
	}
	if err := o.store.Finalize(ctx, docID, art, chunks, len(pages), totalTokens, len(flat)); err != nil {
		return Result{}, err
	}

	return Result{
		DocID:         docID,
		Status:        store.StatusCompleted,
		ChunksCreated: len(chunks),
		NodeCount:     len(flat),
		PageCount:     len(pages),
		Message:       "ingest successful",
	}, nil
}

// embedChunks fills embeddings batch by batch; each batch is one remote call
// with its own bounded retries inside the adapter.
func (o *Orchestrator) embedChunks(ctx context.Context, chunks []store.Chunk) error {
	for start := 0; start < len(chunks); start += o.cfg.EmbedBatchSize {
		end := start + o.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}
		vectors, err := o.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch [%d, %d): %w", start, end, err)
		}
		for i := range vectors {
			chunks[start+i].Embedding = vectors[i]
		}
	}
	return nil
}

func artifacts(roots []*tree.Node) (store.TreeArtifacts, error) {
	treeJSON, err := json.Marshal(roots)
	if err != nil {
		return store.TreeArtifacts{}, fmt.Errorf("encode tree: %w", err)
	}
	noText, err := json.Marshal(tree.Strip(roots))
	if err != nil {
		return store.TreeArtifacts{}, fmt.Errorf("encode tree_no_text: %w", err)
	}
	nodeMap, err := json.Marshal(tree.BuildNodeMap(roots))
	if err != nil {
		return store.TreeArtifacts{}, fmt.Errorf("encode node_map: %w", err)
	}
	return store.TreeArtifacts{TreeJSON: treeJSON, TreeNoText: noText, NodeMapJSON: nodeMap}, nil
}

// savePDF copies the uploaded file into the upload dir as <doc_id>.pdf.
func (o *Orchestrator) savePDF(srcPath, docID string) (string, error) {
	if err := os.MkdirAll(o.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	dest := filepath.Join(o.cfg.UploadDir, docID+".pdf")

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create upload copy: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return "", fmt.Errorf("copy pdf: %w", err)
	}
	return dest, nil
}
