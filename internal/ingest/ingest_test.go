package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/pagedex/internal/config"
	"github.com/dgallion1/pagedex/internal/store"
	"github.com/dgallion1/pagedex/internal/tree"
)

// fakeExtractor serves canned pages instead of reading a real PDF.
type fakeExtractor struct {
	pages []string
}

func (f *fakeExtractor) Pages(string) ([]string, error) { return f.pages, nil }

// fakeEmbedder returns constant vectors of the right dimension.
type fakeEmbedder struct {
	dim int
}

func (f *fakeEmbedder) Dim() int { return f.dim }

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

// scriptedLLM routes prompts to canned responses by marker substring.
type scriptedLLM struct {
	t      *testing.T
	routes map[string]string
}

func (f *scriptedLLM) dispatch(prompt string) string {
	for marker, resp := range f.routes {
		if strings.Contains(prompt, marker) {
			return resp
		}
	}
	f.t.Fatalf("no scripted response for prompt: %.120s", prompt)
	return ""
}

func (f *scriptedLLM) Complete(_ context.Context, prompt string) (string, error) {
	return f.dispatch(prompt), nil
}

func (f *scriptedLLM) CompleteJSON(_ context.Context, prompt string, out any) error {
	return json.Unmarshal([]byte(f.dispatch(prompt)), out)
}

// wordCounter counts whitespace-separated words as tokens and round-trips
// them through a dictionary so Decode(Encode(x)) reproduces the words.
type wordCounter struct {
	words []string
	index map[string]int
}

func newWordCounter() *wordCounter { return &wordCounter{index: make(map[string]int)} }

func (t *wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func (t *wordCounter) Encode(text string) []int {
	var out []int
	for _, w := range strings.Fields(text) {
		id, ok := t.index[w]
		if !ok {
			id = len(t.words)
			t.index[w] = id
			t.words = append(t.words, w)
		}
		out = append(out, id)
	}
	return out
}

func (t *wordCounter) Decode(tokens []int) string {
	parts := make([]string, len(tokens))
	for i, id := range tokens {
		parts[i] = t.words[id]
	}
	return strings.Join(parts, " ")
}

func thirtyPages() []string {
	pages := make([]string, 30)
	titles := map[int]string{1: "Item 1. Business", 11: "Item 2. Risk Factors", 21: "Item 3. Financials"}
	for i := range pages {
		body := fmt.Sprintf("page %d filing narrative about operations results and outlook spanning many recurring words", i+1)
		if title, ok := titles[i+1]; ok {
			pages[i] = title + "\n" + body
		} else {
			pages[i] = body
		}
	}
	return pages
}

func testOrchestrator(t *testing.T) (*Orchestrator, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"), 4)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Load()
	cfg.UploadDir = filepath.Join(dir, "uploads")
	cfg.EmbeddingDim = 4
	cfg.ChunkMaxTokens = 64
	cfg.ChunkOverlapTokens = 8
	cfg.ChunkMinTokens = 4

	fake := &scriptedLLM{t: t, routes: map[string]string{
		"table of contents": `{"has_toc": true, "entries": [
			{"title": "Item 1. Business", "page": 1},
			{"title": "Item 2. Risk Factors", "page": 11},
			{"title": "Item 3. Financials", "page": 21}]}`,
		"hierarchy level":          `{"levels": [1, 1, 1]}`,
		"single-paragraph summary": "This section summarizes the filing's business operations and financial results.",
		"short description":        "Annual filing covering operations and results.",
	}}

	log := slog.New(slog.DiscardHandler)
	tok := newWordCounter()
	builder := tree.NewBuilder(fake, tok, cfg, log)
	enricher := tree.NewEnricher(fake, tok, log)
	o := NewOrchestrator(st, &fakeExtractor{pages: thirtyPages()}, builder, enricher,
		&fakeEmbedder{dim: 4}, tok, cfg, log)
	return o, st
}

func writeTempPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "INFY_20F_2022.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 stub"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngestHappyPath(t *testing.T) {
	o, st := testOrchestrator(t)
	ctx := context.Background()

	res, err := o.Ingest(ctx, Request{
		PDFPath: writeTempPDF(t),
		Company: "Infosys Ltd",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if res.Status != store.StatusCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}
	if res.NodeCount != 3 || res.PageCount != 30 {
		t.Errorf("expected 3 nodes over 30 pages, got %d/%d", res.NodeCount, res.PageCount)
	}
	if res.ChunksCreated == 0 {
		t.Error("expected chunks to be created")
	}

	// Metadata came from the filename.
	doc, err := st.FindByKey(ctx, "INFY", 2022, "20-F")
	if err != nil || doc == nil {
		t.Fatalf("document not stored under parsed key: %v", err)
	}
	if doc.NodeCount != res.NodeCount || doc.ChunkCount != res.ChunksCreated {
		t.Errorf("stored counters disagree with result: %+v vs %+v", doc, res)
	}

	// node_count matches the tree; chunk_count matches the chunk rows.
	nodeMap, err := st.LoadNodeMap(ctx, res.DocID)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodeMap) != doc.NodeCount {
		t.Errorf("node map has %d entries, document says %d", len(nodeMap), doc.NodeCount)
	}
	chunkRows, err := st.CountChunks(ctx, res.DocID)
	if err != nil {
		t.Fatal(err)
	}
	if chunkRows != doc.ChunkCount {
		t.Errorf("chunk rows %d, document says %d", chunkRows, doc.ChunkCount)
	}

	// The stripped tree is the full tree minus text and page indices.
	noText, err := st.LoadTreeNoText(ctx, res.DocID)
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"start_index", "end_index", "\"text\""} {
		if strings.Contains(string(noText), field) {
			t.Errorf("tree_no_text still contains %s", field)
		}
	}
}

func TestIngestDuplicateRejectedThenForced(t *testing.T) {
	o, st := testOrchestrator(t)
	ctx := context.Background()

	first, err := o.Ingest(ctx, Request{PDFPath: writeTempPDF(t), Company: "Infosys Ltd"})
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	// Second attempt without force fails and reports the first doc_id.
	res, err := o.Ingest(ctx, Request{PDFPath: writeTempPDF(t), Company: "Infosys Ltd"})
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.DocID != first.DocID || res.DocID != first.DocID {
		t.Errorf("duplicate must reference the existing doc_id %s, got %s", first.DocID, dup.DocID)
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected 'already exists' in error, got %q", err.Error())
	}

	// With force, a fresh doc_id replaces the old document entirely.
	forced, err := o.Ingest(ctx, Request{PDFPath: writeTempPDF(t), Company: "Infosys Ltd", Force: true})
	if err != nil {
		t.Fatalf("forced ingest: %v", err)
	}
	if forced.DocID == first.DocID {
		t.Error("forced ingest must assign a new doc_id")
	}
	if old, _ := st.GetDocument(ctx, first.DocID); old != nil {
		t.Error("old document must be gone after force")
	}
	if n, _ := st.CountChunks(ctx, first.DocID); n != 0 {
		t.Errorf("old chunks must cascade away, %d remain", n)
	}
}

func TestIngestMissingMetadataFails(t *testing.T) {
	o, _ := testOrchestrator(t)

	path := filepath.Join(t.TempDir(), "unparseable.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := o.Ingest(context.Background(), Request{PDFPath: path, Company: "Mystery Corp"})
	var invalid *ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestIngestMissingCompanyFails(t *testing.T) {
	o, _ := testOrchestrator(t)

	_, err := o.Ingest(context.Background(), Request{PDFPath: writeTempPDF(t)})
	var invalid *ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
