package embed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/dgallion1/pagedex/internal/llm"
	"github.com/dgallion1/pagedex/internal/stats"
)

// batchRetries bounds retries per embedding batch.
const batchRetries = 3

// Embedder is the embedding contract consumed by ingest and retrieval.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// DimensionError indicates the service returned vectors of the wrong length.
// It is fatal: retrying cannot fix a model/config mismatch.
type DimensionError struct {
	Want, Got int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// Client generates embeddings via an Ollama-compatible endpoint.
type Client struct {
	client *api.Client
	model  string
	dim    int
	rec    *stats.Recorder
	log    *slog.Logger
}

func NewClient(rawURL, model string, dim int, timeout time.Duration, rec *stats.Recorder, log *slog.Logger) (*Client, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse embedding url: %w", err)
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		client: api.NewClient(base, &http.Client{Timeout: timeout}),
		model:  model,
		dim:    dim,
		rec:    rec,
		log:    log,
	}, nil
}

// Dim returns the configured vector dimension.
func (c *Client) Dim() int { return c.dim }

// EmbedBatch embeds a batch of texts in a single remote call. An empty batch
// returns an empty result without touching the network. Transport errors are
// retried with backoff; a dimension mismatch fails immediately.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt < batchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(llm.Backoff(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		start := time.Now()
		resp, err := c.client.Embed(ctx, &api.EmbedRequest{
			Model: c.model,
			Input: texts,
		})
		c.rec.Observe(stats.OpEmbed, time.Since(start), err)
		if err != nil {
			lastErr = err
			c.log.Warn("embedding batch failed", "attempt", attempt, "size", len(texts), "error", err)
			continue
		}

		if len(resp.Embeddings) != len(texts) {
			return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors",
				len(texts), len(resp.Embeddings))
		}
		for _, vec := range resp.Embeddings {
			if len(vec) != c.dim {
				return nil, &DimensionError{Want: c.dim, Got: len(vec)}
			}
		}
		return resp.Embeddings, nil
	}
	return nil, fmt.Errorf("embedding batch failed after %d attempts: %w", batchRetries, lastErr)
}

// Healthy reports whether the embedding service is reachable and serves the
// configured model. Model names may carry a tag suffix (":latest").
func (c *Client) Healthy(ctx context.Context) bool {
	resp, err := c.client.List(ctx)
	if err != nil {
		return false
	}
	for _, m := range resp.Models {
		if strings.HasPrefix(m.Name, c.model) {
			return true
		}
	}
	return false
}
