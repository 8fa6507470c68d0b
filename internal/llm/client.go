package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/dgallion1/pagedex/internal/stats"
)

// shapeRetries bounds re-prompting when the model returns unparsable JSON.
const shapeRetries = 3

// Completer is the LLM contract consumed by the tree builder and retrieval.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteJSON(ctx context.Context, prompt string, out any) error
}

// Client calls an OpenAI-compatible chat-completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	retries    int
	httpClient *http.Client
	rec        *stats.Recorder
	log        *slog.Logger
}

func NewClient(baseURL, apiKey, model string, retries int, timeout time.Duration, rec *stats.Recorder, log *slog.Logger) *Client {
	if retries <= 0 {
		retries = 10
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		retries: retries,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		rec: rec,
		log: log,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a single-turn prompt and returns the assistant's text.
// Transient and capacity errors are retried with exponential backoff and
// jitter up to the configured retry count.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(Backoff(attempt - 1)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.complete(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return "", err
		}
		c.log.Warn("retryable llm error", "attempt", attempt, "error", err)
	}
	return "", fmt.Errorf("llm call failed after %d attempts: %w", c.retries, lastErr)
}

// CompleteJSON sends a prompt, strips any markdown code fence from the reply
// and unmarshals it into out. Unparsable replies are re-prompted up to
// shapeRetries times before a ShapeError is returned.
func (c *Client) CompleteJSON(ctx context.Context, prompt string, out any) error {
	var raw string
	var lastErr error
	for attempt := 0; attempt < shapeRetries; attempt++ {
		text, err := c.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		raw = stripCodeBlock(text)
		if err := json.Unmarshal([]byte(raw), out); err == nil {
			return nil
		} else {
			lastErr = err
		}
		c.log.Warn("llm returned unparsable json", "attempt", attempt, "error", lastErr)
	}
	return &ShapeError{Attempts: shapeRetries, Raw: raw, Err: lastErr}
}

// complete performs one chat call and reports it to the stats recorder;
// every attempt counts, including the ones that fail and get retried.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := c.doComplete(ctx, prompt)
	c.rec.Observe(stats.OpChat, time.Since(start), err)
	return text, err
}

func (c *Client) doComplete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		// Timeouts and connection failures are transient.
		return "", &RetryableError{Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &CapacityError{Message: string(respBody)}
	}
	if resp.StatusCode >= 500 {
		return "", &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm api status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("llm error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from llm")
	}

	return strings.TrimSpace(apiResp.Choices[0].Message.Content), nil
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
